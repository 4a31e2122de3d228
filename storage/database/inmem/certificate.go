package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/certificate"
)

type certificateRepository struct {
	db *DB
}

var _ certificate.Repository = (*certificateRepository)(nil)

func NewCertificateRepository(db *DB) *certificateRepository {
	return &certificateRepository{db: db}
}

func (repo *certificateRepository) CreateCertificate(ctx context.Context, crt certificate.Certificate, exec ...core.DBExecutor) (certificate.Certificate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, cur := range repo.db.certificates {
		if cur.ProtocolID == crt.ProtocolID && cur.StudentID == crt.StudentID && cur.CourseID == crt.CourseID {
			return certificate.Certificate{}, certificate.ErrExists
		}
	}
	crt.ID = uuid.New().String()
	repo.db.certificates[crt.ID] = &crt
	return crt, nil
}

func (repo *certificateRepository) GetCertificate(ctx context.Context, id string, exec ...core.DBExecutor) (certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if crt, ok := repo.db.certificates[id]; ok {
		return *crt, nil
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) GetCertificateByNumber(ctx context.Context, number string, exec ...core.DBExecutor) (certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, crt := range repo.db.certificates {
		if crt.Number == number {
			return *crt, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) GetCertificateByProtocol(ctx context.Context, protocolID, studentID, courseID string, exec ...core.DBExecutor) (certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, crt := range repo.db.certificates {
		if crt.ProtocolID == protocolID && crt.StudentID == studentID && crt.CourseID == courseID {
			return *crt, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) QueryCertificates(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var certs []certificate.Certificate
	for _, crt := range repo.db.certificates {
		if crt.StudentID == studentID {
			certs = append(certs, *crt)
		}
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].IssuedAt.After(certs[j].IssuedAt) })
	return certs, nil
}

func (repo *certificateRepository) UpdateCertificate(ctx context.Context, crt certificate.Certificate, exec ...core.DBExecutor) (certificate.Certificate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.certificates[crt.ID]; !ok {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	repo.db.certificates[crt.ID] = &crt
	return crt, nil
}

func (repo *certificateRepository) NumberExists(ctx context.Context, number string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, crt := range repo.db.certificates {
		if crt.Number == number {
			return true, nil
		}
	}
	return false, nil
}
