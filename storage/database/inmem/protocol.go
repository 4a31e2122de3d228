package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/protocol"
)

type protocolRepository struct {
	db *DB
}

var _ protocol.Repository = (*protocolRepository)(nil)

func NewProtocolRepository(db *DB) *protocolRepository {
	return &protocolRepository{db: db}
}

func (repo *protocolRepository) CreateProtocol(ctx context.Context, prt protocol.Protocol, exec ...core.DBExecutor) (protocol.Protocol, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	prt.ID = uuid.New().String()
	repo.db.protocols[prt.ID] = &prt
	return prt, nil
}

func (repo *protocolRepository) GetProtocol(ctx context.Context, id string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if prt, ok := repo.db.protocols[id]; ok {
		return *prt, nil
	}
	return protocol.Protocol{}, protocol.ErrNotFound
}

func (repo *protocolRepository) GetProtocolForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	return repo.GetProtocol(ctx, id, exec...)
}

func (repo *protocolRepository) GetProtocolByNumber(ctx context.Context, number string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, prt := range repo.db.protocols {
		if prt.Number == number {
			return *prt, nil
		}
	}
	return protocol.Protocol{}, protocol.ErrNotFound
}

func (repo *protocolRepository) GetProtocolByEnrollment(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, prt := range repo.db.protocols {
		if prt.EnrollmentID != "" && prt.EnrollmentID == enrollmentID {
			return *prt, nil
		}
	}
	return protocol.Protocol{}, protocol.ErrNotFound
}

func (repo *protocolRepository) GetProtocolByAttempt(ctx context.Context, attemptID string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, prt := range repo.db.protocols {
		if prt.AttemptID != "" && prt.AttemptID == attemptID {
			return *prt, nil
		}
	}
	return protocol.Protocol{}, protocol.ErrNotFound
}

func (repo *protocolRepository) QueryProtocols(ctx context.Context, filter *protocol.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]protocol.Protocol, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var protocols []protocol.Protocol
	for _, prt := range repo.db.protocols {
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(prt.Number), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.Status != "" && prt.Status != filter.Status {
				continue
			}
			if filter.Result != "" && prt.Result != filter.Result {
				continue
			}
			if filter.StudentID != "" && prt.StudentID != filter.StudentID {
				continue
			}
		}
		protocols = append(protocols, *prt)
	}
	sort.Slice(protocols, func(i, j int) bool { return protocols[i].CreatedAt.After(protocols[j].CreatedAt) })
	return protocols, nil
}

func (repo *protocolRepository) UpdateProtocol(ctx context.Context, prt protocol.Protocol, exec ...core.DBExecutor) (protocol.Protocol, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.protocols[prt.ID]; !ok {
		return protocol.Protocol{}, protocol.ErrNotFound
	}
	repo.db.protocols[prt.ID] = &prt
	return prt, nil
}

func (repo *protocolRepository) NumberExists(ctx context.Context, number string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, prt := range repo.db.protocols {
		if prt.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (repo *protocolRepository) CreateSignature(ctx context.Context, sig protocol.Signature, exec ...core.DBExecutor) (protocol.Signature, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sig.ID = uuid.New().String()
	repo.db.signatures[sig.ID] = &sig
	return sig, nil
}

func (repo *protocolRepository) GetSignature(ctx context.Context, protocolID, signerID string, exec ...core.DBExecutor) (protocol.Signature, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, sig := range repo.db.signatures {
		if sig.ProtocolID == protocolID && sig.SignerID == signerID {
			return *sig, nil
		}
	}
	return protocol.Signature{}, protocol.ErrSignatureNotFound
}

func (repo *protocolRepository) QuerySignatures(ctx context.Context, protocolID string, exec ...core.DBExecutor) ([]protocol.Signature, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var sigs []protocol.Signature
	for _, sig := range repo.db.signatures {
		if sig.ProtocolID == protocolID {
			sigs = append(sigs, *sig)
		}
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].CreatedAt.Before(sigs[j].CreatedAt) })
	return sigs, nil
}

func (repo *protocolRepository) UpdateSignature(ctx context.Context, sig protocol.Signature, exec ...core.DBExecutor) (protocol.Signature, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.signatures[sig.ID]; !ok {
		return protocol.Signature{}, protocol.ErrSignatureNotFound
	}
	repo.db.signatures[sig.ID] = &sig
	return sig, nil
}
