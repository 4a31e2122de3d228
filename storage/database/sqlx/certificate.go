package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/certificate"
)

type certificateRepository struct {
	db core.DBExecutor
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db core.DBExecutor) *certificateRepository {
	return &certificateRepository{db: db}
}

func (repo certificateRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

func (repo certificateRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return certificate.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

type certificateRow struct {
	ID           string      `db:"id"`
	Number       string      `db:"number"`
	StudentID    string      `db:"student_id"`
	CourseID     null.String `db:"course_id"`
	ProtocolID   null.String `db:"protocol_id"`
	EnrollmentID null.String `db:"enrollment_id"`
	TemplateID   null.String `db:"template_id"`
	FileURL      null.String `db:"file_url"`
	UploadedByID null.String `db:"uploaded_by_id"`
	UploadedAt   null.Time   `db:"uploaded_at"`
	IssuedAt     time.Time   `db:"issued_at"`
	ValidUntil   null.Time   `db:"valid_until"`
	QRCode       string      `db:"qr_code"`
}

func (repo certificateRepository) toRow(crt certificate.Certificate) certificateRow {
	return certificateRow{
		ID:           crt.ID,
		Number:       crt.Number,
		StudentID:    crt.StudentID,
		CourseID:     null.NewString(crt.CourseID, crt.CourseID != ""),
		ProtocolID:   null.NewString(crt.ProtocolID, crt.ProtocolID != ""),
		EnrollmentID: null.NewString(crt.EnrollmentID, crt.EnrollmentID != ""),
		TemplateID:   null.NewString(crt.TemplateID, crt.TemplateID != ""),
		FileURL:      null.NewString(crt.FileURL, crt.FileURL != ""),
		UploadedByID: null.NewString(crt.UploadedByID, crt.UploadedByID != ""),
		UploadedAt:   null.NewTime(crt.UploadedAt.UTC(), !crt.UploadedAt.IsZero()),
		IssuedAt:     crt.IssuedAt.UTC(),
		ValidUntil:   null.NewTime(crt.ValidUntil.UTC(), !crt.ValidUntil.IsZero()),
		QRCode:       crt.QRCode,
	}
}

func (repo certificateRepository) fromRow(row certificateRow) certificate.Certificate {
	return certificate.Certificate{
		ID:           row.ID,
		Number:       row.Number,
		StudentID:    row.StudentID,
		CourseID:     row.CourseID.String,
		ProtocolID:   row.ProtocolID.String,
		EnrollmentID: row.EnrollmentID.String,
		TemplateID:   row.TemplateID.String,
		FileURL:      row.FileURL.String,
		UploadedByID: row.UploadedByID.String,
		UploadedAt:   row.UploadedAt.Time,
		IssuedAt:     row.IssuedAt,
		ValidUntil:   row.ValidUntil.Time,
		QRCode:       row.QRCode,
	}
}

const certificateColumns = `id, number, student_id, course_id, protocol_id, enrollment_id, template_id, file_url, uploaded_by_id, uploaded_at, issued_at, valid_until, qr_code`

func (repo certificateRepository) CreateCertificate(ctx context.Context, crt certificate.Certificate, exec ...core.DBExecutor) (certificate.Certificate, error) {
	crt.ID = uuid.New().String()
	query := `
		INSERT INTO certificate (` + certificateColumns + `)
		VALUES (:id, :number, :student_id, :course_id, :protocol_id, :enrollment_id, :template_id, :file_url, :uploaded_by_id, :uploaded_at, :issued_at, :valid_until, :qr_code)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toRow(crt)); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return certificate.Certificate{}, certificate.ErrExists
		}
		return certificate.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return crt, nil
}

func (repo certificateRepository) GetCertificate(ctx context.Context, id string, exec ...core.DBExecutor) (certificate.Certificate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	var row certificateRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT `+certificateColumns+` FROM certificate WHERE id = $1`, id)
	if err != nil {
		return certificate.Certificate{}, repo.trapNoRowsErr(err, "finding certificate")
	}
	return repo.fromRow(row), nil
}

func (repo certificateRepository) GetCertificateByNumber(ctx context.Context, number string, exec ...core.DBExecutor) (certificate.Certificate, error) {
	var row certificateRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT `+certificateColumns+` FROM certificate WHERE number = $1`, number)
	if err != nil {
		return certificate.Certificate{}, repo.trapNoRowsErr(err, "finding certificate by number")
	}
	return repo.fromRow(row), nil
}

func (repo certificateRepository) GetCertificateByProtocol(ctx context.Context, protocolID, studentID, courseID string, exec ...core.DBExecutor) (certificate.Certificate, error) {
	var row certificateRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT `+certificateColumns+` FROM certificate
		 WHERE protocol_id = $1 AND student_id = $2 AND course_id IS NOT DISTINCT FROM NULLIF($3, '')`,
		protocolID, studentID, courseID)
	if err != nil {
		return certificate.Certificate{}, repo.trapNoRowsErr(err, "finding certificate by protocol")
	}
	return repo.fromRow(row), nil
}

func (repo certificateRepository) QueryCertificates(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]certificate.Certificate, error) {
	var rows []certificateRow
	err := repo.getExec(exec).SelectContext(ctx, &rows,
		`SELECT `+certificateColumns+` FROM certificate WHERE student_id = $1 ORDER BY issued_at DESC`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	certs := make([]certificate.Certificate, 0, len(rows))
	for _, row := range rows {
		certs = append(certs, repo.fromRow(row))
	}
	return certs, nil
}

func (repo certificateRepository) UpdateCertificate(ctx context.Context, crt certificate.Certificate, exec ...core.DBExecutor) (certificate.Certificate, error) {
	query := `
		UPDATE certificate
		SET template_id = :template_id, file_url = :file_url, uploaded_by_id = :uploaded_by_id,
		    uploaded_at = :uploaded_at, valid_until = :valid_until
		WHERE id = :id`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toRow(crt)); err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "updating certificate")
	}
	return crt, nil
}

func (repo certificateRepository) NumberExists(ctx context.Context, number string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := repo.getExec(exec).GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM certificate WHERE number = $1)`, number)
	if err != nil {
		return false, errors.Wrap(err, "checking certificate number")
	}
	return exists, nil
}
