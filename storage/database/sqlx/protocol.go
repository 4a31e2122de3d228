package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/protocol"
)

type protocolRepository struct {
	db core.DBExecutor
}

var _ protocol.Repository = (*protocolRepository)(nil) // interface compliance check

func NewProtocolRepository(db core.DBExecutor) *protocolRepository {
	return &protocolRepository{db: db}
}

func (repo protocolRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

func (repo protocolRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

type protocolRow struct {
	ID              string      `db:"id"`
	Number          string      `db:"number"`
	StudentID       string      `db:"student_id"`
	CourseID        null.String `db:"course_id"`
	TestID          null.String `db:"test_id"`
	EnrollmentID    null.String `db:"enrollment_id"`
	AttemptID       null.String `db:"attempt_id"`
	ExamDate        time.Time   `db:"exam_date"`
	Score           float64     `db:"score"`
	PassingScore    float64     `db:"passing_score"`
	Result          string      `db:"result"`
	Status          string      `db:"status"`
	RejectionReason null.String `db:"rejection_reason"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func (repo protocolRepository) toRow(prt protocol.Protocol) protocolRow {
	return protocolRow{
		ID:              prt.ID,
		Number:          prt.Number,
		StudentID:       prt.StudentID,
		CourseID:        null.NewString(prt.CourseID, prt.CourseID != ""),
		TestID:          null.NewString(prt.TestID, prt.TestID != ""),
		EnrollmentID:    null.NewString(prt.EnrollmentID, prt.EnrollmentID != ""),
		AttemptID:       null.NewString(prt.AttemptID, prt.AttemptID != ""),
		ExamDate:        prt.ExamDate.UTC(),
		Score:           prt.Score,
		PassingScore:    prt.PassingScore,
		Result:          string(prt.Result),
		Status:          prt.Status.String(),
		RejectionReason: null.NewString(prt.RejectionReason, prt.RejectionReason != ""),
		CreatedAt:       prt.CreatedAt.UTC(),
		UpdatedAt:       prt.UpdatedAt.UTC(),
	}
}

func (repo protocolRepository) fromRow(row protocolRow) protocol.Protocol {
	return protocol.Protocol{
		ID:              row.ID,
		Number:          row.Number,
		StudentID:       row.StudentID,
		CourseID:        row.CourseID.String,
		TestID:          row.TestID.String,
		EnrollmentID:    row.EnrollmentID.String,
		AttemptID:       row.AttemptID.String,
		ExamDate:        row.ExamDate,
		Score:           row.Score,
		PassingScore:    row.PassingScore,
		Result:          protocol.Result(row.Result),
		Status:          protocol.Status(row.Status),
		RejectionReason: row.RejectionReason.String,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

type signatureRow struct {
	ID           string      `db:"id"`
	ProtocolID   string      `db:"protocol_id"`
	SignerID     string      `db:"signer_id"`
	Role         string      `db:"role"`
	OTPCode      null.String `db:"otp_code"`
	OTPExpiresAt null.Time   `db:"otp_expires_at"`
	Verified     bool        `db:"verified"`
	SignedAt     null.Time   `db:"signed_at"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (repo protocolRepository) toSignatureRow(sig protocol.Signature) signatureRow {
	return signatureRow{
		ID:           sig.ID,
		ProtocolID:   sig.ProtocolID,
		SignerID:     sig.SignerID,
		Role:         string(sig.Role),
		OTPCode:      null.NewString(sig.OTPCode, sig.OTPCode != ""),
		OTPExpiresAt: null.NewTime(sig.OTPExpiresAt.UTC(), !sig.OTPExpiresAt.IsZero()),
		Verified:     sig.Verified,
		SignedAt:     null.NewTime(sig.SignedAt.UTC(), !sig.SignedAt.IsZero()),
		CreatedAt:    sig.CreatedAt.UTC(),
		UpdatedAt:    sig.UpdatedAt.UTC(),
	}
}

func (repo protocolRepository) fromSignatureRow(row signatureRow) protocol.Signature {
	return protocol.Signature{
		ID:           row.ID,
		ProtocolID:   row.ProtocolID,
		SignerID:     row.SignerID,
		Role:         protocol.SignatureRole(row.Role),
		OTPCode:      row.OTPCode.String,
		OTPExpiresAt: row.OTPExpiresAt.Time,
		Verified:     row.Verified,
		SignedAt:     row.SignedAt.Time,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

const (
	protocolColumns  = `id, number, student_id, course_id, test_id, enrollment_id, attempt_id, exam_date, score, passing_score, result, status, rejection_reason, created_at, updated_at`
	signatureColumns = `id, protocol_id, signer_id, role, otp_code, otp_expires_at, verified, signed_at, created_at, updated_at`
)

// protocolSortable lists the columns clients may order protocol queries by.
var protocolSortable = map[string]bool{
	"number":     true,
	"exam_date":  true,
	"score":      true,
	"result":     true,
	"status":     true,
	"created_at": true,
}

func (repo protocolRepository) CreateProtocol(ctx context.Context, prt protocol.Protocol, exec ...core.DBExecutor) (protocol.Protocol, error) {
	prt.ID = uuid.New().String()
	query := `
		INSERT INTO protocol (` + protocolColumns + `)
		VALUES (:id, :number, :student_id, :course_id, :test_id, :enrollment_id, :attempt_id, :exam_date, :score, :passing_score, :result, :status, :rejection_reason, :created_at, :updated_at)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toRow(prt)); err != nil {
		return protocol.Protocol{}, errors.Wrap(err, "inserting protocol")
	}
	return prt, nil
}

func (repo protocolRepository) getProtocol(ctx context.Context, where string, arg interface{}, forUpdate bool, exec []core.DBExecutor) (protocol.Protocol, error) {
	query := `SELECT ` + protocolColumns + ` FROM protocol WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row protocolRow
	if err := repo.getExec(exec).GetContext(ctx, &row, query, arg); err != nil {
		return protocol.Protocol{}, repo.trapNoRowsErr(err, protocol.ErrNotFound, "finding protocol")
	}
	return repo.fromRow(row), nil
}

func (repo protocolRepository) GetProtocol(ctx context.Context, id string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	if _, err := uuid.Parse(id); err != nil {
		return protocol.Protocol{}, protocol.ErrNotFound
	}
	return repo.getProtocol(ctx, `id = $1`, id, false, exec)
}

func (repo protocolRepository) GetProtocolForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	if _, err := uuid.Parse(id); err != nil {
		return protocol.Protocol{}, protocol.ErrNotFound
	}
	return repo.getProtocol(ctx, `id = $1`, id, true, exec)
}

func (repo protocolRepository) GetProtocolByNumber(ctx context.Context, number string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	return repo.getProtocol(ctx, `number = $1`, number, false, exec)
}

func (repo protocolRepository) GetProtocolByEnrollment(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	return repo.getProtocol(ctx, `enrollment_id = $1`, enrollmentID, false, exec)
}

func (repo protocolRepository) GetProtocolByAttempt(ctx context.Context, attemptID string, exec ...core.DBExecutor) (protocol.Protocol, error) {
	return repo.getProtocol(ctx, `attempt_id = $1`, attemptID, false, exec)
}

func (repo protocolRepository) QueryProtocols(ctx context.Context, filter *protocol.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]protocol.Protocol, error) {
	exe := repo.getExec(exec)

	query := `SELECT ` + protocolColumns + ` FROM protocol WHERE TRUE`
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			query += ` AND number ILIKE ?`
			args = append(args, "%"+filter.Search+"%")
		}
		if filter.Status != "" {
			query += ` AND status = ?`
			args = append(args, filter.Status.String())
		}
		if filter.Result != "" {
			query += ` AND result = ?`
			args = append(args, string(filter.Result))
		}
		if filter.StudentID != "" {
			query += ` AND student_id = ?`
			args = append(args, filter.StudentID)
		}
	}
	query += orderingClause(ordering, protocolSortable, "created_at DESC")

	var rows []protocolRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying protocols")
	}
	protocols := make([]protocol.Protocol, 0, len(rows))
	for _, row := range rows {
		protocols = append(protocols, repo.fromRow(row))
	}
	return protocols, nil
}

func (repo protocolRepository) UpdateProtocol(ctx context.Context, prt protocol.Protocol, exec ...core.DBExecutor) (protocol.Protocol, error) {
	query := `
		UPDATE protocol
		SET status = :status, result = :result, rejection_reason = :rejection_reason, updated_at = :updated_at
		WHERE id = :id`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toRow(prt)); err != nil {
		return protocol.Protocol{}, errors.Wrap(err, "updating protocol")
	}
	return prt, nil
}

func (repo protocolRepository) NumberExists(ctx context.Context, number string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := repo.getExec(exec).GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM protocol WHERE number = $1)`, number)
	if err != nil {
		return false, errors.Wrap(err, "checking protocol number")
	}
	return exists, nil
}

func (repo protocolRepository) CreateSignature(ctx context.Context, sig protocol.Signature, exec ...core.DBExecutor) (protocol.Signature, error) {
	sig.ID = uuid.New().String()
	query := `
		INSERT INTO protocol_signature (` + signatureColumns + `)
		VALUES (:id, :protocol_id, :signer_id, :role, :otp_code, :otp_expires_at, :verified, :signed_at, :created_at, :updated_at)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toSignatureRow(sig)); err != nil {
		return protocol.Signature{}, errors.Wrap(err, "inserting signature")
	}
	return sig, nil
}

func (repo protocolRepository) GetSignature(ctx context.Context, protocolID, signerID string, exec ...core.DBExecutor) (protocol.Signature, error) {
	var row signatureRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT `+signatureColumns+` FROM protocol_signature WHERE protocol_id = $1 AND signer_id = $2`, protocolID, signerID)
	if err != nil {
		return protocol.Signature{}, repo.trapNoRowsErr(err, protocol.ErrSignatureNotFound, "finding signature")
	}
	return repo.fromSignatureRow(row), nil
}

func (repo protocolRepository) QuerySignatures(ctx context.Context, protocolID string, exec ...core.DBExecutor) ([]protocol.Signature, error) {
	var rows []signatureRow
	err := repo.getExec(exec).SelectContext(ctx, &rows,
		`SELECT `+signatureColumns+` FROM protocol_signature WHERE protocol_id = $1 ORDER BY created_at`, protocolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying signatures")
	}
	sigs := make([]protocol.Signature, 0, len(rows))
	for _, row := range rows {
		sigs = append(sigs, repo.fromSignatureRow(row))
	}
	return sigs, nil
}

func (repo protocolRepository) UpdateSignature(ctx context.Context, sig protocol.Signature, exec ...core.DBExecutor) (protocol.Signature, error) {
	query := `
		UPDATE protocol_signature
		SET otp_code = :otp_code, otp_expires_at = :otp_expires_at, verified = :verified,
		    signed_at = :signed_at, updated_at = :updated_at
		WHERE id = :id`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toSignatureRow(sig)); err != nil {
		return protocol.Signature{}, errors.Wrap(err, "updating signature")
	}
	return sig, nil
}
