package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/exam"
)

type examRepository struct {
	db core.DBExecutor
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db core.DBExecutor) *examRepository {
	return &examRepository{db: db}
}

func (repo examRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

func (repo examRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

type testRow struct {
	ID           string      `db:"id"`
	CourseID     null.String `db:"course_id"`
	Title        string      `db:"title"`
	PassingScore int         `db:"passing_score"`
	TimeLimit    null.Int    `db:"time_limit"`
	MaxAttempts  int         `db:"max_attempts"`
	IsActive     bool        `db:"is_active"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (repo examRepository) toTestRow(tst exam.Test) testRow {
	return testRow{
		ID:           tst.ID,
		CourseID:     null.NewString(tst.CourseID, tst.CourseID != ""),
		Title:        tst.Title,
		PassingScore: tst.PassingScore,
		TimeLimit:    null.NewInt(tst.TimeLimit, tst.TimeLimit != 0),
		MaxAttempts:  tst.MaxAttempts,
		IsActive:     tst.IsActive,
		CreatedAt:    tst.CreatedAt.UTC(),
		UpdatedAt:    tst.UpdatedAt.UTC(),
	}
}

func (repo examRepository) fromTestRow(row testRow) exam.Test {
	return exam.Test{
		ID:           row.ID,
		CourseID:     row.CourseID.String,
		Title:        row.Title,
		PassingScore: row.PassingScore,
		TimeLimit:    row.TimeLimit.Int,
		MaxAttempts:  row.MaxAttempts,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

const (
	testColumns    = `id, course_id, title, passing_score, time_limit, max_attempts, is_active, created_at, updated_at`
	attemptColumns = `id, test_id, student_id, started_at, completed_at, score, passed, answers, ip_address, user_agent`
)

func (repo examRepository) CreateTest(ctx context.Context, tst exam.Test, exec ...core.DBExecutor) (exam.Test, error) {
	tst.ID = uuid.New().String()
	query := `
		INSERT INTO test (` + testColumns + `)
		VALUES (:id, :course_id, :title, :passing_score, :time_limit, :max_attempts, :is_active, :created_at, :updated_at)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toTestRow(tst)); err != nil {
		return exam.Test{}, errors.Wrap(err, "inserting test")
	}
	return tst, nil
}

func (repo examRepository) GetTest(ctx context.Context, id string, exec ...core.DBExecutor) (exam.Test, error) {
	if _, err := uuid.Parse(id); err != nil {
		return exam.Test{}, exam.ErrNotFound
	}
	var row testRow
	err := repo.getExec(exec).GetContext(ctx, &row, `SELECT `+testColumns+` FROM test WHERE id = $1`, id)
	if err != nil {
		return exam.Test{}, repo.trapNoRowsErr(err, exam.ErrNotFound, "finding test")
	}
	return repo.fromTestRow(row), nil
}

func (repo examRepository) UpdateTest(ctx context.Context, tst exam.Test, exec ...core.DBExecutor) (exam.Test, error) {
	tst.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE test
		SET course_id = :course_id, title = :title, passing_score = :passing_score, time_limit = :time_limit,
		    max_attempts = :max_attempts, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toTestRow(tst)); err != nil {
		return exam.Test{}, errors.Wrap(err, "updating test")
	}
	return tst, nil
}

type questionRow struct {
	ID        string    `db:"id"`
	TestID    string    `db:"test_id"`
	Type      string    `db:"type"`
	Text      string    `db:"text"`
	Options   []byte    `db:"options"`
	Order     int       `db:"order"`
	Weight    int       `db:"weight"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (repo examRepository) fromQuestionRow(row questionRow) (exam.Question, error) {
	var options []exam.Option
	if len(row.Options) > 0 {
		if err := json.Unmarshal(row.Options, &options); err != nil {
			return exam.Question{}, errors.Wrap(err, "decoding question options")
		}
	}
	return exam.Question{
		ID:        row.ID,
		TestID:    row.TestID,
		Type:      exam.QuestionType(row.Type),
		Text:      row.Text,
		Options:   options,
		Order:     row.Order,
		Weight:    row.Weight,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (repo examRepository) CreateQuestion(ctx context.Context, qst exam.Question, exec ...core.DBExecutor) (exam.Question, error) {
	qst.ID = uuid.New().String()
	options, err := json.Marshal(qst.Options)
	if err != nil {
		return exam.Question{}, errors.Wrap(err, "encoding question options")
	}
	query := `
		INSERT INTO question (id, test_id, type, text, options, "order", weight, created_at, updated_at)
		VALUES (:id, :test_id, :type, :text, :options, :order, :weight, :created_at, :updated_at)`
	row := questionRow{
		ID:        qst.ID,
		TestID:    qst.TestID,
		Type:      string(qst.Type),
		Text:      qst.Text,
		Options:   options,
		Order:     qst.Order,
		Weight:    qst.Weight,
		CreatedAt: qst.CreatedAt.UTC(),
		UpdatedAt: qst.UpdatedAt.UTC(),
	}
	if _, err = repo.getExec(exec).NamedExecContext(ctx, query, row); err != nil {
		return exam.Question{}, errors.Wrap(err, "inserting question")
	}
	return qst, nil
}

func (repo examRepository) QueryQuestions(ctx context.Context, testID string, exec ...core.DBExecutor) ([]exam.Question, error) {
	var rows []questionRow
	err := repo.getExec(exec).SelectContext(ctx, &rows,
		`SELECT id, test_id, type, text, options, "order", weight, created_at, updated_at FROM question WHERE test_id = $1 ORDER BY "order", id`, testID)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	questions := make([]exam.Question, 0, len(rows))
	for _, row := range rows {
		qst, err := repo.fromQuestionRow(row)
		if err != nil {
			return nil, err
		}
		questions = append(questions, qst)
	}
	return questions, nil
}

type attemptRow struct {
	ID          string      `db:"id"`
	TestID      string      `db:"test_id"`
	StudentID   string      `db:"student_id"`
	StartedAt   time.Time   `db:"started_at"`
	CompletedAt null.Time   `db:"completed_at"`
	Score       float64     `db:"score"`
	Passed      null.Bool   `db:"passed"`
	Answers     []byte      `db:"answers"`
	IPAddress   null.String `db:"ip_address"`
	UserAgent   null.String `db:"user_agent"`
}

func (repo examRepository) toAttemptRow(att exam.Attempt) (attemptRow, error) {
	answers, err := json.Marshal(att.Answers)
	if err != nil {
		return attemptRow{}, errors.Wrap(err, "encoding answers")
	}
	return attemptRow{
		ID:          att.ID,
		TestID:      att.TestID,
		StudentID:   att.StudentID,
		StartedAt:   att.StartedAt.UTC(),
		CompletedAt: null.NewTime(att.CompletedAt.UTC(), !att.CompletedAt.IsZero()),
		Score:       att.Score,
		Passed:      null.BoolFromPtr(att.Passed),
		Answers:     answers,
		IPAddress:   null.NewString(att.IPAddress, att.IPAddress != ""),
		UserAgent:   null.NewString(att.UserAgent, att.UserAgent != ""),
	}, nil
}

func (repo examRepository) fromAttemptRow(row attemptRow) (exam.Attempt, error) {
	answers := exam.Answers{}
	if len(row.Answers) > 0 {
		if err := json.Unmarshal(row.Answers, &answers); err != nil {
			return exam.Attempt{}, errors.Wrap(err, "decoding answers")
		}
	}
	return exam.Attempt{
		ID:          row.ID,
		TestID:      row.TestID,
		StudentID:   row.StudentID,
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt.Time,
		Score:       row.Score,
		Passed:      row.Passed.Ptr(),
		Answers:     answers,
		IPAddress:   row.IPAddress.String,
		UserAgent:   row.UserAgent.String,
	}, nil
}

func (repo examRepository) CreateAttempt(ctx context.Context, att exam.Attempt, exec ...core.DBExecutor) (exam.Attempt, error) {
	att.ID = uuid.New().String()
	row, err := repo.toAttemptRow(att)
	if err != nil {
		return exam.Attempt{}, err
	}
	query := `
		INSERT INTO test_attempt (` + attemptColumns + `)
		VALUES (:id, :test_id, :student_id, :started_at, :completed_at, :score, :passed, :answers, :ip_address, :user_agent)`
	if _, err = repo.getExec(exec).NamedExecContext(ctx, query, row); err != nil {
		return exam.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return att, nil
}

func (repo examRepository) GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (exam.Attempt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return exam.Attempt{}, exam.ErrAttemptNotFound
	}
	var row attemptRow
	err := repo.getExec(exec).GetContext(ctx, &row, `SELECT `+attemptColumns+` FROM test_attempt WHERE id = $1`, id)
	if err != nil {
		return exam.Attempt{}, repo.trapNoRowsErr(err, exam.ErrAttemptNotFound, "finding attempt")
	}
	return repo.fromAttemptRow(row)
}

func (repo examRepository) CountAttempts(ctx context.Context, studentID, testID string, exec ...core.DBExecutor) (int, error) {
	var count int
	err := repo.getExec(exec).GetContext(ctx, &count,
		`SELECT COUNT(*) FROM test_attempt WHERE student_id = $1 AND test_id = $2`, studentID, testID)
	if err != nil {
		return 0, errors.Wrap(err, "counting attempts")
	}
	return count, nil
}

func (repo examRepository) QueryAttempts(ctx context.Context, studentID, testID string, exec ...core.DBExecutor) ([]exam.Attempt, error) {
	exe := repo.getExec(exec)

	query := `SELECT ` + attemptColumns + ` FROM test_attempt WHERE student_id = ?`
	args := []interface{}{studentID}
	if testID != "" {
		query += ` AND test_id = ?`
		args = append(args, testID)
	}
	query += ` ORDER BY started_at DESC`

	var rows []attemptRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]exam.Attempt, 0, len(rows))
	for _, row := range rows {
		att, err := repo.fromAttemptRow(row)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, att)
	}
	return attempts, nil
}

func (repo examRepository) UpdateAttempt(ctx context.Context, att exam.Attempt, exec ...core.DBExecutor) (exam.Attempt, error) {
	row, err := repo.toAttemptRow(att)
	if err != nil {
		return exam.Attempt{}, err
	}
	query := `
		UPDATE test_attempt
		SET completed_at = :completed_at, score = :score, passed = :passed, answers = :answers
		WHERE id = :id`
	if _, err = repo.getExec(exec).NamedExecContext(ctx, query, row); err != nil {
		return exam.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	return att, nil
}

func (repo examRepository) GetVerification(ctx context.Context, attemptID string, exec ...core.DBExecutor) (exam.Verification, error) {
	var row verificationRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT id, attempt_id AS enrollment_id, otp_code, otp_expires_at, verified, verified_at, created_at, updated_at
		 FROM attempt_verification WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return exam.Verification{}, repo.trapNoRowsErr(err, exam.ErrVerificationNotFound, "finding verification")
	}
	return exam.Verification{
		ID:           row.ID,
		AttemptID:    row.EnrollmentID,
		OTPCode:      row.OTPCode.String,
		OTPExpiresAt: row.OTPExpiresAt.Time,
		Verified:     row.Verified,
		VerifiedAt:   row.VerifiedAt.Time,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func (repo examRepository) CreateVerification(ctx context.Context, vrf exam.Verification, exec ...core.DBExecutor) (exam.Verification, error) {
	vrf.ID = uuid.New().String()
	query := `
		INSERT INTO attempt_verification (id, attempt_id, otp_code, otp_expires_at, verified, verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		vrf.ID, vrf.AttemptID,
		null.NewString(vrf.OTPCode, vrf.OTPCode != ""),
		null.NewTime(vrf.OTPExpiresAt.UTC(), !vrf.OTPExpiresAt.IsZero()),
		vrf.Verified,
		null.NewTime(vrf.VerifiedAt.UTC(), !vrf.VerifiedAt.IsZero()),
		vrf.CreatedAt.UTC(), vrf.UpdatedAt.UTC())
	if err != nil {
		return exam.Verification{}, errors.Wrap(err, "inserting verification")
	}
	return vrf, nil
}

func (repo examRepository) UpdateVerification(ctx context.Context, vrf exam.Verification, exec ...core.DBExecutor) (exam.Verification, error) {
	query := `
		UPDATE attempt_verification
		SET otp_code = $2, otp_expires_at = $3, verified = $4, verified_at = $5, updated_at = $6
		WHERE id = $1`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		vrf.ID,
		null.NewString(vrf.OTPCode, vrf.OTPCode != ""),
		null.NewTime(vrf.OTPExpiresAt.UTC(), !vrf.OTPExpiresAt.IsZero()),
		vrf.Verified,
		null.NewTime(vrf.VerifiedAt.UTC(), !vrf.VerifiedAt.IsZero()),
		vrf.UpdatedAt.UTC())
	if err != nil {
		return exam.Verification{}, errors.Wrap(err, "updating verification")
	}
	return vrf, nil
}
