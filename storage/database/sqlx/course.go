package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/course"
)

type courseRepository struct {
	db core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DBExecutor) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

type courseRow struct {
	ID               string      `db:"id"`
	Title            string      `db:"title"`
	Description      null.String `db:"description"`
	CategoryID       null.String `db:"category_id"`
	Duration         int         `db:"duration"`
	PassingScore     int         `db:"passing_score"`
	MaxAttempts      int         `db:"max_attempts"`
	PDEKCommission   null.String `db:"pdek_commission"`
	Status           string      `db:"status"`
	FinalTestID      null.String `db:"final_test_id"`
	IsStandaloneTest bool        `db:"is_standalone_test"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (repo courseRepository) toCourseRow(crs course.Course) courseRow {
	return courseRow{
		ID:               crs.ID,
		Title:            crs.Title,
		Description:      null.NewString(crs.Description, crs.Description != ""),
		CategoryID:       null.NewString(crs.CategoryID, crs.CategoryID != ""),
		Duration:         crs.Duration,
		PassingScore:     crs.PassingScore,
		MaxAttempts:      crs.MaxAttempts,
		PDEKCommission:   null.NewString(crs.PDEKCommission, crs.PDEKCommission != ""),
		Status:           string(crs.Status),
		FinalTestID:      null.NewString(crs.FinalTestID, crs.FinalTestID != ""),
		IsStandaloneTest: crs.IsStandaloneTest,
		CreatedAt:        crs.CreatedAt.UTC(),
		UpdatedAt:        crs.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) fromCourseRow(row courseRow) course.Course {
	return course.Course{
		ID:               row.ID,
		Title:            row.Title,
		Description:      row.Description.String,
		CategoryID:       row.CategoryID.String,
		Duration:         row.Duration,
		PassingScore:     row.PassingScore,
		MaxAttempts:      row.MaxAttempts,
		PDEKCommission:   row.PDEKCommission.String,
		Status:           course.CourseStatus(row.Status),
		FinalTestID:      row.FinalTestID.String,
		IsStandaloneTest: row.IsStandaloneTest,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

type enrollmentRow struct {
	ID          string    `db:"id"`
	StudentID   string    `db:"student_id"`
	CourseID    string    `db:"course_id"`
	Progress    int       `db:"progress"`
	Status      string    `db:"status"`
	EnrolledAt  time.Time `db:"enrolled_at"`
	CompletedAt null.Time `db:"completed_at"`
}

func (repo courseRepository) toEnrollmentRow(enr course.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:          enr.ID,
		StudentID:   enr.StudentID,
		CourseID:    enr.CourseID,
		Progress:    enr.Progress,
		Status:      string(enr.Status),
		EnrolledAt:  enr.EnrolledAt.UTC(),
		CompletedAt: null.NewTime(enr.CompletedAt.UTC(), !enr.CompletedAt.IsZero()),
	}
}

func (repo courseRepository) fromEnrollmentRow(row enrollmentRow) course.Enrollment {
	return course.Enrollment{
		ID:          row.ID,
		StudentID:   row.StudentID,
		CourseID:    row.CourseID,
		Progress:    row.Progress,
		Status:      course.EnrollmentStatus(row.Status),
		EnrolledAt:  row.EnrolledAt,
		CompletedAt: row.CompletedAt.Time,
	}
}

type verificationRow struct {
	ID           string      `db:"id"`
	EnrollmentID string      `db:"enrollment_id"`
	OTPCode      null.String `db:"otp_code"`
	OTPExpiresAt null.Time   `db:"otp_expires_at"`
	Verified     bool        `db:"verified"`
	VerifiedAt   null.Time   `db:"verified_at"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

const (
	courseColumns       = `id, title, description, category_id, duration, passing_score, max_attempts, pdek_commission, status, final_test_id, is_standalone_test, created_at, updated_at`
	moduleColumns       = `id, course_id, title, description, "order", created_at, updated_at`
	lessonColumns       = `id, module_id, title, type, content, video_url, pdf_url, duration, "order", required, created_at, updated_at`
	enrollmentColumns   = `id, student_id, course_id, progress, status, enrolled_at, completed_at`
	verificationColumns = `id, enrollment_id, otp_code, otp_expires_at, verified, verified_at, created_at, updated_at`
)

// courseSortable lists the columns clients may order course queries by.
var courseSortable = map[string]bool{
	"title":         true,
	"status":        true,
	"duration":      true,
	"passing_score": true,
	"created_at":    true,
}

func (repo courseRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	crs.ID = uuid.New().String()
	query := `
		INSERT INTO course (` + courseColumns + `)
		VALUES (:id, :title, :description, :category_id, :duration, :passing_score, :max_attempts, :pdek_commission, :status, :final_test_id, :is_standalone_test, :created_at, :updated_at)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toCourseRow(crs)); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	err := repo.getExec(exec).GetContext(ctx, &row, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id)
	if err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return repo.fromCourseRow(row), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	exe := repo.getExec(exec)

	query := `SELECT ` + courseColumns + ` FROM course WHERE TRUE`
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			query += ` AND (title ILIKE ? OR description ILIKE ?)`
			val := "%" + filter.Search + "%"
			args = append(args, val, val)
		}
		if filter.Status != "" {
			query += ` AND status = ?`
			args = append(args, string(filter.Status))
		}
		if filter.CategoryID != "" {
			query += ` AND category_id = ?`
			args = append(args, filter.CategoryID)
		}
	}
	query += orderingClause(ordering, courseSortable, "created_at DESC")

	var rows []courseRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.fromCourseRow(row))
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	crs.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE course
		SET title = :title, description = :description, category_id = :category_id, duration = :duration,
		    passing_score = :passing_score, max_attempts = :max_attempts, pdek_commission = :pdek_commission,
		    status = :status, final_test_id = :final_test_id, is_standalone_test = :is_standalone_test,
		    updated_at = :updated_at
		WHERE id = :id`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toCourseRow(crs)); err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return crs, nil
}

type moduleRow struct {
	ID          string      `db:"id"`
	CourseID    string      `db:"course_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Order       int         `db:"order"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (repo courseRepository) CreateModule(ctx context.Context, mod course.Module, exec ...core.DBExecutor) (course.Module, error) {
	mod.ID = uuid.New().String()
	query := `
		INSERT INTO module (` + moduleColumns + `)
		VALUES (:id, :course_id, :title, :description, :order, :created_at, :updated_at)`
	row := moduleRow{
		ID:          mod.ID,
		CourseID:    mod.CourseID,
		Title:       mod.Title,
		Description: null.NewString(mod.Description, mod.Description != ""),
		Order:       mod.Order,
		CreatedAt:   mod.CreatedAt.UTC(),
		UpdatedAt:   mod.UpdatedAt.UTC(),
	}
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, row); err != nil {
		return course.Module{}, errors.Wrap(err, "inserting module")
	}
	return mod, nil
}

func (repo courseRepository) GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (course.Module, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Module{}, course.ErrNotFound
	}
	var row moduleRow
	err := repo.getExec(exec).GetContext(ctx, &row, `SELECT `+moduleColumns+` FROM module WHERE id = $1`, id)
	if err != nil {
		return course.Module{}, repo.trapNoRowsErr(err, course.ErrNotFound, "finding module")
	}
	return course.Module{
		ID:          row.ID,
		CourseID:    row.CourseID,
		Title:       row.Title,
		Description: row.Description.String,
		Order:       row.Order,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

type lessonRow struct {
	ID        string      `db:"id"`
	ModuleID  string      `db:"module_id"`
	Title     string      `db:"title"`
	Type      string      `db:"type"`
	Content   null.String `db:"content"`
	VideoURL  null.String `db:"video_url"`
	PDFURL    null.String `db:"pdf_url"`
	Duration  int         `db:"duration"`
	Order     int         `db:"order"`
	Required  bool        `db:"required"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (repo courseRepository) fromLessonRow(row lessonRow) course.Lesson {
	return course.Lesson{
		ID:        row.ID,
		ModuleID:  row.ModuleID,
		Title:     row.Title,
		Type:      course.LessonType(row.Type),
		Content:   row.Content.String,
		VideoURL:  row.VideoURL.String,
		PDFURL:    row.PDFURL.String,
		Duration:  row.Duration,
		Order:     row.Order,
		Required:  row.Required,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (repo courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	lsn.ID = uuid.New().String()
	query := `
		INSERT INTO lesson (` + lessonColumns + `)
		VALUES (:id, :module_id, :title, :type, :content, :video_url, :pdf_url, :duration, :order, :required, :created_at, :updated_at)`
	row := lessonRow{
		ID:        lsn.ID,
		ModuleID:  lsn.ModuleID,
		Title:     lsn.Title,
		Type:      string(lsn.Type),
		Content:   null.NewString(lsn.Content, lsn.Content != ""),
		VideoURL:  null.NewString(lsn.VideoURL, lsn.VideoURL != ""),
		PDFURL:    null.NewString(lsn.PDFURL, lsn.PDFURL != ""),
		Duration:  lsn.Duration,
		Order:     lsn.Order,
		Required:  lsn.Required,
		CreatedAt: lsn.CreatedAt.UTC(),
		UpdatedAt: lsn.UpdatedAt.UTC(),
	}
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, row); err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return lsn, nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	var row lessonRow
	err := repo.getExec(exec).GetContext(ctx, &row, `SELECT `+lessonColumns+` FROM lesson WHERE id = $1`, id)
	if err != nil {
		return course.Lesson{}, repo.trapNoRowsErr(err, course.ErrLessonNotFound, "finding lesson")
	}
	return repo.fromLessonRow(row), nil
}

func (repo courseRepository) QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Lesson, error) {
	query := `
		SELECT l.id, l.module_id, l.title, l.type, l.content, l.video_url, l.pdf_url, l.duration, l."order", l.required, l.created_at, l.updated_at
		FROM lesson l
		JOIN module m ON m.id = l.module_id
		WHERE m.course_id = $1
		ORDER BY m."order", l."order"`

	var rows []lessonRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, repo.fromLessonRow(row))
	}
	return lessons, nil
}

func (repo courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	enr.ID = uuid.New().String()
	query := `
		INSERT INTO enrollment (` + enrollmentColumns + `)
		VALUES (:id, :student_id, :course_id, :progress, :status, :enrolled_at, :completed_at)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toEnrollmentRow(enr)); err != nil {
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo courseRepository) GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (course.Enrollment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	var row enrollmentRow
	err := repo.getExec(exec).GetContext(ctx, &row, `SELECT `+enrollmentColumns+` FROM enrollment WHERE id = $1`, id)
	if err != nil {
		return course.Enrollment{}, repo.trapNoRowsErr(err, course.ErrEnrollmentNotFound, "finding enrollment")
	}
	return repo.fromEnrollmentRow(row), nil
}

func (repo courseRepository) GetEnrollmentByStudentAndCourse(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (course.Enrollment, error) {
	var row enrollmentRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT `+enrollmentColumns+` FROM enrollment WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return course.Enrollment{}, repo.trapNoRowsErr(err, course.ErrEnrollmentNotFound, "finding enrollment")
	}
	return repo.fromEnrollmentRow(row), nil
}

func (repo courseRepository) QueryEnrollments(ctx context.Context, filter *course.EnrollmentFilter, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	exe := repo.getExec(exec)

	query := `SELECT ` + enrollmentColumns + ` FROM enrollment WHERE TRUE`
	var args []interface{}
	if filter != nil {
		if filter.StudentID != "" {
			query += ` AND student_id = ?`
			args = append(args, filter.StudentID)
		}
		if filter.CourseID != "" {
			query += ` AND course_id = ?`
			args = append(args, filter.CourseID)
		}
		if filter.Status != "" {
			query += ` AND status = ?`
			args = append(args, string(filter.Status))
		}
	}
	query += ` ORDER BY enrolled_at DESC`

	var rows []enrollmentRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, repo.fromEnrollmentRow(row))
	}
	return enrollments, nil
}

func (repo courseRepository) UpdateEnrollment(ctx context.Context, enr course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	query := `
		UPDATE enrollment
		SET progress = :progress, status = :status, completed_at = :completed_at
		WHERE id = :id`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toEnrollmentRow(enr)); err != nil {
		return course.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	return enr, nil
}

func (repo courseRepository) UpsertLessonProgress(ctx context.Context, prg course.LessonProgress, exec ...core.DBExecutor) (course.LessonProgress, error) {
	if prg.ID == "" {
		prg.ID = uuid.New().String()
	}
	query := `
		INSERT INTO lesson_progress (id, enrollment_id, lesson_id, completed, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (enrollment_id, lesson_id)
		DO UPDATE SET completed = EXCLUDED.completed, completed_at = EXCLUDED.completed_at
		RETURNING id`
	err := repo.getExec(exec).GetContext(ctx, &prg.ID, query,
		prg.ID, prg.EnrollmentID, prg.LessonID, prg.Completed,
		null.NewTime(prg.CompletedAt.UTC(), !prg.CompletedAt.IsZero()))
	if err != nil {
		return course.LessonProgress{}, errors.Wrap(err, "upserting lesson progress")
	}
	return prg, nil
}

func (repo courseRepository) QueryLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) ([]course.LessonProgress, error) {
	type progressRow struct {
		ID           string    `db:"id"`
		EnrollmentID string    `db:"enrollment_id"`
		LessonID     string    `db:"lesson_id"`
		Completed    bool      `db:"completed"`
		CompletedAt  null.Time `db:"completed_at"`
	}

	var rows []progressRow
	err := repo.getExec(exec).SelectContext(ctx, &rows,
		`SELECT id, enrollment_id, lesson_id, completed, completed_at FROM lesson_progress WHERE enrollment_id = $1`, enrollmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lesson progress")
	}
	progress := make([]course.LessonProgress, 0, len(rows))
	for _, row := range rows {
		progress = append(progress, course.LessonProgress{
			ID:           row.ID,
			EnrollmentID: row.EnrollmentID,
			LessonID:     row.LessonID,
			Completed:    row.Completed,
			CompletedAt:  row.CompletedAt.Time,
		})
	}
	return progress, nil
}

func (repo courseRepository) fromVerificationRow(row verificationRow) course.Verification {
	return course.Verification{
		ID:           row.ID,
		EnrollmentID: row.EnrollmentID,
		OTPCode:      row.OTPCode.String,
		OTPExpiresAt: row.OTPExpiresAt.Time,
		Verified:     row.Verified,
		VerifiedAt:   row.VerifiedAt.Time,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func (repo courseRepository) toVerificationRow(vrf course.Verification) verificationRow {
	return verificationRow{
		ID:           vrf.ID,
		EnrollmentID: vrf.EnrollmentID,
		OTPCode:      null.NewString(vrf.OTPCode, vrf.OTPCode != ""),
		OTPExpiresAt: null.NewTime(vrf.OTPExpiresAt.UTC(), !vrf.OTPExpiresAt.IsZero()),
		Verified:     vrf.Verified,
		VerifiedAt:   null.NewTime(vrf.VerifiedAt.UTC(), !vrf.VerifiedAt.IsZero()),
		CreatedAt:    vrf.CreatedAt.UTC(),
		UpdatedAt:    vrf.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) GetVerification(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (course.Verification, error) {
	var row verificationRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT `+verificationColumns+` FROM course_verification WHERE enrollment_id = $1`, enrollmentID)
	if err != nil {
		return course.Verification{}, repo.trapNoRowsErr(err, course.ErrVerificationNotFound, "finding verification")
	}
	return repo.fromVerificationRow(row), nil
}

func (repo courseRepository) CreateVerification(ctx context.Context, vrf course.Verification, exec ...core.DBExecutor) (course.Verification, error) {
	vrf.ID = uuid.New().String()
	query := `
		INSERT INTO course_verification (` + verificationColumns + `)
		VALUES (:id, :enrollment_id, :otp_code, :otp_expires_at, :verified, :verified_at, :created_at, :updated_at)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toVerificationRow(vrf)); err != nil {
		return course.Verification{}, errors.Wrap(err, "inserting verification")
	}
	return vrf, nil
}

func (repo courseRepository) UpdateVerification(ctx context.Context, vrf course.Verification, exec ...core.DBExecutor) (course.Verification, error) {
	query := `
		UPDATE course_verification
		SET otp_code = :otp_code, otp_expires_at = :otp_expires_at, verified = :verified,
		    verified_at = :verified_at, updated_at = :updated_at
		WHERE id = :id`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toVerificationRow(vrf)); err != nil {
		return course.Verification{}, errors.Wrap(err, "updating verification")
	}
	return vrf, nil
}
