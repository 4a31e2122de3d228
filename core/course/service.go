package course

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/notification"
)

var (
	// errors
	ErrNotFound             = errors.New("course not found")
	ErrEnrollmentNotFound   = errors.New("enrollment not found")
	ErrLessonNotFound       = errors.New("lesson not found")
	ErrVerificationNotFound = errors.New("verification not found")
	ErrNotEnrolled          = errors.New("student is not enrolled in this course")
)

type (
	Repository interface {
		// courses
		CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		UpdateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)

		// structure
		CreateModule(ctx context.Context, mod Module, exec ...core.DBExecutor) (Module, error)
		GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (Module, error)
		CreateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
		GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
		// QueryLessons returns all lessons of a course across its modules.
		QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Lesson, error)

		// enrollments
		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollmentByStudentAndCourse(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter *EnrollmentFilter, exec ...core.DBExecutor) ([]Enrollment, error)
		UpdateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)

		// lesson progress
		UpsertLessonProgress(ctx context.Context, prg LessonProgress, exec ...core.DBExecutor) (LessonProgress, error)
		QueryLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) ([]LessonProgress, error)

		// completion verification
		GetVerification(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (Verification, error)
		CreateVerification(ctx context.Context, vrf Verification, exec ...core.DBExecutor) (Verification, error)
		UpdateVerification(ctx context.Context, vrf Verification, exec ...core.DBExecutor) (Verification, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)

		AddModule(ctx context.Context, nm NewModule) (Module, error)
		AddLesson(ctx context.Context, nl NewLesson) (Lesson, error)
		// Lessons returns all lessons of a course in module then lesson order.
		Lessons(ctx context.Context, courseID string) ([]Lesson, error)

		Enroll(ctx context.Context, courseID string, studentIDs []string) ([]Enrollment, error)
		EnrollmentsFor(ctx context.Context, studentID string) ([]Enrollment, error)
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)

		CompleteLesson(ctx context.Context, studentID, lessonID string) (Enrollment, error)

		// MarkExamResult advances an enrollment when its course's final
		// test attempt completes. No-op when the student has no enrollment.
		MarkExamResult(ctx context.Context, studentID, courseID string, passed bool) error
	}

	service struct {
		repo     Repository
		notifSvc notification.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, notifSvc notification.Service) Service {
	return &service{repo: repo, notifSvc: notifSvc}
}

func (svc *service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		Title:            nc.Title,
		Description:      nc.Description,
		CategoryID:       nc.CategoryID,
		Duration:         nc.Duration,
		PassingScore:     nc.PassingScore,
		MaxAttempts:      nc.MaxAttempts,
		Status:           CourseInDevelopment,
		FinalTestID:      nc.FinalTestID,
		IsStandaloneTest: nc.IsStandaloneTest,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *service) AddModule(ctx context.Context, nm NewModule) (Module, error) {
	if _, err := svc.repo.GetCourse(ctx, nm.CourseID); err != nil {
		return Module{}, errors.Wrap(err, "finding course")
	}

	now := time.Now().UTC()
	return svc.repo.CreateModule(ctx, Module{
		CourseID:    nm.CourseID,
		Title:       nm.Title,
		Description: nm.Description,
		Order:       nm.Order,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) AddLesson(ctx context.Context, nl NewLesson) (Lesson, error) {
	if _, err := svc.repo.GetModule(ctx, nl.ModuleID); err != nil {
		return Lesson{}, errors.Wrap(err, "finding module")
	}

	required := true
	if nl.Required != nil {
		required = *nl.Required
	}

	now := time.Now().UTC()
	return svc.repo.CreateLesson(ctx, Lesson{
		ModuleID:  nl.ModuleID,
		Title:     nl.Title,
		Type:      nl.Type,
		Content:   nl.Content,
		VideoURL:  nl.VideoURL,
		PDFURL:    nl.PDFURL,
		Duration:  nl.Duration,
		Order:     nl.Order,
		Required:  required,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, errors.Wrap(err, "finding course")
	}
	return svc.repo.QueryLessons(ctx, courseID)
}

// Enroll creates enrollments for the given students, skipping ones that
// already exist; each newly enrolled student is notified.
func (svc *service) Enroll(ctx context.Context, courseID string, studentIDs []string) ([]Enrollment, error) {
	crs, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "finding course")
	}

	enrollments := make([]Enrollment, 0, len(studentIDs))
	for _, studentID := range studentIDs {
		enr, err := svc.repo.GetEnrollmentByStudentAndCourse(ctx, studentID, crs.ID)
		if err == nil {
			enrollments = append(enrollments, enr)
			continue
		}
		if errors.Cause(err) != ErrEnrollmentNotFound {
			return nil, errors.Wrap(err, "finding enrollment")
		}

		enr, err = svc.repo.CreateEnrollment(ctx, Enrollment{
			StudentID:  studentID,
			CourseID:   crs.ID,
			Status:     EnrollmentAssigned,
			EnrolledAt: time.Now().UTC(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating enrollment")
		}
		enrollments = append(enrollments, enr)

		svc.notifSvc.Notify(ctx, studentID, notification.TypeCourseAssigned,
			"Course assigned",
			fmt.Sprintf("You have been enrolled in the course %q.", crs.Title))
	}
	return enrollments, nil
}

func (svc *service) EnrollmentsFor(ctx context.Context, studentID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, &EnrollmentFilter{StudentID: studentID})
}

func (svc *service) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, id)
}

// CompleteLesson marks the lesson done for the student's enrollment and
// recomputes the enrollment progress from required lessons.
func (svc *service) CompleteLesson(ctx context.Context, studentID, lessonID string) (Enrollment, error) {
	lsn, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding lesson")
	}
	mod, err := svc.repo.GetModule(ctx, lsn.ModuleID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding module")
	}

	enr, err := svc.repo.GetEnrollmentByStudentAndCourse(ctx, studentID, mod.CourseID)
	if err != nil {
		if errors.Cause(err) == ErrEnrollmentNotFound {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, errors.Wrap(err, "finding enrollment")
	}

	if _, err = svc.repo.UpsertLessonProgress(ctx, LessonProgress{
		EnrollmentID: enr.ID,
		LessonID:     lsn.ID,
		Completed:    true,
		CompletedAt:  time.Now().UTC(),
	}); err != nil {
		return Enrollment{}, errors.Wrap(err, "saving lesson progress")
	}

	return svc.recomputeProgress(ctx, enr)
}

func (svc *service) recomputeProgress(ctx context.Context, enr Enrollment) (Enrollment, error) {
	crs, err := svc.repo.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding course")
	}

	completed, total, err := svc.requiredProgress(ctx, enr)
	if err != nil {
		return Enrollment{}, err
	}

	if total > 0 {
		enr.Progress = completed * 100 / total
	}
	switch {
	case enr.Status == EnrollmentAssigned:
		enr.Status = EnrollmentInProgress
	}
	if enr.Progress == 100 && crs.HasFinalTest() && enr.Status == EnrollmentInProgress {
		enr.Status = EnrollmentExamAvailable
	}

	enr, err = svc.repo.UpdateEnrollment(ctx, enr)
	return enr, errors.Wrap(err, "updating enrollment")
}

// requiredProgress counts completed vs total required lessons of the
// enrollment's course. Optional lessons do not gate completion.
func (svc *service) requiredProgress(ctx context.Context, enr Enrollment) (completed, total int, err error) {
	lessons, err := svc.repo.QueryLessons(ctx, enr.CourseID)
	if err != nil {
		return 0, 0, errors.Wrap(err, "querying lessons")
	}
	progress, err := svc.repo.QueryLessonProgress(ctx, enr.ID)
	if err != nil {
		return 0, 0, errors.Wrap(err, "querying lesson progress")
	}

	done := make(map[string]bool, len(progress))
	for _, p := range progress {
		if p.Completed {
			done[p.LessonID] = true
		}
	}
	for _, lsn := range lessons {
		if !lsn.Required {
			continue
		}
		total++
		if done[lsn.ID] {
			completed++
		}
	}
	return completed, total, nil
}

func (svc *service) MarkExamResult(ctx context.Context, studentID, courseID string, passed bool) error {
	if !passed {
		return nil
	}

	enr, err := svc.repo.GetEnrollmentByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Cause(err) == ErrEnrollmentNotFound {
			return nil // standalone test takers have no enrollment
		}
		return errors.Wrap(err, "finding enrollment")
	}

	switch enr.Status {
	case EnrollmentAssigned, EnrollmentInProgress, EnrollmentExamAvailable:
		enr.Status = EnrollmentExamPassed
		_, err = svc.repo.UpdateEnrollment(ctx, enr)
		return errors.Wrap(err, "updating enrollment")
	}
	return nil
}
