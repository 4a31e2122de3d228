package course_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/course"
	"github.com/unicover/lms/core/notification"
	"github.com/unicover/lms/core/user"
	emailsvc "github.com/unicover/lms/services/email"
	inmemdb "github.com/unicover/lms/storage/database/inmem"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Debug(msg string, args ...interface{}) { l.t.Logf("DEBUG %s %v", msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.t.Logf("INFO %s %v", msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.t.Logf("WARN %s %v", msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.t.Logf("ERROR %s %v", msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatalf("FATAL %s %v", msg, args) }

func setup(t *testing.T) (course.Service, course.Repository, user.Repository) {
	t.Helper()

	db := inmemdb.NewDB()
	userRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)

	conf := &core.Config{AppName: "Unicover", OTPTimeout: 10 * time.Minute}
	notifSvc := notification.NewService(notifRepo, userRepo, emailsvc.NewConsoleServiceMock(conf), testLogger{t})
	return course.NewService(courseRepo, notifSvc), courseRepo, userRepo
}

func createStudent(t *testing.T, repo user.Repository, phone string) user.User {
	t.Helper()
	active := true
	usr, err := repo.CreateUser(context.Background(), user.User{
		Phone: phone, FullName: "Test Student", Role: user.RoleStudent, IsActive: &active,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return usr
}

// buildCourse creates a course with one module and the given lessons,
// marking lessons with required[i] as required.
func buildCourse(t *testing.T, svc course.Service, repo course.Repository, finalTestID string, required ...bool) (course.Course, []course.Lesson) {
	t.Helper()
	ctx := context.Background()

	crs, err := svc.Create(ctx, course.NewCourse{Title: "Fire Safety", FinalTestID: finalTestID})
	if err != nil {
		t.Fatal(err)
	}
	mod, err := repo.CreateModule(ctx, course.Module{CourseID: crs.ID, Title: "Module 1", Order: 1})
	if err != nil {
		t.Fatal(err)
	}
	var lessons []course.Lesson
	for i, req := range required {
		lsn, err := repo.CreateLesson(ctx, course.Lesson{
			ModuleID: mod.ID, Title: "Lesson", Type: course.LessonText, Order: i + 1, Required: req,
		})
		if err != nil {
			t.Fatal(err)
		}
		lessons = append(lessons, lsn)
	}
	return crs, lessons
}

func TestEnrollIdempotent(t *testing.T) {
	svc, courseRepo, userRepo := setup(t)
	ctx := context.Background()

	student := createStudent(t, userRepo, "+77010000001")
	crs, _ := buildCourse(t, svc, courseRepo, "", true)

	first, err := svc.Enroll(ctx, crs.ID, []string{student.ID})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Enroll(ctx, crs.ID, []string{student.ID})
	if err != nil {
		t.Fatal(err)
	}
	if first[0].ID != second[0].ID {
		t.Errorf("re-enrolling created a new enrollment: %q != %q", first[0].ID, second[0].ID)
	}

	enrs, err := svc.EnrollmentsFor(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(enrs) != 1 {
		t.Errorf("len(enrollments) = %d; want 1", len(enrs))
	}
}

func TestEnrollUnknownCourse(t *testing.T) {
	svc, _, userRepo := setup(t)
	student := createStudent(t, userRepo, "+77010000002")

	_, err := svc.Enroll(context.Background(), "5f9b6e1c-0000-0000-0000-000000000000", []string{student.ID})
	if want := course.ErrNotFound; errors.Cause(err) != want {
		t.Errorf("err = %v; want %v", err, want)
	}
}

func TestCompleteLessonProgress(t *testing.T) {
	svc, courseRepo, userRepo := setup(t)
	ctx := context.Background()

	student := createStudent(t, userRepo, "+77010000003")
	// two required lessons, one optional
	crs, lessons := buildCourse(t, svc, courseRepo, "", true, true, false)

	if _, err := svc.Enroll(ctx, crs.ID, []string{student.ID}); err != nil {
		t.Fatal(err)
	}

	enr, err := svc.CompleteLesson(ctx, student.ID, lessons[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if enr.Progress != 50 {
		t.Errorf("progress = %d; want 50", enr.Progress)
	}
	if enr.Status != course.EnrollmentInProgress {
		t.Errorf("status = %s; want %s", enr.Status, course.EnrollmentInProgress)
	}

	// the optional lesson does not move required progress
	if enr, err = svc.CompleteLesson(ctx, student.ID, lessons[2].ID); err != nil {
		t.Fatal(err)
	}
	if enr.Progress != 50 {
		t.Errorf("progress = %d after optional lesson; want 50", enr.Progress)
	}

	if enr, err = svc.CompleteLesson(ctx, student.ID, lessons[1].ID); err != nil {
		t.Fatal(err)
	}
	if enr.Progress != 100 {
		t.Errorf("progress = %d; want 100", enr.Progress)
	}
	// no final test: stays in progress rather than exam_available
	if enr.Status != course.EnrollmentInProgress {
		t.Errorf("status = %s; want %s", enr.Status, course.EnrollmentInProgress)
	}

	// completing a lesson twice is harmless
	if enr, err = svc.CompleteLesson(ctx, student.ID, lessons[1].ID); err != nil {
		t.Fatal(err)
	}
	if enr.Progress != 100 {
		t.Errorf("progress = %d after repeat; want 100", enr.Progress)
	}
}

func TestCompleteLessonExamAvailable(t *testing.T) {
	svc, courseRepo, userRepo := setup(t)
	ctx := context.Background()

	student := createStudent(t, userRepo, "+77010000004")
	crs, lessons := buildCourse(t, svc, courseRepo, "some-test-id", true)

	if _, err := svc.Enroll(ctx, crs.ID, []string{student.ID}); err != nil {
		t.Fatal(err)
	}
	enr, err := svc.CompleteLesson(ctx, student.ID, lessons[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if enr.Status != course.EnrollmentExamAvailable {
		t.Errorf("status = %s; want %s", enr.Status, course.EnrollmentExamAvailable)
	}
}

func TestCompleteLessonNotEnrolled(t *testing.T) {
	svc, courseRepo, userRepo := setup(t)

	student := createStudent(t, userRepo, "+77010000005")
	_, lessons := buildCourse(t, svc, courseRepo, "", true)

	_, err := svc.CompleteLesson(context.Background(), student.ID, lessons[0].ID)
	if err != course.ErrNotEnrolled {
		t.Errorf("err = %v; want %v", err, course.ErrNotEnrolled)
	}
}

func TestMarkExamResult(t *testing.T) {
	svc, courseRepo, userRepo := setup(t)
	ctx := context.Background()

	student := createStudent(t, userRepo, "+77010000006")
	crs, _ := buildCourse(t, svc, courseRepo, "some-test-id", true)

	enrs, err := svc.Enroll(ctx, crs.ID, []string{student.ID})
	if err != nil {
		t.Fatal(err)
	}

	// failing leaves the enrollment untouched
	if err = svc.MarkExamResult(ctx, student.ID, crs.ID, false); err != nil {
		t.Fatal(err)
	}
	enr, err := svc.GetEnrollment(ctx, enrs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if enr.Status != course.EnrollmentAssigned {
		t.Errorf("status after fail = %s; want %s", enr.Status, course.EnrollmentAssigned)
	}

	if err = svc.MarkExamResult(ctx, student.ID, crs.ID, true); err != nil {
		t.Fatal(err)
	}
	if enr, err = svc.GetEnrollment(ctx, enrs[0].ID); err != nil {
		t.Fatal(err)
	}
	if enr.Status != course.EnrollmentExamPassed {
		t.Errorf("status after pass = %s; want %s", enr.Status, course.EnrollmentExamPassed)
	}

	// standalone test takers have no enrollment; passing is a no-op
	other := createStudent(t, userRepo, "+77010000007")
	if err = svc.MarkExamResult(ctx, other.ID, crs.ID, true); err != nil {
		t.Errorf("MarkExamResult without enrollment: %v", err)
	}
}
