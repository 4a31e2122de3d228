package certificate_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/certificate"
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

type env struct {
	certSvc    certificate.Service
	courseRepo course.Repository
	userRepo   user.Repository

	student    user.User
	enrollment course.Enrollment
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	db := inmemdb.NewDB()
	userRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	certRepo := inmemdb.NewCertificateRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)

	conf := &core.Config{AppName: "Unicover", FrontendBaseURL: "https://unicover.kz"}
	notifSvc := notification.NewService(notifRepo, userRepo, emailsvc.NewConsoleServiceMock(conf), testLogger{t})
	certSvc := certificate.NewService(certRepo, courseRepo, notifSvc, conf)

	active := true
	student, err := userRepo.CreateUser(ctx, user.User{
		Phone: "+77030000001", FullName: "Test Student", Role: user.RoleStudent, IsActive: &active,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	crs, err := courseRepo.CreateCourse(ctx, course.Course{Title: "Crane Operation", Status: course.CoursePublished})
	if err != nil {
		t.Fatal(err)
	}
	enr, err := courseRepo.CreateEnrollment(ctx, course.Enrollment{
		StudentID: student.ID, CourseID: crs.ID,
		Status: course.EnrollmentPendingPDEK, EnrolledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	return &env{certSvc: certSvc, courseRepo: courseRepo, userRepo: userRepo, student: student, enrollment: enr}
}

func TestIssueIfAbsent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	protocolID := "39c7c1de-9f0f-49f1-a3f1-000000000001"

	crt, err := e.certSvc.IssueIfAbsent(ctx, protocolID, e.student.ID, e.enrollment.CourseID, e.enrollment.ID)
	if err != nil {
		t.Fatalf("issuing: %v", err)
	}
	if !strings.HasPrefix(crt.Number, "CERT-") {
		t.Errorf("number = %q; want CERT- prefix", crt.Number)
	}
	if !strings.HasSuffix(crt.QRCode, "/verify/"+crt.Number) {
		t.Errorf("qr code = %q; want a /verify/%s URL", crt.QRCode, crt.Number)
	}

	enr, err := e.courseRepo.GetEnrollment(ctx, e.enrollment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if enr.Status != course.EnrollmentCompleted {
		t.Errorf("enrollment status = %s; want %s", enr.Status, course.EnrollmentCompleted)
	}
	if enr.CompletedAt.IsZero() {
		t.Error("enrollment CompletedAt is zero")
	}

	// issuing again returns the same certificate
	again, err := e.certSvc.IssueIfAbsent(ctx, protocolID, e.student.ID, e.enrollment.CourseID, e.enrollment.ID)
	if err != nil {
		t.Fatalf("re-issuing: %v", err)
	}
	if again.ID != crt.ID {
		t.Errorf("re-issuing created a new certificate: %q != %q", again.ID, crt.ID)
	}

	certs, err := e.certSvc.QueryByStudent(ctx, e.student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 1 {
		t.Errorf("len(certificates) = %d; want 1", len(certs))
	}
}

func TestVerify(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	crt, err := e.certSvc.IssueIfAbsent(ctx, "39c7c1de-9f0f-49f1-a3f1-000000000002", e.student.ID, e.enrollment.CourseID, e.enrollment.ID)
	if err != nil {
		t.Fatal(err)
	}

	// lookup tolerates surrounding whitespace
	got, err := e.certSvc.Verify(ctx, "  "+crt.Number+"  ")
	if err != nil {
		t.Fatalf("verifying: %v", err)
	}
	if got.ID != crt.ID {
		t.Errorf("Verify = %q; want %q", got.ID, crt.ID)
	}

	if _, err = e.certSvc.Verify(ctx, "CERT-2026-NOPE0000"); err != certificate.ErrNotFound {
		t.Errorf("Verify(unknown) err = %v; want %v", err, certificate.ErrNotFound)
	}
}

func TestAttachFile(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	crt, err := e.certSvc.IssueIfAbsent(ctx, "39c7c1de-9f0f-49f1-a3f1-000000000003", e.student.ID, e.enrollment.CourseID, e.enrollment.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = e.certSvc.AttachFile(ctx, e.student, crt.ID, "https://files/cert.pdf"); err != certificate.ErrPermission {
		t.Errorf("AttachFile(student) err = %v; want %v", err, certificate.ErrPermission)
	}

	admin := user.User{ID: "admin-id", Role: user.RoleAdmin}
	got, err := e.certSvc.AttachFile(ctx, admin, crt.ID, "https://files/cert.pdf")
	if err != nil {
		t.Fatalf("attaching: %v", err)
	}
	if got.FileURL != "https://files/cert.pdf" {
		t.Errorf("file url = %q", got.FileURL)
	}
	if got.UploadedByID != admin.ID || got.UploadedAt.IsZero() {
		t.Errorf("upload audit fields not set: %+v", got)
	}
}
