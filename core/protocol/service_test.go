package protocol_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/certificate"
	"github.com/unicover/lms/core/course"
	"github.com/unicover/lms/core/exam"
	"github.com/unicover/lms/core/notification"
	"github.com/unicover/lms/core/protocol"
	"github.com/unicover/lms/core/user"
	emailsvc "github.com/unicover/lms/services/email"
	smssvc "github.com/unicover/lms/services/sms"
	inmemdb "github.com/unicover/lms/storage/database/inmem"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Debug(msg string, args ...interface{}) { l.t.Logf("DEBUG %s %v", msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.t.Logf("INFO %s %v", msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.t.Logf("WARN %s %v", msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.t.Logf("ERROR %s %v", msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatalf("FATAL %s %v", msg, args) }

type testEnv struct {
	userRepo   user.Repository
	courseRepo course.Repository
	examRepo   exam.Repository
	certRepo   certificate.Repository

	courseSvc course.Service
	examSvc   exam.Service
	certSvc   certificate.Service
	protoSvc  protocol.Service

	smsGw interface {
		core.SMSGateway
		LastCode(phone string) string
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := inmemdb.NewDB()
	userRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	examRepo := inmemdb.NewExamRepository(db)
	protoRepo := inmemdb.NewProtocolRepository(db)
	certRepo := inmemdb.NewCertificateRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)

	conf := &core.Config{
		AppName:         "Unicover",
		FrontendBaseURL: "https://unicover.kz",
		OTPTimeout:      10 * time.Minute,
	}
	logger := testLogger{t}
	smsGw := smssvc.NewConsoleGateway(nil)

	notifSvc := notification.NewService(notifRepo, userRepo, emailsvc.NewConsoleServiceMock(conf), logger)
	courseSvc := course.NewService(courseRepo, notifSvc)
	examSvc := exam.NewService(examRepo, courseSvc, notifSvc)
	certSvc := certificate.NewService(certRepo, courseRepo, notifSvc, conf)
	protoSvc := protocol.NewService(protoRepo, userRepo, courseRepo, examRepo, certSvc, notifSvc, smsGw, nil, conf, logger)

	return &testEnv{
		userRepo:   userRepo,
		courseRepo: courseRepo,
		examRepo:   examRepo,
		certRepo:   certRepo,
		courseSvc:  courseSvc,
		examSvc:    examSvc,
		certSvc:    certSvc,
		protoSvc:   protoSvc,
		smsGw:      smsGw,
	}
}

func (env *testEnv) createUser(t *testing.T, name, phone string, role user.Role) user.User {
	t.Helper()
	active := true
	usr, err := env.userRepo.CreateUser(context.Background(), user.User{
		Phone:     phone,
		FullName:  name,
		Role:      role,
		IsActive:  &active,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return usr
}

// createCourse builds a published course with one module of two required
// lessons and, when withTest is set, an active final test with a single
// question.
func (env *testEnv) createCourse(t *testing.T, withTest bool) (course.Course, []course.Lesson, exam.Test) {
	t.Helper()
	ctx := context.Background()

	crs, err := env.courseSvc.Create(ctx, course.NewCourse{Title: "Industrial Safety", PassingScore: 80, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("creating course: %v", err)
	}

	mod, err := env.courseRepo.CreateModule(ctx, course.Module{CourseID: crs.ID, Title: "Basics", Order: 1})
	if err != nil {
		t.Fatalf("creating module: %v", err)
	}
	var lessons []course.Lesson
	for i, title := range []string{"Introduction", "Regulations"} {
		lsn, err := env.courseRepo.CreateLesson(ctx, course.Lesson{
			ModuleID: mod.ID, Title: title, Type: course.LessonText, Order: i + 1, Required: true,
		})
		if err != nil {
			t.Fatalf("creating lesson: %v", err)
		}
		lessons = append(lessons, lsn)
	}

	var tst exam.Test
	if withTest {
		tst, err = env.examSvc.CreateTest(ctx, exam.NewTest{CourseID: crs.ID, Title: "Final Test", PassingScore: 80, MaxAttempts: 3})
		if err != nil {
			t.Fatalf("creating test: %v", err)
		}
		if _, err = env.examSvc.AddQuestion(ctx, exam.NewQuestion{
			TestID: tst.ID,
			Type:   exam.QuestionSingleChoice,
			Text:   "Who is responsible for workplace safety?",
			Options: []exam.Option{
				{ID: "a", Text: "The employer", IsCorrect: true},
				{ID: "b", Text: "Nobody"},
			},
			Order:  1,
			Weight: 1,
		}); err != nil {
			t.Fatalf("adding question: %v", err)
		}
		crs.FinalTestID = tst.ID
		if crs, err = env.courseRepo.UpdateCourse(ctx, crs); err != nil {
			t.Fatalf("updating course: %v", err)
		}
	}
	return crs, lessons, tst
}

// passCourse walks the student through enrollment, the lessons and the
// final test, returning the enrollment ready for completion sign-off.
func (env *testEnv) passCourse(t *testing.T, student user.User, crs course.Course, lessons []course.Lesson, tst exam.Test) course.Enrollment {
	t.Helper()
	ctx := context.Background()

	enrs, err := env.courseSvc.Enroll(ctx, crs.ID, []string{student.ID})
	if err != nil {
		t.Fatalf("enrolling: %v", err)
	}
	enr := enrs[0]

	for _, lsn := range lessons {
		if enr, err = env.courseSvc.CompleteLesson(ctx, student.ID, lsn.ID); err != nil {
			t.Fatalf("completing lesson: %v", err)
		}
	}

	if tst.ID != "" {
		att, err := env.examSvc.Start(ctx, student.ID, tst.ID)
		if err != nil {
			t.Fatalf("starting attempt: %v", err)
		}
		questions, err := env.examSvc.Questions(ctx, tst.ID)
		if err != nil {
			t.Fatalf("querying questions: %v", err)
		}
		if _, err = env.examSvc.Save(ctx, student.ID, att.ID, exam.Answers{questions[0].ID: "a"}); err != nil {
			t.Fatalf("saving answers: %v", err)
		}
		if att, err = env.examSvc.Submit(ctx, student.ID, att.ID); err != nil {
			t.Fatalf("submitting attempt: %v", err)
		}
		if !att.HasPassed() {
			t.Fatalf("attempt not passed; score = %v", att.Score)
		}
	}

	if enr, err = env.courseSvc.GetEnrollment(ctx, enr.ID); err != nil {
		t.Fatalf("reloading enrollment: %v", err)
	}
	return enr
}

var protocolNumberRx = regexp.MustCompile(`^PROT-\d{4}-\d{6}$`)

func TestCourseCompletionFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.createUser(t, "Aigerim Student", "+7 700 111 22 33", user.RoleStudent)
	member := env.createUser(t, "Bolat Member", "+7 700 222 33 44", user.RolePDEKMember)
	chairman := env.createUser(t, "Chingiz Chairman", "+7 700 333 44 55", user.RolePDEKChairman)

	crs, lessons, tst := env.createCourse(t, true)
	enr := env.passCourse(t, student, crs, lessons, tst)
	if enr.Status != course.EnrollmentExamPassed {
		t.Fatalf("enrollment status = %s; want %s", enr.Status, course.EnrollmentExamPassed)
	}

	// completion code
	delivery, err := env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID)
	if err != nil {
		t.Fatalf("requesting completion code: %v", err)
	}
	if !delivery.Sent {
		t.Error("delivery.Sent = false; want true")
	}
	code := env.smsGw.LastCode(student.Phone)
	if code == "" {
		t.Fatal("no completion code dispatched")
	}

	prt, err := env.protoSvc.ConfirmCompletion(ctx, student.ID, enr.ID, code)
	if err != nil {
		t.Fatalf("confirming completion: %v", err)
	}
	if !protocolNumberRx.MatchString(prt.Number) {
		t.Errorf("protocol number = %q; want PROT-YYYY-NNNNNN", prt.Number)
	}
	if prt.Status != protocol.StatusPendingPDEK {
		t.Errorf("protocol status = %s; want %s", prt.Status, protocol.StatusPendingPDEK)
	}
	if prt.EnrollmentID != enr.ID {
		t.Errorf("protocol enrollment = %q; want %q", prt.EnrollmentID, enr.ID)
	}

	sigs, err := env.protoSvc.Signatures(ctx, prt.ID)
	if err != nil {
		t.Fatalf("querying signatures: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("len(signatures) = %d; want 2", len(sigs))
	}

	if enr, err = env.courseSvc.GetEnrollment(ctx, enr.ID); err != nil {
		t.Fatal(err)
	}
	if enr.Status != course.EnrollmentPendingPDEK {
		t.Errorf("enrollment status = %s; want %s", enr.Status, course.EnrollmentPendingPDEK)
	}

	// member signs
	if _, err = env.protoSvc.RequestSignature(ctx, member, prt.ID); err != nil {
		t.Fatalf("requesting member signature: %v", err)
	}
	if prt, err = env.protoSvc.Sign(ctx, member, prt.ID, env.smsGw.LastCode(member.Phone)); err != nil {
		t.Fatalf("member signing: %v", err)
	}
	if prt.Status != protocol.StatusSignedMembers {
		t.Errorf("protocol status = %s; want %s", prt.Status, protocol.StatusSignedMembers)
	}

	// chairman signs, completing the commission
	if _, err = env.protoSvc.RequestSignature(ctx, chairman, prt.ID); err != nil {
		t.Fatalf("requesting chairman signature: %v", err)
	}
	if prt, err = env.protoSvc.Sign(ctx, chairman, prt.ID, env.smsGw.LastCode(chairman.Phone)); err != nil {
		t.Fatalf("chairman signing: %v", err)
	}
	if prt.Status != protocol.StatusSignedChairman {
		t.Errorf("protocol status = %s; want %s", prt.Status, protocol.StatusSignedChairman)
	}

	// certificate issued, enrollment completed
	certs, err := env.certSvc.QueryByStudent(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 1 {
		t.Fatalf("len(certificates) = %d; want 1", len(certs))
	}
	if got, err := env.certSvc.Verify(ctx, certs[0].Number); err != nil || got.ID != certs[0].ID {
		t.Errorf("Verify(%q) = %v, %v", certs[0].Number, got.ID, err)
	}

	if enr, err = env.courseSvc.GetEnrollment(ctx, enr.ID); err != nil {
		t.Fatal(err)
	}
	if enr.Status != course.EnrollmentCompleted {
		t.Errorf("enrollment status = %s; want %s", enr.Status, course.EnrollmentCompleted)
	}
}

func TestCompletionWithoutFinalTest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.createUser(t, "Dana Student", "+77001112234", user.RoleStudent)
	env.createUser(t, "Bolat Member", "+77002223345", user.RolePDEKMember)

	crs, lessons, _ := env.createCourse(t, false)
	enr := env.passCourse(t, student, crs, lessons, exam.Test{})

	if _, err := env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID); err != nil {
		t.Fatalf("requesting completion code: %v", err)
	}
	prt, err := env.protoSvc.ConfirmCompletion(ctx, student.ID, enr.ID, env.smsGw.LastCode(student.Phone))
	if err != nil {
		t.Fatalf("confirming completion: %v", err)
	}
	if prt.Score != 100 {
		t.Errorf("protocol score = %v; want 100", prt.Score)
	}
	if prt.TestID != "" || prt.AttemptID != "" {
		t.Errorf("protocol test/attempt = %q/%q; want empty", prt.TestID, prt.AttemptID)
	}
	if prt.ExamDate.IsZero() {
		t.Error("protocol exam date is zero")
	}
}

func TestRequestCompletionCodeNotEligible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.createUser(t, "Erlan Student", "+77001112235", user.RoleStudent)
	crs, lessons, _ := env.createCourse(t, false)

	enrs, err := env.courseSvc.Enroll(ctx, crs.ID, []string{student.ID})
	if err != nil {
		t.Fatal(err)
	}
	enr := enrs[0]

	// only one of two required lessons done
	if _, err = env.courseSvc.CompleteLesson(ctx, student.ID, lessons[0].ID); err != nil {
		t.Fatal(err)
	}

	_, err = env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID)
	if !core.IsNotEligible(err) {
		t.Errorf("err = %v; want NotEligibleError", err)
	}
}

func TestCompletionCodeReused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.createUser(t, "Gulnara Student", "+77001112236", user.RoleStudent)
	crs, lessons, _ := env.createCourse(t, false)
	enr := env.passCourse(t, student, crs, lessons, exam.Test{})

	if _, err := env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID); err != nil {
		t.Fatal(err)
	}
	first := env.smsGw.LastCode(student.Phone)

	if _, err := env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID); err != nil {
		t.Fatal(err)
	}
	second := env.smsGw.LastCode(student.Phone)

	if first != second {
		t.Errorf("completion code regenerated while still valid: %q != %q", first, second)
	}
}

func TestSignatureCodeRegenerated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.createUser(t, "Kanat Student", "+77001112237", user.RoleStudent)
	member := env.createUser(t, "Bolat Member", "+77002223346", user.RolePDEKMember)

	crs, lessons, _ := env.createCourse(t, false)
	enr := env.passCourse(t, student, crs, lessons, exam.Test{})
	if _, err := env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID); err != nil {
		t.Fatal(err)
	}
	prt, err := env.protoSvc.ConfirmCompletion(ctx, student.ID, enr.ID, env.smsGw.LastCode(student.Phone))
	if err != nil {
		t.Fatal(err)
	}

	if _, err = env.protoSvc.RequestSignature(ctx, member, prt.ID); err != nil {
		t.Fatal(err)
	}
	first := env.smsGw.LastCode(member.Phone)

	if _, err = env.protoSvc.RequestSignature(ctx, member, prt.ID); err != nil {
		t.Fatal(err)
	}
	second := env.smsGw.LastCode(member.Phone)

	if first == second {
		t.Error("signing code reused; a fresh code must be generated per request")
	}

	// the superseded code no longer signs
	if _, err = env.protoSvc.Sign(ctx, member, prt.ID, first); err != core.ErrInvalidOTP {
		t.Errorf("Sign(stale code) err = %v; want %v", err, core.ErrInvalidOTP)
	}
	if _, err = env.protoSvc.Sign(ctx, member, prt.ID, second); err != nil {
		t.Errorf("Sign(fresh code) err = %v", err)
	}
}

func TestSignPermissionAndCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.createUser(t, "Madina Student", "+77001112238", user.RoleStudent)
	member := env.createUser(t, "Bolat Member", "+77002223347", user.RolePDEKMember)

	crs, lessons, _ := env.createCourse(t, false)
	enr := env.passCourse(t, student, crs, lessons, exam.Test{})
	if _, err := env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID); err != nil {
		t.Fatal(err)
	}
	prt, err := env.protoSvc.ConfirmCompletion(ctx, student.ID, enr.ID, env.smsGw.LastCode(student.Phone))
	if err != nil {
		t.Fatal(err)
	}

	if _, err = env.protoSvc.Sign(ctx, student, prt.ID, "123456"); err != protocol.ErrPermission {
		t.Errorf("Sign(student) err = %v; want %v", err, protocol.ErrPermission)
	}

	if _, err = env.protoSvc.RequestSignature(ctx, member, prt.ID); err != nil {
		t.Fatal(err)
	}
	if _, err = env.protoSvc.Sign(ctx, member, prt.ID, "bad-code"); err != core.ErrInvalidOTP {
		t.Errorf("Sign(bad code) err = %v; want %v", err, core.ErrInvalidOTP)
	}
}

func TestSigningOrderIndependence(t *testing.T) {
	// a 2-member + chairman commission reaches signed_chairman regardless
	// of who signs when, and the certificate is issued exactly once
	type step struct {
		reviewer int // index into the roster below
		want     protocol.Status
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{
			"chairman first",
			[]step{{2, protocol.StatusSignedChairman}, {0, protocol.StatusSignedMembers}, {1, protocol.StatusSignedChairman}},
		},
		{
			"members first",
			[]step{{0, protocol.StatusSignedMembers}, {1, protocol.StatusSignedMembers}, {2, protocol.StatusSignedChairman}},
		},
		{
			"interleaved",
			[]step{{0, protocol.StatusSignedMembers}, {2, protocol.StatusSignedMembers}, {1, protocol.StatusSignedChairman}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			student := env.createUser(t, "Aruzhan Student", "+77001112241", user.RoleStudent)
			roster := []user.User{
				env.createUser(t, "Bolat Member", "+77002223350", user.RolePDEKMember),
				env.createUser(t, "Dina Member", "+77002223351", user.RolePDEKMember),
				env.createUser(t, "Chingiz Chairman", "+77003334457", user.RolePDEKChairman),
			}

			crs, lessons, _ := env.createCourse(t, false)
			enr := env.passCourse(t, student, crs, lessons, exam.Test{})
			if _, err := env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID); err != nil {
				t.Fatal(err)
			}
			prt, err := env.protoSvc.ConfirmCompletion(ctx, student.ID, enr.ID, env.smsGw.LastCode(student.Phone))
			if err != nil {
				t.Fatal(err)
			}
			if prt.Status != protocol.StatusPendingPDEK {
				t.Fatalf("protocol status = %s; want %s", prt.Status, protocol.StatusPendingPDEK)
			}

			for i, st := range tc.steps {
				rvw := roster[st.reviewer]
				if _, err = env.protoSvc.RequestSignature(ctx, rvw, prt.ID); err != nil {
					t.Fatalf("step %d: requesting signature: %v", i, err)
				}
				if prt, err = env.protoSvc.Sign(ctx, rvw, prt.ID, env.smsGw.LastCode(rvw.Phone)); err != nil {
					t.Fatalf("step %d: signing: %v", i, err)
				}
				if prt.Status != st.want {
					t.Errorf("step %d: protocol status = %s; want %s", i, prt.Status, st.want)
				}
			}

			certs, err := env.certSvc.QueryByStudent(ctx, student.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(certs) != 1 {
				t.Errorf("len(certificates) = %d; want 1", len(certs))
			}
		})
	}
}

func TestRejectFailsEnrollment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.createUser(t, "Nurlan Student", "+77001112239", user.RoleStudent)
	admin := env.createUser(t, "Olga Admin", "+77009998877", user.RoleAdmin)

	crs, lessons, _ := env.createCourse(t, false)
	enr := env.passCourse(t, student, crs, lessons, exam.Test{})
	if _, err := env.protoSvc.RequestCompletionCode(ctx, student.ID, enr.ID); err != nil {
		t.Fatal(err)
	}
	prt, err := env.protoSvc.ConfirmCompletion(ctx, student.ID, enr.ID, env.smsGw.LastCode(student.Phone))
	if err != nil {
		t.Fatal(err)
	}

	if _, err = env.protoSvc.Reject(ctx, student, prt.ID, "nope"); err != protocol.ErrPermission {
		t.Errorf("Reject(student) err = %v; want %v", err, protocol.ErrPermission)
	}

	prt, err = env.protoSvc.Reject(ctx, admin, prt.ID, "paperwork mismatch")
	if err != nil {
		t.Fatalf("rejecting: %v", err)
	}
	if prt.Status != protocol.StatusRejected {
		t.Errorf("protocol status = %s; want %s", prt.Status, protocol.StatusRejected)
	}
	if prt.RejectionReason != "paperwork mismatch" {
		t.Errorf("rejection reason = %q", prt.RejectionReason)
	}

	if enr, err = env.courseSvc.GetEnrollment(ctx, enr.ID); err != nil {
		t.Fatal(err)
	}
	if enr.Status != course.EnrollmentFailed {
		t.Errorf("enrollment status = %s; want %s", enr.Status, course.EnrollmentFailed)
	}

	// closed protocols accept no more codes
	member := env.createUser(t, "Bolat Member", "+77002223348", user.RolePDEKMember)
	if _, err = env.protoSvc.RequestSignature(ctx, member, prt.ID); err != protocol.ErrClosed {
		t.Errorf("RequestSignature(closed) err = %v; want %v", err, protocol.ErrClosed)
	}
}

func TestStandaloneAttemptCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.createUser(t, "Saule Student", "+77001112240", user.RoleStudent)
	member := env.createUser(t, "Bolat Member", "+77002223349", user.RolePDEKMember)
	chairman := env.createUser(t, "Chingiz Chairman", "+77003334456", user.RolePDEKChairman)

	tst, err := env.examSvc.CreateTest(ctx, exam.NewTest{Title: "Standalone Certification", PassingScore: 80, MaxAttempts: 3})
	if err != nil {
		t.Fatal(err)
	}
	qst, err := env.examSvc.AddQuestion(ctx, exam.NewQuestion{
		TestID:  tst.ID,
		Type:    exam.QuestionYesNo,
		Text:    "Is a permit required for hot work?",
		Options: []exam.Option{{ID: "yes", Text: "Yes", IsCorrect: true}, {ID: "no", Text: "No"}},
		Order:   1,
	})
	if err != nil {
		t.Fatal(err)
	}

	att, err := env.examSvc.Start(ctx, student.ID, tst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = env.examSvc.Save(ctx, student.ID, att.ID, exam.Answers{qst.ID: "yes"}); err != nil {
		t.Fatal(err)
	}
	if att, err = env.examSvc.Submit(ctx, student.ID, att.ID); err != nil {
		t.Fatal(err)
	}
	if !att.HasPassed() {
		t.Fatalf("attempt not passed; score = %v", att.Score)
	}

	if _, err = env.protoSvc.RequestAttemptCompletionCode(ctx, student.ID, att.ID); err != nil {
		t.Fatalf("requesting attempt completion code: %v", err)
	}
	prt, err := env.protoSvc.ConfirmAttemptCompletion(ctx, student.ID, att.ID, env.smsGw.LastCode(student.Phone))
	if err != nil {
		t.Fatalf("confirming attempt completion: %v", err)
	}
	if prt.AttemptID != att.ID || prt.TestID != tst.ID {
		t.Errorf("protocol attempt/test = %q/%q; want %q/%q", prt.AttemptID, prt.TestID, att.ID, tst.ID)
	}
	if prt.EnrollmentID != "" {
		t.Errorf("protocol enrollment = %q; want empty", prt.EnrollmentID)
	}

	// confirming again returns the same protocol
	again, err := env.protoSvc.ConfirmAttemptCompletion(ctx, student.ID, att.ID, "whatever")
	if err != nil {
		t.Fatalf("re-confirming: %v", err)
	}
	if again.ID != prt.ID {
		t.Errorf("re-confirmation created a new protocol: %q != %q", again.ID, prt.ID)
	}

	// full sign-off without an enrollment issues no certificate
	for _, rvw := range []user.User{member, chairman} {
		if _, err = env.protoSvc.RequestSignature(ctx, rvw, prt.ID); err != nil {
			t.Fatal(err)
		}
		if prt, err = env.protoSvc.Sign(ctx, rvw, prt.ID, env.smsGw.LastCode(rvw.Phone)); err != nil {
			t.Fatal(err)
		}
	}
	if prt.Status != protocol.StatusSignedChairman {
		t.Errorf("protocol status = %s; want %s", prt.Status, protocol.StatusSignedChairman)
	}
	certs, err := env.certSvc.QueryByStudent(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 0 {
		t.Errorf("len(certificates) = %d; want 0 for standalone attempts", len(certs))
	}
}
