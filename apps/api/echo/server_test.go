package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/unicover/lms/apps/api/echo"
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
	server  echoapi.Server
	conf    *core.Config
	userSvc user.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := &core.Config{
		Debug:           true,
		TestMode:        true,
		AppName:         "Unicover",
		SecretKey:       "test-secret",
		OTPTimeout:      10 * time.Minute,
		FrontendBaseURL: "https://unicover.kz",
		Server: core.ServerConfig{
			Addr:                      ":0",
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
	logger := testLogger{t}

	db := inmemdb.NewDB()
	userRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	examRepo := inmemdb.NewExamRepository(db)
	protoRepo := inmemdb.NewProtocolRepository(db)
	certRepo := inmemdb.NewCertificateRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	smsGw := smssvc.NewConsoleGateway(nil)

	userSvc := user.NewService(userRepo)
	notifSvc := notification.NewService(notifRepo, userRepo, mailSvc, logger)
	courseSvc := course.NewService(courseRepo, notifSvc)
	examSvc := exam.NewService(examRepo, courseSvc, notifSvc)
	certSvc := certificate.NewService(certRepo, courseRepo, notifSvc, conf)
	protoSvc := protocol.NewService(protoRepo, userRepo, courseRepo, examRepo, certSvc, notifSvc, smsGw, nil, conf, logger)

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         userSvc,
		CourseSvc:       courseSvc,
		ExamSvc:         examSvc,
		ProtocolSvc:     protoSvc,
		CertificateSvc:  certSvc,
		NotificationSvc: notifSvc,
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
	})
	return &testEnv{server: server, conf: conf, userSvc: userSvc}
}

func (e *testEnv) createUser(t *testing.T, phone, pwd string, role user.Role) user.User {
	t.Helper()
	usr, err := e.userSvc.Create(context.Background(), user.NewUser{
		FullName: "Test User", Phone: core.NormalizePhone(phone), Password: pwd, PasswordConfirm: pwd, Role: role,
	})
	if err != nil {
		t.Fatal(err)
	}
	return usr
}

func (e *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(e.conf, echoapi.GetUserClaims(e.conf, usr))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (e *testEnv) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	e := setup(t)
	e.createUser(t, "+77050000001", "Passw0rd!", user.RoleStudent)

	rec := e.request(http.MethodPost, "/v1/users/login", "", map[string]interface{}{
		"username": "+77050000001", "password": "Passw0rd!",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp echoapi.LoginResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	// wrong password
	rec = e.request(http.MethodPost, "/v1/users/login", "", map[string]interface{}{
		"username": "+77050000001", "password": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	e := setup(t)

	rec := e.request(http.MethodGet, "/v1/courses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminOnly(t *testing.T) {
	e := setup(t)
	student := e.createUser(t, "+77050000002", "Passw0rd!", user.RoleStudent)
	admin := e.createUser(t, "+77050000003", "Passw0rd!", user.RoleAdmin)

	body := map[string]interface{}{"title": "Industrial Safety"}

	rec := e.request(http.MethodPost, "/v1/courses", e.token(t, student), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.request(http.MethodPost, "/v1/courses", e.token(t, admin), body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCourseFlow(t *testing.T) {
	e := setup(t)
	student := e.createUser(t, "+77050000004", "Passw0rd!", user.RoleStudent)
	admin := e.createUser(t, "+77050000005", "Passw0rd!", user.RoleAdmin)
	adminTok, studentTok := e.token(t, admin), e.token(t, student)

	rec := e.request(http.MethodPost, "/v1/courses", adminTok, map[string]interface{}{"title": "Work at Height"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var crs course.Course
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &crs))

	rec = e.request(http.MethodPost, "/v1/courses/"+crs.ID+"/modules", adminTok, map[string]interface{}{
		"title": "Basics", "order": 1,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var mod course.Module
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mod))

	rec = e.request(http.MethodPost, "/v1/lessons", adminTok, map[string]interface{}{
		"module_id": mod.ID, "title": "Harness use", "type": "text", "order": 1,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var lsn course.Lesson
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lsn))
	assert.True(t, lsn.Required)

	rec = e.request(http.MethodPost, "/v1/courses/"+crs.ID+"/enroll", adminTok, map[string]interface{}{
		"student_ids": []string{student.ID},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = e.request(http.MethodPost, "/v1/lessons/"+lsn.ID+"/complete", studentTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var enr course.Enrollment
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enr))
	assert.Equal(t, 100, enr.Progress)

	// student sees their enrollment
	rec = e.request(http.MethodGet, "/v1/enrollments", studentTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// eligible for sign-off: all required lessons done, no final test
	rec = e.request(http.MethodGet, "/v1/enrollments/"+enr.ID+"/completion-eligibility", studentTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEligibilityScopedToOwner(t *testing.T) {
	e := setup(t)
	owner := e.createUser(t, "+77050000007", "Passw0rd!", user.RoleStudent)
	other := e.createUser(t, "+77050000008", "Passw0rd!", user.RoleStudent)
	admin := e.createUser(t, "+77050000009", "Passw0rd!", user.RoleAdmin)
	adminTok := e.token(t, admin)

	rec := e.request(http.MethodPost, "/v1/courses", adminTok, map[string]interface{}{"title": "First Aid"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var crs course.Course
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &crs))

	rec = e.request(http.MethodPost, "/v1/courses/"+crs.ID+"/enroll", adminTok, map[string]interface{}{
		"student_ids": []string{owner.ID},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var enrs []course.Enrollment
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enrs))
	assert.Len(t, enrs, 1)

	path := "/v1/enrollments/" + enrs[0].ID + "/completion-eligibility"

	// another student cannot probe someone else's enrollment
	rec = e.request(http.MethodGet, path, e.token(t, other), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the owner and admins can
	rec = e.request(http.MethodGet, path, e.token(t, owner), nil)
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
	rec = e.request(http.MethodGet, path, adminTok, nil)
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}

func TestVerifyPublic(t *testing.T) {
	e := setup(t)

	rec := e.request(http.MethodGet, "/v1/verify/CERT-2026-UNKNOWN1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, certificate.ErrNotFound.Error(), resp["error"])
}

func TestProtocolPermissions(t *testing.T) {
	e := setup(t)
	student := e.createUser(t, "+77050000006", "Passw0rd!", user.RoleStudent)

	rec := e.request(http.MethodPost, "/v1/protocols/some-id/sign", e.token(t, student), map[string]interface{}{
		"code": "123456",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
