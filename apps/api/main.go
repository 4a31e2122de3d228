package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/unicover/lms/apps/api/echo"
	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/certificate"
	"github.com/unicover/lms/core/course"
	"github.com/unicover/lms/core/exam"
	"github.com/unicover/lms/core/notification"
	"github.com/unicover/lms/core/protocol"
	"github.com/unicover/lms/core/user"
	emailsvc "github.com/unicover/lms/services/email"
	logsvc "github.com/unicover/lms/services/logger"
	smssvc "github.com/unicover/lms/services/sms"
	"github.com/unicover/lms/storage/database"
	sqlxrepos "github.com/unicover/lms/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up repositories
	userRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	examRepo := sqlxrepos.NewExamRepository(db)
	protoRepo := sqlxrepos.NewProtocolRepository(db)
	certRepo := sqlxrepos.NewCertificateRepository(db)
	notifRepo := sqlxrepos.NewNotificationRepository(db)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	var smsGw core.SMSGateway
	smscGw := smssvc.NewSMSCGateway(conf, logger)
	if conf.Debug || !smscGw.Configured() {
		smsGw = smssvc.NewConsoleGateway(logger)
	} else {
		smsGw = smscGw
	}

	userSvc := user.NewService(userRepo)
	notifSvc := notification.NewService(notifRepo, userRepo, mailSvc, logger)
	courseSvc := course.NewService(courseRepo, notifSvc)
	examSvc := exam.NewService(examRepo, courseSvc, notifSvc)
	certSvc := certificate.NewService(certRepo, courseRepo, notifSvc, conf)
	protoSvc := protocol.NewService(protoRepo, userRepo, courseRepo, examRepo, certSvc, notifSvc, smsGw, db, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
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
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
