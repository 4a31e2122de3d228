package certificate

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/course"
	"github.com/unicover/lms/core/notification"
	"github.com/unicover/lms/core/user"
)

var (
	// errors
	ErrNotFound   = errors.New("certificate not found")
	ErrExists     = errors.New("certificate already issued for this protocol")
	ErrPermission = errors.New("admin role required")
)

type (
	Repository interface {
		// CreateCertificate returns ErrExists when the
		// (protocol, student, course) unique constraint is violated.
		CreateCertificate(ctx context.Context, crt Certificate, exec ...core.DBExecutor) (Certificate, error)
		GetCertificate(ctx context.Context, id string, exec ...core.DBExecutor) (Certificate, error)
		GetCertificateByNumber(ctx context.Context, number string, exec ...core.DBExecutor) (Certificate, error)
		GetCertificateByProtocol(ctx context.Context, protocolID, studentID, courseID string, exec ...core.DBExecutor) (Certificate, error)
		QueryCertificates(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]Certificate, error)
		UpdateCertificate(ctx context.Context, crt Certificate, exec ...core.DBExecutor) (Certificate, error)
		NumberExists(ctx context.Context, number string, exec ...core.DBExecutor) (bool, error)
	}

	Service interface {
		// IssueIfAbsent issues a certificate for a fully signed protocol.
		// A certificate already issued for the same (protocol, student,
		// course) is returned unchanged; issuing is safe to repeat.
		IssueIfAbsent(ctx context.Context, protocolID, studentID, courseID, enrollmentID string) (Certificate, error)
		GetByID(ctx context.Context, id string) (Certificate, error)
		// Verify is the public lookup behind the QR verification URL.
		Verify(ctx context.Context, number string) (Certificate, error)
		QueryByStudent(ctx context.Context, studentID string) ([]Certificate, error)
		AttachFile(ctx context.Context, staff user.User, certificateID, fileURL string) (Certificate, error)
	}

	service struct {
		repo       Repository
		courseRepo course.Repository
		notifSvc   notification.Service
		conf       *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, courseRepo course.Repository, notifSvc notification.Service, conf *core.Config) Service {
	return &service{repo: repo, courseRepo: courseRepo, notifSvc: notifSvc, conf: conf}
}

func (svc *service) IssueIfAbsent(ctx context.Context, protocolID, studentID, courseID, enrollmentID string) (Certificate, error) {
	if crt, err := svc.repo.GetCertificateByProtocol(ctx, protocolID, studentID, courseID); err == nil {
		return crt, nil
	} else if errors.Cause(err) != ErrNotFound {
		return Certificate{}, errors.Wrap(err, "finding certificate")
	}

	now := time.Now().UTC()
	number, err := svc.uniqueNumber(ctx, now.Year())
	if err != nil {
		return Certificate{}, err
	}

	crt, err := svc.repo.CreateCertificate(ctx, Certificate{
		Number:       number,
		StudentID:    studentID,
		CourseID:     courseID,
		ProtocolID:   protocolID,
		EnrollmentID: enrollmentID,
		IssuedAt:     now,
		QRCode:       VerificationURL(svc.conf.FrontendBaseURL, number),
	})
	if err != nil {
		// a concurrent issuer won the race; theirs is the certificate
		if errors.Cause(err) == ErrExists {
			return svc.repo.GetCertificateByProtocol(ctx, protocolID, studentID, courseID)
		}
		return Certificate{}, errors.Wrap(err, "creating certificate")
	}

	if enrollmentID != "" {
		if err = svc.completeEnrollment(ctx, enrollmentID, now); err != nil {
			return Certificate{}, err
		}
	}

	svc.notifSvc.Notify(ctx, studentID, notification.TypeCertificateIssued,
		"Certificate issued",
		fmt.Sprintf("Your certificate %s has been issued.", crt.Number))
	return crt, nil
}

func (svc *service) completeEnrollment(ctx context.Context, enrollmentID string, now time.Time) error {
	enr, err := svc.courseRepo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return errors.Wrap(err, "finding enrollment")
	}
	if enr.Status == course.EnrollmentCompleted {
		return nil
	}
	enr.Status = course.EnrollmentCompleted
	enr.CompletedAt = now
	_, err = svc.courseRepo.UpdateEnrollment(ctx, enr)
	return errors.Wrap(err, "completing enrollment")
}

func (svc *service) uniqueNumber(ctx context.Context, year int) (string, error) {
	for {
		number := CandidateNumber(year)
		exists, err := svc.repo.NumberExists(ctx, number)
		if err != nil {
			return "", errors.Wrap(err, "checking certificate number")
		}
		if !exists {
			return number, nil
		}
	}
}

func (svc *service) GetByID(ctx context.Context, id string) (Certificate, error) {
	return svc.repo.GetCertificate(ctx, id)
}

func (svc *service) Verify(ctx context.Context, number string) (Certificate, error) {
	return svc.repo.GetCertificateByNumber(ctx, core.CleanString(number))
}

func (svc *service) QueryByStudent(ctx context.Context, studentID string) ([]Certificate, error) {
	return svc.repo.QueryCertificates(ctx, studentID)
}

func (svc *service) AttachFile(ctx context.Context, staff user.User, certificateID, fileURL string) (Certificate, error) {
	if !staff.IsAdmin() {
		return Certificate{}, ErrPermission
	}
	crt, err := svc.repo.GetCertificate(ctx, certificateID)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "finding certificate")
	}
	crt.FileURL = fileURL
	crt.UploadedByID = staff.ID
	crt.UploadedAt = time.Now().UTC()
	return svc.repo.UpdateCertificate(ctx, crt)
}
