package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/certificate"
	"github.com/unicover/lms/core/course"
	"github.com/unicover/lms/core/exam"
	"github.com/unicover/lms/core/notification"
	"github.com/unicover/lms/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("protocol not found")
	ErrSignatureNotFound = errors.New("signature not found, request a code first")
	ErrPermission        = errors.New("PDEK role required")
	ErrClosed            = errors.New("protocol is rejected or annulled")
)

type (
	Repository interface {
		CreateProtocol(ctx context.Context, prt Protocol, exec ...core.DBExecutor) (Protocol, error)
		GetProtocol(ctx context.Context, id string, exec ...core.DBExecutor) (Protocol, error)
		// GetProtocolForUpdate locks the protocol row for the duration of
		// the surrounding transaction.
		GetProtocolForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (Protocol, error)
		GetProtocolByNumber(ctx context.Context, number string, exec ...core.DBExecutor) (Protocol, error)
		GetProtocolByEnrollment(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (Protocol, error)
		GetProtocolByAttempt(ctx context.Context, attemptID string, exec ...core.DBExecutor) (Protocol, error)
		QueryProtocols(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Protocol, error)
		UpdateProtocol(ctx context.Context, prt Protocol, exec ...core.DBExecutor) (Protocol, error)
		NumberExists(ctx context.Context, number string, exec ...core.DBExecutor) (bool, error)

		CreateSignature(ctx context.Context, sig Signature, exec ...core.DBExecutor) (Signature, error)
		GetSignature(ctx context.Context, protocolID, signerID string, exec ...core.DBExecutor) (Signature, error)
		QuerySignatures(ctx context.Context, protocolID string, exec ...core.DBExecutor) ([]Signature, error)
		UpdateSignature(ctx context.Context, sig Signature, exec ...core.DBExecutor) (Signature, error)
	}

	Service interface {
		GetByID(ctx context.Context, id string) (Protocol, error)
		GetByNumber(ctx context.Context, number string) (Protocol, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Protocol, error)
		Signatures(ctx context.Context, protocolID string) ([]Signature, error)

		// course completion sign-off (signoff.go)
		CanRequestSignoff(ctx context.Context, enrollmentID string) error
		RequestCompletionCode(ctx context.Context, studentID, enrollmentID string) (CodeDelivery, error)
		ConfirmCompletion(ctx context.Context, studentID, enrollmentID, code string) (Protocol, error)
		RequestAttemptCompletionCode(ctx context.Context, studentID, attemptID string) (CodeDelivery, error)
		ConfirmAttemptCompletion(ctx context.Context, studentID, attemptID, code string) (Protocol, error)

		// PDEK signing
		RequestSignature(ctx context.Context, reviewer user.User, protocolID string) (CodeDelivery, error)
		Sign(ctx context.Context, reviewer user.User, protocolID, code string) (Protocol, error)

		Reject(ctx context.Context, admin user.User, protocolID, reason string) (Protocol, error)
		Annul(ctx context.Context, admin user.User, protocolID, reason string) (Protocol, error)
	}

	service struct {
		repo       Repository
		userRepo   user.Repository
		courseRepo course.Repository
		examRepo   exam.Repository
		certSvc    certificate.Service
		notifSvc   notification.Service
		smsGw      core.SMSGateway
		db         core.DB
		conf       *core.Config
		logger     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	userRepo user.Repository,
	courseRepo course.Repository,
	examRepo exam.Repository,
	certSvc certificate.Service,
	notifSvc notification.Service,
	smsGw core.SMSGateway,
	db core.DB,
	conf *core.Config,
	logger core.Logger,
) Service {
	return &service{
		repo:       repo,
		userRepo:   userRepo,
		courseRepo: courseRepo,
		examRepo:   examRepo,
		certSvc:    certSvc,
		notifSvc:   notifSvc,
		smsGw:      smsGw,
		db:         db,
		conf:       conf,
		logger:     logger,
	}
}

func (svc *service) GetByID(ctx context.Context, id string) (Protocol, error) {
	return svc.repo.GetProtocol(ctx, id)
}

func (svc *service) GetByNumber(ctx context.Context, number string) (Protocol, error) {
	return svc.repo.GetProtocolByNumber(ctx, core.CleanString(number))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Protocol, error) {
	return svc.repo.QueryProtocols(ctx, filter, ordering)
}

func (svc *service) Signatures(ctx context.Context, protocolID string) ([]Signature, error) {
	return svc.repo.QuerySignatures(ctx, protocolID)
}

// RequestSignature issues a fresh signing code to the reviewer. A new
// code is generated on every request; signing codes are never reused.
func (svc *service) RequestSignature(ctx context.Context, reviewer user.User, protocolID string) (CodeDelivery, error) {
	if !reviewer.IsReviewer() {
		return CodeDelivery{}, ErrPermission
	}

	prt, err := svc.repo.GetProtocol(ctx, protocolID)
	if err != nil {
		return CodeDelivery{}, errors.Wrap(err, "finding protocol")
	}
	if !prt.Open() {
		return CodeDelivery{}, ErrClosed
	}

	now := time.Now().UTC()
	sig, err := svc.repo.GetSignature(ctx, prt.ID, reviewer.ID)
	if err != nil {
		if errors.Cause(err) != ErrSignatureNotFound {
			return CodeDelivery{}, errors.Wrap(err, "finding signature")
		}
		// a reviewer appointed after protocol creation gets a slot here
		sig, err = svc.repo.CreateSignature(ctx, Signature{
			ProtocolID: prt.ID,
			SignerID:   reviewer.ID,
			Role:       signatureRole(reviewer.Role),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return CodeDelivery{}, errors.Wrap(err, "creating signature")
		}
	}

	sig.OTPCode = core.GenerateOTP()
	sig.OTPExpiresAt = now.Add(svc.conf.OTPTimeout)
	sig.UpdatedAt = now
	if sig, err = svc.repo.UpdateSignature(ctx, sig); err != nil {
		return CodeDelivery{}, errors.Wrap(err, "updating signature")
	}

	return svc.deliverCode(reviewer.Phone, sig.OTPCode, core.SMSPurposeProtocolSign, sig.OTPExpiresAt), nil
}

// Sign verifies the reviewer's code and recounts the protocol's
// signatures inside one transaction with the protocol row locked, so
// concurrent signers cannot lose each other's updates.
func (svc *service) Sign(ctx context.Context, reviewer user.User, protocolID, code string) (Protocol, error) {
	if !reviewer.IsReviewer() {
		return Protocol{}, ErrPermission
	}

	sig, err := svc.repo.GetSignature(ctx, protocolID, reviewer.ID)
	if err != nil {
		return Protocol{}, err
	}
	if !core.OTPValid(code, sig.OTPCode, sig.OTPExpiresAt) {
		return Protocol{}, core.ErrInvalidOTP
	}

	var (
		prt         Protocol
		fullySigned bool
	)
	err = core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		now := time.Now().UTC()

		prt, err = svc.repo.GetProtocolForUpdate(ctx, protocolID, tx)
		if err != nil {
			return errors.Wrap(err, "locking protocol")
		}
		if !prt.Open() {
			return ErrClosed
		}

		if !sig.Verified {
			sig.Verified = true
			sig.SignedAt = now
			sig.UpdatedAt = now
			if _, err = svc.repo.UpdateSignature(ctx, sig, tx); err != nil {
				return errors.Wrap(err, "updating signature")
			}
		}

		sigs, err := svc.repo.QuerySignatures(ctx, prt.ID, tx)
		if err != nil {
			return errors.Wrap(err, "querying signatures")
		}
		prt.Status = DeriveStatus(sigs)
		prt.UpdatedAt = now
		if prt, err = svc.repo.UpdateProtocol(ctx, prt, tx); err != nil {
			return errors.Wrap(err, "updating protocol")
		}

		fullySigned = FullySigned(sigs)
		return nil
	})
	if err != nil {
		return Protocol{}, err
	}

	if fullySigned {
		svc.notifSvc.Notify(ctx, prt.StudentID, notification.TypeProtocolSigned,
			"Protocol signed",
			fmt.Sprintf("Protocol %s has been signed by the commission.", prt.Number))

		if prt.EnrollmentID != "" {
			if _, err = svc.certSvc.IssueIfAbsent(ctx, prt.ID, prt.StudentID, prt.CourseID, prt.EnrollmentID); err != nil {
				return Protocol{}, errors.Wrap(err, "issuing certificate")
			}
		}
	}
	return prt, nil
}

func (svc *service) Reject(ctx context.Context, admin user.User, protocolID, reason string) (Protocol, error) {
	return svc.close(ctx, admin, protocolID, reason, StatusRejected, course.EnrollmentFailed, notification.TypeProtocolRejected, "Protocol rejected")
}

func (svc *service) Annul(ctx context.Context, admin user.User, protocolID, reason string) (Protocol, error) {
	return svc.close(ctx, admin, protocolID, reason, StatusAnnulled, course.EnrollmentAnnulled, notification.TypeProtocolRejected, "Protocol annulled")
}

func (svc *service) close(
	ctx context.Context,
	admin user.User,
	protocolID, reason string,
	status Status,
	enrStatus course.EnrollmentStatus,
	notifType notification.Type,
	notifTitle string,
) (Protocol, error) {
	if !admin.IsAdmin() {
		return Protocol{}, ErrPermission
	}

	prt, err := svc.repo.GetProtocol(ctx, protocolID)
	if err != nil {
		return Protocol{}, errors.Wrap(err, "finding protocol")
	}
	prt.Status = status
	prt.RejectionReason = core.CleanString(reason)
	prt.UpdatedAt = time.Now().UTC()
	if prt, err = svc.repo.UpdateProtocol(ctx, prt); err != nil {
		return Protocol{}, errors.Wrap(err, "updating protocol")
	}

	if prt.EnrollmentID != "" {
		enr, err := svc.courseRepo.GetEnrollment(ctx, prt.EnrollmentID)
		if err != nil {
			return Protocol{}, errors.Wrap(err, "finding enrollment")
		}
		enr.Status = enrStatus
		if _, err = svc.courseRepo.UpdateEnrollment(ctx, enr); err != nil {
			return Protocol{}, errors.Wrap(err, "updating enrollment")
		}
	}

	msg := fmt.Sprintf("%s: %s.", notifTitle, prt.Number)
	if prt.RejectionReason != "" {
		msg = fmt.Sprintf("%s: %s. Reason: %s", notifTitle, prt.Number, prt.RejectionReason)
	}
	svc.notifSvc.Notify(ctx, prt.StudentID, notifType, notifTitle, msg)
	return prt, nil
}

// deliverCode dispatches a one-time code by SMS. Delivery failure never
// fails the business operation; the raw code is returned to the caller
// instead so development and gateway outages stay workable.
func (svc *service) deliverCode(phone, code, purpose string, expiresAt time.Time) CodeDelivery {
	res := svc.smsGw.SendCode(phone, code, purpose)
	if !res.Success {
		svc.logger.Warn("sms delivery failed", "phone", phone, "purpose", purpose, "error", res.Error)
		return CodeDelivery{ExpiresAt: expiresAt, Code: code}
	}
	return CodeDelivery{ExpiresAt: expiresAt, Sent: true}
}

func signatureRole(role user.Role) SignatureRole {
	if role == user.RolePDEKChairman {
		return SignerChairman
	}
	return SignerMember
}

func (svc *service) uniqueNumber(ctx context.Context, year int) (string, error) {
	for {
		number := CandidateNumber(year)
		exists, err := svc.repo.NumberExists(ctx, number)
		if err != nil {
			return "", errors.Wrap(err, "checking protocol number")
		}
		if !exists {
			return number, nil
		}
	}
}
