package notification

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/user"
)

var ErrNotFound = errors.New("notification not found")

// Type classifies in-app notifications.
type Type string

const (
	TypeCourseAssigned    Type = "course_assigned"
	TypeExamPassed        Type = "exam_passed"
	TypeExamFailed        Type = "exam_failed"
	TypeProtocolCreated   Type = "protocol_created"
	TypeProtocolSigned    Type = "protocol_signed"
	TypeProtocolRejected  Type = "protocol_rejected"
	TypeCertificateIssued Type = "certificate_issued"
	TypeSystem            Type = "system"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type (
	Repository interface {
		CreateNotification(ctx context.Context, ntf Notification, exec ...core.DBExecutor) (Notification, error)
		GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
		// QueryNotifications returns a user's notifications, newest first.
		QueryNotifications(ctx context.Context, userID string, unreadOnly bool, exec ...core.DBExecutor) ([]Notification, error)
		UpdateNotification(ctx context.Context, ntf Notification, exec ...core.DBExecutor) (Notification, error)
	}

	// Service records in-app notifications and mirrors them by email when
	// the recipient has an address on file.
	Service interface {
		// Notify is fire-and-forget: delivery problems are logged, never
		// propagated to the triggering business operation.
		Notify(ctx context.Context, userID string, typ Type, title, message string)
		Query(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
		MarkRead(ctx context.Context, id, userID string) (Notification, error)
	}

	service struct {
		repo     Repository
		userRepo user.Repository
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, userRepo user.Repository, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{repo: repo, userRepo: userRepo, mailSvc: mailSvc, logger: logger}
}

func (svc *service) Notify(ctx context.Context, userID string, typ Type, title, message string) {
	ntf := Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := svc.repo.CreateNotification(ctx, ntf); err != nil {
		svc.logger.Error("saving notification", "user_id", userID, "type", typ, "error", err)
		return
	}

	usr, err := svc.userRepo.GetUser(ctx, user.GetFilter{ID: userID})
	if err != nil {
		svc.logger.Error("loading notification recipient", "user_id", userID, "error", err)
		return
	}
	if usr.Email == "" {
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.DisplayName(), Address: usr.Email}},
		Subject:      title,
		BodyStr:      message,
		TemplateName: "notification",
		TemplateData: struct{ Name, Title, Message string }{usr.DisplayName(), title, message},
	})
}

func (svc *service) Query(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, userID, unreadOnly)
}

func (svc *service) MarkRead(ctx context.Context, id, userID string) (Notification, error) {
	ntf, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if ntf.UserID != userID {
		return Notification{}, ErrNotFound
	}
	if ntf.Read {
		return ntf, nil
	}
	ntf.Read = true
	return svc.repo.UpdateNotification(ctx, ntf)
}
