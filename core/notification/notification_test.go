package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/unicover/lms/core"
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

func setup(t *testing.T) (notification.Service, user.Repository) {
	t.Helper()

	db := inmemdb.NewDB()
	userRepo := inmemdb.NewUserRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)

	conf := &core.Config{AppName: "Unicover"}
	svc := notification.NewService(notifRepo, userRepo, emailsvc.NewConsoleServiceMock(conf), testLogger{t})
	return svc, userRepo
}

func createUser(t *testing.T, repo user.Repository, phone, email string) user.User {
	t.Helper()
	active := true
	usr, err := repo.CreateUser(context.Background(), user.User{
		Phone: phone, Email: email, FullName: "Test User", Role: user.RoleStudent, IsActive: &active,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return usr
}

func TestNotify(t *testing.T) {
	svc, userRepo := setup(t)
	ctx := context.Background()

	usr := createUser(t, userRepo, "+77040000001", "student@example.com")

	emailsvc.SentMessages = nil // reset
	svc.Notify(ctx, usr.ID, notification.TypeCertificateIssued, "Certificate issued", "Your certificate CERT-2026-ABCD1234 has been issued.")

	ntfs, err := svc.Query(ctx, usr.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ntfs) != 1 {
		t.Fatalf("len(notifications) = %d; want 1", len(ntfs))
	}
	if ntfs[0].Type != notification.TypeCertificateIssued || ntfs[0].Read {
		t.Errorf("notification = %+v", ntfs[0])
	}

	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
	}
	msg := emailsvc.SentMessages[0]
	if msg.To[0].Address != usr.Email {
		t.Errorf("email to = %q; want %q", msg.To[0].Address, usr.Email)
	}
}

func TestNotifyWithoutEmail(t *testing.T) {
	svc, userRepo := setup(t)
	ctx := context.Background()

	usr := createUser(t, userRepo, "+77040000002", "")

	emailsvc.SentMessages = nil // reset
	svc.Notify(ctx, usr.ID, notification.TypeSystem, "Maintenance", "Planned downtime tonight.")

	ntfs, err := svc.Query(ctx, usr.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ntfs) != 1 {
		t.Fatalf("len(notifications) = %d; want 1", len(ntfs))
	}
	if len(emailsvc.SentMessages) > 0 {
		t.Errorf("len(SentMessages) = %d; want 0 without an address", len(emailsvc.SentMessages))
	}
}

func TestMarkRead(t *testing.T) {
	svc, userRepo := setup(t)
	ctx := context.Background()

	owner := createUser(t, userRepo, "+77040000003", "")
	other := createUser(t, userRepo, "+77040000004", "")

	svc.Notify(ctx, owner.ID, notification.TypeSystem, "Hello", "First notification.")
	ntfs, err := svc.Query(ctx, owner.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(ntfs) != 1 {
		t.Fatalf("len(unread) = %d; want 1", len(ntfs))
	}
	ntf := ntfs[0]

	// another user cannot read someone else's notification
	if _, err = svc.MarkRead(ctx, ntf.ID, other.ID); err != notification.ErrNotFound {
		t.Errorf("MarkRead(other) err = %v; want %v", err, notification.ErrNotFound)
	}

	got, err := svc.MarkRead(ctx, ntf.ID, owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Read {
		t.Error("Read = false after MarkRead")
	}

	// marking twice is harmless
	if _, err = svc.MarkRead(ctx, ntf.ID, owner.ID); err != nil {
		t.Errorf("repeat MarkRead err = %v", err)
	}

	unread, err := svc.Query(ctx, owner.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 0 {
		t.Errorf("len(unread) = %d; want 0", len(unread))
	}
}
