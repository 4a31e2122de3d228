package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/notification"
)

type notificationRepository struct {
	db core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db core.DBExecutor) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}

func (repo notificationRepository) fromRow(row notificationRow) notification.Notification {
	return notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      notification.Type(row.Type),
		Title:     row.Title,
		Message:   row.Message,
		Read:      row.Read,
		CreatedAt: row.CreatedAt,
	}
}

const notificationColumns = `id, user_id, type, title, message, read, created_at`

func (repo notificationRepository) CreateNotification(ctx context.Context, ntf notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	ntf.ID = uuid.New().String()
	row := notificationRow{
		ID:        ntf.ID,
		UserID:    ntf.UserID,
		Type:      string(ntf.Type),
		Title:     ntf.Title,
		Message:   ntf.Message,
		Read:      ntf.Read,
		CreatedAt: ntf.CreatedAt.UTC(),
	}
	query := `
		INSERT INTO notification (` + notificationColumns + `)
		VALUES (:id, :user_id, :type, :title, :message, :read, :created_at)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, row); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return ntf, nil
}

func (repo notificationRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT `+notificationColumns+` FROM notification WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "finding notification")
	}
	return repo.fromRow(row), nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, userID string, unreadOnly bool, exec ...core.DBExecutor) ([]notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notification WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC`

	var rows []notificationRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	ntfs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		ntfs = append(ntfs, repo.fromRow(row))
	}
	return ntfs, nil
}

func (repo notificationRepository) UpdateNotification(ctx context.Context, ntf notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	_, err := repo.getExec(exec).ExecContext(ctx,
		`UPDATE notification SET read = $1 WHERE id = $2`, ntf.Read, ntf.ID)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	return ntf, nil
}
