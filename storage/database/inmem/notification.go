package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, ntf notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ntf.ID = uuid.New().String()
	repo.db.notifications[ntf.ID] = &ntf
	return ntf, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ntf, ok := repo.db.notifications[id]; ok {
		return *ntf, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, unreadOnly bool, exec ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var ntfs []notification.Notification
	for _, ntf := range repo.db.notifications {
		if ntf.UserID != userID {
			continue
		}
		if unreadOnly && ntf.Read {
			continue
		}
		ntfs = append(ntfs, *ntf)
	}
	sort.Slice(ntfs, func(i, j int) bool { return ntfs[i].CreatedAt.After(ntfs[j].CreatedAt) })
	return ntfs, nil
}

func (repo *notificationRepository) UpdateNotification(ctx context.Context, ntf notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.notifications[ntf.ID]; !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	repo.db.notifications[ntf.ID] = &ntf
	return ntf, nil
}
