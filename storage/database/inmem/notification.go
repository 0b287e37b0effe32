package inmemdb

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/policy"
)

type notificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, rows []notification.Notification, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec...)()

	for _, n := range rows {
		repo.db.notifications[n.ID] = n
	}
	return nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, scope policy.Filter, id string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	n, ok := repo.db.notifications[id]
	if !ok || !inTenant(scope.TenantID, n.TenantID) {
		return notification.Notification{}, notification.ErrNotFound
	}
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(
	_ context.Context,
	scope policy.Filter,
	filter notification.Filter,
	page core.Pagination,
) ([]notification.Notification, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []notification.Notification
	for _, n := range repo.db.notifications {
		if !inTenant(scope.TenantID, n.TenantID) || n.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		rows = append(rows, n)
	}
	sortRows(rows, []core.DBOrdering{{Field: "created_at"}, {Field: "id"}}, func(n notification.Notification, col string) interface{} {
		if col == "id" {
			return n.ID
		}
		return n.CreatedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *notificationRepository) UpdateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	defer repo.db.lockWrite()()

	if _, ok := repo.db.notifications[n.ID]; !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	repo.db.notifications[n.ID] = n
	return n, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, scope policy.Filter, userID string) (int, error) {
	defer repo.db.lockWrite()()

	count := 0
	now := null.TimeFrom(core.NowFunc())
	for id, n := range repo.db.notifications {
		if n.UserID != userID || n.Status != notification.StatusUnread || !inTenant(scope.TenantID, n.TenantID) {
			continue
		}
		n.Status = notification.StatusRead
		n.ReadAt = now
		repo.db.notifications[id] = n
		count++
	}
	return count, nil
}

func (repo *notificationRepository) DeleteNotification(_ context.Context, scope policy.Filter, id string) error {
	defer repo.db.lockWrite()()

	n, ok := repo.db.notifications[id]
	if !ok || !inTenant(scope.TenantID, n.TenantID) {
		return notification.ErrNotFound
	}
	delete(repo.db.notifications, id)
	return nil
}
