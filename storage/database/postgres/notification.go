package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/policy"
)

type notificationRepository struct {
	repository
}

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{repository{db: db}}
}

var notificationColumns = []string{
	"id", "tenant_id", "user_id", "sender_id", "kind", "title", "body", "status", "read_at", "created_at",
}

func (repo *notificationRepository) CreateNotifications(ctx context.Context, rows []notification.Notification, exec ...core.DBExecutor) error {
	if len(rows) == 0 {
		return nil
	}
	ins := psql.Insert("notifications").Columns(notificationColumns...)
	for _, n := range rows {
		ins = ins.Values(n.ID, n.TenantID, n.UserID, n.SenderID, n.Kind, n.Title, n.Body, n.Status, n.ReadAt, n.CreatedAt)
	}
	_, err := run(ctx, repo.exec(exec), ins)
	return errors.Wrap(err, "inserting notifications")
}

func (repo *notificationRepository) GetNotification(ctx context.Context, scope policy.Filter, id string) (notification.Notification, error) {
	var n notification.Notification
	err := get(ctx, repo.db, &n, psql.Select(notificationColumns...).From("notifications").
		Where(tenantEq("tenant_id", scope)).
		Where(sq.Eq{"id": id}))
	if isNoRows(err) {
		return notification.Notification{}, notification.ErrNotFound
	}
	return n, errors.Wrap(err, "selecting notification")
}

func (repo *notificationRepository) QueryNotifications(
	ctx context.Context,
	scope policy.Filter,
	filter notification.Filter,
	pg core.Pagination,
) ([]notification.Notification, int, error) {
	q := psql.Select(notificationColumns...).From("notifications").
		Where(tenantEq("tenant_id", scope)).
		Where(sq.Eq{"user_id": filter.UserID})
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	var rows []notification.Notification
	total, err := page(ctx, repo.db, &rows, q, []core.DBOrdering{{Field: "created_at"}, {Field: "id"}}, pg)
	return rows, total, errors.Wrap(err, "selecting notifications")
}

func (repo *notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	cnt, err := run(ctx, repo.db, psql.Update("notifications").
		Set("status", n.Status).
		Set("read_at", n.ReadAt).
		Where(sq.Eq{"id": n.ID}))
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	if cnt == 0 {
		return notification.Notification{}, notification.ErrNotFound
	}
	return n, nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, scope policy.Filter, userID string) (int, error) {
	n, err := run(ctx, repo.db, psql.Update("notifications").
		Set("status", notification.StatusRead).
		Set("read_at", core.NowFunc()).
		Where(tenantEq("tenant_id", scope)).
		Where(sq.Eq{"user_id": userID, "status": notification.StatusUnread}))
	return n, errors.Wrap(err, "marking notifications read")
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, scope policy.Filter, id string) error {
	n, err := run(ctx, repo.db, psql.Delete("notifications").Where(tenantEq("tenant_id", scope)).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}
