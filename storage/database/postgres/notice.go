package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notice"
	"github.com/trezcool/darasa/core/policy"
)

type noticeRepository struct {
	repository
}

func NewNoticeRepository(db *sqlx.DB) notice.Repository {
	return &noticeRepository{repository{db: db}}
}

var noticeQuery = psql.Select(
	"n.id", "n.tenant_id", "n.title", "n.body", "n.target_roles", "n.publish_at", "n.expires_at",
	"n.is_urgent", "n.is_pinned", "n.author_id", "n.created_at", "n.updated_at",
).From("notices n")

func liveAt(filter notice.Filter) sq.Sqlizer {
	return sq.And{
		sq.LtOrEq{"n.publish_at": filter.Now},
		sq.Or{sq.Eq{"n.expires_at": nil}, sq.Gt{"n.expires_at": filter.Now}},
	}
}

func (repo *noticeRepository) CreateNotice(ctx context.Context, n notice.Notice, exec ...core.DBExecutor) (notice.Notice, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("notices").
		Columns("id", "tenant_id", "title", "body", "target_roles", "publish_at", "expires_at", "is_urgent", "is_pinned", "author_id", "created_at", "updated_at").
		Values(n.ID, n.TenantID, n.Title, n.Body, n.TargetRoles, n.PublishAt, n.ExpiresAt, n.IsUrgent, n.IsPinned, n.AuthorID, n.CreatedAt, n.UpdatedAt))
	return n, errors.Wrap(err, "inserting notice")
}

func (repo *noticeRepository) GetNotice(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (notice.Notice, error) {
	var n notice.Notice
	err := get(ctx, repo.exec(exec), &n, noticeQuery.Where(tenantEq("n.tenant_id", scope)).Where(sq.Eq{"n.id": id}))
	if isNoRows(err) {
		return notice.Notice{}, notice.ErrNotFound
	}
	return n, errors.Wrap(err, "selecting notice")
}

func (repo *noticeRepository) QueryNotices(
	ctx context.Context,
	scope policy.Filter,
	filter notice.Filter,
	pg core.Pagination,
) ([]notice.Notice, int, error) {
	if filter.Now.IsZero() {
		filter.Now = core.NowFunc()
	}
	q := noticeQuery.Where(tenantEq("n.tenant_id", scope))
	if filter.Role != "" || filter.AuthorID != "" {
		q = q.Where(sq.Or{
			sq.And{liveAt(filter), sq.Expr("? = ANY(n.target_roles)", string(filter.Role))},
			sq.Eq{"n.author_id": filter.AuthorID},
		})
	}
	switch filter.State {
	case notice.StateScheduled:
		q = q.Where(sq.Gt{"n.publish_at": filter.Now})
	case notice.StateLive:
		q = q.Where(liveAt(filter))
	case notice.StateExpired:
		q = q.Where(sq.LtOrEq{"n.publish_at": filter.Now}).Where(sq.LtOrEq{"n.expires_at": filter.Now})
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"n.title": like}, sq.ILike{"n.body": like}})
	}
	ords := []core.DBOrdering{{Field: "is_pinned"}, {Field: "is_urgent"}, {Field: "publish_at"}}
	var rows []notice.Notice
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting notices")
}

func (repo *noticeRepository) UpdateNotice(ctx context.Context, n notice.Notice, exec ...core.DBExecutor) (notice.Notice, error) {
	cnt, err := run(ctx, repo.exec(exec), psql.Update("notices").
		SetMap(map[string]interface{}{
			"title":        n.Title,
			"body":         n.Body,
			"target_roles": n.TargetRoles,
			"publish_at":   n.PublishAt,
			"expires_at":   n.ExpiresAt,
			"is_urgent":    n.IsUrgent,
			"is_pinned":    n.IsPinned,
			"updated_at":   n.UpdatedAt,
		}).
		Where(sq.Eq{"id": n.ID}))
	if err != nil {
		return notice.Notice{}, errors.Wrap(err, "updating notice")
	}
	if cnt == 0 {
		return notice.Notice{}, notice.ErrNotFound
	}
	return n, nil
}

func (repo *noticeRepository) FindNoticeIDs(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]string, error) {
	found, err := findIDs(ctx, repo.exec(exec), "notices", "n", tenantEq("n.tenant_id", scope), ids)
	return found, errors.Wrap(err, "finding notices")
}

func (repo *noticeRepository) DeleteNotices(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) (int, error) {
	n, err := run(ctx, repo.exec(exec), psql.Delete("notices n").Where(tenantEq("n.tenant_id", scope)).Where(anyOf("n.id", ids)))
	return n, errors.Wrap(err, "deleting notices")
}
