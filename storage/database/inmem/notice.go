package inmemdb

import (
	"context"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notice"
	"github.com/trezcool/darasa/core/policy"
)

type noticeRepository struct {
	db *DB
}

func NewNoticeRepository(db *DB) notice.Repository {
	return &noticeRepository{db: db}
}

func matchNotice(filter notice.Filter, n notice.Notice) bool {
	if filter.Role != "" || filter.AuthorID != "" {
		live := n.StateAt(filter.Now) == notice.StateLive && n.Targets(filter.Role)
		if !live && n.AuthorID != filter.AuthorID {
			return false
		}
	}
	if filter.State != "" && n.StateAt(filter.Now) != filter.State {
		return false
	}
	return filter.Search == "" || containsFold(n.Title, filter.Search) || containsFold(n.Body, filter.Search)
}

func (repo *noticeRepository) CreateNotice(_ context.Context, n notice.Notice, exec ...core.DBExecutor) (notice.Notice, error) {
	defer repo.db.lockWrite(exec...)()

	repo.db.notices[n.ID] = n
	return n, nil
}

func (repo *noticeRepository) GetNotice(_ context.Context, scope policy.Filter, id string, _ ...core.DBExecutor) (notice.Notice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	n, ok := repo.db.notices[id]
	if !ok || !inTenant(scope.TenantID, n.TenantID) {
		return notice.Notice{}, notice.ErrNotFound
	}
	return n, nil
}

func (repo *noticeRepository) QueryNotices(
	_ context.Context,
	scope policy.Filter,
	filter notice.Filter,
	page core.Pagination,
) ([]notice.Notice, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.Now.IsZero() {
		filter.Now = core.NowFunc()
	}
	var rows []notice.Notice
	for _, n := range repo.db.notices {
		if inTenant(scope.TenantID, n.TenantID) && matchNotice(filter, n) {
			rows = append(rows, n)
		}
	}
	ords := []core.DBOrdering{
		{Field: "is_pinned"},
		{Field: "is_urgent"},
		{Field: "publish_at"},
	}
	sortRows(rows, ords, func(n notice.Notice, col string) interface{} {
		switch col {
		case "is_pinned":
			return n.IsPinned
		case "is_urgent":
			return n.IsUrgent
		}
		return n.PublishAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *noticeRepository) UpdateNotice(_ context.Context, n notice.Notice, exec ...core.DBExecutor) (notice.Notice, error) {
	defer repo.db.lockWrite(exec...)()

	if _, ok := repo.db.notices[n.ID]; !ok {
		return notice.Notice{}, notice.ErrNotFound
	}
	n.State = ""
	repo.db.notices[n.ID] = n
	return n, nil
}

func (repo *noticeRepository) FindNoticeIDs(_ context.Context, scope policy.Filter, ids []string, _ ...core.DBExecutor) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var found []string
	for _, id := range ids {
		if n, ok := repo.db.notices[id]; ok && inTenant(scope.TenantID, n.TenantID) {
			found = append(found, id)
		}
	}
	return found, nil
}

func (repo *noticeRepository) DeleteNotices(_ context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) (int, error) {
	defer repo.db.lockWrite(exec...)()

	n := 0
	for _, id := range ids {
		if nt, ok := repo.db.notices[id]; ok && inTenant(scope.TenantID, nt.TenantID) {
			delete(repo.db.notices, id)
			n++
		}
	}
	return n, nil
}
