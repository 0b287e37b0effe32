package notice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/tenant"
)

var ErrNotFound = core.NewNotFoundError("notice")

type Repository interface {
	CreateNotice(ctx context.Context, n Notice, exec ...core.DBExecutor) (Notice, error)
	GetNotice(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (Notice, error)
	// QueryNotices orders pinned notices first, then urgent ones, then the newest.
	QueryNotices(ctx context.Context, scope policy.Filter, filter Filter, page core.Pagination) ([]Notice, int, error)
	UpdateNotice(ctx context.Context, n Notice, exec ...core.DBExecutor) (Notice, error)
	FindNoticeIDs(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]string, error)
	DeleteNotices(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) (int, error)
}

type Service struct {
	repo Repository
	tx   core.Transactor
}

func NewService(repo Repository, tx core.Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

// notices are tenant-wide: only the tenant part of the scope applies
func scopeOf(p policy.Principal) policy.Filter {
	return policy.Tenant(policy.Scope(p).TenantID)
}

func seesAll(p policy.Principal) bool {
	return p.IsSuperAdmin() || p.Role == tenant.RoleAdmin
}

func (svc *Service) visible(p policy.Principal, n Notice, now time.Time) bool {
	if seesAll(p) || n.AuthorID == p.UserID {
		return true
	}
	return n.StateAt(now) == StateLive && n.Targets(p.Role)
}

func checkWindow(publishAt time.Time, expiresAt null.Time) error {
	if expiresAt.Valid && !expiresAt.Time.After(publishAt) {
		return core.NewValidationError(nil, core.FieldError{Field: "expires_at", Error: "expires_at must be after publish_at"})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, p policy.Principal, nn NewNotice) (Notice, error) {
	if err := policy.Authorize(p, policy.NoticesCreate, policy.Context{Urgent: nn.IsUrgent, Pinned: nn.IsPinned}); err != nil {
		return Notice{}, err
	}
	tenantID, err := p.WriteTenant()
	if err != nil {
		return Notice{}, err
	}

	now := core.NowFunc()
	n := Notice{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Title:       nn.Title,
		Body:        nn.Body,
		TargetRoles: rolesArray(nn.TargetRoles),
		PublishAt:   now,
		IsUrgent:    nn.IsUrgent,
		IsPinned:    nn.IsPinned,
		AuthorID:    p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nn.PublishAt != nil {
		n.PublishAt = nn.PublishAt.UTC()
	}
	if nn.ExpiresAt != nil {
		n.ExpiresAt = null.TimeFrom(nn.ExpiresAt.UTC())
	}
	if err = checkWindow(n.PublishAt, n.ExpiresAt); err != nil {
		return Notice{}, err
	}

	if n, err = svc.repo.CreateNotice(ctx, n); err != nil {
		return Notice{}, errors.Wrap(err, "creating notice")
	}
	n.State = n.StateAt(now)
	return n, nil
}

// Get returns a notice visible to p. Notices p may not see do not exist.
func (svc *Service) Get(ctx context.Context, p policy.Principal, id string) (Notice, error) {
	if err := policy.Authorize(p, policy.NoticesRead, policy.Context{}); err != nil {
		return Notice{}, err
	}
	n, err := svc.repo.GetNotice(ctx, scopeOf(p), id)
	if err != nil {
		return Notice{}, err
	}
	now := core.NowFunc()
	if !svc.visible(p, n, now) {
		return Notice{}, ErrNotFound
	}
	n.State = n.StateAt(now)
	return n, nil
}

func (svc *Service) Query(ctx context.Context, p policy.Principal, filter Filter, page core.Pagination) (core.Page[Notice], error) {
	if err := policy.Authorize(p, policy.NoticesRead, policy.Context{}); err != nil {
		return core.Page[Notice]{}, err
	}
	filter.Now = core.NowFunc()
	filter.Role, filter.AuthorID = "", ""
	if !seesAll(p) {
		filter.Role, filter.AuthorID = p.Role, p.UserID
	}
	notices, total, err := svc.repo.QueryNotices(ctx, scopeOf(p), filter, page)
	if err != nil {
		return core.Page[Notice]{}, errors.Wrap(err, "querying notices")
	}
	for i := range notices {
		notices[i].State = notices[i].StateAt(filter.Now)
	}
	return core.NewPage(notices, page, total), nil
}

// Update edits a notice. Teachers may only edit their own; raising a flag requires notices:flag.
func (svc *Service) Update(ctx context.Context, p policy.Principal, id string, un UpdateNotice) (Notice, error) {
	n, err := svc.Get(ctx, p, id)
	if err != nil {
		return Notice{}, err
	}
	err = policy.Authorize(p, policy.NoticesUpdate, policy.Context{
		ResourceTenantID: n.TenantID,
		Resource:         "notice",
		Owned:            policy.Owned(n.AuthorID == p.UserID),
		Urgent:           un.IsUrgent != nil && *un.IsUrgent != n.IsUrgent,
		Pinned:           un.IsPinned != nil && *un.IsPinned != n.IsPinned,
	})
	if err != nil {
		return Notice{}, err
	}

	if un.Title != nil {
		n.Title = *un.Title
	}
	if un.Body != nil {
		n.Body = *un.Body
	}
	if un.TargetRoles != nil {
		n.TargetRoles = rolesArray(un.TargetRoles)
	}
	if un.PublishAt != nil {
		n.PublishAt = un.PublishAt.UTC()
	}
	if un.ExpiresAt != nil {
		n.ExpiresAt = null.TimeFrom(un.ExpiresAt.UTC())
	}
	if un.IsUrgent != nil {
		n.IsUrgent = *un.IsUrgent
	}
	if un.IsPinned != nil {
		n.IsPinned = *un.IsPinned
	}
	if err = checkWindow(n.PublishAt, n.ExpiresAt); err != nil {
		return Notice{}, err
	}

	now := core.NowFunc()
	n.UpdatedAt = now
	if n, err = svc.repo.UpdateNotice(ctx, n); err != nil {
		return Notice{}, errors.Wrap(err, "updating notice")
	}
	n.State = n.StateAt(now)
	return n, nil
}

func (svc *Service) Delete(ctx context.Context, p policy.Principal, id string) error {
	if err := policy.Authorize(p, policy.NoticesDelete, policy.Context{}); err != nil {
		return err
	}
	n, err := svc.repo.GetNotice(ctx, scopeOf(p), id)
	if err != nil {
		return err
	}
	_, err = svc.repo.DeleteNotices(ctx, policy.Tenant(n.TenantID), []string{n.ID})
	return errors.Wrap(err, "deleting notice")
}

// BulkDelete hard-deletes notices. Every id must exist in scope.
func (svc *Service) BulkDelete(ctx context.Context, p policy.Principal, ids []string) (core.BulkResult, error) {
	if err := policy.Authorize(p, policy.NoticesDelete, policy.Context{}); err != nil {
		return core.BulkResult{}, err
	}
	if err := policy.Authorize(p, policy.DataBulkDelete, policy.Context{}); err != nil {
		return core.BulkResult{}, err
	}
	ids = core.UniqueStrings(ids)
	scope := scopeOf(p)

	var res core.BulkResult
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		found, err := svc.repo.FindNoticeIDs(ctx, scope, ids, exec)
		if err != nil {
			return errors.Wrap(err, "finding notices")
		}
		if len(found) < len(ids) {
			in := make(map[string]bool, len(found))
			for _, id := range found {
				in[id] = true
			}
			var missing []string
			for _, id := range ids {
				if !in[id] {
					missing = append(missing, id)
				}
			}
			return core.NewNotFoundError("notice", missing...)
		}
		res.Affected, err = svc.repo.DeleteNotices(ctx, scope, ids, exec)
		return errors.Wrap(err, "deleting notices")
	})
	return res, err
}
