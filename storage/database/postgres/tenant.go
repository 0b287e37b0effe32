package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/tenant"
)

type tenantRepository struct {
	repository
}

func NewTenantRepository(db *sqlx.DB) tenant.Repository {
	return &tenantRepository{repository{db: db}}
}

var (
	tenantColumns = []string{"id", "name", "slug", "status", "created_at", "updated_at"}

	memberQuery = psql.Select(
		"m.id", "m.user_id", "m.tenant_id", "m.role", "m.permissions", "m.status", "m.created_at", "m.updated_at",
		"u.name AS user_name", "u.email AS user_email", "u.status AS user_status",
		"t.name AS tenant_name", "t.slug AS tenant_slug", "t.status AS tenant_status",
	).
		From("memberships m").
		Join("users u ON u.id = m.user_id").
		Join("tenants t ON t.id = m.tenant_id")
)

func (repo *tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("tenants").Columns(tenantColumns...).
		Values(t.ID, t.Name, t.Slug, t.Status, t.CreatedAt, t.UpdatedAt))
	if isUniqueViolation(err, "tenants_slug_key") {
		return tenant.Tenant{}, core.NewValidationError(tenant.ErrSlugExists, core.FieldError{Field: "slug", Error: tenant.ErrSlugExists.Error()})
	}
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "inserting tenant")
	}
	return t, nil
}

func (repo *tenantRepository) getBy(ctx context.Context, pred sq.Sqlizer, exec []core.DBExecutor) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := get(ctx, repo.exec(exec), &t, psql.Select(tenantColumns...).From("tenants").Where(pred))
	if isNoRows(err) {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return t, errors.Wrap(err, "selecting tenant")
}

func (repo *tenantRepository) GetTenantByID(ctx context.Context, id string, exec ...core.DBExecutor) (tenant.Tenant, error) {
	return repo.getBy(ctx, sq.Eq{"id": id}, exec)
}

func (repo *tenantRepository) GetTenantBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (tenant.Tenant, error) {
	return repo.getBy(ctx, sq.Eq{"slug": slug}, exec)
}

func (repo *tenantRepository) QueryTenants(
	ctx context.Context,
	filter tenant.TenantFilter,
	ords []core.DBOrdering,
	pg core.Pagination,
) ([]tenant.Tenant, int, error) {
	q := psql.Select(tenantColumns...).From("tenants")
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"name": like}, sq.ILike{"slug": like}})
	}
	var rows []tenant.Tenant
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting tenants")
}

func (repo *tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("tenants").
		SetMap(map[string]interface{}{"name": t.Name, "status": t.Status, "updated_at": t.UpdatedAt}).
		Where(sq.Eq{"id": t.ID}))
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "updating tenant")
	}
	if n == 0 {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return t, nil
}

func (repo *tenantRepository) ActivatePendingTenants(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("tenants").
		Set("status", tenant.StatusActive).
		Set("updated_at", core.NowFunc()).
		Where(sq.Eq{"status": tenant.StatusPending}).
		Where(sq.Expr(
			"id IN (SELECT tenant_id FROM memberships WHERE user_id = ? AND role = ? AND status = ?)",
			userID, tenant.RoleAdmin, tenant.MembershipActive,
		)))
	return n, errors.Wrap(err, "activating tenants")
}

func (repo *tenantRepository) CreateMembership(ctx context.Context, m tenant.Membership, exec ...core.DBExecutor) (tenant.Membership, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("memberships").
		Columns("id", "user_id", "tenant_id", "role", "permissions", "status", "created_at", "updated_at").
		Values(m.ID, m.UserID, m.TenantID, m.Role, m.Permissions, m.Status, m.CreatedAt, m.UpdatedAt))
	if isUniqueViolation(err, "") {
		return tenant.Membership{}, core.NewInvariantError(core.ReasonDuplicateAction, "membership already exists", nil)
	}
	if err != nil {
		return tenant.Membership{}, errors.Wrap(err, "inserting membership")
	}
	return m, nil
}

func (repo *tenantRepository) UpdateMembership(ctx context.Context, m tenant.Membership, exec ...core.DBExecutor) (tenant.Membership, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("memberships").
		SetMap(map[string]interface{}{
			"role":        m.Role,
			"permissions": m.Permissions,
			"status":      m.Status,
			"updated_at":  m.UpdatedAt,
		}).
		Where(sq.Eq{"id": m.ID}))
	if err != nil {
		return tenant.Membership{}, errors.Wrap(err, "updating membership")
	}
	if n == 0 {
		return tenant.Membership{}, tenant.ErrMemberNotFound
	}
	return m, nil
}

func (repo *tenantRepository) getMember(ctx context.Context, pred sq.Sqlizer, exec []core.DBExecutor) (tenant.Member, error) {
	var m tenant.Member
	err := get(ctx, repo.exec(exec), &m, memberQuery.Where(pred))
	if isNoRows(err) {
		return tenant.Member{}, tenant.ErrMemberNotFound
	}
	return m, errors.Wrap(err, "selecting member")
}

func (repo *tenantRepository) GetMember(ctx context.Context, tenantID, id string, exec ...core.DBExecutor) (tenant.Member, error) {
	pred := sq.And{sq.Eq{"m.id": id}}
	if tenantID != "" {
		pred = append(pred, sq.Eq{"m.tenant_id": tenantID})
	}
	return repo.getMember(ctx, pred, exec)
}

func (repo *tenantRepository) GetMemberByUser(ctx context.Context, tenantID, userID string, exec ...core.DBExecutor) (tenant.Member, error) {
	return repo.getMember(ctx, sq.Eq{"m.tenant_id": tenantID, "m.user_id": userID}, exec)
}

func (repo *tenantRepository) QueryMembers(
	ctx context.Context,
	filter tenant.MemberFilter,
	ords []core.DBOrdering,
	pg core.Pagination,
) ([]tenant.Member, int, error) {
	q := memberQuery
	if filter.TenantID != "" {
		q = q.Where(sq.Eq{"m.tenant_id": filter.TenantID})
	}
	if len(filter.UserIDs) > 0 {
		q = q.Where(anyOf("m.user_id", filter.UserIDs))
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, len(filter.Roles))
		for i, r := range filter.Roles {
			roles[i] = string(r)
		}
		q = q.Where(sq.Eq{"m.role": roles})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"m.status": filter.Status})
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"u.name": like}, sq.ILike{"u.email": like}})
	}
	var rows []tenant.Member
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting members")
}

func (repo *tenantRepository) ListUserMembers(ctx context.Context, userID string, exec ...core.DBExecutor) ([]tenant.Member, error) {
	var rows []tenant.Member
	err := sel(ctx, repo.exec(exec), &rows, memberQuery.Where(sq.Eq{"m.user_id": userID}).OrderBy("m.created_at ASC"))
	return rows, errors.Wrap(err, "selecting user members")
}
