package inmemdb

import (
	"context"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/tenant"
)

type tenantRepository struct {
	db *DB
}

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) CreateTenant(_ context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	defer repo.db.lockWrite(exec...)()

	for _, other := range repo.db.tenants {
		if other.Slug == t.Slug {
			return tenant.Tenant{}, core.NewValidationError(tenant.ErrSlugExists, core.FieldError{Field: "slug", Error: tenant.ErrSlugExists.Error()})
		}
	}
	repo.db.tenants[t.ID] = t
	return t, nil
}

func (repo *tenantRepository) GetTenantByID(_ context.Context, id string, _ ...core.DBExecutor) (tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.tenants[id]; ok {
		return t, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) GetTenantBySlug(_ context.Context, slug string, _ ...core.DBExecutor) (tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) QueryTenants(
	_ context.Context,
	filter tenant.TenantFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) ([]tenant.Tenant, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []tenant.Tenant
	for _, t := range repo.db.tenants {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !containsFold(t.Name, filter.Search) && !containsFold(t.Slug, filter.Search) {
			continue
		}
		rows = append(rows, t)
	}
	sortRows(rows, ords, func(t tenant.Tenant, col string) interface{} {
		switch col {
		case "name":
			return t.Name
		case "slug":
			return t.Slug
		case "status":
			return string(t.Status)
		}
		return t.CreatedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *tenantRepository) UpdateTenant(_ context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	defer repo.db.lockWrite(exec...)()

	if _, ok := repo.db.tenants[t.ID]; !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	repo.db.tenants[t.ID] = t
	return t, nil
}

func (repo *tenantRepository) ActivatePendingTenants(_ context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	defer repo.db.lockWrite(exec...)()

	n := 0
	for _, m := range repo.db.memberships {
		if m.UserID != userID || m.Role != tenant.RoleAdmin || !m.IsActive() {
			continue
		}
		t, ok := repo.db.tenants[m.TenantID]
		if !ok || t.Status != tenant.StatusPending {
			continue
		}
		t.Status = tenant.StatusActive
		t.UpdatedAt = core.NowFunc()
		repo.db.tenants[t.ID] = t
		n++
	}
	return n, nil
}

func (repo *tenantRepository) CreateMembership(_ context.Context, m tenant.Membership, exec ...core.DBExecutor) (tenant.Membership, error) {
	defer repo.db.lockWrite(exec...)()

	for _, other := range repo.db.memberships {
		if other.UserID == m.UserID && other.TenantID == m.TenantID {
			return tenant.Membership{}, core.NewInvariantError(core.ReasonDuplicateAction, "membership already exists", nil)
		}
	}
	repo.db.memberships[m.ID] = m
	return m, nil
}

func (repo *tenantRepository) UpdateMembership(_ context.Context, m tenant.Membership, exec ...core.DBExecutor) (tenant.Membership, error) {
	defer repo.db.lockWrite(exec...)()

	if _, ok := repo.db.memberships[m.ID]; !ok {
		return tenant.Membership{}, tenant.ErrMemberNotFound
	}
	repo.db.memberships[m.ID] = m
	return m, nil
}

// member joins a membership with its user and tenant. The caller holds the lock.
func (repo *tenantRepository) member(m tenant.Membership) tenant.Member {
	usr := repo.db.users[m.UserID]
	t := repo.db.tenants[m.TenantID]
	return tenant.Member{
		Membership:   m,
		Name:         usr.Name,
		Email:        usr.Email,
		UserStatus:   usr.Status,
		TenantName:   t.Name,
		TenantSlug:   t.Slug,
		TenantStatus: t.Status,
	}
}

func (repo *tenantRepository) GetMember(_ context.Context, tenantID, id string, _ ...core.DBExecutor) (tenant.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	m, ok := repo.db.memberships[id]
	if !ok || !inTenant(tenantID, m.TenantID) {
		return tenant.Member{}, tenant.ErrMemberNotFound
	}
	return repo.member(m), nil
}

func (repo *tenantRepository) GetMemberByUser(_ context.Context, tenantID, userID string, _ ...core.DBExecutor) (tenant.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, m := range repo.db.memberships {
		if m.TenantID == tenantID && m.UserID == userID {
			return repo.member(m), nil
		}
	}
	return tenant.Member{}, tenant.ErrMemberNotFound
}

func (repo *tenantRepository) QueryMembers(
	_ context.Context,
	filter tenant.MemberFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) ([]tenant.Member, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	userIDs := idSet(filter.UserIDs)
	var rows []tenant.Member
	for _, m := range repo.db.memberships {
		if !inTenant(filter.TenantID, m.TenantID) {
			continue
		}
		if len(filter.UserIDs) > 0 && !userIDs[m.UserID] {
			continue
		}
		if len(filter.Roles) > 0 && !hasRole(filter.Roles, m.Role) {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		mbr := repo.member(m)
		if filter.Search != "" && !containsFold(mbr.Name, filter.Search) && !containsFold(mbr.Email, filter.Search) {
			continue
		}
		rows = append(rows, mbr)
	}
	sortRows(rows, ords, func(m tenant.Member, col string) interface{} {
		switch col {
		case "user_name":
			return m.Name
		case "user_email":
			return m.Email
		case "role":
			return string(m.Role)
		case "status":
			return string(m.Status)
		}
		return m.CreatedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *tenantRepository) ListUserMembers(_ context.Context, userID string, _ ...core.DBExecutor) ([]tenant.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []tenant.Member
	for _, m := range repo.db.memberships {
		if m.UserID == userID {
			rows = append(rows, repo.member(m))
		}
	}
	sortRows(rows, []core.DBOrdering{{Field: "created_at", Ascending: true}}, func(m tenant.Member, _ string) interface{} {
		return m.CreatedAt
	})
	return rows, nil
}

func hasRole(roles []tenant.Role, role tenant.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
