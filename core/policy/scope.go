package policy

import (
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/auth"
	"github.com/trezcool/darasa/core/tenant"
)

// Principal is the authenticated actor of a request: the session claims plus the school
// profiles the user owns in the session's tenant.
type Principal struct {
	auth.Claims
	TeacherID  string   // teacher profile of a TEACHER
	StudentIDs []string // own student profile (STUDENT) or linked children (PARENT)
	// TargetTenantID is the tenant a SUPERADMIN acts on (empty: all tenants).
	TargetTenantID string
}

// EffectiveTenant is the tenant the principal's actions apply to.
func (p Principal) EffectiveTenant() string {
	if p.IsSuperAdmin() {
		return p.TargetTenantID
	}
	return p.TenantID
}

// WriteTenant is the tenant new rows of p are created in.
// A SUPERADMIN must name one with tenant_id.
func (p Principal) WriteTenant() (string, error) {
	if tid := p.EffectiveTenant(); tid != "" {
		return tid, nil
	}
	return "", core.NewValidationError(nil, core.FieldError{Field: "tenant_id", Error: "this field is required"})
}

// OwnsStudent reports whether id is one of the principal's own student profiles.
func (p Principal) OwnsStudent(id string) bool {
	for _, sid := range p.StudentIDs {
		if sid == id {
			return true
		}
	}
	return false
}

// On builds the policy context of a specific resource.
func On(resource, tenantID string, owned *bool) Context {
	return Context{ResourceTenantID: tenantID, Resource: resource, Owned: owned}
}

type Narrowing int

const (
	NarrowNone Narrowing = iota
	// NarrowTeacher keeps rows hanging off the teacher's own classes and lessons.
	NarrowTeacher
	// NarrowStudents keeps rows linked to the given student profiles.
	NarrowStudents
)

// Filter is the base predicate every tenant-owned query applies.
// An empty TenantID only happens for SUPERADMIN and means every tenant.
type Filter struct {
	TenantID   string
	Narrowing  Narrowing
	TeacherID  string
	StudentIDs []string
}

// ScopeQuery conjoins the principal's tenant (unless SUPERADMIN) and ownership narrowing onto base.
func ScopeQuery(base Filter, p Principal) Filter {
	out := base
	if p.IsSuperAdmin() {
		if out.TenantID == "" {
			out.TenantID = p.TargetTenantID
		}
		return out
	}

	out.TenantID = p.TenantID
	switch p.Role {
	case tenant.RoleTeacher:
		out.Narrowing = NarrowTeacher
		out.TeacherID = p.TeacherID
		out.StudentIDs = nil
	case tenant.RoleStudent, tenant.RoleParent:
		out.Narrowing = NarrowStudents
		out.TeacherID = ""
		out.StudentIDs = append([]string{}, p.StudentIDs...)
	case tenant.RoleAdmin:
		// tenant-wide
	default:
		// unknown roles see nothing
		out.Narrowing = NarrowStudents
		out.StudentIDs = []string{}
	}
	return out
}

// Scope is ScopeQuery over an empty base filter.
func Scope(p Principal) Filter {
	return ScopeQuery(Filter{}, p)
}

// Tenant returns an unnarrowed filter on one tenant, used by system tasks.
func Tenant(tenantID string) Filter {
	return Filter{TenantID: tenantID}
}
