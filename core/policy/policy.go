// Package policy decides who may do what. CanPerform is a pure decision over
// (role, action, context); ScopeQuery derives the tenant/ownership filter every query applies.
package policy

import (
	"sort"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/tenant"
)

type Action string

// Actions
const (
	TenantsRead   Action = "tenants:read"
	TenantsManage Action = "tenants:manage"
	MembersRead   Action = "members:read"
	MembersManage Action = "members:manage"

	StudentsRead  Action = "students:read"
	StudentsWrite Action = "students:write"
	TeachersRead  Action = "teachers:read"
	TeachersWrite Action = "teachers:write"
	ClassesRead   Action = "classes:read"
	ClassesWrite  Action = "classes:write"
	ClassesEnroll Action = "classes:enroll"
	LessonsRead   Action = "lessons:read"
	LessonsWrite  Action = "lessons:write"

	AttendanceRead   Action = "attendance:read"
	AttendanceRecord Action = "attendance:record"

	PaymentsRead  Action = "payments:read"
	PaymentsWrite Action = "payments:write"

	NoticesRead   Action = "notices:read"
	NoticesCreate Action = "notices:create"
	NoticesUpdate Action = "notices:update"
	NoticesDelete Action = "notices:delete"
	// NoticesFlag covers marking a notice urgent or pinned.
	NoticesFlag Action = "notices:flag"

	NotificationsRead   Action = "notifications:read"
	NotificationsSend   Action = "notifications:send"
	NotificationsUpdate Action = "notifications:update"
	NotificationsDelete Action = "notifications:delete"

	StatsRead      Action = "stats:read"
	ReportsRead    Action = "reports:read"
	DataExport     Action = "data:export"
	DataBulkDelete Action = "data:bulk_delete"
)

// platformActions are reserved to SUPERADMIN and cannot be granted by overrides.
var platformActions = map[Action]bool{TenantsRead: true, TenantsManage: true}

type rule int

const (
	deny rule = iota
	allow
	// ownOnly allows collection-level checks and resources the actor owns.
	ownOnly
)

var matrix = map[tenant.Role]map[Action]rule{
	tenant.RoleAdmin: {
		MembersRead: allow, MembersManage: allow,
		StudentsRead: allow, StudentsWrite: allow,
		TeachersRead: allow, TeachersWrite: allow,
		ClassesRead: allow, ClassesWrite: allow, ClassesEnroll: allow,
		LessonsRead: allow, LessonsWrite: allow,
		AttendanceRead: allow, AttendanceRecord: allow,
		PaymentsRead: allow, PaymentsWrite: allow,
		NoticesRead: allow, NoticesCreate: allow, NoticesUpdate: allow, NoticesDelete: allow, NoticesFlag: allow,
		NotificationsRead: allow, NotificationsSend: allow, NotificationsUpdate: allow, NotificationsDelete: allow,
		StatsRead: allow, ReportsRead: allow, DataExport: allow, DataBulkDelete: allow,
	},
	tenant.RoleTeacher: {
		StudentsRead: ownOnly, TeachersRead: allow,
		ClassesRead: ownOnly, LessonsRead: ownOnly, LessonsWrite: ownOnly,
		AttendanceRead: ownOnly, AttendanceRecord: ownOnly,
		NoticesRead: allow, NoticesCreate: allow, NoticesUpdate: ownOnly,
		NotificationsRead: allow, NotificationsSend: allow, NotificationsUpdate: ownOnly,
		StatsRead: allow,
	},
	tenant.RoleStudent: readOwn(),
	tenant.RoleParent:  readOwn(),
}

func readOwn() map[Action]rule {
	return map[Action]rule{
		StudentsRead: ownOnly, ClassesRead: ownOnly, LessonsRead: ownOnly,
		AttendanceRead: ownOnly, PaymentsRead: ownOnly,
		NoticesRead: allow, NotificationsRead: allow, NotificationsUpdate: ownOnly,
		StatsRead: allow,
	}
}

// Context describes the resource an action targets.
type Context struct {
	ActorTenantID    string
	ResourceTenantID string // empty for collection-level checks
	Resource         string // resource name, used in not-found errors
	// Owned is nil for collection-level checks, where ownership is enforced by the scoping filter.
	Owned     *bool
	Urgent    bool
	Pinned    bool
	Overrides tenant.Permissions
}

func Owned(b bool) *bool { return &b }

// CrossTenant reports whether the context targets a resource of another tenant.
func (c Context) CrossTenant() bool {
	return c.ResourceTenantID != "" && c.ResourceTenantID != c.ActorTenantID
}

// CanPerform decides whether role may perform action in ctx.
// SUPERADMIN may do anything. Everyone else is confined to their tenant; membership overrides
// grant or revoke a role-level capability but never lift the tenant boundary.
func CanPerform(role tenant.Role, action Action, ctx Context) bool {
	if role == tenant.RoleSuperAdmin {
		return true
	}
	if ctx.CrossTenant() {
		return false
	}
	if (action == NoticesCreate || action == NoticesUpdate) && (ctx.Urgent || ctx.Pinned) {
		if !decide(role, NoticesFlag, ctx) {
			return false
		}
	}
	return decide(role, action, ctx)
}

func decide(role tenant.Role, action Action, ctx Context) bool {
	if granted, ok := ctx.Overrides[string(action)]; ok && !platformActions[action] {
		return granted
	}
	switch matrix[role][action] {
	case allow:
		return true
	case ownOnly:
		return ctx.Owned == nil || *ctx.Owned
	default:
		return false
	}
}

// Authorize wraps CanPerform for a principal. A cross-tenant denial surfaces as a NotFoundError
// so resource existence does not leak; any other denial is core.ErrForbidden.
func Authorize(p Principal, action Action, ctx Context) error {
	ctx.ActorTenantID = p.TenantID
	ctx.Overrides = p.Permissions
	if p.IsSuperAdmin() {
		return nil
	}
	if ctx.CrossTenant() {
		resource := ctx.Resource
		if resource == "" {
			resource = "resource"
		}
		return core.NewNotFoundError(resource)
	}
	if !CanPerform(p.Role, action, ctx) {
		return core.ErrForbidden
	}
	return nil
}

// Can is Authorize without the error: a collection-level check for p.
func Can(p Principal, action Action) bool {
	return Authorize(p, action, Context{}) == nil
}

// Actions lists every known action, sorted.
func Actions() []Action {
	seen := make(map[Action]bool)
	for _, rules := range matrix {
		for a := range rules {
			seen[a] = true
		}
	}
	for a := range platformActions {
		seen[a] = true
	}
	out := make([]Action, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateOverrides rejects permission overrides naming unknown actions
// or tenant-level actions that no membership may be granted.
func ValidateOverrides(perms tenant.Permissions) error {
	known := make(map[string]bool)
	for _, a := range Actions() {
		known[string(a)] = true
	}
	for key := range perms {
		if !known[key] || platformActions[Action(key)] {
			return core.NewValidationError(nil, core.FieldError{Field: "permissions", Error: "unknown permission: " + key})
		}
	}
	return nil
}
