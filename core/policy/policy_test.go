package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/auth"
	"github.com/trezcool/darasa/core/tenant"
)

const (
	tenantA = "0b0f1f5e-5a38-4f52-8d69-0a3c39f3f0aa"
	tenantB = "0b0f1f5e-5a38-4f52-8d69-0a3c39f3f0bb"
)

func principal(role tenant.Role, perms ...tenant.Permissions) Principal {
	p := Principal{Claims: auth.Claims{UserID: "u-" + string(role), Role: role, TenantID: tenantA}}
	if len(perms) > 0 {
		p.Permissions = perms[0]
	}
	return p
}

func TestCanPerform(t *testing.T) {
	same := Context{ActorTenantID: tenantA, ResourceTenantID: tenantA}
	other := Context{ActorTenantID: tenantA, ResourceTenantID: tenantB}
	collection := Context{ActorTenantID: tenantA}
	owned := Context{ActorTenantID: tenantA, ResourceTenantID: tenantA, Owned: Owned(true)}
	notOwned := Context{ActorTenantID: tenantA, ResourceTenantID: tenantA, Owned: Owned(false)}
	urgent := Context{ActorTenantID: tenantA, Urgent: true}
	pinned := Context{ActorTenantID: tenantA, Pinned: true}

	tests := []struct {
		name   string
		role   tenant.Role
		action Action
		ctx    Context
		want   bool
	}{
		// SUPERADMIN
		{name: "superadmin reads tenants", role: tenant.RoleSuperAdmin, action: TenantsRead, ctx: collection, want: true},
		{name: "superadmin crosses tenants", role: tenant.RoleSuperAdmin, action: StudentsWrite, ctx: other, want: true},
		{name: "superadmin ignores revoking overrides", role: tenant.RoleSuperAdmin, action: DataExport,
			ctx: Context{Overrides: tenant.Permissions{string(DataExport): false}}, want: true},

		// ADMIN
		{name: "admin exports", role: tenant.RoleAdmin, action: DataExport, ctx: collection, want: true},
		{name: "admin bulk deletes", role: tenant.RoleAdmin, action: DataBulkDelete, ctx: collection, want: true},
		{name: "admin urgent notice", role: tenant.RoleAdmin, action: NoticesCreate, ctx: urgent, want: true},
		{name: "admin pinned notice", role: tenant.RoleAdmin, action: NoticesCreate, ctx: pinned, want: true},
		{name: "admin cannot read tenants", role: tenant.RoleAdmin, action: TenantsRead, ctx: collection},
		{name: "admin other tenant", role: tenant.RoleAdmin, action: StudentsRead, ctx: other},

		// TEACHER
		{name: "teacher creates notice", role: tenant.RoleTeacher, action: NoticesCreate, ctx: collection, want: true},
		{name: "teacher urgent notice", role: tenant.RoleTeacher, action: NoticesCreate, ctx: urgent},
		{name: "teacher pinned notice", role: tenant.RoleTeacher, action: NoticesCreate, ctx: pinned},
		{name: "teacher updates own notice", role: tenant.RoleTeacher, action: NoticesUpdate, ctx: owned, want: true},
		{name: "teacher updates other notice", role: tenant.RoleTeacher, action: NoticesUpdate, ctx: notOwned},
		{name: "teacher records own lesson", role: tenant.RoleTeacher, action: AttendanceRecord, ctx: owned, want: true},
		{name: "teacher records other lesson", role: tenant.RoleTeacher, action: AttendanceRecord, ctx: notOwned},
		{name: "teacher sends message", role: tenant.RoleTeacher, action: NotificationsSend, ctx: collection, want: true},
		{name: "teacher cannot export", role: tenant.RoleTeacher, action: DataExport, ctx: collection},
		{name: "teacher cannot bulk delete", role: tenant.RoleTeacher, action: DataBulkDelete, ctx: collection},
		{name: "teacher cannot read payments", role: tenant.RoleTeacher, action: PaymentsRead, ctx: collection},
		{name: "teacher cannot enroll", role: tenant.RoleTeacher, action: ClassesEnroll, ctx: same},
		{name: "teacher other tenant", role: tenant.RoleTeacher, action: LessonsRead, ctx: other},

		// STUDENT / PARENT
		{name: "student reads own payments", role: tenant.RoleStudent, action: PaymentsRead, ctx: owned, want: true},
		{name: "student reads other payments", role: tenant.RoleStudent, action: PaymentsRead, ctx: notOwned},
		{name: "student writes students", role: tenant.RoleStudent, action: StudentsWrite, ctx: owned},
		{name: "student records attendance", role: tenant.RoleStudent, action: AttendanceRecord, ctx: owned},
		{name: "student dismisses own notification", role: tenant.RoleStudent, action: NotificationsUpdate, ctx: owned, want: true},
		{name: "parent reads own attendance", role: tenant.RoleParent, action: AttendanceRead, ctx: owned, want: true},
		{name: "parent creates notice", role: tenant.RoleParent, action: NoticesCreate, ctx: collection},
		{name: "parent sends message", role: tenant.RoleParent, action: NotificationsSend, ctx: collection},

		// overrides
		{name: "override grants export", role: tenant.RoleTeacher, action: DataExport,
			ctx: Context{ActorTenantID: tenantA, Overrides: tenant.Permissions{string(DataExport): true}}, want: true},
		{name: "override revokes export", role: tenant.RoleAdmin, action: DataExport,
			ctx: Context{ActorTenantID: tenantA, Overrides: tenant.Permissions{string(DataExport): false}}},
		{name: "override grants flags", role: tenant.RoleTeacher, action: NoticesCreate,
			ctx: Context{ActorTenantID: tenantA, Urgent: true, Overrides: tenant.Permissions{string(NoticesFlag): true}}, want: true},
		{name: "override never crosses tenants", role: tenant.RoleAdmin, action: StudentsRead,
			ctx: Context{ActorTenantID: tenantA, ResourceTenantID: tenantB, Overrides: tenant.Permissions{string(StudentsRead): true}}},
		{name: "override cannot grant tenants", role: tenant.RoleAdmin, action: TenantsManage,
			ctx: Context{ActorTenantID: tenantA, Overrides: tenant.Permissions{string(TenantsManage): true}}},

		{name: "unknown role", role: tenant.Role("JANITOR"), action: StudentsRead, ctx: collection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanPerform(tt.role, tt.action, tt.ctx))
		})
	}
}

func TestAuthorize(t *testing.T) {
	t.Run("cross tenant is not found", func(t *testing.T) {
		err := Authorize(principal(tenant.RoleAdmin), StudentsRead, On("student", tenantB, nil))
		require.Error(t, err)
		assert.True(t, core.IsNotFound(err))
		assert.Equal(t, "student not found", err.Error())
	})

	t.Run("role restriction is forbidden", func(t *testing.T) {
		err := Authorize(principal(tenant.RoleTeacher), NoticesCreate, Context{Urgent: true})
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("overrides come from the principal", func(t *testing.T) {
		p := principal(tenant.RoleTeacher, tenant.Permissions{string(DataExport): true})
		assert.NoError(t, Authorize(p, DataExport, Context{}))
		assert.True(t, Can(p, DataExport))
		assert.False(t, Can(principal(tenant.RoleTeacher), DataExport))
	})

	t.Run("superadmin", func(t *testing.T) {
		assert.NoError(t, Authorize(principal(tenant.RoleSuperAdmin), TenantsManage, On("tenant", tenantB, nil)))
	})
}

func TestValidateOverrides(t *testing.T) {
	assert.NoError(t, ValidateOverrides(nil))
	assert.NoError(t, ValidateOverrides(tenant.Permissions{string(DataExport): true, string(PaymentsRead): false}))
	assert.Error(t, ValidateOverrides(tenant.Permissions{"lol:rofl": true}))
	assert.Error(t, ValidateOverrides(tenant.Permissions{string(TenantsRead): true}))
}

func TestScopeQuery(t *testing.T) {
	teacher := principal(tenant.RoleTeacher)
	teacher.TeacherID = "t1"
	parent := principal(tenant.RoleParent)
	parent.StudentIDs = []string{"s1", "s2"}
	superadmin := principal(tenant.RoleSuperAdmin)
	targeted := principal(tenant.RoleSuperAdmin)
	targeted.TargetTenantID = tenantB

	tests := []struct {
		name string
		base Filter
		p    Principal
		want Filter
	}{
		{name: "admin", p: principal(tenant.RoleAdmin), want: Filter{TenantID: tenantA}},
		{name: "admin cannot widen tenant", base: Filter{TenantID: tenantB}, p: principal(tenant.RoleAdmin), want: Filter{TenantID: tenantA}},
		{name: "teacher", p: teacher, want: Filter{TenantID: tenantA, Narrowing: NarrowTeacher, TeacherID: "t1"}},
		{name: "teacher without profile", p: principal(tenant.RoleTeacher), want: Filter{TenantID: tenantA, Narrowing: NarrowTeacher}},
		{name: "parent", p: parent, want: Filter{TenantID: tenantA, Narrowing: NarrowStudents, StudentIDs: []string{"s1", "s2"}}},
		{name: "student without profile", p: principal(tenant.RoleStudent),
			want: Filter{TenantID: tenantA, Narrowing: NarrowStudents, StudentIDs: []string{}}},
		{name: "superadmin all tenants", p: superadmin, want: Filter{}},
		{name: "superadmin target tenant", p: targeted, want: Filter{TenantID: tenantB}},
		{name: "superadmin keeps base tenant", base: Filter{TenantID: tenantA}, p: targeted, want: Filter{TenantID: tenantA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScopeQuery(tt.base, tt.p))
		})
	}
}
