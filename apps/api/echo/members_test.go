package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/tenant"
	testutil "github.com/trezcool/darasa/tests"
)

func TestMembers(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	tokenA := app.Token(t, s.adminA)

	runTests(t, srv, []httpTest{
		{
			name:     "teacher cannot invite",
			method:   http.MethodPost,
			path:     "/v1/members",
			token:    app.Token(t, s.teacherA),
			body:     marshalObj(t, tenant.Invite{Name: "New", Email: "new@alpha.test", Role: tenant.RoleTeacher}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "admin cannot invite a superadmin",
			method:   http.MethodPost,
			path:     "/v1/members",
			token:    tokenA,
			body:     marshalObj(t, tenant.Invite{Name: "New", Email: "new@alpha.test", Role: tenant.RoleSuperAdmin}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "role", Error: "not enough rights to set this role"}},
			}),
		},
		{
			name:     "unknown role",
			method:   http.MethodPost,
			path:     "/v1/members",
			token:    tokenA,
			body:     []byte(`{"name":"New","email":"new@alpha.test","role":"JANITOR"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "role", Error: "invalid role"}},
			}),
		},
		{
			name:     "platform permissions cannot be granted",
			method:   http.MethodPost,
			path:     "/v1/members",
			token:    tokenA,
			body:     []byte(`{"name":"New","email":"new@alpha.test","role":"TEACHER","permissions":{"tenants:manage":true}}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "permissions", Error: "unknown permission: tenants:manage"}},
			}),
		},
		{
			name:     "existing member",
			method:   http.MethodPost,
			path:     "/v1/members",
			token:    tokenA,
			body:     marshalObj(t, tenant.Invite{Name: "Teacher", Email: "teacher@alpha.test", Role: tenant.RoleTeacher}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "teacher@alpha.test is already a member of this school",
				Reason:  string(core.ReasonDuplicateAction),
				Details: map[string]interface{}{"member_id": s.teacherA.Member.ID},
			}),
		},
	})

	var invited tenant.Member
	t.Run("invite", func(t *testing.T) {
		rec := do(srv, http.MethodPost, "/v1/members", tokenA, []byte(`{
			"name": "Neema",
			"email": " Neema@Alpha.test ",
			"role": "TEACHER",
			"permissions": {"payments:read": true}
		}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &invited)
		assert.Equal(t, "neema@alpha.test", invited.Email)
		assert.Equal(t, tenant.RoleTeacher, invited.Role)
		assert.Equal(t, s.a.ID, invited.TenantID)
		assert.Equal(t, tenant.Permissions{"payments:read": true}, invited.Permissions)
		assert.Len(t, app.Queue.Jobs(core.JobEmail), 1, "invitation email")

		// an existing user from another school joins without a new account
		rec = do(srv, http.MethodPost, "/v1/members", tokenA, marshalObj(t, tenant.Invite{
			Name: "Beta Admin", Email: "admin@beta.test", Role: tenant.RoleParent,
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var joined tenant.Member
		decode(t, rec, &joined)
		assert.Equal(t, s.adminB.User.ID, joined.UserID)
	})

	t.Run("list is tenant scoped", func(t *testing.T) {
		var res core.Page[tenant.Member]
		rec := do(srv, http.MethodGet, "/v1/members?ordering=email", tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &res)
		emails := make([]string, len(res.Data))
		for i, m := range res.Data {
			emails[i] = m.Email
		}
		assert.Equal(t, []string{"admin@alpha.test", "admin@beta.test", "neema@alpha.test", "teacher@alpha.test"}, emails)

		rec = do(srv, http.MethodGet, "/v1/members?role=TEACHER", tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &res)
		assert.Equal(t, 2, res.Total)
	})

	runTests(t, srv, []httpTest{
		{
			name:     "member of another tenant",
			method:   http.MethodGet,
			path:     "/v1/members/" + s.adminB.Member.ID,
			token:    tokenA,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "member not found"}),
		},
		{
			name:     "own membership cannot be changed",
			method:   http.MethodPut,
			path:     "/v1/members/" + s.adminA.Member.ID,
			token:    tokenA,
			body:     []byte(`{"role":"TEACHER"}`),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "you cannot change your own membership"}),
		},
		{
			name:     "cannot promote to superadmin",
			method:   http.MethodPut,
			path:     "/v1/members/" + s.teacherA.Member.ID,
			token:    tokenA,
			body:     []byte(`{"role":"SUPERADMIN"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid membership status",
			method:   http.MethodPut,
			path:     "/v1/members/" + s.teacherA.Member.ID,
			token:    tokenA,
			body:     []byte(`{"status":"PENDING"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("update and revoke", func(t *testing.T) {
		rec := do(srv, http.MethodPut, "/v1/members/"+invited.ID, tokenA, []byte(`{"role":"ADMIN","permissions":{}}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var mbr tenant.Member
		decode(t, rec, &mbr)
		assert.Equal(t, tenant.RoleAdmin, mbr.Role)
		assert.Empty(t, mbr.Permissions)

		rec = do(srv, http.MethodDelete, "/v1/members/"+s.teacherA.Member.ID, tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &mbr)
		assert.Equal(t, tenant.MembershipRevoked, mbr.Status)

		rec = do(srv, http.MethodDelete, "/v1/members/"+s.teacherA.Member.ID, tokenA)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		// a revoked member cannot renew its session
		rec = do(srv, http.MethodPost, "/v1/auth/token-refresh", app.Token(t, s.teacherA))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	})

	t.Run("superadmin", func(t *testing.T) {
		tokenR := app.Token(t, s.root)

		rec := do(srv, http.MethodGet, "/v1/members/"+s.adminB.Member.ID, tokenR)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(srv, http.MethodPost, "/v1/members", tokenR, marshalObj(t, tenant.Invite{Name: "X", Email: "x@beta.test", Role: tenant.RoleAdmin}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "a target tenant is required")

		rec = do(srv, http.MethodPost, "/v1/members?tenant_id="+s.b.ID, tokenR, marshalObj(t, tenant.Invite{Name: "X", Email: "x@beta.test", Role: tenant.RoleAdmin}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var mbr tenant.Member
		decode(t, rec, &mbr)
		assert.Equal(t, s.b.ID, mbr.TenantID)
	})
}

func TestTenants(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	tokenR := app.Token(t, s.root)

	runTests(t, srv, []httpTest{
		{
			name:     "school admins cannot list schools",
			method:   http.MethodGet,
			path:     "/v1/tenants",
			token:    app.Token(t, s.adminA),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "permission overrides do not reach the platform",
			method:   http.MethodPut,
			path:     "/v1/tenants/" + s.a.ID + "/status",
			token:    app.Token(t, s.teacherA),
			body:     []byte(`{"status":"SUSPENDED"}`),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "by slug",
			method:   http.MethodGet,
			path:     "/v1/tenants/beta",
			token:    tokenR,
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown",
			method:   http.MethodGet,
			path:     "/v1/tenants/nowhere",
			token:    tokenR,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "tenant not found"}),
		},
		{
			name:     "suspend",
			method:   http.MethodPut,
			path:     "/v1/tenants/" + s.a.ID + "/status",
			token:    tokenR,
			body:     []byte(`{"status":"SUSPENDED"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "suspend twice",
			method:   http.MethodPut,
			path:     "/v1/tenants/" + s.a.ID + "/status",
			token:    tokenR,
			body:     []byte(`{"status":"SUSPENDED"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"tenant is already SUSPENDED","reason":"duplicate_action","details":{"status":"SUSPENDED"}}`),
		},
		{
			name:     "back to pending",
			method:   http.MethodPut,
			path:     "/v1/tenants/" + s.a.ID + "/status",
			token:    tokenR,
			body:     []byte(`{"status":"PENDING"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	rec := do(srv, http.MethodGet, "/v1/tenants?status=ACTIVE&ordering=name", tokenR)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res core.Page[tenant.Tenant]
	decode(t, rec, &res)
	names := make([]string, len(res.Data))
	for i, tnt := range res.Data {
		names[i] = tnt.Slug
	}
	assert.Equal(t, []string{"beta", "platform"}, names)

	rec = do(srv, http.MethodPost, "/v1/auth/login", "", []byte(`{"email":"admin@alpha.test","password":"`+testutil.Password+`"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "members of a suspended school cannot sign in")
}
