package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/auth"
	"github.com/trezcool/darasa/core/tenant"
	testutil "github.com/trezcool/darasa/tests"
)

func TestHome(t *testing.T) {
	_, srv := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Darasa API!", rec.Body.String())
}

func TestHealthz(t *testing.T) {
	_, srv := setup(t)
	runTests(t, srv, []httpTest{
		{
			name:     "all checks pass",
			method:   http.MethodGet,
			path:     "/healthz",
			wantCode: http.StatusOK,
			wantData: []byte(`{"status":"ok","build":"test","checks":{"db":"ok","queue":"ok"}}`),
		},
	})
}

func TestLogin(t *testing.T) {
	app, srv := setup(t)
	school := app.School(t, "Greenfield")
	app.Member(t, school, tenant.RoleAdmin, "admin@greenfield.test")

	runTests(t, srv, []httpTest{
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"invalid request","details":[
				{"field":"email","error":"this field is required"},
				{"field":"password","error":"this field is required"}
			]}`),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"email":"admin@greenfield.test","password":"nope"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"email":"ghost@greenfield.test","password":"nope"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name:     "unknown school",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshalObj(t, auth.Credentials{Email: "admin@greenfield.test", Password: testutil.Password, Tenant: "elsewhere"}),
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, httpErr{Error: "no active membership"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := do(srv, http.MethodPost, "/v1/auth/login", "",
			marshalObj(t, auth.Credentials{Email: "ADMIN@greenfield.test ", Password: testutil.Password, Tenant: "greenfield"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var sess auth.Session
		decode(t, rec, &sess)
		assert.NotEmpty(t, sess.Token)
		assert.Equal(t, school.ID, sess.Claims.TenantID)
		assert.Equal(t, tenant.RoleAdmin, sess.Claims.Role)

		claims, err := app.Auth.Resolve(sess.Token)
		require.NoError(t, err)
		assert.Equal(t, sess.Claims.UserID, claims.UserID)
	})
}

func TestMe(t *testing.T) {
	app, srv := setup(t)
	a, b := app.School(t, "Alpha"), app.School(t, "Beta")
	mbr := app.Member(t, a, tenant.RoleTeacher, "t@darasa.test")
	app.Member(t, b, tenant.RoleParent, "t@darasa.test")

	runTests(t, srv, []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/auth/me",
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, errMissingToken),
		},
		{
			name:     "garbage token",
			method:   http.MethodGet,
			path:     "/v1/auth/me",
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
	})

	rec := do(srv, http.MethodGet, "/v1/auth/me", app.Token(t, mbr))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Claims      auth.Claims     `json:"claims"`
		Memberships []tenant.Member `json:"memberships"`
	}
	decode(t, rec, &res)
	assert.Equal(t, a.ID, res.Claims.TenantID)
	assert.Len(t, res.Memberships, 2)
}

func TestSwitchTenant(t *testing.T) {
	app, srv := setup(t)
	a, b, c := app.School(t, "Alpha"), app.School(t, "Beta"), app.School(t, "Gamma")
	mbr := app.Member(t, a, tenant.RoleTeacher, "t@darasa.test")
	app.Member(t, b, tenant.RoleParent, "t@darasa.test")
	token := app.Token(t, mbr)

	rec := do(srv, http.MethodPost, "/v1/auth/switch-tenant", token, marshalObj(t, auth.SwitchTenant{TenantID: b.ID}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess auth.Session
	decode(t, rec, &sess)
	assert.Equal(t, b.ID, sess.Claims.TenantID)
	assert.Equal(t, tenant.RoleParent, sess.Claims.Role)

	rec = do(srv, http.MethodPost, "/v1/auth/switch-tenant", token, marshalObj(t, auth.SwitchTenant{TenantID: c.ID}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(srv, http.MethodPost, "/v1/auth/token-refresh", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &sess)
	assert.Equal(t, a.ID, sess.Claims.TenantID)
}

func TestRegisterAndVerify(t *testing.T) {
	app, srv := setup(t)

	body := marshalObj(t, tenant.RegisterSchool{
		SchoolName:      "Hill Top Academy",
		Name:            "Ada Admin",
		Email:           "ada@hilltop.test",
		Password:        testutil.Password,
		PasswordConfirm: testutil.Password,
	})
	rec := do(srv, http.MethodPost, "/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res struct {
		Tenant tenant.Tenant `json:"tenant"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "hill-top-academy", res.Tenant.Slug)
	assert.Equal(t, tenant.StatusPending, res.Tenant.Status)

	// same slug again
	rec = do(srv, http.MethodPost, "/v1/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	login := marshalObj(t, auth.Credentials{Email: "ada@hilltop.test", Password: testutil.Password})
	rec = do(srv, http.MethodPost, "/v1/auth/login", "", login)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	jobs := app.Queue.Jobs(core.JobEmail)
	require.Len(t, jobs, 1)
	msg, err := jobs[0].EmailMessage()
	require.NoError(t, err)
	assert.Equal(t, core.TemplateVerifyEmail, msg.TemplateName)
	token := msg.TemplateData.(map[string]interface{})["token"].(string)

	rec = do(srv, http.MethodPost, "/v1/auth/verify-email", "", []byte(`{"token":"`+token+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(srv, http.MethodPost, "/v1/auth/login", "", login)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tnt, err := app.Tenants.GetTenant(context.Background(), res.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, tnt.Status)
}

func TestPasswordReset(t *testing.T) {
	app, srv := setup(t)
	app.Member(t, app.School(t, "Alpha"), tenant.RoleAdmin, "a@darasa.test")

	runTests(t, srv, []httpTest{
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email":"nobody@darasa.test"}`),
			wantCode: http.StatusOK,
			wantData: []byte(`{"success":true}`),
		},
		{
			name:     "known email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email":"a@darasa.test"}`),
			wantCode: http.StatusOK,
			wantData: []byte(`{"success":true}`),
		},
		{
			name:     "bad token",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset-confirm",
			body:     []byte(`{"uid":"x","token":"y","password":"N3w&Passphrase","password_confirm":"N3w&Passphrase"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"invalid request","details":[{"field":"token","error":"invalid or expired token"}]}`),
		},
	})
	assert.Len(t, app.Queue.Jobs(core.JobEmail), 1)
}

func TestRoles(t *testing.T) {
	_, srv := setup(t)
	rec := do(srv, http.MethodGet, "/v1/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []tenant.RoleInfo
	decode(t, rec, &roles)
	assert.Len(t, roles, len(tenant.Roles))
}
