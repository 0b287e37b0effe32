package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/auth"
	"github.com/trezcool/darasa/core/tenant"
	testutil "github.com/trezcool/darasa/tests"
)

func TestService_Resolve(t *testing.T) {
	app := testutil.NewApp(t)
	mbr := app.Member(t, app.School(t, "Alpha"), tenant.RoleTeacher, "teacher@alpha.test")
	claims := app.Claims(mbr)

	token, err := app.Auth.Issue(claims)
	require.NoError(t, err)

	got, err := app.Auth.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, mbr.User.ID, got.UserID)
	assert.Equal(t, tenant.RoleTeacher, got.Role)
	assert.Equal(t, mbr.Member.TenantID, got.TenantID)

	expired := claims
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expiredToken, err := app.Auth.Issue(expired)
	require.NoError(t, err)

	anonymous := claims
	anonymous.UserID = ""
	anonymousToken, err := app.Auth.Issue(anonymous)
	require.NoError(t, err)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not the secret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "lol"},
		{name: "tampered", token: token + "x"},
		{name: "expired", token: expiredToken},
		{name: "missing user", token: anonymousToken},
		{name: "wrong secret", token: forged},
		{name: "unsigned", token: unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.Auth.Resolve(tt.token)
			assert.Equal(t, auth.ErrInvalidToken, err)
		})
	}
}

func TestService_SignIn(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	alpha, beta := app.School(t, "Alpha"), app.School(t, "Beta")
	first := app.Member(t, alpha, tenant.RoleTeacher, "multi@test.cd")

	origNow := core.NowFunc
	core.NowFunc = func() time.Time { return origNow().Add(time.Minute) }
	app.Member(t, beta, tenant.RoleParent, "multi@test.cd")
	core.NowFunc = origNow

	sess, err := app.Auth.SignIn(ctx, auth.Credentials{Email: "multi@test.cd", Password: testutil.Password})
	require.NoError(t, err)
	assert.Equal(t, alpha.ID, sess.Claims.TenantID, "oldest membership by default")
	assert.Equal(t, first.Member.Role, sess.Claims.Role)

	sess, err = app.Auth.SignIn(ctx, auth.Credentials{Email: "multi@test.cd", Password: testutil.Password, Tenant: "beta"})
	require.NoError(t, err)
	assert.Equal(t, beta.ID, sess.Claims.TenantID)
	assert.Equal(t, tenant.RoleParent, sess.Claims.Role)

	_, err = app.Auth.SignIn(ctx, auth.Credentials{Email: "multi@test.cd", Password: "wrong"})
	assert.Equal(t, auth.ErrInvalidCredentials, err)
	_, err = app.Auth.SignIn(ctx, auth.Credentials{Email: "nobody@test.cd", Password: testutil.Password})
	assert.Equal(t, auth.ErrInvalidCredentials, err)
	_, err = app.Auth.SignIn(ctx, auth.Credentials{Email: "multi@test.cd", Password: testutil.Password, Tenant: "gamma"})
	assert.Equal(t, auth.ErrNoMembership, err)

	_, err = app.Tenants.UpdateTenantStatus(ctx, beta, tenant.StatusSuspended)
	require.NoError(t, err)
	_, err = app.Auth.SignIn(ctx, auth.Credentials{Email: "multi@test.cd", Password: testutil.Password, Tenant: "beta"})
	assert.Equal(t, auth.ErrTenantInactive, err)
}

func TestService_Refresh(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	mbr := app.Member(t, app.School(t, "Alpha"), tenant.RoleAdmin, "admin@alpha.test")

	origNow := core.NowFunc
	t.Cleanup(func() { core.NowFunc = origNow })

	signedIn := time.Now().UTC().Add(-time.Hour)
	core.NowFunc = func() time.Time { return signedIn }
	claims := app.Claims(mbr)

	core.NowFunc = origNow
	sess, err := app.Auth.Refresh(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, signedIn.Unix(), sess.Claims.OrigIssuedAt, "original sign-in is kept")
	assert.True(t, sess.Claims.ExpiresAt.After(claims.ExpiresAt.Time))

	core.NowFunc = func() time.Time { return signedIn.Add(app.Conf.Server.JWTRefreshExpirationDelta + time.Minute) }
	_, err = app.Auth.Refresh(ctx, claims)
	assert.Equal(t, auth.ErrRefreshExpired, err)
}
