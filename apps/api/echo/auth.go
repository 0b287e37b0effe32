package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/auth"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/tenant"
	"github.com/trezcool/darasa/core/user"
)

var (
	contextClaimsKey    = "claims"
	contextPrincipalKey = "principal"
	tenantParam         = "tenant_id"

	errMissingToken = core.NewAuthError("missing or malformed jwt")
)

// bearerAuth resolves the session behind "Authorization: Bearer <jwt>" and stores its claims and
// principal in the request context.
func bearerAuth(authSvc *auth.Service, schoolSvc *school.Service) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(token string, ctx echo.Context) (bool, error) {
			claims, err := authSvc.Resolve(token)
			if err != nil {
				return false, err
			}
			p, err := schoolSvc.Principal(ctx.Request().Context(), claims, ctx.QueryParam(tenantParam))
			if err != nil {
				return false, errors.Wrap(err, "building principal")
			}
			ctx.Set(contextClaimsKey, claims)
			ctx.Set(contextPrincipalKey, p)
			return true, nil
		},
		ErrorHandler: func(err error, ctx echo.Context) error {
			var missing *middleware.ErrKeyAuthMissing
			if errors.As(err, &missing) {
				return errMissingToken
			}
			return err
		},
	})
}

func contextClaims(ctx echo.Context) (auth.Claims, bool) {
	claims, ok := ctx.Get(contextClaimsKey).(auth.Claims)
	return claims, ok
}

func getContextPrincipal(ctx echo.Context) (policy.Principal, error) {
	p, ok := ctx.Get(contextPrincipalKey).(policy.Principal)
	if !ok {
		return policy.Principal{}, core.ErrUnauthenticated
	}
	return p, nil
}

type authAPI struct {
	ServerDeps
}

func registerAuthAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := authAPI{deps}

	g := v1.Group("/auth")
	g.POST("/register", api.register)
	g.POST("/verify-email", api.verifyEmail)
	g.POST("/login", api.login)
	g.POST("/password-reset", api.passwordReset)
	g.POST("/password-reset-confirm", api.passwordResetConfirm)
	g.GET("/me", api.me, authed)
	g.POST("/token-refresh", api.tokenRefresh, authed)
	g.POST("/switch-tenant", api.switchTenant, authed)

	v1.GET("/roles", api.roles)
}

type registerResponse struct {
	Tenant tenant.Tenant `json:"tenant"`
	User   user.User     `json:"user"`
}

func (api authAPI) register(ctx echo.Context) error {
	var data tenant.RegisterSchool
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}
	tnt, usr, err := api.TenantSvc.RegisterSchool(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, registerResponse{Tenant: tnt, User: usr})
}

func (api authAPI) verifyEmail(ctx echo.Context) error {
	var data user.VerifyEmail
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}
	usr, err := api.TenantSvc.VerifyEmail(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api authAPI) login(ctx echo.Context) error {
	var data auth.Credentials
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}
	sess, err := api.AuthSvc.SignIn(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

type successResponse struct {
	Success bool `json:"success"`
}

func (api authAPI) passwordReset(ctx echo.Context) error {
	var data user.PasswordResetRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}
	// unknown accounts are not disclosed
	if err := api.UserSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil && !core.IsNotFound(err) {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse{Success: true})
}

func (api authAPI) passwordResetConfirm(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}
	if err := api.UserSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse{Success: true})
}

type meResponse struct {
	Claims      auth.Claims     `json:"claims"`
	Memberships []tenant.Member `json:"memberships"`
}

func (api authAPI) me(ctx echo.Context) error {
	claims, ok := contextClaims(ctx)
	if !ok {
		return core.ErrUnauthenticated
	}
	members, err := api.TenantSvc.ListUserMembers(ctx.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	if members == nil {
		members = []tenant.Member{}
	}
	return ctx.JSON(http.StatusOK, meResponse{Claims: claims, Memberships: members})
}

func (api authAPI) tokenRefresh(ctx echo.Context) error {
	claims, ok := contextClaims(ctx)
	if !ok {
		return core.ErrUnauthenticated
	}
	sess, err := api.AuthSvc.Refresh(ctx.Request().Context(), claims)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api authAPI) switchTenant(ctx echo.Context) error {
	claims, ok := contextClaims(ctx)
	if !ok {
		return core.ErrUnauthenticated
	}
	var data auth.SwitchTenant
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}
	sess, err := api.AuthSvc.SwitchTenant(ctx.Request().Context(), claims, data.TenantID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api authAPI) roles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, tenant.Roles)
}
