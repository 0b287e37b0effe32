package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/tenant"
)

type tenantAPI struct {
	ServerDeps
}

func registerTenantAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := tenantAPI{deps}

	g := v1.Group("/tenants", authed)
	g.GET("", api.list)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id/status", api.updateStatus)
}

func (api tenantAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = policy.Authorize(p, policy.TenantsRead, policy.Context{}); err != nil {
		return err
	}
	var filter tenant.TenantFilter
	page, ords, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.TenantSvc.QueryTenants(ctx.Request().Context(), filter, ords, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api tenantAPI) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = policy.Authorize(p, policy.TenantsRead, policy.Context{}); err != nil {
		return err
	}
	tnt, err := api.TenantSvc.FindTenant(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tnt)
}

func (api tenantAPI) updateStatus(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = policy.Authorize(p, policy.TenantsManage, policy.Context{}); err != nil {
		return err
	}
	var data tenant.UpdateStatus
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	tnt, err := api.TenantSvc.FindTenant(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if tnt, err = api.TenantSvc.UpdateTenantStatus(ctx.Request().Context(), tnt, data.Status); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tnt)
}

type memberAPI struct {
	ServerDeps
}

func registerMemberAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := memberAPI{deps}

	g := v1.Group("/members", authed)
	g.GET("", api.list)
	g.POST("", api.invite)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.revoke)
}

// actor returns the membership p manages members with. A SUPERADMIN acts with its own identity
// on the tenant it targets.
func (api memberAPI) actor(ctx echo.Context, p policy.Principal) (tenant.Member, error) {
	if p.IsSuperAdmin() {
		tid, err := p.WriteTenant()
		if err != nil {
			return tenant.Member{}, err
		}
		mbr := tenant.Member{Name: p.Name, Email: p.Email}
		mbr.UserID = p.UserID
		mbr.TenantID = tid
		mbr.Role = tenant.RoleSuperAdmin
		mbr.Status = tenant.MembershipActive
		return mbr, nil
	}
	return api.TenantSvc.GetMemberByUser(ctx.Request().Context(), p.TenantID, p.UserID)
}

// member loads the member :id within the principal's tenant.
func (api memberAPI) member(ctx echo.Context, p policy.Principal, action policy.Action) (tenant.Member, error) {
	if err := policy.Authorize(p, action, policy.Context{}); err != nil {
		return tenant.Member{}, err
	}
	// an empty tenant only happens for SUPERADMIN and matches any tenant
	mbr, err := api.TenantSvc.GetMember(ctx.Request().Context(), p.EffectiveTenant(), ctx.Param("id"))
	if err != nil {
		return tenant.Member{}, err
	}
	return mbr, policy.Authorize(p, action, policy.On("member", mbr.TenantID, nil))
}

func (api memberAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = policy.Authorize(p, policy.MembersRead, policy.Context{}); err != nil {
		return err
	}
	var filter tenant.MemberFilter
	page, ords, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	filter.TenantID = policy.Scope(p).TenantID
	res, err := api.TenantSvc.QueryMembers(ctx.Request().Context(), filter, ords, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api memberAPI) invite(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = policy.Authorize(p, policy.MembersManage, policy.Context{}); err != nil {
		return err
	}
	var data tenant.Invite
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	if err = policy.ValidateOverrides(data.Permissions); err != nil {
		return err
	}
	inviter, err := api.actor(ctx, p)
	if err != nil {
		return err
	}
	mbr, err := api.TenantSvc.Invite(ctx.Request().Context(), inviter, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, mbr)
}

func (api memberAPI) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	mbr, err := api.member(ctx, p, policy.MembersRead)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, mbr)
}

func (api memberAPI) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	mbr, err := api.member(ctx, p, policy.MembersManage)
	if err != nil {
		return err
	}
	var data tenant.UpdateMember
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	if err = policy.ValidateOverrides(data.Permissions); err != nil {
		return err
	}
	actor, err := api.actor(ctx, p)
	if err != nil {
		return err
	}
	if mbr, err = api.TenantSvc.UpdateMember(ctx.Request().Context(), actor, mbr, data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, mbr)
}

func (api memberAPI) revoke(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	mbr, err := api.member(ctx, p, policy.MembersManage)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx, p)
	if err != nil {
		return err
	}
	if mbr, err = api.TenantSvc.RevokeMember(ctx.Request().Context(), actor, mbr); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, mbr)
}
