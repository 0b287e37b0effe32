package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core/notice"
	"github.com/trezcool/darasa/core/notification"
)

type noticeAPI struct {
	ServerDeps
}

func registerNoticeAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := noticeAPI{deps}

	g := v1.Group("/notices", authed)
	g.GET("", api.list)
	g.POST("", api.create)
	g.DELETE("", api.destroyMultiple)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
}

func (api noticeAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter notice.Filter
	page, _, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.NoticeSvc.Query(ctx.Request().Context(), p, filter, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api noticeAPI) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data notice.NewNotice
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	n, err := api.NoticeSvc.Create(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api noticeAPI) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	n, err := api.NoticeSvc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api noticeAPI) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data notice.UpdateNotice
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	n, err := api.NoticeSvc.Update(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api noticeAPI) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.NoticeSvc.Delete(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api noticeAPI) destroyMultiple(ctx echo.Context) error {
	return bulkDelete(ctx, api.ServerDeps, api.NoticeSvc.BulkDelete)
}

type notificationAPI struct {
	ServerDeps
}

func registerNotificationAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := notificationAPI{deps}

	g := v1.Group("/notifications", authed)
	g.GET("", api.list)
	g.POST("", api.send)
	g.PUT("/read-all", api.markAllRead)
	g.PUT("/:id/status", api.updateStatus)
	g.DELETE("/:id", api.destroy)
}

func (api notificationAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter notification.Filter
	page, _, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.NotificationSvc.Query(ctx.Request().Context(), p, filter, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api notificationAPI) send(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data notification.SendMessage
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	sent, err := api.NotificationSvc.Send(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sent)
}

func (api notificationAPI) markAllRead(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	res, err := api.NotificationSvc.MarkAllRead(ctx.Request().Context(), p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api notificationAPI) updateStatus(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data notification.UpdateStatus
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	n, err := api.NotificationSvc.MarkStatus(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api notificationAPI) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.NotificationSvc.Delete(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
