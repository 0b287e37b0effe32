package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core/payment"
)

type paymentAPI struct {
	ServerDeps
}

func registerPaymentAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := paymentAPI{deps}

	g := v1.Group("/payments", authed)
	g.GET("", api.list)
	g.POST("", api.create)
	g.GET("/stats", api.stats)
	g.PUT("/status", api.bulkUpdateStatus)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id/status", api.updateStatus)
}

func (api paymentAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter payment.Filter
	page, ords, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.PaymentSvc.Query(ctx.Request().Context(), p, filter, ords, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api paymentAPI) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data payment.NewPayment
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	pmt, err := api.PaymentSvc.Create(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api paymentAPI) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	pmt, err := api.PaymentSvc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api paymentAPI) updateStatus(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data payment.UpdateStatus
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	pmt, err := api.PaymentSvc.UpdateStatus(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api paymentAPI) bulkUpdateStatus(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data payment.BulkUpdateStatus
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	res, err := api.PaymentSvc.BulkUpdateStatus(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api paymentAPI) stats(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter payment.Filter
	if err = queryBinder.BindQueryParams(ctx, &filter); err != nil {
		return err
	}
	res, err := api.PaymentSvc.Stats(ctx.Request().Context(), p, filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
