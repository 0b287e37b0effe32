package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/school"
)

type lessonAPI struct {
	ServerDeps
}

func registerLessonAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := lessonAPI{deps}

	g := v1.Group("/lessons", authed)
	g.GET("", api.list)
	g.POST("", api.create)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.cancel)
	g.GET("/:id/attendance", api.attendance)
	g.PUT("/:id/attendance", api.recordAttendance)
}

func (api lessonAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter school.LessonFilter
	page, ords, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.SchoolSvc.QueryLessons(ctx.Request().Context(), p, filter, ords, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api lessonAPI) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewLesson
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	l, err := api.SchoolSvc.CreateLesson(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api lessonAPI) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	l, err := api.SchoolSvc.GetLesson(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api lessonAPI) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateLesson
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	l, err := api.SchoolSvc.UpdateLesson(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api lessonAPI) cancel(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	l, err := api.SchoolSvc.CancelLesson(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api lessonAPI) attendance(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	marks, err := api.AttendanceSvc.ForLesson(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return err
	}
	if marks == nil {
		marks = []attendance.Attendance{}
	}
	return ctx.JSON(http.StatusOK, marks)
}

func (api lessonAPI) recordAttendance(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data attendance.RecordAttendance
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	marks, err := api.AttendanceSvc.Record(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, marks)
}

type attendanceAPI struct {
	ServerDeps
}

func registerAttendanceAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := attendanceAPI{deps}

	g := v1.Group("/attendance", authed)
	g.GET("", api.list)
	g.GET("/stats", api.stats)
}

func (api attendanceAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter attendance.Filter
	page, ords, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.AttendanceSvc.Query(ctx.Request().Context(), p, filter, ords, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api attendanceAPI) stats(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter attendance.Filter
	if err = queryBinder.BindQueryParams(ctx, &filter); err != nil {
		return err
	}
	res, err := api.AttendanceSvc.Stats(ctx.Request().Context(), p, filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
