package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/services/metrics"
)

type studentAPI struct {
	ServerDeps
}

func registerStudentAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := studentAPI{deps}

	g := v1.Group("/students", authed)
	g.GET("", api.list)
	g.POST("", api.create)
	g.DELETE("", api.destroyMultiple)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
}

func (api studentAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter school.StudentFilter
	page, ords, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.SchoolSvc.QueryStudents(ctx.Request().Context(), p, filter, ords, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api studentAPI) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewStudent
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	s, err := api.SchoolSvc.CreateStudent(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api studentAPI) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	s, err := api.SchoolSvc.GetStudent(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api studentAPI) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateStudent
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	s, err := api.SchoolSvc.UpdateStudent(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api studentAPI) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.SchoolSvc.DeleteStudent(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api studentAPI) destroyMultiple(ctx echo.Context) error {
	return bulkDelete(ctx, api.ServerDeps, api.SchoolSvc.BulkDeleteStudents)
}

type teacherAPI struct {
	ServerDeps
}

func registerTeacherAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := teacherAPI{deps}

	g := v1.Group("/teachers", authed)
	g.GET("", api.list)
	g.POST("", api.create)
	g.DELETE("", api.destroyMultiple)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
}

func (api teacherAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter school.TeacherFilter
	page, ords, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.SchoolSvc.QueryTeachers(ctx.Request().Context(), p, filter, ords, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api teacherAPI) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewTeacher
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	t, err := api.SchoolSvc.CreateTeacher(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api teacherAPI) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	t, err := api.SchoolSvc.GetTeacher(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api teacherAPI) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateTeacher
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	t, err := api.SchoolSvc.UpdateTeacher(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api teacherAPI) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.SchoolSvc.DeleteTeacher(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api teacherAPI) destroyMultiple(ctx echo.Context) error {
	return bulkDelete(ctx, api.ServerDeps, api.SchoolSvc.BulkDeleteTeachers)
}

type classAPI struct {
	ServerDeps
}

func registerClassAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := classAPI{deps}

	g := v1.Group("/classes", authed)
	g.GET("", api.list)
	g.POST("", api.create)
	g.DELETE("", api.destroyMultiple)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
	g.GET("/:id/students", api.roster)
	g.POST("/:id/enroll", api.enroll)
	g.POST("/:id/unenroll", api.unenroll)
}

func (api classAPI) list(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter school.ClassFilter
	page, ords, err := listParams(ctx, &filter)
	if err != nil {
		return err
	}
	res, err := api.SchoolSvc.QueryClasses(ctx.Request().Context(), p, filter, ords, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api classAPI) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewClass
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	c, err := api.SchoolSvc.CreateClass(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api classAPI) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	c, err := api.SchoolSvc.GetClass(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api classAPI) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateClass
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	c, err := api.SchoolSvc.UpdateClass(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api classAPI) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.SchoolSvc.DeleteClass(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api classAPI) destroyMultiple(ctx echo.Context) error {
	return bulkDelete(ctx, api.ServerDeps, api.SchoolSvc.BulkDeleteClasses)
}

func (api classAPI) roster(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	page, _, err := listParams(ctx, nil)
	if err != nil {
		return err
	}
	res, err := api.SchoolSvc.Roster(ctx.Request().Context(), p, ctx.Param("id"), page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api classAPI) enroll(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.EnrollStudents
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	res, err := api.SchoolSvc.Enroll(ctx.Request().Context(), p, ctx.Param("id"), data.StudentIDs)
	metrics.ObserveEnrollment("enroll", enrollmentOutcome(err))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api classAPI) unenroll(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.EnrollStudents
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	res, err := api.SchoolSvc.Unenroll(ctx.Request().Context(), p, ctx.Param("id"), data.StudentIDs)
	metrics.ObserveEnrollment("unenroll", enrollmentOutcome(err))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func enrollmentOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case core.HasReason(err, core.ReasonCapacityExceeded):
		return string(core.ReasonCapacityExceeded)
	case core.HasReason(err, core.ReasonAlreadyEnrolled):
		return string(core.ReasonAlreadyEnrolled)
	case core.HasReason(err, core.ReasonNothingToUnenroll):
		return string(core.ReasonNothingToUnenroll)
	default:
		return "error"
	}
}

// bulkDelete runs del on the ids of a `DELETE /resource?id=..` request.
func bulkDelete(ctx echo.Context, deps ServerDeps, del func(ctx context.Context, p policy.Principal, ids []string) (core.BulkResult, error)) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	data, err := bindIDs(ctx)
	if err != nil {
		return err
	}
	if err = deps.Validate.Struct(data); err != nil {
		return err
	}
	res, err := del(ctx.Request().Context(), p, data.IDs)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
