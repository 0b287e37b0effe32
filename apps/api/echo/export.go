package echoapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/services/export"
)

type exportAPI struct {
	ServerDeps
}

func registerStatsAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := exportAPI{deps}
	v1.GET("/stats/dashboard", api.dashboard, authed)
}

func registerExportAPI(v1 *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := exportAPI{deps}
	v1.GET("/export/:resource", api.export, authed)
	v1.GET("/reports/attendance", api.attendanceReport, authed)
}

func (api exportAPI) dashboard(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	res, err := api.DashboardSvc.Get(ctx.Request().Context(), p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

// table loads every row of resource visible to p.
func (api exportAPI) table(ctx context.Context, p policy.Principal, resource string) (export.Table, error) {
	all := core.Pagination{}
	switch resource {
	case "students":
		res, err := api.SchoolSvc.QueryStudents(ctx, p, school.StudentFilter{}, nil, all)
		return export.StudentsTable(res.Data), err
	case "teachers":
		res, err := api.SchoolSvc.QueryTeachers(ctx, p, school.TeacherFilter{}, nil, all)
		return export.TeachersTable(res.Data), err
	case "classes":
		res, err := api.SchoolSvc.QueryClasses(ctx, p, school.ClassFilter{}, nil, all)
		return export.ClassesTable(res.Data), err
	case "attendance":
		res, err := api.AttendanceSvc.Query(ctx, p, attendance.Filter{}, nil, all)
		return export.AttendanceTable(res.Data), err
	case "payments":
		res, err := api.PaymentSvc.Query(ctx, p, payment.Filter{}, nil, all)
		return export.PaymentsTable(res.Data), err
	default:
		return export.Table{}, core.NewNotFoundError("export")
	}
}

func (api exportAPI) export(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = policy.Authorize(p, policy.DataExport, policy.Context{}); err != nil {
		return err
	}
	format, err := export.ParseFormat(ctx.QueryParam("format"))
	if err != nil {
		return err
	}
	resource := ctx.Param("resource")
	tbl, err := api.table(ctx.Request().Context(), p, resource)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if format == export.FormatXLSX {
		err = export.WriteWorkbook(&buf, tbl)
	} else {
		format = export.FormatCSV // pdf is served as csv
		err = export.WriteCSV(&buf, tbl)
	}
	if err != nil {
		return err
	}
	return attachment(ctx, export.Filename(resource, format, core.NowFunc()), format.ContentType(), buf.Bytes())
}

func (api exportAPI) attendanceReport(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	from, err := parseDate(ctx.QueryParam("from"), "from", false)
	if err != nil {
		return err
	}
	to, err := parseDate(ctx.QueryParam("to"), "to", true)
	if err != nil {
		return err
	}
	rep, err := api.AttendanceSvc.Report(ctx.Request().Context(), p, from, to)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = export.WriteWorkbook(&buf, export.AttendanceReportTables(rep)...); err != nil {
		return err
	}
	name := export.Filename("attendance-report", export.FormatXLSX, core.NowFunc())
	return attachment(ctx, name, export.FormatXLSX.ContentType(), buf.Bytes())
}

func attachment(ctx echo.Context, filename, contentType string, b []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, contentType, b)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. A bare date used as an upper bound covers the whole day.
func parseDate(s, field string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: field, Error: "expected YYYY-MM-DD"})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
