package echoapi_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/stats"
	"github.com/trezcool/darasa/core/tenant"
	"github.com/trezcool/darasa/services/export"
	testutil "github.com/trezcool/darasa/tests"
)

type attendanceSchool struct {
	admin, teacher     testutil.Member
	tokenA, tokenT     string
	class5A, class5B   school.Class
	lesson5A, lesson5B school.Lesson
	s1, s2, s3, s4     school.Student
}

// seedAttendanceSchool builds a school with a linked teacher teaching 5A (3 students, one past
// lesson) while 5B (1 student, one upcoming lesson) has no teacher.
func seedAttendanceSchool(t *testing.T, app *testutil.App, srv *echoapi.Server) attendanceSchool {
	t.Helper()
	ctx := context.Background()
	tnt := app.School(t, "Kilima")
	s := attendanceSchool{admin: app.Member(t, tnt, tenant.RoleAdmin, "admin@kilima.test")}
	p := app.Principal(t, s.admin)
	s.tokenA = app.Token(t, s.admin)

	profile := app.Teacher(t, p, "Tumaini", "Mwalimu")
	rec := do(srv, http.MethodPost, "/v1/members", s.tokenA, marshalObj(t, tenant.Invite{
		Name:      "Tumaini",
		Email:     "tumaini@kilima.test",
		Role:      tenant.RoleTeacher,
		TeacherID: profile.ID,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var mbr tenant.Member
	decode(t, rec, &mbr)
	usr, err := app.Users.GetByID(ctx, mbr.UserID)
	require.NoError(t, err)
	s.teacher = testutil.Member{User: usr, Member: mbr}
	s.tokenT = app.Token(t, s.teacher)

	s.class5A = app.Class(t, p, "5A", 30, profile.ID)
	s.class5B = app.Class(t, p, "5B", 30)
	s.s1 = app.Student(t, p, "Asha", "One")
	s.s2 = app.Student(t, p, "Baraka", "Two")
	s.s3 = app.Student(t, p, "Chausiku", "Three")
	s.s4 = app.Student(t, p, "Dalila", "Four")
	app.Enroll(t, p, s.class5A.ID, testutil.IDs(s.s1, s.s2, s.s3)...)
	app.Enroll(t, p, s.class5B.ID, s.s4.ID)

	now := time.Now().UTC()
	s.lesson5A = app.Lesson(t, p, s.class5A.ID, now.Add(-2*time.Hour))
	s.lesson5B = app.Lesson(t, p, s.class5B.ID, now.Add(24*time.Hour))
	return s
}

func marks(t *testing.T, ms ...attendance.Mark) []byte {
	return marshalObj(t, attendance.RecordAttendance{Marks: ms})
}

func TestAttendance(t *testing.T) {
	app, srv := setup(t)
	s := seedAttendanceSchool(t, app, srv)
	path5A := "/v1/lessons/" + s.lesson5A.ID + "/attendance"

	runTests(t, srv, []httpTest{
		{
			name:     "teacher records another class",
			method:   http.MethodPut,
			path:     "/v1/lessons/" + s.lesson5B.ID + "/attendance",
			token:    s.tokenT,
			body:     marks(t, attendance.Mark{StudentID: s.s4.ID, Status: attendance.StatusPresent}),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "student not enrolled",
			method:   http.MethodPut,
			path:     path5A,
			token:    s.tokenA,
			body:     marks(t, attendance.Mark{StudentID: s.s4.ID, Status: attendance.StatusPresent}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "marks", Error: "students not enrolled in this class: " + s.s4.ID}},
			}),
		},
		{
			name:   "duplicate student",
			method: http.MethodPut,
			path:   path5A,
			token:  s.tokenT,
			body: marks(t,
				attendance.Mark{StudentID: s.s1.ID, Status: attendance.StatusPresent},
				attendance.Mark{StudentID: s.s1.ID, Status: attendance.StatusAbsent},
			),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "marks[1].student_id", Error: "duplicate student"}},
			}),
		},
		{
			name:     "no marks",
			method:   http.MethodPut,
			path:     path5A,
			token:    s.tokenT,
			body:     []byte(`{"marks":[]}`),
			wantCode: http.StatusBadRequest,
		},
	})

	rec := do(srv, http.MethodPut, path5A, s.tokenT, marks(t,
		attendance.Mark{StudentID: s.s1.ID, Status: attendance.StatusPresent},
		attendance.Mark{StudentID: s.s2.ID, Status: attendance.StatusAbsent},
		attendance.Mark{StudentID: s.s3.ID, Status: attendance.StatusLate, Note: "bus"},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var recorded []attendance.Attendance
	decode(t, rec, &recorded)
	require.Len(t, recorded, 3)
	for _, a := range recorded {
		assert.Equal(t, s.teacher.User.ID, a.RecordedBy)
		assert.Equal(t, s.class5A.ID, a.ClassID)
	}

	// corrections overwrite the mark of the same student
	rec = do(srv, http.MethodPut, path5A, s.tokenA, marks(t, attendance.Mark{StudentID: s.s2.ID, Status: attendance.StatusExcused}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &recorded)
	require.Len(t, recorded, 3)

	rec = do(srv, http.MethodGet, path5A, s.tokenT)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &recorded)
	byStudent := make(map[string]attendance.Status)
	for _, a := range recorded {
		byStudent[a.StudentID] = a.Status
	}
	assert.Equal(t, map[string]attendance.Status{
		s.s1.ID: attendance.StatusPresent,
		s.s2.ID: attendance.StatusExcused,
		s.s3.ID: attendance.StatusLate,
	}, byStudent)

	t.Run("stats", func(t *testing.T) {
		rec := do(srv, http.MethodGet, "/v1/attendance/stats", s.tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum stats.AttendanceSummary
		decode(t, rec, &sum)
		assert.Equal(t, 1, sum.Present)
		assert.Equal(t, 1, sum.Late)
		assert.Equal(t, 1, sum.Excused)
		assert.Equal(t, 3, sum.Total)
		assert.Equal(t, 33, sum.AttendanceRate)
		assert.Equal(t, 1, sum.Lessons, "upcoming lessons are left out")
		assert.Equal(t, 33, sum.AverageLessonRate)

		rec = do(srv, http.MethodGet, "/v1/attendance/stats?status=LATE", s.tokenT)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &sum)
		assert.Equal(t, 1, sum.Total)
	})

	t.Run("cancelled lesson", func(t *testing.T) {
		rec := do(srv, http.MethodDelete, "/v1/lessons/"+s.lesson5B.ID, s.tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(srv, http.MethodPut, "/v1/lessons/"+s.lesson5B.ID+"/attendance", s.tokenA,
			marks(t, attendance.Mark{StudentID: s.s4.ID, Status: attendance.StatusPresent}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{
			"error":"cannot record attendance for a cancelled lesson",
			"reason":"invalid_transition",
			"details":{"status":"CANCELLED"}
		}`, rec.Body.String())
	})
}

func TestDashboard(t *testing.T) {
	app, srv := setup(t)
	s := seedAttendanceSchool(t, app, srv)
	_, err := app.Payments.Create(context.Background(), app.Principal(t, s.admin), payment.NewPayment{
		StudentID:   s.s1.ID,
		Amount:      5000,
		Description: "Books",
		DueDate:     time.Now().AddDate(0, 0, -3),
	})
	require.NoError(t, err)

	rec := do(srv, http.MethodGet, "/v1/stats/dashboard", s.tokenA)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dash dashboard.Dashboard
	decode(t, rec, &dash)
	assert.Equal(t, dashboard.Counts{Students: 4, Teachers: 1, Classes: 2, Lessons: 2}, dash.Counts)
	require.NotNil(t, dash.Payments)
	assert.Equal(t, 1, dash.Payments.Overdue, "past due payments are flipped")
	assert.Equal(t, int64(5000), dash.Payments.AmountDue)

	rec = do(srv, http.MethodGet, "/v1/stats/dashboard", s.tokenT)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dash = dashboard.Dashboard{}
	decode(t, rec, &dash)
	assert.Equal(t, dashboard.Counts{Students: 3, Teachers: 1, Classes: 1, Lessons: 1}, dash.Counts, "a teacher sees their classes")
	assert.Nil(t, dash.Payments)
}

func TestExport(t *testing.T) {
	app, srv := setup(t)
	s := seedAttendanceSchool(t, app, srv)
	today := core.NowFunc().Format("2006-01-02")

	runTests(t, srv, []httpTest{
		{
			name:     "teacher cannot export",
			method:   http.MethodGet,
			path:     "/v1/export/students",
			token:    s.tokenT,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown format",
			method:   http.MethodGet,
			path:     "/v1/export/students?format=doc",
			token:    s.tokenA,
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "format", Error: `unsupported export format "doc"`}},
			}),
		},
		{
			name:     "unknown resource",
			method:   http.MethodGet,
			path:     "/v1/export/grades",
			token:    s.tokenA,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "export not found"}),
		},
		{
			name:     "bad report date",
			method:   http.MethodGet,
			path:     "/v1/reports/attendance?from=yesterday",
			token:    s.tokenA,
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "from", Error: "expected YYYY-MM-DD"}},
			}),
		},
	})

	t.Run("csv", func(t *testing.T) {
		rec := do(srv, http.MethodGet, "/v1/export/students", s.tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="students-`+today+`.csv"`, rec.Header().Get("Content-Disposition"))

		rows, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 5)
		assert.Equal(t, export.StudentsTable(nil).Header, rows[0])
	})

	t.Run("pdf falls back to csv", func(t *testing.T) {
		rec := do(srv, http.MethodGet, "/v1/export/classes?format=pdf", s.tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, `attachment; filename="classes-`+today+`.csv"`, rec.Header().Get("Content-Disposition"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "id,name,grade,teacher_id,max_students,active_students"))
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := do(srv, http.MethodGet, "/v1/export/students?format=xlsx", s.tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, export.FormatXLSX.ContentType(), rec.Header().Get("Content-Type"))

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Students")
		require.NoError(t, err)
		assert.Len(t, rows, 5)
	})

	t.Run("attendance report", func(t *testing.T) {
		_, err := app.Attendance.Record(context.Background(), app.Principal(t, s.admin), s.lesson5A.ID, attendance.RecordAttendance{
			Marks: []attendance.Mark{
				{StudentID: s.s1.ID, Status: attendance.StatusPresent},
				{StudentID: s.s2.ID, Status: attendance.StatusAbsent},
			},
		})
		require.NoError(t, err)

		day := s.lesson5A.StartsAt.UTC().Format("2006-01-02")
		rec := do(srv, http.MethodGet, "/v1/reports/attendance?from="+day+"&to="+day, s.tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, `attachment; filename="attendance-report-`+today+`.xlsx"`, rec.Header().Get("Content-Disposition"))

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{"Summary", "5A", "5B"}, f.GetSheetList())

		rows, err := f.GetRows("5A")
		require.NoError(t, err)
		assert.Len(t, rows, 3, "header and two marked students")
	})
}
