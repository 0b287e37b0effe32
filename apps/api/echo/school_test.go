package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/tenant"
	testutil "github.com/trezcool/darasa/tests"
)

type twoSchools struct {
	app                *testutil.App
	a, b               tenant.Tenant
	adminA, adminB     testutil.Member
	teacherA, root     testutil.Member
	studentA, studentB school.Student
}

func seedTwoSchools(t *testing.T, app *testutil.App) twoSchools {
	t.Helper()
	s := twoSchools{app: app, a: app.School(t, "Alpha"), b: app.School(t, "Beta")}
	s.adminA = app.Member(t, s.a, tenant.RoleAdmin, "admin@alpha.test")
	s.adminB = app.Member(t, s.b, tenant.RoleAdmin, "admin@beta.test")
	s.teacherA = app.Member(t, s.a, tenant.RoleTeacher, "teacher@alpha.test")
	s.root = app.SuperAdmin(t, "root@darasa.test")
	s.studentA = app.Student(t, app.Principal(t, s.adminA), "Amani", "Alpha")
	s.studentB = app.Student(t, app.Principal(t, s.adminB), "Baraka", "Beta")
	return s
}

func TestStudentsTenantIsolation(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	tokenA := app.Token(t, s.adminA)

	runTests(t, srv, []httpTest{
		{
			name:     "other tenant's student is not found",
			method:   http.MethodGet,
			path:     "/v1/students/" + s.studentB.ID,
			token:    tokenA,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "student not found"}),
		},
		{
			name:     "other tenant's student cannot be updated",
			method:   http.MethodPut,
			path:     "/v1/students/" + s.studentB.ID,
			token:    tokenA,
			body:     []byte(`{"grade":"6"}`),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "other tenant's student cannot be deleted",
			method:   http.MethodDelete,
			path:     "/v1/students/" + s.studentB.ID,
			token:    tokenA,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "bulk delete rejects foreign ids as a whole",
			method:   http.MethodDelete,
			path:     fmt.Sprintf("/v1/students?id=%s&id=%s", s.studentA.ID, s.studentB.ID),
			token:    tokenA,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "student not found: " + s.studentB.ID}),
		},
		{
			name:     "tenant_id is ignored for non superadmins",
			method:   http.MethodGet,
			path:     "/v1/students/" + s.studentB.ID + "?tenant_id=" + s.b.ID,
			token:    tokenA,
			wantCode: http.StatusNotFound,
		},
	})

	list := func(token, query string) core.Page[school.Student] {
		rec := do(srv, http.MethodGet, "/v1/students"+query, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page core.Page[school.Student]
		decode(t, rec, &page)
		return page
	}

	page := list(tokenA, "")
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, s.studentA.ID, page.Data[0].ID)

	rootToken := app.Token(t, s.root)
	assert.Equal(t, 2, list(rootToken, "").Total)
	page = list(rootToken, "?tenant_id="+s.b.ID)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, s.studentB.ID, page.Data[0].ID)

	// the failed bulk delete left studentA untouched
	st, err := app.Schools.GetStudent(context.Background(), app.Principal(t, s.adminA), s.studentA.ID)
	require.NoError(t, err)
	assert.Equal(t, school.StudentActive, st.Status)
}

func TestClassesTenantIsolation(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	tokenA := app.Token(t, s.adminA)
	classB := app.Class(t, app.Principal(t, s.adminB), "5B", 2)
	app.Enroll(t, app.Principal(t, s.adminB), classB.ID, s.studentB.ID)

	runTests(t, srv, []httpTest{
		{
			name:     "other tenant's class cannot be updated",
			method:   http.MethodPut,
			path:     "/v1/classes/" + classB.ID,
			token:    tokenA,
			body:     []byte(`{"max_students":30}`),
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "class not found"}),
		},
		{
			name:     "cannot enroll into another tenant's class",
			method:   http.MethodPost,
			path:     "/v1/classes/" + classB.ID + "/enroll",
			token:    tokenA,
			body:     marshalObj(t, school.EnrollStudents{StudentIDs: []string{s.studentA.ID}}),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "cannot unenroll from another tenant's class",
			method:   http.MethodPost,
			path:     "/v1/classes/" + classB.ID + "/unenroll",
			token:    tokenA,
			body:     marshalObj(t, school.EnrollStudents{StudentIDs: []string{s.studentB.ID}}),
			wantCode: http.StatusNotFound,
		},
	})

	c, err := app.Schools.GetClass(context.Background(), app.Principal(t, s.adminB), classB.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.MaxStudents)
	assert.Equal(t, 1, c.ActiveStudents)
}

func TestStudentsCRUD(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	tokenA := app.Token(t, s.adminA)

	runTests(t, srv, []httpTest{
		{
			name:     "teachers cannot create students",
			method:   http.MethodPost,
			path:     "/v1/students",
			token:    app.Token(t, s.teacherA),
			body:     []byte(`{"first_name":"X","last_name":"Y"}`),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "invalid body",
			method:   http.MethodPost,
			path:     "/v1/students",
			token:    tokenA,
			body:     []byte(`{"first_name":"X","email":"nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"invalid request","details":[
				{"field":"last_name","error":"this field is required"},
				{"field":"email","error":"email must be a valid email address"}
			]}`),
		},
		{
			name:     "superadmin must name a tenant to create",
			method:   http.MethodPost,
			path:     "/v1/students",
			token:    app.Token(t, s.root),
			body:     []byte(`{"first_name":"X","last_name":"Y"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"invalid request","details":[{"field":"tenant_id","error":"this field is required"}]}`),
		},
	})

	rec := do(srv, http.MethodPost, "/v1/students", tokenA, []byte(`{"first_name":" Zawadi ","last_name":"Zulu","grade":"4"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created school.Student
	decode(t, rec, &created)
	assert.Equal(t, "Zawadi", created.FirstName)
	assert.Equal(t, s.a.ID, created.TenantID)

	rec = do(srv, http.MethodPut, "/v1/students/"+created.ID, tokenA, []byte(`{"grade":"5"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated school.Student
	decode(t, rec, &updated)
	assert.Equal(t, "5", updated.Grade)

	rec = do(srv, http.MethodDelete, "/v1/students/"+created.ID, tokenA)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// soft-deleted
	rec = do(srv, http.MethodGet, "/v1/students/"+created.ID, tokenA)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &updated)
	assert.Equal(t, school.StudentInactive, updated.Status)

	rec = do(srv, http.MethodDelete, "/v1/students/"+created.ID, tokenA)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"duplicate_action"`)

	// superadmin creates in the targeted tenant
	rec = do(srv, http.MethodPost, "/v1/students?tenant_id="+s.b.ID, app.Token(t, s.root), []byte(`{"first_name":"R","last_name":"S"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &created)
	assert.Equal(t, s.b.ID, created.TenantID)
}

func TestEnrollment(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	pA := app.Principal(t, s.adminA)
	tokenA := app.Token(t, s.adminA)

	class := app.Class(t, pA, "Math 5A", 10)
	var students []school.Student
	for i := 0; i < 11; i++ {
		students = append(students, app.Student(t, pA, "S", fmt.Sprint(i)))
	}
	app.Enroll(t, pA, class.ID, testutil.IDs(students[:8]...)...)

	enroll := func(ids ...string) []byte {
		return marshalObj(t, school.EnrollStudents{StudentIDs: ids})
	}
	path := "/v1/classes/" + class.ID

	runTests(t, srv, []httpTest{
		{
			name:     "capacity exceeded",
			method:   http.MethodPost,
			path:     path + "/enroll",
			token:    tokenA,
			body:     enroll(testutil.IDs(students[8:]...)...),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{
				"error":"class capacity exceeded: 2 seat(s) available, 3 requested",
				"reason":"capacity_exceeded",
				"details":{"available_capacity":2,"requested":3}
			}`),
		},
		{
			name:     "already enrolled",
			method:   http.MethodPost,
			path:     path + "/enroll",
			token:    tokenA,
			body:     enroll(students[0].ID),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "foreign student",
			method:   http.MethodPost,
			path:     path + "/enroll",
			token:    tokenA,
			body:     enroll(s.studentB.ID),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "foreign class",
			method:   http.MethodPost,
			path:     path + "/enroll",
			token:    app.Token(t, s.adminB),
			body:     enroll(s.studentB.ID),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "two seats left",
			method:   http.MethodPost,
			path:     path + "/enroll",
			token:    tokenA,
			body:     enroll(students[8].ID, students[9].ID),
			wantCode: http.StatusOK,
			wantData: []byte(`{"enrolled":2,"new_enrollments":2,"reactivated":0}`),
		},
		{
			name:     "full",
			method:   http.MethodPost,
			path:     path + "/enroll",
			token:    tokenA,
			body:     enroll(students[10].ID),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unenroll",
			method:   http.MethodPost,
			path:     path + "/unenroll",
			token:    tokenA,
			body:     enroll(students[0].ID, students[10].ID),
			wantCode: http.StatusOK,
			wantData: []byte(`{"unenrolled":1}`),
		},
		{
			name:     "nothing to unenroll",
			method:   http.MethodPost,
			path:     path + "/unenroll",
			token:    tokenA,
			body:     enroll(students[0].ID),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "reactivate",
			method:   http.MethodPost,
			path:     path + "/enroll",
			token:    tokenA,
			body:     enroll(students[0].ID),
			wantCode: http.StatusOK,
			wantData: []byte(`{"enrolled":1,"new_enrollments":0,"reactivated":1}`),
		},
		{
			name:     "empty ids",
			method:   http.MethodPost,
			path:     path + "/enroll",
			token:    tokenA,
			body:     []byte(`{"student_ids":[]}`),
			wantCode: http.StatusBadRequest,
		},
	})

	rec := do(srv, http.MethodGet, path+"/students?limit=5", tokenA)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var roster core.Page[school.Student]
	decode(t, rec, &roster)
	assert.Equal(t, 10, roster.Total)
	assert.Len(t, roster.Data, 5)

	rec = do(srv, http.MethodGet, path, tokenA)
	require.Equal(t, http.StatusOK, rec.Code)
	var c school.Class
	decode(t, rec, &c)
	assert.Equal(t, 10, c.ActiveStudents)
}

func TestListOrderingAndPagination(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	pA := app.Principal(t, s.adminA)
	for _, name := range []string{"Cyrus", "Baako", "Dalia"} {
		app.Student(t, pA, name, "X")
	}

	rec := do(srv, http.MethodGet, "/v1/students?ordering=-first_name&limit=2&page=1", app.Token(t, s.adminA))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page core.Page[school.Student]
	decode(t, rec, &page)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Data, 2)
	names := []string{page.Data[0].FirstName, page.Data[1].FirstName}
	assert.Equal(t, "Dalia,Cyrus", strings.Join(names, ","))
}
