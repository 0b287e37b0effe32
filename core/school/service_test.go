package school_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/tenant"
	testutil "github.com/trezcool/darasa/tests"
)

func TestService_Enroll(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	alpha := app.School(t, "Alpha")
	p := app.Principal(t, app.Member(t, alpha, tenant.RoleAdmin, "admin@alpha.test"))

	class := app.Class(t, p, "5A", 30)
	students := make([]school.Student, 31)
	for i := range students {
		students[i] = app.Student(t, p, "S", fmt.Sprint(i))
	}
	app.Enroll(t, p, class.ID, testutil.IDs(students[:28]...)...)

	t.Run("batch over capacity", func(t *testing.T) {
		_, err := app.Schools.Enroll(ctx, p, class.ID, testutil.IDs(students[28:]...))
		require.True(t, core.HasReason(err, core.ReasonCapacityExceeded), "got %v", err)
		assert.EqualError(t, err, "class capacity exceeded: 2 seat(s) available, 3 requested")
	})

	t.Run("unknown students write nothing", func(t *testing.T) {
		_, err := app.Schools.Enroll(ctx, p, class.ID, []string{students[28].ID, "unknown"})
		require.True(t, core.IsNotFound(err), "got %v", err)
		c, err := app.Schools.GetClass(ctx, p, class.ID)
		require.NoError(t, err)
		assert.Equal(t, 28, c.ActiveStudents)
	})

	t.Run("duplicates are counted once", func(t *testing.T) {
		res, err := app.Schools.Enroll(ctx, p, class.ID, []string{students[28].ID, students[28].ID, students[29].ID})
		require.NoError(t, err)
		assert.Equal(t, school.EnrollResult{Enrolled: 2, NewEnrollments: 2}, res)
	})

	t.Run("drop then reactivate", func(t *testing.T) {
		res, err := app.Schools.Unenroll(ctx, p, class.ID, []string{students[0].ID})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Unenrolled)

		// the freed seat goes to whoever asks first
		_, err = app.Schools.Enroll(ctx, p, class.ID, []string{students[30].ID})
		require.NoError(t, err)
		_, err = app.Schools.Enroll(ctx, p, class.ID, []string{students[0].ID})
		require.True(t, core.HasReason(err, core.ReasonCapacityExceeded), "got %v", err)

		_, err = app.Schools.Unenroll(ctx, p, class.ID, []string{students[30].ID})
		require.NoError(t, err)
		res2, err := app.Schools.Enroll(ctx, p, class.ID, []string{students[0].ID})
		require.NoError(t, err)
		assert.Equal(t, school.EnrollResult{Enrolled: 1, Reactivated: 1}, res2)
	})

	t.Run("archived class", func(t *testing.T) {
		other := app.Class(t, p, "5B", 5)
		require.NoError(t, app.Schools.DeleteClass(ctx, p, other.ID))
		_, err := app.Schools.Enroll(ctx, p, other.ID, []string{students[0].ID})
		assert.True(t, core.HasReason(err, core.ReasonInvalidTransition), "got %v", err)
	})
}

func TestService_Enroll_reactivation(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	p := app.Principal(t, app.Member(t, app.School(t, "Alpha"), tenant.RoleAdmin, "admin@alpha.test"))
	class := app.Class(t, p, "5A", 10)
	amani := app.Student(t, p, "Amani", "Juma")

	enrolledAt := time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)
	droppedAt := enrolledAt.AddDate(0, 1, 0)
	reenrolledAt := droppedAt.AddDate(0, 1, 0)

	testutil.SetNow(t, enrolledAt)
	app.Enroll(t, p, class.ID, amani.ID)

	testutil.SetNow(t, droppedAt)
	_, err := app.Schools.Unenroll(ctx, p, class.ID, []string{amani.ID})
	require.NoError(t, err)
	rows := app.Enrollments(t, class.ID, amani.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, school.EnrollmentDropped, rows[0].Status)
	assert.True(t, rows[0].DroppedAt.Valid)

	testutil.SetNow(t, reenrolledAt)
	app.Enroll(t, p, class.ID, amani.ID)

	rows = app.Enrollments(t, class.ID, amani.ID)
	require.Len(t, rows, 1, "one row per student and class")
	assert.Equal(t, school.EnrollmentActive, rows[0].Status)
	assert.True(t, rows[0].EnrolledAt.Equal(reenrolledAt), "enrolled_at = %v", rows[0].EnrolledAt)
	assert.False(t, rows[0].DroppedAt.Valid)
}

func TestService_Enroll_concurrent(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	alpha := app.School(t, "Alpha")
	p := app.Principal(t, app.Member(t, alpha, tenant.RoleAdmin, "admin@alpha.test"))

	class := app.Class(t, p, "5A", 5)
	students := make([]school.Student, 20)
	for i := range students {
		students[i] = app.Student(t, p, "S", fmt.Sprint(i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		enrolled int
	)
	for i := 0; i < len(students); i += 2 {
		wg.Add(1)
		go func(ids []string) {
			defer wg.Done()
			res, err := app.Schools.Enroll(ctx, p, class.ID, ids)
			if err != nil {
				assert.True(t, core.HasReason(err, core.ReasonCapacityExceeded), "got %v", err)
				return
			}
			mu.Lock()
			enrolled += res.Enrolled
			mu.Unlock()
		}(testutil.IDs(students[i], students[i+1]))
	}
	wg.Wait()

	c, err := app.Schools.GetClass(ctx, p, class.ID)
	require.NoError(t, err)
	assert.Equal(t, enrolled, c.ActiveStudents)
	assert.LessOrEqual(t, c.ActiveStudents, c.MaxStudents)
	assert.Equal(t, 4, c.ActiveStudents, "pairs fill four of the five seats")
}

func TestService_Principal(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	alpha := app.School(t, "Alpha")
	admin := app.Member(t, alpha, tenant.RoleAdmin, "admin@alpha.test")
	pA := app.Principal(t, admin)

	teacher := app.Member(t, alpha, tenant.RoleTeacher, "teacher@alpha.test")
	assert.Empty(t, app.Principal(t, teacher).TeacherID, "no teacher profile yet")

	tch := app.Teacher(t, pA, "T", "One")
	require.NoError(t, app.Schools.LinkProfiles(ctx, alpha.ID, tenant.RoleTeacher, teacher.User.ID, tch.ID, nil, nil))
	assert.Equal(t, tch.ID, app.Principal(t, teacher).TeacherID)

	parent := app.Member(t, alpha, tenant.RoleParent, "parent@alpha.test")
	kid1 := app.Student(t, pA, "Kid", "One")
	kid2, err := app.Schools.CreateStudent(ctx, pA, school.NewStudent{FirstName: "Kid", LastName: "Two", ParentUserIDs: []string{parent.User.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{kid2.ID}, app.Principal(t, parent).StudentIDs)
	assert.NotContains(t, app.Principal(t, parent).StudentIDs, kid1.ID)

	root := app.SuperAdmin(t, "root@darasa.test")
	assert.Equal(t, alpha.ID, app.Principal(t, root, " "+alpha.ID+" ").TargetTenantID)
	assert.Empty(t, app.Principal(t, admin, alpha.ID).TargetTenantID, "only superadmins target tenants")
}
