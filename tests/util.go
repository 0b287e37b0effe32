// Package testutil wires the services on the in-memory store (or PostgreSQL) and seeds fixtures for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/auth"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/notice"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/tenant"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/queue"
	"github.com/trezcool/darasa/storage/database"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	pgrepos "github.com/trezcool/darasa/storage/database/postgres"
)

const Password = "Str0ng&Secret!"

// App is the full service graph, on the in-memory store unless built by NewPostgresApp.
type App struct {
	Conf       *core.Config
	DB         *inmemdb.DB // nil on PostgreSQL
	Queue      *queue.MemoryQueue
	Validate   *validator.Validate
	Translator ut.Translator

	TenantRepo tenant.Repository
	SchoolRepo school.Repository

	Users         *user.Service
	Tenants       *tenant.Service
	Auth          *auth.Service
	Schools       *school.Service
	Attendance    *attendance.Service
	Payments      *payment.Service
	Notices       *notice.Service
	Notifications *notification.Service
	Dashboard     *dashboard.Service
}

func NewApp(t *testing.T) *App {
	t.Helper()
	db := inmemdb.Open()
	app := newApp(t, repositories{
		users:         inmemdb.NewUserRepository(db),
		tenants:       inmemdb.NewTenantRepository(db),
		schools:       inmemdb.NewSchoolRepository(db),
		attendance:    inmemdb.NewAttendanceRepository(db),
		payments:      inmemdb.NewPaymentRepository(db),
		notices:       inmemdb.NewNoticeRepository(db),
		notifications: inmemdb.NewNotificationRepository(db),
		tx:            db,
	})
	app.DB = db
	return app
}

// NewPostgresApp wires the services on a migrated PostgreSQL database.
func NewPostgresApp(t *testing.T, db *sqlx.DB) *App {
	t.Helper()
	return newApp(t, repositories{
		users:         pgrepos.NewUserRepository(db),
		tenants:       pgrepos.NewTenantRepository(db),
		schools:       pgrepos.NewSchoolRepository(db),
		attendance:    pgrepos.NewAttendanceRepository(db),
		payments:      pgrepos.NewPaymentRepository(db),
		notices:       pgrepos.NewNoticeRepository(db),
		notifications: pgrepos.NewNotificationRepository(db),
		tx:            database.NewTransactor(db),
	})
}

type repositories struct {
	users         user.Repository
	tenants       tenant.Repository
	schools       school.Repository
	attendance    attendance.Repository
	payments      payment.Repository
	notices       notice.Repository
	notifications notification.Repository
	tx            core.Transactor
}

func newApp(t *testing.T, repos repositories) *App {
	t.Helper()

	conf := core.NewTestConfig()
	q := queue.NewMemoryQueue()
	tx := repos.tx

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	tenant.RegisterValidators(validate, translator)

	app := &App{
		Conf:       conf,
		Queue:      q,
		Validate:   validate,
		Translator: translator,
		TenantRepo: repos.tenants,
		SchoolRepo: repos.schools,
	}
	app.Users = user.NewService(repos.users, q, conf)
	app.Schools = school.NewService(repos.schools, tx)
	app.Tenants = tenant.NewService(app.TenantRepo, app.Users, tx, q, app.Schools, conf)
	app.Auth = auth.NewService(app.Users, app.Tenants, conf)
	app.Attendance = attendance.NewService(repos.attendance, app.Schools, tx)
	app.Payments = payment.NewService(repos.payments, app.Schools, tx, conf)
	app.Notices = notice.NewService(repos.notices, tx)
	app.Notifications = notification.NewService(repos.notifications, app.Tenants, tx, q, conf)
	app.Dashboard = dashboard.NewService(app.Schools, app.Attendance, app.Payments, app.Notifications)
	return app
}

// Member is a seeded user and their membership.
type Member struct {
	User   user.User
	Member tenant.Member
}

// School creates an ACTIVE tenant.
func (app *App) School(t *testing.T, name string) tenant.Tenant {
	t.Helper()
	now := core.NowFunc()
	tnt, err := app.TenantRepo.CreateTenant(context.Background(), tenant.Tenant{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      core.Slugify(name),
		Status:    tenant.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return tnt
}

// Member creates an ACTIVE user (password: Password) with an ACTIVE membership in tnt.
// An existing user with the same email is reused.
func (app *App) Member(t *testing.T, tnt tenant.Tenant, role tenant.Role, email string) Member {
	t.Helper()
	ctx := context.Background()

	usr, err := app.Users.GetByEmail(ctx, email)
	if core.IsNotFound(err) {
		usr, err = app.Users.Create(ctx, user.NewUser{
			Name:     email,
			Email:    email,
			Password: Password,
			Status:   user.StatusActive,
		})
	}
	require.NoError(t, err)

	now := core.NowFunc()
	_, err = app.TenantRepo.CreateMembership(ctx, tenant.Membership{
		ID:          uuid.New().String(),
		UserID:      usr.ID,
		TenantID:    tnt.ID,
		Role:        role,
		Permissions: tenant.Permissions{},
		Status:      tenant.MembershipActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)

	mbr, err := app.Tenants.GetMemberByUser(ctx, tnt.ID, usr.ID)
	require.NoError(t, err)
	return Member{User: usr, Member: mbr}
}

// SuperAdmin creates a platform SUPERADMIN.
func (app *App) SuperAdmin(t *testing.T, email string) Member {
	t.Helper()
	ctx := context.Background()
	mbr, err := app.Tenants.CreateSuperAdmin(ctx, user.NewUser{Name: "Root", Email: email, Password: Password})
	require.NoError(t, err)
	usr, err := app.Users.GetByID(ctx, mbr.UserID)
	require.NoError(t, err)
	return Member{User: usr, Member: mbr}
}

func (app *App) Claims(m Member) auth.Claims {
	return auth.NewClaims(m.User, m.Member, app.Conf.AppName, app.Conf.Server.JWTExpirationDelta, core.NowFunc())
}

// Principal resolves the request principal of m, as the bearer middleware does.
func (app *App) Principal(t *testing.T, m Member, targetTenant ...string) policy.Principal {
	t.Helper()
	var target string
	if len(targetTenant) > 0 {
		target = targetTenant[0]
	}
	p, err := app.Schools.Principal(context.Background(), app.Claims(m), target)
	require.NoError(t, err)
	return p
}

// Token signs a session token for m.
func (app *App) Token(t *testing.T, m Member) string {
	t.Helper()
	token, err := app.Auth.Issue(app.Claims(m))
	require.NoError(t, err)
	return token
}

func (app *App) Student(t *testing.T, p policy.Principal, first, last string) school.Student {
	t.Helper()
	s, err := app.Schools.CreateStudent(context.Background(), p, school.NewStudent{FirstName: first, LastName: last, Grade: "5"})
	require.NoError(t, err)
	return s
}

func (app *App) Teacher(t *testing.T, p policy.Principal, first, last string) school.Teacher {
	t.Helper()
	tch, err := app.Schools.CreateTeacher(context.Background(), p, school.NewTeacher{FirstName: first, LastName: last})
	require.NoError(t, err)
	return tch
}

func (app *App) Class(t *testing.T, p policy.Principal, name string, maxStudents int, teacherID ...string) school.Class {
	t.Helper()
	nc := school.NewClass{Name: name, Grade: "5", MaxStudents: maxStudents}
	if len(teacherID) > 0 {
		nc.TeacherID = teacherID[0]
	}
	c, err := app.Schools.CreateClass(context.Background(), p, nc)
	require.NoError(t, err)
	return c
}

func (app *App) Lesson(t *testing.T, p policy.Principal, classID string, startsAt time.Time) school.Lesson {
	t.Helper()
	l, err := app.Schools.CreateLesson(context.Background(), p, school.NewLesson{
		ClassID:  classID,
		Title:    "Lesson",
		StartsAt: startsAt,
		EndsAt:   startsAt.Add(time.Hour),
	})
	require.NoError(t, err)
	return l
}

// Enroll enrolls students into classID and fails the test on error.
func (app *App) Enroll(t *testing.T, p policy.Principal, classID string, studentIDs ...string) {
	t.Helper()
	_, err := app.Schools.Enroll(context.Background(), p, classID, studentIDs)
	require.NoError(t, err)
}

// Enrollments returns the enrollment rows, in any status, of studentIDs in classID.
func (app *App) Enrollments(t *testing.T, classID string, studentIDs ...string) []school.Enrollment {
	t.Helper()
	rows, err := app.SchoolRepo.QueryEnrollments(context.Background(), classID, studentIDs)
	require.NoError(t, err)
	return rows
}

// SetNow freezes core.NowFunc at now until the test ends.
func SetNow(t *testing.T, now time.Time) {
	orig := core.NowFunc
	t.Cleanup(func() { core.NowFunc = orig })
	core.NowFunc = func() time.Time { return now }
}

// IDs returns the ids of students.
func IDs(students ...school.Student) []string {
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	return ids
}
