// Package shared builds the service graph the api, admin and worker binaries run on.
package shared

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/auth"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/notice"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/tenant"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/services/queue"
	"github.com/trezcool/darasa/storage/database"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	pgrepos "github.com/trezcool/darasa/storage/database/postgres"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type (
	// Pinger is a dependency health checks call.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// JobSource is the queue the worker drains.
	JobSource interface {
		core.JobQueue
		queue.Source
		Pinger
	}

	App struct {
		Conf       *core.Config
		Validate   *validator.Validate
		Translator ut.Translator

		DB    Pinger
		Queue JobSource
		// InProcessQueue is set when jobs are kept in memory: only the process that enqueued them can deliver them.
		InProcessQueue bool

		Users         *user.Service
		Tenants       *tenant.Service
		Auth          *auth.Service
		Schools       *school.Service
		Attendance    *attendance.Service
		Payments      *payment.Service
		Notices       *notice.Service
		Notifications *notification.Service
		Dashboard     *dashboard.Service

		sqlDB  *sqlx.DB
		client *redis.Client
	}

	repositories struct {
		users         user.Repository
		tenants       tenant.Repository
		schools       school.Repository
		attendance    attendance.Repository
		payments      payment.Repository
		notices       notice.Repository
		notifications notification.Repository
		tx            core.Transactor
	}
)

// pgPinger checks the pool within the configured query timeout.
type pgPinger struct {
	db   *sqlx.DB
	conf *core.Config
}

func (p pgPinger) Ping(ctx context.Context) error {
	return database.StatusCheck(ctx, p.db, p.conf.Database.QueryTimeout)
}

// NewApp opens the configured storage and queue, and wires the services on them.
// With migrate set, the PostgreSQL database is created if needed and migrated.
func NewApp(ctx context.Context, conf *core.Config, migrate bool) (*App, error) {
	app := &App{Conf: conf}

	var repos repositories
	switch conf.Storage {
	case StorageMemory:
		db := inmemdb.Open()
		app.DB = db
		repos = repositories{
			users:         inmemdb.NewUserRepository(db),
			tenants:       inmemdb.NewTenantRepository(db),
			schools:       inmemdb.NewSchoolRepository(db),
			attendance:    inmemdb.NewAttendanceRepository(db),
			payments:      inmemdb.NewPaymentRepository(db),
			notices:       inmemdb.NewNoticeRepository(db),
			notifications: inmemdb.NewNotificationRepository(db),
			tx:            db,
		}
	case StoragePostgres, "":
		db, err := openPostgres(ctx, conf, migrate)
		if err != nil {
			return nil, err
		}
		app.sqlDB = db
		app.DB = pgPinger{db: db, conf: conf}
		repos = repositories{
			users:         pgrepos.NewUserRepository(db),
			tenants:       pgrepos.NewTenantRepository(db),
			schools:       pgrepos.NewSchoolRepository(db),
			attendance:    pgrepos.NewAttendanceRepository(db),
			payments:      pgrepos.NewPaymentRepository(db),
			notices:       pgrepos.NewNoticeRepository(db),
			notifications: pgrepos.NewNotificationRepository(db),
			tx:            database.NewTransactor(db),
		}
	default:
		return nil, errors.Errorf("unknown storage %q", conf.Storage)
	}

	if conf.Redis.Address != "" {
		app.client = queue.NewRedisClient(conf.Redis)
		app.Queue = queue.NewRedisQueue(app.client, conf.Redis.QueueKey)
	} else {
		app.Queue = queue.NewMemoryQueue()
		app.InProcessQueue = true
	}

	app.Translator = core.NewTranslator()
	app.Validate = validator.New()
	core.InitValidators(app.Validate, app.Translator)
	user.RegisterValidators(app.Validate, app.Translator)
	tenant.RegisterValidators(app.Validate, app.Translator)

	app.wire(repos)
	return app, nil
}

func (app *App) wire(repos repositories) {
	conf, q, tx := app.Conf, app.Queue, repos.tx

	app.Users = user.NewService(repos.users, q, conf)
	app.Schools = school.NewService(repos.schools, tx)
	app.Tenants = tenant.NewService(repos.tenants, app.Users, tx, q, app.Schools, conf)
	app.Auth = auth.NewService(app.Users, app.Tenants, conf)
	app.Attendance = attendance.NewService(repos.attendance, app.Schools, tx)
	app.Payments = payment.NewService(repos.payments, app.Schools, tx, conf)
	app.Notices = notice.NewService(repos.notices, tx)
	app.Notifications = notification.NewService(repos.notifications, app.Tenants, tx, q, conf)
	app.Dashboard = dashboard.NewService(app.Schools, app.Attendance, app.Payments, app.Notifications)
}

// SQLDB returns the PostgreSQL pool, nil on the in-memory store.
func (app *App) SQLDB() *sqlx.DB {
	return app.sqlDB
}

// Close releases the database pool and the redis client.
func (app *App) Close() error {
	var err error
	if app.client != nil {
		err = errors.Wrap(app.client.Close(), "closing redis")
	}
	if app.sqlDB != nil {
		if dbErr := app.sqlDB.Close(); dbErr != nil && err == nil {
			err = errors.Wrap(dbErr, "closing database")
		}
	}
	return err
}

func openPostgres(ctx context.Context, conf *core.Config, migrate bool) (*sqlx.DB, error) {
	if migrate {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err = database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// NewMailer prints emails to the console in debug mode, or without SendGrid credentials.
func NewMailer(conf *core.Config, logger core.Logger) queue.Sender {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}
