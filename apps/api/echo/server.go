package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
	"github.com/trezcool/darasa/services/metrics"
)

type (
	// Pinger is a dependency /healthz checks.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc         *user.Service
		TenantSvc       *tenant.Service
		AuthSvc         *auth.Service
		SchoolSvc       *school.Service
		AttendanceSvc   *attendance.Service
		PaymentSvc      *payment.Service
		NoticeSvc       *notice.Service
		NotificationSvc *notification.Service
		DashboardSvc    *dashboard.Service

		DB    Pinger
		Queue Pinger
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metrics.Middleware())

	s.app.GET("/", home)
	s.app.GET("/healthz", s.healthz)
	s.app.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := s.app.Group("/v1")
	authed := bearerAuth(s.deps.AuthSvc, s.deps.SchoolSvc)

	registerAuthAPI(v1, authed, s.deps)
	registerTenantAPI(v1, authed, s.deps)
	registerMemberAPI(v1, authed, s.deps)
	registerStudentAPI(v1, authed, s.deps)
	registerTeacherAPI(v1, authed, s.deps)
	registerClassAPI(v1, authed, s.deps)
	registerLessonAPI(v1, authed, s.deps)
	registerAttendanceAPI(v1, authed, s.deps)
	registerPaymentAPI(v1, authed, s.deps)
	registerNoticeAPI(v1, authed, s.deps)
	registerNotificationAPI(v1, authed, s.deps)
	registerStatsAPI(v1, authed, s.deps)
	registerExportAPI(v1, authed, s.deps)
}

// Start listens until the server is shut down; listener errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Darasa API!")
}

func (s *Server) healthz(ctx echo.Context) error {
	checks := map[string]string{}
	code := http.StatusOK
	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		c, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()
		start := time.Now()
		err := p.Ping(c)
		if name == "db" {
			metrics.ObserveDBPing(time.Since(start))
		}
		if err != nil {
			s.deps.Logger.Warn("health check failed", err, map[string]interface{}{"check": name})
			checks[name] = "unavailable"
			code = http.StatusServiceUnavailable
			return
		}
		checks[name] = "ok"
	}
	check("db", s.deps.DB)
	check("queue", s.deps.Queue)

	status := "ok"
	if code != http.StatusOK {
		status = "degraded"
	}
	return ctx.JSON(code, echo.Map{"status": status, "build": s.deps.Conf.Build, "checks": checks})
}
