package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"time"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/apps/shared"
	"github.com/trezcool/darasa/core"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/services/queue"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger, err := logsvc.New(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := shared.NewApp(ctx, conf, true)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up application: %v", err), err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("closing application", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{
		"env":     conf.Env,
		"storage": conf.Storage,
	})
	defer logger.Info("Application stopped")

	// jobs kept in memory are delivered by this process
	if app.InProcessQueue {
		worker := queue.NewWorker(app.Queue, shared.NewMailer(conf, logger), logger)
		worker.PollTimeout = time.Second
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("worker stopped", err)
			}
		}()
		logger.Warn("no redis configured: jobs are delivered in process")
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	if conf.Server.DebugAddress != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        app.Validate,
		Translator:      app.Translator,
		UserSvc:         app.Users,
		TenantSvc:       app.Tenants,
		AuthSvc:         app.Auth,
		SchoolSvc:       app.Schools,
		AttendanceSvc:   app.Attendance,
		PaymentSvc:      app.Payments,
		NoticeSvc:       app.Notices,
		NotificationSvc: app.Notifications,
		DashboardSvc:    app.Dashboard,
		DB:              app.DB,
		Queue:           app.Queue,
	})

	go server.Start()
	logger.Info("API listening on " + conf.Server.Address)

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
