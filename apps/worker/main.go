package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trezcool/darasa/apps/shared"
	"github.com/trezcool/darasa/core"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/services/queue"
)

const overdueInterval = time.Hour

func main() {
	conf := core.NewConfig()

	logger, err := logsvc.New(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shared.NewApp(ctx, conf, false)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up application: %v", err), err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("closing application", err)
		}
	}()
	if app.InProcessQueue {
		logger.Warn("no redis configured: only jobs enqueued by this process are delivered")
	}

	worker := queue.NewWorker(app.Queue, shared.NewMailer(conf, logger), logger)
	worker.Every(ctx, overdueInterval, "flip_overdue", func(ctx context.Context) error {
		n, err := app.Payments.FlipAllOverdue(ctx)
		if n > 0 {
			logger.Info("payments marked overdue", map[string]interface{}{"count": n})
		}
		return err
	})

	logger.Info(fmt.Sprintf("Worker started : version %q", conf.Build))
	if err = worker.Run(ctx); err != nil {
		logger.Error("worker stopped", err)
	}
	logger.Info("Worker stopped")
}
