package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/darasa/apps/shared"
	"github.com/trezcool/darasa/core"
	logsvc "github.com/trezcool/darasa/services/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()

	logger, err := logsvc.New(conf)
	if err != nil {
		log.Printf("setting up logger: %v", err)
		return 1
	}
	defer logger.Close()

	ctx := context.Background()
	app, err := shared.NewApp(ctx, conf, false)
	if err != nil {
		logger.Error(fmt.Sprintf("setting up application: %v", err), err)
		return 1
	}
	defer func() { _ = app.Close() }()

	cli := commandLine{
		db:       app.SQLDB(),
		users:    app.Users,
		tenants:  app.Tenants,
		payments: app.Payments,
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		return 1
	}
	return 0
}
