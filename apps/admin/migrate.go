package main

import (
	"context"

	"github.com/pkg/errors"
)

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if cli.db == nil {
		return errors.New("migrations need the postgres storage")
	}
	return migrateFunc(ctx, cli.db, args[0], args[1:]...)
}
