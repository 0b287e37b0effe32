package main

import (
	"context"
)

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = cli.users.SetPassword(ctx, usr, pwd)
	return err
}
