package main

import (
	"context"

	"github.com/trezcool/darasa/core/user"
)

func (cli *commandLine) createSuperAdmin(ctx context.Context, name, email, pwd string) error {
	mbr, err := cli.tenants.CreateSuperAdmin(ctx, user.NewUser{Name: name, Email: email, Password: pwd})
	if err != nil {
		return err
	}
	cli.printf("superadmin %s created (member %s)\n", mbr.Email, mbr.ID)
	return nil
}

func (cli *commandLine) flipOverdue(ctx context.Context) error {
	n, err := cli.payments.FlipAllOverdue(ctx)
	if err != nil {
		return err
	}
	cli.printf("%d payment(s) marked overdue\n", n)
	return nil
}
