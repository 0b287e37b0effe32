package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/tenant"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword     // mockable
	migrateFunc      = database.RunMigration // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	users    *user.Service
	tenants  *tenant.Service
	payments *payment.Service
	out      io.Writer
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  migrate COMMAND [ARGS] - run a migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)\n")
	cli.printf("  createsuperadmin -email EMAIL -name NAME - create a platform superadmin\n")
	cli.printf("  resetpassword -email EMAIL - reset user's password\n")
	cli.printf("  flipoverdue - mark the pending payments past their due date as overdue\n")
}

func (cli *commandLine) readPassword() (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createSuperAdminCmd := flag.NewFlagSet("createsuperadmin", flag.ContinueOnError)
	createSuperAdminEmail := createSuperAdminCmd.String("email", "", "The superadmin's email. The password will be prompted next.")
	createSuperAdminName := createSuperAdminCmd.String("name", "", "The superadmin's name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "createsuperadmin":
		if err := createSuperAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createSuperAdminEmail == "" || *createSuperAdminName == "" {
			createSuperAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			createSuperAdminCmd.Usage()
			return errHelp
		}
		return cli.createSuperAdmin(ctx, *createSuperAdminName, *createSuperAdminEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	case "flipoverdue":
		return cli.flipOverdue(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}
