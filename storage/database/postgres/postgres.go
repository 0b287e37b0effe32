// Package pgrepos implements the domain repositories on PostgreSQL with sqlx and squirrel.
package pgrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type repository struct {
	db *sqlx.DB
}

// exec returns the transaction passed down by the caller, or the pool.
func (repo repository) exec(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return repo.db
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, exec, dest, q, args...)
}

func sel(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, exec, dest, q, args...)
}

func run(ctx context.Context, exec core.DBExecutor, b sq.Sqlizer) (int, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func count(ctx context.Context, exec core.DBExecutor, from sq.SelectBuilder) (int, error) {
	var total int
	err := get(ctx, exec, &total, psql.Select("count(*)").FromSelect(from, "x"))
	return total, err
}

// page selects one page of `from` ordered by ords, plus the total row count.
func page(
	ctx context.Context,
	exec core.DBExecutor,
	dest interface{},
	from sq.SelectBuilder,
	ords []core.DBOrdering,
	pg core.Pagination,
) (int, error) {
	total, err := count(ctx, exec, from)
	if err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}
	b := psql.Select("*").FromSelect(from, "x")
	for _, ord := range ords {
		b = b.OrderBy("x." + ord.String())
	}
	if pg.Limit > 0 {
		b = b.Limit(uint64(pg.Limit)).Offset(uint64(pg.Offset()))
	}
	return total, sel(ctx, exec, dest, b)
}

func isNoRows(err error) bool {
	return errors.Cause(err) == sql.ErrNoRows
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}
