package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/stats"
)

type paymentRepository struct {
	repository
}

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{repository{db: db}}
}

var paymentQuery = psql.Select(
	"p.id", "p.tenant_id", "p.student_id", "p.amount", "p.currency", "p.description", "p.due_date",
	"p.status", "p.method", "p.paid_at", "p.created_at", "p.updated_at",
).From("payments p")

func filterPayments(q sq.SelectBuilder, filter payment.Filter) sq.SelectBuilder {
	if filter.StudentID != "" {
		q = q.Where(sq.Eq{"p.student_id": filter.StudentID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"p.status": filter.Status})
	}
	if !filter.From.IsZero() {
		q = q.Where(sq.GtOrEq{"p.due_date": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(sq.LtOrEq{"p.due_date": filter.To})
	}
	return q
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("payments").
		Columns("id", "tenant_id", "student_id", "amount", "currency", "description", "due_date", "status", "method", "paid_at", "created_at", "updated_at").
		Values(pmt.ID, pmt.TenantID, pmt.StudentID, pmt.Amount, pmt.Currency, pmt.Description, pmt.DueDate, pmt.Status, pmt.Method, pmt.PaidAt, pmt.CreatedAt, pmt.UpdatedAt))
	return pmt, errors.Wrap(err, "inserting payment")
}

func (repo *paymentRepository) GetPayment(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (payment.Payment, error) {
	var pmt payment.Payment
	err := get(ctx, repo.exec(exec), &pmt, paymentQuery.Where(paymentScope(scope)).Where(sq.Eq{"p.id": id}))
	if isNoRows(err) {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pmt, errors.Wrap(err, "selecting payment")
}

func (repo *paymentRepository) GetPayments(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]payment.Payment, error) {
	var rows []payment.Payment
	err := sel(ctx, repo.exec(exec), &rows, paymentQuery.Where(paymentScope(scope)).Where(anyOf("p.id", ids)).Suffix("FOR UPDATE"))
	return rows, errors.Wrap(err, "selecting payments")
}

func (repo *paymentRepository) QueryPayments(
	ctx context.Context,
	scope policy.Filter,
	filter payment.Filter,
	ords []core.DBOrdering,
	pg core.Pagination,
) ([]payment.Payment, int, error) {
	q := filterPayments(paymentQuery.Where(paymentScope(scope)), filter)
	var rows []payment.Payment
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting payments")
}

func (repo *paymentRepository) UpdatePayment(ctx context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("payments").
		SetMap(map[string]interface{}{
			"amount":      pmt.Amount,
			"currency":    pmt.Currency,
			"description": pmt.Description,
			"due_date":    pmt.DueDate,
			"status":      pmt.Status,
			"method":      pmt.Method,
			"paid_at":     pmt.PaidAt,
			"updated_at":  pmt.UpdatedAt,
		}).
		Where(sq.Eq{"id": pmt.ID}))
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "updating payment")
	}
	if n == 0 {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pmt, nil
}

func (repo *paymentRepository) SetPaymentsStatus(
	ctx context.Context,
	ids []string,
	status payment.Status,
	method null.String,
	paidAt null.Time,
	exec ...core.DBExecutor,
) (int, error) {
	q := psql.Update("payments").
		Set("status", status).
		Set("updated_at", core.NowFunc()).
		Where(anyOf("id", ids))
	if paidAt.Valid {
		q = q.Set("paid_at", paidAt).Set("method", method)
	}
	n, err := run(ctx, repo.exec(exec), q)
	return n, errors.Wrap(err, "updating payments status")
}

func (repo *paymentRepository) FlipOverdue(ctx context.Context, scope policy.Filter, before time.Time) (int, error) {
	n, err := run(ctx, repo.db, psql.Update("payments p").
		Set("status", payment.StatusOverdue).
		Set("updated_at", core.NowFunc()).
		Where(paymentScope(scope)).
		Where(sq.Eq{"p.status": payment.StatusPending}).
		Where(sq.Lt{"p.due_date": before}))
	return n, errors.Wrap(err, "flipping overdue payments")
}

func (repo *paymentRepository) CountPayments(ctx context.Context, scope policy.Filter, filter payment.Filter) (stats.PaymentCounts, error) {
	q := psql.Select(
		"count(*) FILTER (WHERE p.status = 'PENDING') AS pending",
		"count(*) FILTER (WHERE p.status = 'PAID') AS paid",
		"count(*) FILTER (WHERE p.status = 'OVERDUE') AS overdue",
		"count(*) FILTER (WHERE p.status = 'CANCELLED') AS cancelled",
		"coalesce(sum(p.amount) FILTER (WHERE p.status = 'PENDING'), 0)::bigint AS amount_pending",
		"coalesce(sum(p.amount) FILTER (WHERE p.status = 'PAID'), 0)::bigint AS amount_paid",
		"coalesce(sum(p.amount) FILTER (WHERE p.status = 'OVERDUE'), 0)::bigint AS amount_overdue",
		"coalesce(sum(p.amount) FILTER (WHERE p.status = 'CANCELLED'), 0)::bigint AS amount_cancelled",
	).
		From("payments p").
		Where(paymentScope(scope))

	var c struct {
		Pending         int   `db:"pending"`
		Paid            int   `db:"paid"`
		Overdue         int   `db:"overdue"`
		Cancelled       int   `db:"cancelled"`
		AmountPending   int64 `db:"amount_pending"`
		AmountPaid      int64 `db:"amount_paid"`
		AmountOverdue   int64 `db:"amount_overdue"`
		AmountCancelled int64 `db:"amount_cancelled"`
	}
	if err := get(ctx, repo.db, &c, filterPayments(q, filter)); err != nil {
		return stats.PaymentCounts{}, errors.Wrap(err, "counting payments")
	}
	return stats.PaymentCounts{
		Pending:         c.Pending,
		Paid:            c.Paid,
		Overdue:         c.Overdue,
		Cancelled:       c.Cancelled,
		AmountPending:   c.AmountPending,
		AmountPaid:      c.AmountPaid,
		AmountOverdue:   c.AmountOverdue,
		AmountCancelled: c.AmountCancelled,
	}, nil
}
