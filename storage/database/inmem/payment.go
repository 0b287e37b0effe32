package inmemdb

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/stats"
)

type paymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db}
}

func paymentVisible(scope policy.Filter, pmt payment.Payment) bool {
	if !inTenant(scope.TenantID, pmt.TenantID) {
		return false
	}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		return false
	case policy.NarrowStudents:
		return contains(scope.StudentIDs, pmt.StudentID)
	}
	return true
}

func matchPayment(filter payment.Filter, pmt payment.Payment) bool {
	switch {
	case filter.StudentID != "" && pmt.StudentID != filter.StudentID,
		filter.Status != "" && pmt.Status != filter.Status,
		!filter.From.IsZero() && pmt.DueDate.Before(filter.From),
		!filter.To.IsZero() && pmt.DueDate.After(filter.To):
		return false
	}
	return true
}

func (repo *paymentRepository) CreatePayment(_ context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	defer repo.db.lockWrite(exec...)()

	repo.db.payments[pmt.ID] = pmt
	return pmt, nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, scope policy.Filter, id string, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	pmt, ok := repo.db.payments[id]
	if !ok || !paymentVisible(scope, pmt) {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pmt, nil
}

func (repo *paymentRepository) GetPayments(_ context.Context, scope policy.Filter, ids []string, _ ...core.DBExecutor) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []payment.Payment
	for _, id := range ids {
		if pmt, ok := repo.db.payments[id]; ok && paymentVisible(scope, pmt) {
			rows = append(rows, pmt)
		}
	}
	return rows, nil
}

func (repo *paymentRepository) QueryPayments(
	_ context.Context,
	scope policy.Filter,
	filter payment.Filter,
	ords []core.DBOrdering,
	page core.Pagination,
) ([]payment.Payment, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []payment.Payment
	for _, pmt := range repo.db.payments {
		if paymentVisible(scope, pmt) && matchPayment(filter, pmt) {
			rows = append(rows, pmt)
		}
	}
	sortRows(rows, ords, func(pmt payment.Payment, col string) interface{} {
		switch col {
		case "amount":
			return pmt.Amount
		case "due_date":
			return pmt.DueDate
		case "status":
			return string(pmt.Status)
		case "paid_at":
			return pmt.PaidAt
		}
		return pmt.CreatedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *paymentRepository) UpdatePayment(_ context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	defer repo.db.lockWrite(exec...)()

	if _, ok := repo.db.payments[pmt.ID]; !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	repo.db.payments[pmt.ID] = pmt
	return pmt, nil
}

func (repo *paymentRepository) SetPaymentsStatus(
	_ context.Context,
	ids []string,
	status payment.Status,
	method null.String,
	paidAt null.Time,
	exec ...core.DBExecutor,
) (int, error) {
	defer repo.db.lockWrite(exec...)()

	n := 0
	now := core.NowFunc()
	for _, id := range ids {
		pmt, ok := repo.db.payments[id]
		if !ok {
			continue
		}
		pmt.Status = status
		if paidAt.Valid {
			pmt.PaidAt = paidAt
			pmt.Method = method
		}
		pmt.UpdatedAt = now
		repo.db.payments[id] = pmt
		n++
	}
	return n, nil
}

func (repo *paymentRepository) FlipOverdue(_ context.Context, scope policy.Filter, before time.Time) (int, error) {
	defer repo.db.lockWrite()()

	n := 0
	now := core.NowFunc()
	for id, pmt := range repo.db.payments {
		if pmt.Status != payment.StatusPending || !pmt.DueDate.Before(before) || !paymentVisible(scope, pmt) {
			continue
		}
		pmt.Status = payment.StatusOverdue
		pmt.UpdatedAt = now
		repo.db.payments[id] = pmt
		n++
	}
	return n, nil
}

func (repo *paymentRepository) CountPayments(_ context.Context, scope policy.Filter, filter payment.Filter) (stats.PaymentCounts, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var c stats.PaymentCounts
	for _, pmt := range repo.db.payments {
		if !paymentVisible(scope, pmt) || !matchPayment(filter, pmt) {
			continue
		}
		switch pmt.Status {
		case payment.StatusPending:
			c.Pending++
			c.AmountPending += pmt.Amount
		case payment.StatusPaid:
			c.Paid++
			c.AmountPaid += pmt.Amount
		case payment.StatusOverdue:
			c.Overdue++
			c.AmountOverdue += pmt.Amount
		case payment.StatusCancelled:
			c.Cancelled++
			c.AmountCancelled += pmt.Amount
		}
	}
	return c, nil
}
