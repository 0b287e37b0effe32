package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/stats"
)

var ErrNotFound = core.NewNotFoundError("payment")

type Repository interface {
	CreatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
	GetPayment(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (Payment, error)
	// GetPayments returns the payments in scope among ids.
	GetPayments(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]Payment, error)
	QueryPayments(ctx context.Context, scope policy.Filter, filter Filter, ords []core.DBOrdering, page core.Pagination) ([]Payment, int, error)
	UpdatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
	SetPaymentsStatus(ctx context.Context, ids []string, status Status, method null.String, paidAt null.Time, exec ...core.DBExecutor) (int, error)
	// FlipOverdue marks the PENDING payments in scope due before `before` as OVERDUE, in one update.
	FlipOverdue(ctx context.Context, scope policy.Filter, before time.Time) (int, error)
	CountPayments(ctx context.Context, scope policy.Filter, filter Filter) (stats.PaymentCounts, error)
}

type Service struct {
	repo    Repository
	schools *school.Service
	tx      core.Transactor
	conf    *core.Config
}

func NewService(repo Repository, schools *school.Service, tx core.Transactor, conf *core.Config) *Service {
	return &Service{repo: repo, schools: schools, tx: tx, conf: conf}
}

func (svc *Service) Create(ctx context.Context, p policy.Principal, np NewPayment) (Payment, error) {
	if err := policy.Authorize(p, policy.PaymentsWrite, policy.Context{}); err != nil {
		return Payment{}, err
	}
	std, err := svc.schools.GetStudent(ctx, p, np.StudentID)
	if core.IsNotFound(err) {
		return Payment{}, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "student not found"})
	} else if err != nil {
		return Payment{}, err
	}

	currency := np.Currency
	if currency == "" {
		currency = svc.conf.DefaultCurrency
	}
	now := core.NowFunc()
	pmt := Payment{
		ID:          uuid.New().String(),
		TenantID:    std.TenantID,
		StudentID:   std.ID,
		Amount:      np.Amount,
		Currency:    currency,
		Description: np.Description,
		DueDate:     dateOf(np.DueDate),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	pmt, err = svc.repo.CreatePayment(ctx, pmt)
	return pmt, errors.Wrap(err, "creating payment")
}

func (svc *Service) Get(ctx context.Context, p policy.Principal, id string) (Payment, error) {
	if err := policy.Authorize(p, policy.PaymentsRead, policy.Context{}); err != nil {
		return Payment{}, err
	}
	pmt, err := svc.repo.GetPayment(ctx, policy.Scope(p), id)
	if err != nil {
		return Payment{}, err
	}
	return pmt, policy.Authorize(p, policy.PaymentsRead, policy.On("payment", pmt.TenantID, nil))
}

func (svc *Service) Query(
	ctx context.Context,
	p policy.Principal,
	filter Filter,
	ords []core.DBOrdering,
	page core.Pagination,
) (core.Page[Payment], error) {
	if err := policy.Authorize(p, policy.PaymentsRead, policy.Context{}); err != nil {
		return core.Page[Payment]{}, err
	}
	if err := Lifecycle.CheckFilter(filter.Status); err != nil {
		return core.Page[Payment]{}, err
	}
	ords = Ordering.Resolve(ords, core.DBOrdering{Field: "due_date", Ascending: true})
	payments, total, err := svc.repo.QueryPayments(ctx, policy.Scope(p), filter, ords, page)
	if err != nil {
		return core.Page[Payment]{}, errors.Wrap(err, "querying payments")
	}
	return core.NewPage(payments, page, total), nil
}

func (svc *Service) UpdateStatus(ctx context.Context, p policy.Principal, id string, us UpdateStatus) (Payment, error) {
	if err := policy.Authorize(p, policy.PaymentsWrite, policy.Context{}); err != nil {
		return Payment{}, err
	}
	pmt, err := svc.repo.GetPayment(ctx, policy.Scope(p), id)
	if err != nil {
		return Payment{}, err
	}
	if err = Lifecycle.Transition(pmt.Status, us.Status); err != nil {
		return Payment{}, err
	}
	pmt.Status = us.Status
	if us.Status == StatusPaid {
		pmt.PaidAt = null.TimeFrom(core.NowFunc())
		pmt.Method = null.NewString(us.Method, us.Method != "")
	}
	pmt.UpdatedAt = core.NowFunc()
	pmt, err = svc.repo.UpdatePayment(ctx, pmt)
	return pmt, errors.Wrap(err, "updating payment")
}

// BulkUpdateStatus validates every transition first and applies them in one batched update.
// A single unknown id or disallowed transition rejects the whole batch.
func (svc *Service) BulkUpdateStatus(ctx context.Context, p policy.Principal, bu BulkUpdateStatus) (core.BulkResult, error) {
	if err := policy.Authorize(p, policy.PaymentsWrite, policy.Context{}); err != nil {
		return core.BulkResult{}, err
	}

	var res core.BulkResult
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		payments, err := svc.repo.GetPayments(ctx, policy.Scope(p), bu.IDs, exec)
		if err != nil {
			return errors.Wrap(err, "getting payments")
		}
		found := make(map[string]Payment, len(payments))
		for _, pmt := range payments {
			found[pmt.ID] = pmt
		}
		var missing []string
		for _, id := range bu.IDs {
			if _, ok := found[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return core.NewNotFoundError("payment", missing...)
		}

		for _, id := range bu.IDs {
			if err = Lifecycle.Transition(found[id].Status, bu.Status); err != nil {
				if ierr, ok := err.(*core.InvariantError); ok {
					ierr.Details["payment_id"] = id
				}
				return err
			}
		}

		var (
			method = null.NewString(bu.Method, bu.Method != "" && bu.Status == StatusPaid)
			paidAt null.Time
		)
		if bu.Status == StatusPaid {
			paidAt = null.TimeFrom(core.NowFunc())
		}
		res.Affected, err = svc.repo.SetPaymentsStatus(ctx, bu.IDs, bu.Status, method, paidAt, exec)
		return errors.Wrap(err, "updating payments status")
	})
	return res, err
}

// Stats flips the overdue payments in scope, then summarizes them.
func (svc *Service) Stats(ctx context.Context, p policy.Principal, filter Filter) (stats.PaymentSummary, error) {
	if err := policy.Authorize(p, policy.PaymentsRead, policy.Context{}); err != nil {
		return stats.PaymentSummary{}, err
	}
	if err := Lifecycle.CheckFilter(filter.Status); err != nil {
		return stats.PaymentSummary{}, err
	}
	scope := policy.Scope(p)
	if _, err := svc.repo.FlipOverdue(ctx, scope, dateOf(core.NowFunc())); err != nil {
		return stats.PaymentSummary{}, errors.Wrap(err, "flipping overdue payments")
	}
	counts, err := svc.repo.CountPayments(ctx, scope, filter)
	if err != nil {
		return stats.PaymentSummary{}, errors.Wrap(err, "counting payments")
	}
	return stats.SummarizePayments(counts), nil
}

// FlipAllOverdue marks every PENDING payment past its due date as OVERDUE, across tenants.
func (svc *Service) FlipAllOverdue(ctx context.Context) (int, error) {
	n, err := svc.repo.FlipOverdue(ctx, policy.Filter{}, dateOf(core.NowFunc()))
	return n, errors.Wrap(err, "flipping overdue payments")
}

// dateOf truncates t to its UTC day.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
