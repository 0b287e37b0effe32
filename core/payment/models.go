package payment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

var Lifecycle = core.NewLifecycle("payment", map[Status][]Status{
	StatusPending:   {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue:   {StatusPaid, StatusCancelled},
	StatusPaid:      nil,
	StatusCancelled: nil,
})

// Payment is a fee owed by a student. Amount is in minor units of Currency.
type Payment struct {
	ID          string      `db:"id" json:"id"`
	TenantID    string      `db:"tenant_id" json:"tenant_id"`
	StudentID   string      `db:"student_id" json:"student_id"`
	Amount      int64       `db:"amount" json:"amount"`
	Currency    string      `db:"currency" json:"currency"`
	Description string      `db:"description" json:"description"`
	DueDate     time.Time   `db:"due_date" json:"due_date"`
	Status      Status      `db:"status" json:"status"`
	Method      null.String `db:"method" json:"method"`
	PaidAt      null.Time   `db:"paid_at" json:"paid_at"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

type NewPayment struct {
	StudentID   string    `json:"student_id" validate:"required,uuid"`
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	Currency    string    `json:"currency" validate:"omitempty,iso4217"`
	Description string    `json:"description" validate:"required,max=255"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.StudentID = core.CleanString(np.StudentID)
	np.Currency = strings.ToUpper(core.CleanString(np.Currency))
	np.Description = core.CleanString(np.Description)
	return validate.Struct(np)
}

type UpdateStatus struct {
	Status Status `json:"status" validate:"required,oneof=PENDING PAID OVERDUE CANCELLED"`
	Method string `json:"method" validate:"max=50"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Method = core.CleanString(us.Method)
	return validate.Struct(us)
}

// BulkUpdateStatus moves several payments to the same status, all or nothing.
type BulkUpdateStatus struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
	Status Status   `json:"status" validate:"required,oneof=PENDING PAID OVERDUE CANCELLED"`
	Method string   `json:"method" validate:"max=50"`
}

func (bu *BulkUpdateStatus) Validate(validate *validator.Validate) error {
	bu.Method = core.CleanString(bu.Method)
	if err := validate.Struct(bu); err != nil {
		return err
	}
	bu.IDs = core.UniqueStrings(bu.IDs)
	return nil
}

type Filter struct {
	StudentID string    `query:"student_id"`
	Status    Status    `query:"status"`
	From      time.Time `query:"from"` // on due_date
	To        time.Time `query:"to"`
}

var Ordering = core.OrderingColumns{
	"amount":     "amount",
	"due_date":   "due_date",
	"status":     "status",
	"paid_at":    "paid_at",
	"created_at": "created_at",
}
