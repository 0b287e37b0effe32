package notification

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/tenant"
)

type (
	Status string
	Kind   string
)

const (
	StatusUnread    Status = "UNREAD"
	StatusRead      Status = "READ"
	StatusDismissed Status = "DISMISSED"

	KindMessage Kind = "MESSAGE"
	KindSystem  Kind = "SYSTEM"
)

var Lifecycle = core.NewLifecycle("notification", map[Status][]Status{
	StatusUnread:    {StatusRead, StatusDismissed},
	StatusRead:      {StatusDismissed},
	StatusDismissed: nil,
})

type Notification struct {
	ID        string      `db:"id" json:"id"`
	TenantID  string      `db:"tenant_id" json:"tenant_id"`
	UserID    string      `db:"user_id" json:"user_id"`
	SenderID  null.String `db:"sender_id" json:"sender_id"`
	Kind      Kind        `db:"kind" json:"kind"`
	Title     string      `db:"title" json:"title"`
	Body      string      `db:"body" json:"body"`
	Status    Status      `db:"status" json:"status"`
	ReadAt    null.Time   `db:"read_at" json:"read_at"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// SendMessage notifies the given members and/or every active member holding one of Roles.
type SendMessage struct {
	RecipientIDs []string      `json:"recipient_ids" validate:"required_without=Roles,omitempty,max=1000,dive,uuid"`
	Roles        []tenant.Role `json:"roles" validate:"omitempty,dive,oneof=ADMIN TEACHER STUDENT PARENT"`
	Title        string        `json:"title" validate:"required,max=200"`
	Body         string        `json:"body" validate:"required,max=5000"`
	Email        bool          `json:"email"`
}

func (sm *SendMessage) Validate(validate *validator.Validate) error {
	sm.RecipientIDs = core.UniqueStrings(sm.RecipientIDs)
	sm.Title = core.CleanString(sm.Title)
	sm.Body = core.CleanString(sm.Body)
	return validate.Struct(sm)
}

type UpdateStatus struct {
	Status Status `json:"status" validate:"required,oneof=READ DISMISSED"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

type Filter struct {
	Status Status `query:"status"`
	UserID string `query:"-"`
}
