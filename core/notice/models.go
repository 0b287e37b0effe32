package notice

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/tenant"
)

// State is derived from the publication window; notices store no status.
type State string

const (
	StateScheduled State = "SCHEDULED"
	StateLive      State = "LIVE"
	StateExpired   State = "EXPIRED"
)

type Notice struct {
	ID          string         `db:"id" json:"id"`
	TenantID    string         `db:"tenant_id" json:"tenant_id"`
	Title       string         `db:"title" json:"title"`
	Body        string         `db:"body" json:"body"`
	TargetRoles pq.StringArray `db:"target_roles" json:"target_roles"`
	PublishAt   time.Time      `db:"publish_at" json:"publish_at"`
	ExpiresAt   null.Time      `db:"expires_at" json:"expires_at"`
	IsUrgent    bool           `db:"is_urgent" json:"is_urgent"`
	IsPinned    bool           `db:"is_pinned" json:"is_pinned"`
	AuthorID    string         `db:"author_id" json:"author_id"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
	State       State          `db:"-" json:"state"`
}

func (n Notice) StateAt(now time.Time) State {
	switch {
	case n.PublishAt.After(now):
		return StateScheduled
	case n.ExpiresAt.Valid && !n.ExpiresAt.Time.After(now):
		return StateExpired
	default:
		return StateLive
	}
}

func (n Notice) Targets(role tenant.Role) bool {
	for _, r := range n.TargetRoles {
		if r == string(role) {
			return true
		}
	}
	return false
}

type NewNotice struct {
	Title       string        `json:"title" validate:"required,max=200"`
	Body        string        `json:"body" validate:"required,max=10000"`
	TargetRoles []tenant.Role `json:"target_roles" validate:"required,min=1,dive,oneof=ADMIN TEACHER STUDENT PARENT"`
	PublishAt   *time.Time    `json:"publish_at"`
	ExpiresAt   *time.Time    `json:"expires_at"`
	IsUrgent    bool          `json:"is_urgent"`
	IsPinned    bool          `json:"is_pinned"`
}

func (nn *NewNotice) Validate(validate *validator.Validate) error {
	nn.Title = core.CleanString(nn.Title)
	nn.Body = core.CleanString(nn.Body)
	return validate.Struct(nn)
}

type UpdateNotice struct {
	Title       *string       `json:"title" validate:"omitempty,min=1,max=200"`
	Body        *string       `json:"body" validate:"omitempty,min=1,max=10000"`
	TargetRoles []tenant.Role `json:"target_roles" validate:"omitempty,min=1,dive,oneof=ADMIN TEACHER STUDENT PARENT"`
	PublishAt   *time.Time    `json:"publish_at"`
	ExpiresAt   *time.Time    `json:"expires_at"`
	IsUrgent    *bool         `json:"is_urgent"`
	IsPinned    *bool         `json:"is_pinned"`
}

func (un *UpdateNotice) Validate(validate *validator.Validate) error {
	if un.Title != nil {
		*un.Title = core.CleanString(*un.Title)
	}
	if un.Body != nil {
		*un.Body = core.CleanString(*un.Body)
	}
	return validate.Struct(un)
}

type Filter struct {
	Search string `query:"search"`
	State  State  `query:"state"`

	// visibility of non-admins: live notices targeting Role, plus those authored by AuthorID
	Role     tenant.Role `query:"-"`
	AuthorID string      `query:"-"`
	Now      time.Time   `query:"-"`
}

func rolesArray(roles []tenant.Role) pq.StringArray {
	out := make(pq.StringArray, 0, len(roles))
	seen := make(map[tenant.Role]bool, len(roles))
	for _, r := range roles {
		if !seen[r] {
			seen[r] = true
			out = append(out, string(r))
		}
	}
	return out
}
