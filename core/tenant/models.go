package tenant

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

var Lifecycle = core.NewLifecycle("tenant", map[Status][]Status{
	StatusPending:   {StatusActive},
	StatusActive:    {StatusSuspended},
	StatusSuspended: {StatusActive},
})

type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "ACTIVE"
	MembershipRevoked MembershipStatus = "REVOKED"
)

var MembershipLifecycle = core.NewLifecycle("membership", map[MembershipStatus][]MembershipStatus{
	MembershipActive:  {MembershipRevoked},
	MembershipRevoked: {MembershipActive},
})

type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (t Tenant) IsActive() bool { return t.Status == StatusActive }

// Membership binds one user to one tenant with exactly one role.
type Membership struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"user_id"`
	TenantID    string           `db:"tenant_id" json:"tenant_id"`
	Role        Role             `db:"role" json:"role"`
	Permissions Permissions      `db:"permissions" json:"permissions"`
	Status      MembershipStatus `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

func (m Membership) IsActive() bool { return m.Status == MembershipActive }

// Member is a Membership joined with its user and tenant.
type Member struct {
	Membership
	Name         string      `db:"user_name" json:"name"`
	Email        string      `db:"user_email" json:"email"`
	UserStatus   user.Status `db:"user_status" json:"user_status"`
	TenantName   string      `db:"tenant_name" json:"tenant_name"`
	TenantSlug   string      `db:"tenant_slug" json:"tenant_slug"`
	TenantStatus Status      `db:"tenant_status" json:"tenant_status"`
}

type RegisterSchool struct {
	SchoolName      string `json:"school_name" validate:"required,max=150"`
	Slug            string `json:"slug" validate:"omitempty,max=60,slug"`
	Name            string `json:"name" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rs *RegisterSchool) Validate(validate *validator.Validate) error {
	rs.SchoolName = core.CleanString(rs.SchoolName)
	rs.Slug = core.CleanString(rs.Slug, true /* lower */)
	if rs.Slug == "" {
		rs.Slug = core.Slugify(rs.SchoolName)
	}
	if err := validate.Struct(rs); err != nil {
		return err
	}
	// password policy
	return rs.User().Validate(validate)
}

func (rs *RegisterSchool) User() *user.NewUser {
	return &user.NewUser{
		Name:            rs.Name,
		Email:           rs.Email,
		Password:        rs.Password,
		PasswordConfirm: rs.PasswordConfirm,
	}
}

// Invite adds a user (new or existing) to the tenant.
// TeacherID / StudentIDs link the account to existing school profiles.
type Invite struct {
	Name        string      `json:"name" validate:"required,max=150"`
	Email       string      `json:"email" validate:"required,email"`
	Role        Role        `json:"role" validate:"required,role"`
	Permissions Permissions `json:"permissions"`
	TeacherID   string      `json:"teacher_id" validate:"omitempty,uuid"`
	StudentIDs  []string    `json:"student_ids" validate:"omitempty,dive,uuid"`
}

func (inv *Invite) Validate(validate *validator.Validate) error {
	inv.Name = core.CleanString(inv.Name)
	inv.Email = core.CleanString(inv.Email, true /* lower */)
	inv.TeacherID = core.CleanString(inv.TeacherID)
	inv.StudentIDs = core.UniqueStrings(inv.StudentIDs)
	if err := validate.Struct(inv); err != nil {
		return err
	}
	switch {
	case inv.TeacherID != "" && inv.Role != RoleTeacher:
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: "only allowed for teachers"})
	case len(inv.StudentIDs) > 0 && inv.Role != RoleStudent && inv.Role != RoleParent:
		return core.NewValidationError(nil, core.FieldError{Field: "student_ids", Error: "only allowed for students and parents"})
	case inv.Role == RoleStudent && len(inv.StudentIDs) > 1:
		return core.NewValidationError(nil, core.FieldError{Field: "student_ids", Error: "a student account links one student"})
	}
	return nil
}

type UpdateMember struct {
	Role        Role             `json:"role" validate:"omitempty,role"`
	Permissions Permissions      `json:"permissions"`
	Status      MembershipStatus `json:"status" validate:"omitempty,oneof=ACTIVE REVOKED"`
}

func (um *UpdateMember) Validate(validate *validator.Validate) error {
	return validate.Struct(um)
}

type UpdateStatus struct {
	Status Status `json:"status" validate:"required,oneof=PENDING ACTIVE SUSPENDED"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

type MemberFilter struct {
	TenantID string           `query:"-"`
	UserIDs  []string         `query:"-"`
	Search   string           `query:"search"`
	Roles    []Role           `query:"role"`
	Status   MembershipStatus `query:"status"`
}

func (mf *MemberFilter) Clean() {
	mf.Search = core.CleanString(mf.Search)
}

type TenantFilter struct {
	Search string `query:"search"`
	Status Status `query:"status"`
}

func (tf *TenantFilter) Clean() {
	tf.Search = core.CleanString(tf.Search)
}

var (
	MemberOrdering = core.OrderingColumns{
		"name":       "user_name",
		"email":      "user_email",
		"role":       "role",
		"status":     "status",
		"created_at": "created_at",
	}
	TenantOrdering = core.OrderingColumns{
		"name":       "name",
		"slug":       "slug",
		"status":     "status",
		"created_at": "created_at",
	}
)
