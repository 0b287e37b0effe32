package user

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/darasa/core"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusInactive  Status = "INACTIVE"
)

var Lifecycle = core.NewLifecycle("user", map[Status][]Status{
	StatusPending:   {StatusActive},
	StatusActive:    {StatusSuspended, StatusInactive},
	StatusSuspended: {StatusActive, StatusInactive},
	StatusInactive:  nil,
})

var (
	errNoPassword          = errors.New("user has no password")
	errTokenMismatch       = errors.New("verification token mismatch")
	errVerificationExpired = errors.New("verification token expired")
)

type User struct {
	ID                    string      `db:"id" json:"id"`
	Name                  string      `db:"name" json:"name"`
	Email                 string      `db:"email" json:"email"`
	PasswordHash          null.Bytes  `db:"password_hash" json:"-"`
	Status                Status      `db:"status" json:"status"`
	VerificationTokenHash null.String `db:"verification_token_hash" json:"-"`
	VerificationExpiresAt null.Time   `db:"verification_expires_at" json:"-"`
	CreatedAt             time.Time   `db:"created_at" json:"created_at"` // UTC
	UpdatedAt             time.Time   `db:"updated_at" json:"updated_at"` // UTC
	LastLogin             null.Time   `db:"last_login" json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = null.BytesFrom(hash)
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	if !u.PasswordHash.Valid || len(u.PasswordHash.Bytes) == 0 {
		return errNoPassword
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash.Bytes, []byte(pwd))
}

func (u *User) HasPassword() bool { return u.PasswordHash.Valid && len(u.PasswordHash.Bytes) > 0 }

func (u *User) IsActive() bool { return u.Status == StatusActive }

// NewVerificationToken sets a fresh email verification token on u and returns its raw value.
// Only the token's sha256 is stored.
func (u *User) NewVerificationToken(ttl time.Duration, now time.Time) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	raw := hex.EncodeToString(buf)
	u.VerificationTokenHash = null.StringFrom(HashToken(raw))
	u.VerificationExpiresAt = null.TimeFrom(now.Add(ttl))
	return raw, nil
}

func (u *User) checkVerificationToken(raw string, now time.Time) error {
	if !u.VerificationTokenHash.Valid || u.VerificationTokenHash.String != HashToken(raw) {
		return errTokenMismatch
	}
	if u.VerificationExpiresAt.Valid && now.After(u.VerificationExpiresAt.Time) {
		return errVerificationExpired
	}
	return nil
}

func (u *User) clearVerificationToken() {
	u.VerificationTokenHash = null.String{}
	u.VerificationExpiresAt = null.Time{}
}

// HashToken returns the hex sha256 of a raw verification token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewUser contains information needed to create a new User.
// Password is optional: invited users pick theirs when verifying their email.
type NewUser struct {
	Name            string `json:"name" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
	Status          Status `json:"-"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	return validate.Struct(nu)
}

type VerifyEmail struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (ve *VerifyEmail) Validate(validate *validator.Validate) error {
	ve.Token = core.CleanString(ve.Token)
	return validate.Struct(ve)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
