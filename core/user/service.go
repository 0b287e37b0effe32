package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("user")
	ErrEmailExists     = errors.New("a user with this email already exists")
	ErrInvalidToken    = core.NewValidationError(nil, core.FieldError{Field: "token", Error: "invalid or expired token"})
	ErrPasswordMissing = core.NewValidationError(nil, core.FieldError{Field: "password", Error: "this field is required"})
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		GetUserByVerificationTokenHash(ctx context.Context, hash string, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error
	}

	Service struct {
		repo   Repository
		queue  core.JobQueue
		conf   *core.Config
		tokens tokenGenerator
	}
)

func NewService(repo Repository, queue core.JobQueue, conf *core.Config) *Service {
	return &Service{
		repo:   repo,
		queue:  queue,
		conf:   conf,
		tokens: newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

// CheckEmailUniqueness fails with a ValidationError on "email" when the address is taken.
func (svc *Service) CheckEmailUniqueness(ctx context.Context, email string, exec ...core.DBExecutor) error {
	_, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */), exec...)
	switch {
	case err == nil:
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	case core.IsNotFound(err):
		return nil
	default:
		return errors.Wrap(err, "finding user by email")
	}
}

// Create stores a new user. nu.Status defaults to PENDING.
func (svc *Service) Create(ctx context.Context, nu NewUser, exec ...core.DBExecutor) (User, error) {
	if err := svc.CheckEmailUniqueness(ctx, nu.Email, exec...); err != nil {
		return User{}, err
	}
	now := core.NowFunc()
	usr := User{
		ID:        uuid.New().String(),
		Name:      nu.Name,
		Email:     nu.Email,
		Status:    nu.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Status == "" {
		usr.Status = StatusPending
	}
	if nu.Password != "" {
		if err := usr.SetPassword(nu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.CreateUser(ctx, usr, exec...)
}

func (svc *Service) GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error) {
	return svc.repo.GetUserByID(ctx, id, exec...)
}

func (svc *Service) GetByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */), exec...)
}

// Authenticate returns the user matching the credentials. Unknown emails and wrong passwords both
// yield ErrNotFound.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if err := usr.CheckPassword(pwd); err != nil {
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := core.NowFunc()
	if err := svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	usr.LastLogin = null.TimeFrom(now)
	return usr, nil
}

// IssueVerification stores a fresh email verification token on usr and returns the raw token.
func (svc *Service) IssueVerification(ctx context.Context, usr User, exec ...core.DBExecutor) (User, string, error) {
	now := core.NowFunc()
	raw, err := usr.NewVerificationToken(svc.conf.EmailVerificationTimeoutDelta, now)
	if err != nil {
		return User{}, "", err
	}
	usr.UpdatedAt = now
	usr, err = svc.repo.UpdateUser(ctx, usr, exec...)
	if err != nil {
		return User{}, "", errors.Wrap(err, "storing verification token")
	}
	return usr, raw, nil
}

// Verify consumes an email verification token: the user becomes ACTIVE and, when given, its
// password is set. Users without a password must provide one.
func (svc *Service) Verify(ctx context.Context, ve VerifyEmail, exec ...core.DBExecutor) (User, error) {
	usr, err := svc.repo.GetUserByVerificationTokenHash(ctx, HashToken(ve.Token), exec...)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidToken
		}
		return User{}, errors.Wrap(err, "finding user by verification token")
	}
	now := core.NowFunc()
	if err := usr.checkVerificationToken(ve.Token, now); err != nil {
		return User{}, ErrInvalidToken
	}
	if ve.Password == "" && !usr.HasPassword() {
		return User{}, ErrPasswordMissing
	}
	if usr.Status != StatusActive {
		if err := Lifecycle.Transition(usr.Status, StatusActive); err != nil {
			return User{}, err
		}
		usr.Status = StatusActive
	}
	if ve.Password != "" {
		if err := usr.SetPassword(ve.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.clearVerificationToken()
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr, exec...)
}

func (svc *Service) UpdateStatus(ctx context.Context, usr User, status Status) (User, error) {
	if err := Lifecycle.Transition(usr.Status, status); err != nil {
		return User{}, err
	}
	usr.Status = status
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword sets a new password for the user (admin CLI).
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

// RequestPasswordReset enqueues a password reset email for the user owning `email`.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.Status == StatusInactive || usr.Status == StatusSuspended {
		return ErrNotFound
	}
	msg := core.EmailMessage{
		To:              []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:         "Password Reset",
		TemplateName:    core.TemplatePasswordReset,
		FrontendBaseURL: svc.conf.FrontendBaseURL,
		AppName:         svc.conf.AppName,
		TemplateData: map[string]interface{}{
			"name":  usr.Name,
			"uid":   EncodeUID(usr),
			"token": svc.tokens.makeToken(usr),
		},
	}
	job, err := core.NewEmailJob("", msg)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.queue.Enqueue(ctx, job), "enqueuing password reset email")
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return ErrInvalidToken
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return ErrInvalidToken
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err := svc.tokens.verifyToken(usr, rp.Token); err != nil {
		return ErrInvalidToken
	}
	_, err = svc.SetPassword(ctx, usr, rp.Password)
	return err
}
