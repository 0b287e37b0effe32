package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type userRepository struct {
	repository
}

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{repository{db: db}}
}

var userColumns = []string{
	"id", "name", "email", "password_hash", "status", "verification_token_hash",
	"verification_expires_at", "created_at", "updated_at", "last_login",
}

func userValues(usr user.User) map[string]interface{} {
	return map[string]interface{}{
		"id":                      usr.ID,
		"name":                    usr.Name,
		"email":                   usr.Email,
		"password_hash":           usr.PasswordHash,
		"status":                  usr.Status,
		"verification_token_hash": usr.VerificationTokenHash,
		"verification_expires_at": usr.VerificationExpiresAt,
		"created_at":              usr.CreatedAt,
		"updated_at":              usr.UpdatedAt,
		"last_login":              usr.LastLogin,
	}
}

func mapUserErr(err error) error {
	if isUniqueViolation(err, "users_email_key") {
		return core.NewValidationError(user.ErrEmailExists, core.FieldError{Field: "email", Error: user.ErrEmailExists.Error()})
	}
	return err
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("users").SetMap(userValues(usr)))
	if err != nil {
		return user.User{}, mapUserErr(errors.Wrap(err, "inserting user"))
	}
	return usr, nil
}

func (repo *userRepository) getBy(ctx context.Context, pred sq.Sqlizer, exec []core.DBExecutor) (user.User, error) {
	var usr user.User
	err := get(ctx, repo.exec(exec), &usr, psql.Select(userColumns...).From("users").Where(pred))
	if isNoRows(err) {
		return user.User{}, user.ErrNotFound
	}
	return usr, errors.Wrap(err, "selecting user")
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getBy(ctx, sq.Eq{"id": id}, exec)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getBy(ctx, sq.Eq{"email": email}, exec)
}

func (repo *userRepository) GetUserByVerificationTokenHash(ctx context.Context, hash string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getBy(ctx, sq.Eq{"verification_token_hash": hash}, exec)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	vals := userValues(usr)
	delete(vals, "id")
	delete(vals, "created_at")
	n, err := run(ctx, repo.exec(exec), psql.Update("users").SetMap(vals).Where(sq.Eq{"id": usr.ID}))
	if err != nil {
		return user.User{}, mapUserErr(errors.Wrap(err, "updating user"))
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	n, err := run(ctx, repo.exec(exec), psql.Update("users").Set("last_login", at).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "updating last login")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
