package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tasktrack/apiserver/types"
)

const userColumns = `id, name, username, email, password_hash, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	userID, err := parseID(id)
	if err != nil {
		return types.User{}, err
	}

	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var user types.User
	if err := r.db.GetContext(ctx, &user, query, userID); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

// GetByIdentifier looks a user up by username or email, case-insensitively.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(username) = $1 OR LOWER(email) = $1
		LIMIT 1`
	var user types.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(identifier)); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

// UsernameTaken reports whether another user (other than excludeID) owns username.
func (r *UserRepository) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(username) = $1 AND id::text <> $2)`
	return r.exists(ctx, query, strings.ToLower(username), excludeID)
}

// EmailTaken reports whether another user (other than excludeID) owns email.
func (r *UserRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = $1 AND id::text <> $2)`
	return r.exists(ctx, query, strings.ToLower(email), excludeID)
}

func (r *UserRepository) exists(ctx context.Context, query, value, excludeID string) (bool, error) {
	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, value, excludeID); err != nil {
		return false, translate(err)
	}
	return taken, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, name, username, email, password_hash, created_at, updated_at)
		VALUES (:id, :name, :username, :email, :password_hash, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	userID, err := parseID(user.ID)
	if err != nil {
		return types.User{}, err
	}
	user.ID = userID
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	user.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET name = $1,
			username = $2,
			email = $3,
			password_hash = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// Delete removes the user. Owned tasks go with it through ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	userID, err := parseID(id)
	if err != nil {
		return err
	}

	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
