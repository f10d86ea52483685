package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/types"
)

var userRowColumns = []string{"id", "name", "username", "email", "password_hash", "created_at", "updated_at"}

const testUserID = "6f1c0f0e-8a47-4b3a-9d55-2f1b0b9d7c11"

func TestUserRepository_GetByIdentifier(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .*\s+FROM users\s+WHERE LOWER\(username\) = \$1 OR LOWER\(email\) = \$1`).
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(testUserID, "Jane Doe", "jane", "jane@example.com", "hash", now, now))

	user, err := repo.GetByIdentifier(context.Background(), "Jane@Example.com")
	require.NoError(t, err)
	assert.Equal(t, testUserID, user.ID)
	assert.Equal(t, "jane", user.Username)
	assert.Equal(t, "hash", user.PasswordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
			WithArgs(testUserID).
			WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := repo.GetByID(context.Background(), testUserID)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid id never reaches the database", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		_, err := repo.GetByID(context.Background(), "42")
		assert.ErrorIs(t, err, ErrInvalidID)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_Create(t *testing.T) {
	t.Run("lower-cases unique fields", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(sqlmock.AnyArg(), "Jane Doe", "jane_d", "jane@example.com", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		user, err := repo.Create(context.Background(), types.User{
			Name:         "Jane Doe",
			Username:     "Jane_D",
			Email:        "JANE@example.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "jane_d", user.Username)
		assert.False(t, user.CreatedAt.IsZero())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

		_, err := repo.Create(context.Background(), types.User{Username: "jane", Email: "jane@example.com"})
		var dup *DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "email", dup.Field)
	})
}

func TestUserRepository_UsernameTaken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE LOWER\(username\) = \$1 AND id::text <> \$2\)`).
		WithArgs("jane", testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := repo.UsernameTaken(context.Background(), "JANE", testUserID)
	require.NoError(t, err)
	assert.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), testUserID)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
