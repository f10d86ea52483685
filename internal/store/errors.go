package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned when an identifier is not in the store's id format.
	ErrInvalidID = errors.New("invalid id format")

	// ErrUnavailable is returned when the backing database cannot be reached.
	ErrUnavailable = errors.New("store unavailable")

	// ErrOwnerGone is returned when a task is written for a user that no longer exists.
	ErrOwnerGone = errors.New("task owner no longer exists")
)

// DuplicateError reports a unique constraint violation on a user field.
type DuplicateError struct {
	// Field is the user attribute that collided ("username" or "email").
	Field string
	Err   error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

func (e *DuplicateError) Unwrap() error {
	return e.Err
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqConnectionClass     = "08"
	pqAdminShutdown       = "57P01"
	pqCannotConnectNow    = "57P03"
	pqTooManyConnections  = "53300"
)

// parseID validates a postgres row identifier.
func parseID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrInvalidID
	}
	return parsed.String(), nil
}

// translate maps driver errors onto the store's error vocabulary.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == pqUniqueViolation:
			return NewDuplicateError(pqErr.Constraint, err)
		case code == pqForeignKeyViolation:
			return fmt.Errorf("%w: %v", ErrOwnerGone, err)
		case strings.HasPrefix(code, pqConnectionClass),
			code == pqAdminShutdown,
			code == pqCannotConnectNow,
			code == pqTooManyConnections:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// NewDuplicateError builds a DuplicateError from the name of the violated
// constraint or index, or from a driver message that mentions it.
func NewDuplicateError(constraint string, err error) *DuplicateError {
	field := constraint
	switch {
	case strings.Contains(constraint, "username"):
		field = "username"
	case strings.Contains(constraint, "email"):
		field = "email"
	}
	return &DuplicateError{Field: field, Err: err}
}
