package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tasktrack/apiserver/internal/store"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown identity and
	// for a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email/username or password")

	// ErrUserNotFound is returned when the authenticated account was deleted.
	ErrUserNotFound = errors.New("user account no longer exists")

	// ErrUserGone is returned by Authenticate when a valid token names a
	// user that no longer exists.
	ErrUserGone = errors.New("user no longer exists")
)

// DuplicateFieldError reports that a username or email is already taken.
type DuplicateFieldError struct {
	Field string
	Value string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s already exists", Capitalize(e.Field))
}

// Capitalize upper-cases the first letter of a field name for messages.
func Capitalize(field string) string {
	if field == "" {
		return field
	}
	return strings.ToUpper(field[:1]) + field[1:]
}

// asDuplicate converts a store constraint violation into a DuplicateFieldError.
func asDuplicate(err error, values map[string]string) error {
	var dup *store.DuplicateError
	if !errors.As(err, &dup) {
		return err
	}
	return &DuplicateFieldError{Field: dup.Field, Value: values[dup.Field]}
}
