package validation

import (
	"fmt"
	"strings"
)

// DefaultMessage is the summary attached to every validation failure.
const DefaultMessage = "Validation failed"

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Error collects every field that failed validation.
type Error struct {
	Message string
	Fields  []FieldError
}

// NewError returns an Error with the default summary message.
func NewError(fields ...FieldError) *Error {
	return &Error{Message: DefaultMessage, Fields: fields}
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s: %s", e.summary(), strings.Join(parts, "; "))
}

func (e *Error) summary() string {
	if e.Message == "" {
		return DefaultMessage
	}
	return e.Message
}

// Summary returns the top-level message reported to clients.
func (e *Error) Summary() string {
	return e.summary()
}

// Add appends a field failure.
func (e *Error) Add(field, message string, value any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message, Value: value})
}

// OrNil returns nil when no field failed.
func (e *Error) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
