package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/tasktrack/apiserver/internal/auth"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/internal/validation"
)

// Envelope is the shape of every API response.
type Envelope struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Data    any                     `json:"data,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
	Stack   string                  `json:"stack,omitempty"`
}

type stacksKey struct{}

// WithStacks attaches stack traces to 500 responses when enabled.
func WithStacks(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), stacksKey{}, enabled)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string, fields ...validation.FieldError) {
	writeJSON(w, status, Envelope{Success: false, Message: message, Errors: fields})
}

// writeServiceError maps an error returned by a stage or service onto the
// response envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *validation.Error
		dup  *services.DuplicateFieldError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Summary(), verr.Fields...)
	case errors.As(err, &dup):
		writeError(w, http.StatusBadRequest, dup.Error(), validation.FieldError{
			Field:   dup.Field,
			Message: fmt.Sprintf("A user with this %s already exists", dup.Field),
			Value:   dup.Value,
		})
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "Invalid ID format", validation.FieldError{
			Field:   "id",
			Message: "Invalid ID format",
		})
	case errors.Is(err, errMissingToken):
		writeError(w, http.StatusUnauthorized, "Access token is required")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "Token has expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, "Token has been revoked")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, services.ErrUserGone):
		writeError(w, http.StatusUnauthorized, "User no longer exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email/username or password", validation.FieldError{
			Field:   "credentials",
			Message: "Invalid email/username or password",
		})
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User account no longer exists", validation.FieldError{
			Field:   "user",
			Message: "This user account has been deleted",
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrUnavailable):
		logging.FromContext(r.Context()).Error("store unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "Database connection error")
	default:
		logging.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		env := Envelope{Success: false, Message: "Internal server error"}
		if stacks, _ := r.Context().Value(stacksKey{}).(bool); stacks {
			env.Stack = fmt.Sprintf("%v\n%s", err, debug.Stack())
		}
		writeJSON(w, http.StatusInternalServerError, env)
	}
}

// decodeBody reads a JSON body into dst.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return validation.DecodeError(err)
	}
	return nil
}
