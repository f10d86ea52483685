// Package validation normalizes and checks request payloads before they reach
// the services. Every failing field is reported together in one *Error.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tasktrack/apiserver/types"
)

var (
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	personNamePattern = regexp.MustCompile(`^[a-zA-Z\s]+$`)
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// List query defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Validator checks request payloads. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the clock used by the due-date rule.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func New(opts ...Option) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = validate.RegisterValidation("username", matches(usernamePattern))
	_ = validate.RegisterValidation("personname", matches(personNamePattern))
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	v := &Validator{validate: validate, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func matches(pattern *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	}
}

// Signup normalizes and validates a signup payload.
func (v *Validator) Signup(req SignupRequest) (types.Registration, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = normalizeKey(req.Username)
	req.Email = normalizeKey(req.Email)

	if err := v.check(req); err != nil {
		return types.Registration{}, err
	}
	return types.Registration{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, nil
}

// Login normalizes and validates a login payload.
func (v *Validator) Login(req LoginRequest) (LoginRequest, error) {
	req.Identifier = normalizeKey(req.Identifier)
	if err := v.check(req); err != nil {
		return LoginRequest{}, err
	}
	return req, nil
}

// CreateTask normalizes and validates a new task. Priority defaults to medium.
func (v *Validator) CreateTask(req CreateTaskRequest) (types.TaskDraft, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Priority = strings.TrimSpace(req.Priority)

	errs := v.collect(req)

	draft := types.TaskDraft{
		Title:       req.Title,
		Description: req.Description,
		Priority:    types.PriorityMedium,
	}
	if req.Priority != "" {
		draft.Priority = types.Priority(req.Priority)
	}
	if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
		due, ok := v.dueDate(errs, *req.DueDate)
		if ok {
			draft.DueDate = &due
		}
	}

	if err := errs.OrNil(); err != nil {
		return types.TaskDraft{}, err
	}
	return draft, nil
}

// UpdateTask normalizes and validates a partial task update. A null or empty
// dueDate clears the due date.
func (v *Validator) UpdateTask(req UpdateTaskRequest) (types.TaskPatch, error) {
	req.Title = trimPtr(req.Title)
	req.Description = trimPtr(req.Description)
	req.Priority = trimPtr(req.Priority)

	errs := v.collect(req)

	patch := types.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	}
	if req.Priority != nil {
		p := types.Priority(*req.Priority)
		patch.Priority = &p
	}
	if req.DueDate.Set {
		patch.DueDateSet = true
		if !req.DueDate.Null && strings.TrimSpace(req.DueDate.Value) != "" {
			due, ok := v.dueDate(errs, req.DueDate.Value)
			if ok {
				patch.DueDate = &due
			}
		}
	}

	if err := errs.OrNil(); err != nil {
		return types.TaskPatch{}, err
	}
	return patch, nil
}

// Profile normalizes and validates a partial profile update.
func (v *Validator) Profile(req ProfileRequest) (types.ProfilePatch, error) {
	req.Name = trimPtr(req.Name)
	if req.Username != nil {
		username := normalizeKey(*req.Username)
		req.Username = &username
	}
	if req.Email != nil {
		email := normalizeKey(*req.Email)
		req.Email = &email
	}

	if err := v.check(req); err != nil {
		return types.ProfilePatch{}, err
	}
	return types.ProfilePatch{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
	}, nil
}

// TaskQuery validates list query parameters and fills in defaults.
func (v *Validator) TaskQuery(values url.Values) (types.TaskQuery, error) {
	q := types.TaskQuery{
		SortBy: types.SortByCreatedAt,
		Order:  types.OrderDesc,
		Page:   DefaultPage,
		Limit:  DefaultLimit,
	}
	errs := NewError()

	if raw := strings.TrimSpace(values.Get("completed")); raw != "" {
		switch raw {
		case "true", "1":
			completed := true
			q.Completed = &completed
		case "false", "0":
			completed := false
			q.Completed = &completed
		default:
			errs.Add("completed", "Completed filter must be a boolean", raw)
		}
	}

	if raw := strings.TrimSpace(values.Get("priority")); raw != "" {
		p, err := types.ParsePriority(raw)
		if err != nil {
			errs.Add("priority", msgPriority, raw)
		} else {
			q.Priority = &p
		}
	}

	if raw := strings.TrimSpace(values.Get("sortBy")); raw != "" {
		switch raw {
		case types.SortByTitle, types.SortByCreatedAt, types.SortByUpdatedAt, types.SortByDueDate, types.SortByPriority:
			q.SortBy = raw
		default:
			errs.Add("sortBy", "Invalid sort field", raw)
		}
	}

	if raw := strings.TrimSpace(values.Get("order")); raw != "" {
		switch raw {
		case types.OrderAsc, types.OrderDesc:
			q.Order = raw
		default:
			errs.Add("order", "Order must be 'asc' or 'desc'", raw)
		}
	}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			errs.Add("page", "Page must be a positive integer", raw)
		} else {
			q.Page = page
		}
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxLimit {
			errs.Add("limit", fmt.Sprintf("Limit must be between 1 and %d", MaxLimit), raw)
		} else {
			q.Limit = limit
		}
	}

	if err := errs.OrNil(); err != nil {
		return types.TaskQuery{}, err
	}
	return q, nil
}

// DecodeError converts a JSON decoding failure into a validation error.
func DecodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		msg, ok := typeMessages[typeErr.Field]
		if !ok {
			msg = fmt.Sprintf("%s has an invalid type", typeErr.Field)
		}
		return NewError(FieldError{Field: typeErr.Field, Message: msg})
	}
	return NewError(FieldError{Field: "body", Message: "Request body must be valid JSON"})
}

// ParseDate accepts ISO-8601 date-times and plain dates. Values without a
// zone are read as UTC.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

func (v *Validator) dueDate(errs *Error, raw string) (time.Time, bool) {
	due, err := ParseDate(raw)
	if err != nil {
		errs.Add("dueDate", msgDueDateInvalid, raw)
		return time.Time{}, false
	}
	if !due.After(v.now()) {
		errs.Add("dueDate", msgDueDatePast, raw)
		return time.Time{}, false
	}
	return due, true
}

func (v *Validator) check(s any) error {
	return v.collect(s).OrNil()
}

func (v *Validator) collect(s any) *Error {
	errs := NewError()
	err := v.validate.Struct(s)
	if err == nil {
		return errs
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add("body", err.Error(), nil)
		return errs
	}
	for _, fe := range fieldErrs {
		var value any = fe.Value()
		if fe.Field() == "password" {
			value = nil
		}
		errs.Add(fe.Field(), messageFor(fe.Namespace(), fe.Tag(), fe.Field()), value)
	}
	return errs
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	return &trimmed
}
