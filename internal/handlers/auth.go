package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tasktrack/apiserver/internal/auth"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/validation"
	"github.com/tasktrack/apiserver/types"
)

var errMissingToken = errors.New("missing bearer token")

// AuthHandler provides signup, login and session endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	validator   *validation.Validator
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService, v *validation.Validator) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		validator:   v,
	}
}

// AuthRouter registers auth routes on the given router. limit, when non-nil,
// guards the credential endpoints.
func AuthRouter(
	r chi.Router,
	authService *services.AuthService,
	userService *services.UserService,
	v *validation.Validator,
	limit func(http.Handler) http.Handler,
) {
	handler := NewAuthHandler(authService, userService, v)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/signup", Pipeline(handler.Signup,
			decode[validation.SignupRequest](),
			validate(v.Signup),
			handler.checkAvailability,
		))
		r.Post("/login", Pipeline(handler.Login,
			decode[validation.LoginRequest](),
			validate(v.Login),
		))
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(authService))
		r.Post("/logout", handler.Logout)
		r.Get("/verify", handler.Verify)
	})
}

// Authenticate is the gate stage: it verifies the bearer token, resolves the
// user and stores both in the request context.
func Authenticate(authService *services.AuthService) Stage {
	return func(r *http.Request) (*http.Request, error) {
		token, ok := bearerToken(r)
		if !ok {
			return nil, errMissingToken
		}

		user, claims, err := authService.Authenticate(r.Context(), token)
		if err != nil {
			return nil, err
		}

		r = withValue(r, session{user: user, claims: claims})
		ctx := logging.WithContext(r.Context(), logging.FromContext(r.Context()).With("user_id", user.ID))
		return r.WithContext(ctx), nil
	}
}

// RequireAuth enforces authentication on every route of a router.
func RequireAuth(authService *services.AuthService) func(http.Handler) http.Handler {
	return Middleware(Authenticate(authService))
}

type session struct {
	user   types.User
	claims auth.Claims
}

// CurrentUser returns the user resolved by the gate.
func CurrentUser(r *http.Request) (types.User, bool) {
	s := valueFrom[session](r)
	return s.user, s.user.ID != ""
}

func (h *AuthHandler) checkAvailability(r *http.Request) (*http.Request, error) {
	reg := valueFrom[types.Registration](r)
	if err := h.userService.CheckAvailability(r.Context(), reg.Username, reg.Email, ""); err != nil {
		return nil, err
	}
	return r, nil
}

// Signup creates a new account and returns it with a token.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authService.Signup(r.Context(), valueFrom[types.Registration](r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User registered successfully", newSessionResponse(sess))
}

// Login verifies credentials and returns a fresh token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req := valueFrom[validation.LoginRequest](r)
	sess, err := h.authService.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", newSessionResponse(sess))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), valueFrom[session](r).claims); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// Verify returns the current snapshot of the authenticated user.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	current, _ := CurrentUser(r)
	user, err := h.authService.Verify(r.Context(), current.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Token is valid", map[string]any{"user": newSessionUser(user)})
}

type SessionUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type SessionResponse struct {
	User      SessionUser `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func newSessionUser(user types.User) SessionUser {
	return SessionUser{
		ID:        user.ID,
		Name:      user.Name,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

func newSessionResponse(s services.Session) SessionResponse {
	return SessionResponse{
		User:      newSessionUser(s.User),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
