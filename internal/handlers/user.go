package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/validation"
	"github.com/tasktrack/apiserver/types"
)

// UserHandler serves the authenticated user's profile and account.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers profile routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService, v *validation.Validator, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUserHandler(userService)

	r.Use(authMiddleware)
	r.Get("/profile", handler.Profile)
	r.Put("/profile", Pipeline(handler.UpdateProfile,
		decode[validation.ProfileRequest](),
		validate(v.Profile),
	))
	r.Get("/dashboard", handler.Dashboard)
	r.Delete("/account", handler.DeleteAccount)
}

type userData struct {
	User types.User `json:"user"`
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	current, _ := CurrentUser(r)
	user, err := h.userService.Profile(r.Context(), current.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User profile retrieved successfully", userData{User: user})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	current, _ := CurrentUser(r)
	user, err := h.userService.UpdateProfile(r.Context(), current.ID, valueFrom[types.ProfilePatch](r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile updated successfully", userData{User: user})
}

func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	current, _ := CurrentUser(r)
	dash, err := h.userService.Dashboard(r.Context(), current.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Dashboard data retrieved successfully", dash)
}

// DeleteAccount removes the user together with every task they own.
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	current, _ := CurrentUser(r)
	if err := h.userService.DeleteAccount(r.Context(), current.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Account deleted successfully", nil)
}
