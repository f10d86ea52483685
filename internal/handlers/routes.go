package handlers

import (
	"context"
	"net/http"
	"time"
)

// RouteCatalogue lists the public API surface under prefix.
func RouteCatalogue(prefix string) http.HandlerFunc {
	catalogue := map[string]map[string]string{
		"auth": {
			"signup": "POST " + prefix + "/auth/signup",
			"login":  "POST " + prefix + "/auth/login",
			"logout": "POST " + prefix + "/auth/logout",
			"verify": "GET " + prefix + "/auth/verify",
		},
		"tasks": {
			"getAllTasks": "GET " + prefix + "/tasks",
			"getStats":    "GET " + prefix + "/tasks/stats",
			"getTask":     "GET " + prefix + "/tasks/:id",
			"createTask":  "POST " + prefix + "/tasks",
			"updateTask":  "PUT " + prefix + "/tasks/:id",
			"deleteTask":  "DELETE " + prefix + "/tasks/:id",
			"toggleTask":  "PATCH " + prefix + "/tasks/:id/toggle",
		},
		"user": {
			"getProfile":    "GET " + prefix + "/user/profile",
			"updateProfile": "PUT " + prefix + "/user/profile",
			"deleteAccount": "DELETE " + prefix + "/user/account",
			"getDashboard":  "GET " + prefix + "/user/dashboard",
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "All available API routes for Task Manager",
			"routes":  catalogue,
		})
	}
}

// Root answers the bare liveness probe at "/".
func Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task Manager API is running!"})
}

// Healthz reports whether the store answers a ping within two seconds.
func Healthz(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if ping != nil {
			if err := ping(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Database connection error")
				return
			}
		}
		writeSuccess(w, http.StatusOK, "ok", nil)
	}
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route "+r.URL.RequestURI()+" not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed on "+r.URL.Path)
}
