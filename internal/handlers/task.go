package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/internal/validation"
	"github.com/tasktrack/apiserver/types"
)

// TaskHandler provides HTTP handlers for the authenticated user's tasks.
type TaskHandler struct {
	taskService *services.TaskService
	validator   *validation.Validator
}

func NewTaskHandler(taskService *services.TaskService, v *validation.Validator) *TaskHandler {
	return &TaskHandler{taskService: taskService, validator: v}
}

// TaskRouter registers task routes on the given router. Every route requires
// authentication.
func TaskRouter(r chi.Router, taskService *services.TaskService, v *validation.Validator, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTaskHandler(taskService, v)

	r.Use(authMiddleware)
	r.Get("/", Pipeline(handler.ListTasks, handler.parseQuery))
	r.Post("/", Pipeline(handler.CreateTask,
		decode[validation.CreateTaskRequest](),
		validate(v.CreateTask),
	))
	r.Get("/stats", handler.Stats)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", Pipeline(handler.UpdateTask,
			decode[validation.UpdateTaskRequest](),
			validate(v.UpdateTask),
		))
		r.Delete("/", handler.DeleteTask)
		r.Patch("/toggle", handler.ToggleTask)
	})
}

type taskData struct {
	Task types.Task `json:"task"`
}

type TaskListResponse struct {
	Tasks      []types.Task     `json:"tasks"`
	Pagination types.Pagination `json:"pagination"`
}

type TaskStatsResponse struct {
	Stats       types.TaskStats `json:"stats"`
	RecentTasks []types.Task    `json:"recentTasks"`
}

func (h *TaskHandler) parseQuery(r *http.Request) (*http.Request, error) {
	q, err := h.validator.TaskQuery(r.URL.Query())
	if err != nil {
		return nil, err
	}
	return withValue(r, q), nil
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	tasks, page, err := h.taskService.List(r.Context(), user.ID, valueFrom[types.TaskQuery](r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Tasks retrieved successfully", TaskListResponse{
		Tasks:      tasks,
		Pagination: page,
	})
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	task, err := h.taskService.Get(r.Context(), user.ID, chi.URLParam(r, "taskID"))
	if err != nil {
		writeTaskError(w, r, err, "access")
		return
	}
	writeSuccess(w, http.StatusOK, "Task retrieved successfully", taskData{Task: task})
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	task, err := h.taskService.Create(r.Context(), user.ID, valueFrom[types.TaskDraft](r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Task created successfully", taskData{Task: task})
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	task, err := h.taskService.Update(r.Context(), user.ID, chi.URLParam(r, "taskID"), valueFrom[types.TaskPatch](r))
	if err != nil {
		writeTaskError(w, r, err, "modify")
		return
	}
	writeSuccess(w, http.StatusOK, "Task updated successfully", taskData{Task: task})
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	task, err := h.taskService.Delete(r.Context(), user.ID, chi.URLParam(r, "taskID"))
	if err != nil {
		writeTaskError(w, r, err, "delete")
		return
	}
	writeSuccess(w, http.StatusOK, "Task deleted successfully", taskData{Task: task})
}

func (h *TaskHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	task, err := h.taskService.Toggle(r.Context(), user.ID, chi.URLParam(r, "taskID"))
	if err != nil {
		writeTaskError(w, r, err, "modify")
		return
	}
	message := "Task marked as pending"
	if task.Completed {
		message = "Task marked as completed"
	}
	writeSuccess(w, http.StatusOK, message, taskData{Task: task})
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	stats, recent, err := h.taskService.Stats(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Task statistics retrieved successfully", TaskStatsResponse{
		Stats:       stats,
		RecentTasks: recent,
	})
}

// writeTaskError reports a missing or foreign task without revealing which.
func writeTaskError(w http.ResponseWriter, r *http.Request, err error, action string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Task not found", validation.FieldError{
			Field:   "task",
			Message: "Task does not exist or you don't have permission to " + action + " it",
		})
		return
	}
	writeServiceError(w, r, err)
}
