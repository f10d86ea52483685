package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task represents a unit of work owned by a single user.
type Task struct {
	// ID is the unique identifier of the task.
	ID string `json:"_id" db:"id"`

	// Title is the short, required summary of the task.
	Title string `json:"title" db:"title"`

	// Description holds optional free-form details. Empty when unset.
	Description string `json:"description" db:"description"`

	// Completed reports whether the task has been finished.
	Completed bool `json:"completed" db:"completed"`

	// CompletedAt is the moment the task was last marked completed.
	// It is nil while the task is pending.
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`

	// Priority is the relative importance of the task.
	Priority Priority `json:"priority" db:"priority"`

	// DueDate is the optional deadline of the task.
	DueDate *time.Time `json:"dueDate" db:"due_date"`

	// UserID identifies the owner of the task. It never changes after creation.
	UserID string `json:"user" db:"user_id"`

	// CreatedAt is the timestamp when the task was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the task.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsOverdue reports whether the task has a due date in the past and is not completed.
func (t Task) IsOverdue(now time.Time) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

// MarshalJSON adds the derived isOverdue flag to the serialized task.
func (t Task) MarshalJSON() ([]byte, error) {
	type alias Task
	return json.Marshal(struct {
		alias
		IsOverdue bool `json:"isOverdue"`
	}{
		alias:     alias(t),
		IsOverdue: t.IsOverdue(time.Now()),
	})
}

// Priority represents the importance level of a task.
type Priority string

// Supported priority values.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every valid priority in ascending order of importance.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the supported priorities.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Rank returns the ordinal of the priority (1 = low, 3 = high), or 0 when unknown.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	default:
		return 0
	}
}

// ParsePriority converts a string into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q", s)
	}
	return p, nil
}

// TaskDraft is a validated request to create a task.
type TaskDraft struct {
	Title       string
	Description string
	Priority    Priority
	DueDate     *time.Time
}

// TaskPatch is a validated partial update of a task. Nil fields are left
// unchanged. DueDateSet distinguishes an explicit null (clear) from absence.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Completed   *bool
	DueDate     *time.Time
	DueDateSet  bool
}

// Apply returns t with the patch applied. CompletedAt follows Completed.
func (p TaskPatch) Apply(t Task, now time.Time) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDateSet {
		t.DueDate = p.DueDate
	}
	if p.Completed != nil && *p.Completed != t.Completed {
		t.Completed = *p.Completed
		if t.Completed {
			completedAt := now
			t.CompletedAt = &completedAt
		} else {
			t.CompletedAt = nil
		}
	}
	return t
}

// TaskStats aggregates the task counts of a single user.
type TaskStats struct {
	// TotalTasks is the number of tasks owned by the user.
	TotalTasks int `json:"totalTasks" db:"total_tasks"`

	// CompletedTasks is the number of completed tasks.
	CompletedTasks int `json:"completedTasks" db:"completed_tasks"`

	// PendingTasks is the number of tasks not yet completed.
	PendingTasks int `json:"pendingTasks" db:"pending_tasks"`

	// OverdueTasks counts pending tasks whose due date has passed.
	OverdueTasks int `json:"overdueTasks" db:"overdue_tasks"`
}

// Pagination describes the position of a page within a listing.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalTasks  int  `json:"totalTasks"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// Dashboard is the aggregate overview shown on the user's landing page.
type Dashboard struct {
	Stats         TaskStats `json:"stats"`
	RecentTasks   []Task    `json:"recentTasks"`
	OverdueTasks  []Task    `json:"overdueTasks"`
	UpcomingTasks []Task    `json:"upcomingTasks"`
}

// AccountArchive is the snapshot of an account written before it is deleted.
type AccountArchive struct {
	User      User      `json:"user"`
	Tasks     []Task    `json:"tasks"`
	DeletedAt time.Time `json:"deletedAt"`
}
