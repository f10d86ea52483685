// Package storetest is an in-memory test double for the user and task
// repositories. It honors the same contracts as the postgres and mongo stores,
// including owner scoping and unique usernames and emails.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

// DB is the shared state behind a UserRepository and a TaskRepository.
type DB struct {
	mu    sync.RWMutex
	users map[string]types.User
	tasks map[string]types.Task
	now   func() time.Time
}

func New() *DB {
	return &DB{
		users: make(map[string]types.User),
		tasks: make(map[string]types.Task),
		now:   time.Now,
	}
}

// SetClock replaces the clock used for created/updated timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

func (db *DB) Users() *UserRepository { return &UserRepository{db: db} }

func (db *DB) Tasks() *TaskRepository { return &TaskRepository{db: db} }

func parseID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", store.ErrInvalidID
	}
	return parsed.String(), nil
}

// UserRepository stores users in memory.
type UserRepository struct {
	db *DB
}

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	userID, err := parseID(id)
	if err != nil {
		return types.User{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	user, ok := r.db.users[userID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByIdentifier(_ context.Context, identifier string) (types.User, error) {
	identifier = strings.ToLower(identifier)
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, user := range r.db.users {
		if user.Username == identifier || user.Email == identifier {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) UsernameTaken(_ context.Context, username, excludeID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.conflict("username", strings.ToLower(username), excludeID), nil
}

func (r *UserRepository) EmailTaken(_ context.Context, email, excludeID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.conflict("email", strings.ToLower(email), excludeID), nil
}

// conflict reports whether another user holds value in field. Callers hold mu.
func (db *DB) conflict(field, value, excludeID string) bool {
	for id, user := range db.users {
		if id == excludeID {
			continue
		}
		if field == "username" && user.Username == value {
			return true
		}
		if field == "email" && user.Email == value {
			return true
		}
	}
	return false
}

func (db *DB) checkUnique(user types.User) error {
	if db.conflict("username", user.Username, user.ID) {
		return store.NewDuplicateError("users_username_key", nil)
	}
	if db.conflict("email", user.Email, user.ID) {
		return store.NewDuplicateError("users_email_key", nil)
	}
	return nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now().UTC()
	user.ID = uuid.NewString()
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := r.db.checkUnique(user); err != nil {
		return types.User{}, err
	}
	r.db.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	userID, err := parseID(user.ID)
	if err != nil {
		return types.User{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, ok := r.db.users[userID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.ID = userID
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = r.db.now().UTC()
	if err := r.db.checkUnique(user); err != nil {
		return types.User{}, err
	}
	r.db.users[userID] = user
	return user, nil
}

// Delete removes the user and its tasks.
func (r *UserRepository) Delete(_ context.Context, id string) error {
	userID, err := parseID(id)
	if err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[userID]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.users, userID)
	for taskID, task := range r.db.tasks {
		if task.UserID == userID {
			delete(r.db.tasks, taskID)
		}
	}
	return nil
}

// TaskRepository stores tasks in memory, scoped to their owner.
type TaskRepository struct {
	db *DB
}

func (r *TaskRepository) List(_ context.Context, ownerID string, q types.TaskQuery) ([]types.Task, int, error) {
	tasks := r.filter(func(t types.Task) bool {
		if t.UserID != ownerID {
			return false
		}
		if q.Completed != nil && t.Completed != *q.Completed {
			return false
		}
		if q.Priority != nil && t.Priority != *q.Priority {
			return false
		}
		return true
	})
	sortTasks(tasks, q.SortBy, q.Descending())

	total := len(tasks)
	limit := q.Limit
	if limit < 1 {
		limit = 10
	}
	start := min(q.Offset(), total)
	end := min(start+limit, total)
	return tasks[start:end], total, nil
}

func (r *TaskRepository) ListAll(_ context.Context, ownerID string) ([]types.Task, error) {
	tasks := r.filter(func(t types.Task) bool { return t.UserID == ownerID })
	sortTasks(tasks, types.SortByCreatedAt, true)
	return tasks, nil
}

func (r *TaskRepository) Get(_ context.Context, ownerID, id string) (types.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return types.Task{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.owned(ownerID, taskID)
}

// owned returns the task when ownerID owns it. Callers hold mu.
func (r *TaskRepository) owned(ownerID, taskID string) (types.Task, error) {
	task, ok := r.db.tasks[taskID]
	if !ok || task.UserID != ownerID {
		return types.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (r *TaskRepository) Create(_ context.Context, task types.Task) (types.Task, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now().UTC()
	task.ID = uuid.NewString()
	task.Completed = false
	task.CompletedAt = nil
	task.CreatedAt = now
	task.UpdatedAt = now
	r.db.tasks[task.ID] = task
	return task, nil
}

func (r *TaskRepository) Update(_ context.Context, ownerID, id string, patch types.TaskPatch, now time.Time) (types.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return types.Task{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, err := r.owned(ownerID, taskID)
	if err != nil {
		return types.Task{}, err
	}
	task := patch.Apply(current, now.UTC())
	task.UpdatedAt = now.UTC()
	r.db.tasks[taskID] = task
	return task, nil
}

func (r *TaskRepository) Toggle(_ context.Context, ownerID, id string, now time.Time) (types.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return types.Task{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	task, err := r.owned(ownerID, taskID)
	if err != nil {
		return types.Task{}, err
	}
	task.Completed = !task.Completed
	if task.Completed {
		completedAt := now.UTC()
		task.CompletedAt = &completedAt
	} else {
		task.CompletedAt = nil
	}
	task.UpdatedAt = now.UTC()
	r.db.tasks[taskID] = task
	return task, nil
}

func (r *TaskRepository) Delete(_ context.Context, ownerID, id string) (types.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return types.Task{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	task, err := r.owned(ownerID, taskID)
	if err != nil {
		return types.Task{}, err
	}
	delete(r.db.tasks, taskID)
	return task, nil
}

func (r *TaskRepository) DeleteByUser(_ context.Context, ownerID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var removed int64
	for id, task := range r.db.tasks {
		if task.UserID == ownerID {
			delete(r.db.tasks, id)
			removed++
		}
	}
	return removed, nil
}

func (r *TaskRepository) Stats(_ context.Context, ownerID string, now time.Time) (types.TaskStats, error) {
	var stats types.TaskStats
	for _, task := range r.filter(func(t types.Task) bool { return t.UserID == ownerID }) {
		stats.TotalTasks++
		if task.Completed {
			stats.CompletedTasks++
		}
		if task.IsOverdue(now) {
			stats.OverdueTasks++
		}
	}
	stats.PendingTasks = stats.TotalTasks - stats.CompletedTasks
	return stats, nil
}

func (r *TaskRepository) Recent(_ context.Context, ownerID string, limit int) ([]types.Task, error) {
	tasks := r.filter(func(t types.Task) bool { return t.UserID == ownerID })
	sortTasks(tasks, types.SortByCreatedAt, true)
	return head(tasks, limit), nil
}

func (r *TaskRepository) Overdue(_ context.Context, ownerID string, now time.Time, limit int) ([]types.Task, error) {
	tasks := r.filter(func(t types.Task) bool {
		return t.UserID == ownerID && t.IsOverdue(now)
	})
	sortTasks(tasks, types.SortByDueDate, false)
	return head(tasks, limit), nil
}

func (r *TaskRepository) Upcoming(_ context.Context, ownerID string, now, until time.Time, limit int) ([]types.Task, error) {
	tasks := r.filter(func(t types.Task) bool {
		return t.UserID == ownerID && !t.Completed && t.DueDate != nil &&
			!t.DueDate.Before(now) && !t.DueDate.After(until)
	})
	sortTasks(tasks, types.SortByDueDate, false)
	return head(tasks, limit), nil
}

func (r *TaskRepository) filter(keep func(types.Task) bool) []types.Task {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	tasks := make([]types.Task, 0, len(r.db.tasks))
	for _, task := range r.db.tasks {
		if keep(task) {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func head(tasks []types.Task, limit int) []types.Task {
	if limit > 0 && len(tasks) > limit {
		return tasks[:limit]
	}
	return tasks
}

// sortTasks orders tasks the way postgres does: missing due dates sort as
// the largest value, and id breaks ties in the same direction.
func sortTasks(tasks []types.Task, sortBy string, desc bool) {
	sort.SliceStable(tasks, func(i, j int) bool {
		c := compare(tasks[i], tasks[j], sortBy)
		if c == 0 {
			c = strings.Compare(tasks[i].ID, tasks[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b types.Task, sortBy string) int {
	switch sortBy {
	case types.SortByTitle:
		return strings.Compare(a.Title, b.Title)
	case types.SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case types.SortByPriority:
		return a.Priority.Rank() - b.Priority.Rank()
	case types.SortByDueDate:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		return a.DueDate.Compare(*b.DueDate)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
