package services

import (
	"context"
	"errors"
	"time"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

// RecentTaskLimit is the number of recent tasks returned alongside statistics.
const RecentTaskLimit = 5

// TaskRepository defines persistence operations for tasks. Every lookup is
// scoped to the owning user.
type TaskRepository interface {
	List(ctx context.Context, ownerID string, q types.TaskQuery) ([]types.Task, int, error)
	ListAll(ctx context.Context, ownerID string) ([]types.Task, error)
	Get(ctx context.Context, ownerID, id string) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, ownerID, id string, patch types.TaskPatch, now time.Time) (types.Task, error)
	Toggle(ctx context.Context, ownerID, id string, now time.Time) (types.Task, error)
	Delete(ctx context.Context, ownerID, id string) (types.Task, error)
	DeleteByUser(ctx context.Context, ownerID string) (int64, error)
	Stats(ctx context.Context, ownerID string, now time.Time) (types.TaskStats, error)
	Recent(ctx context.Context, ownerID string, limit int) ([]types.Task, error)
	Overdue(ctx context.Context, ownerID string, now time.Time, limit int) ([]types.Task, error)
	Upcoming(ctx context.Context, ownerID string, now, until time.Time, limit int) ([]types.Task, error)
}

// TaskService encapsulates task use-cases.
type TaskService struct {
	repo   TaskRepository
	events *EventPublisher
	now    func() time.Time
}

func NewTaskService(repo TaskRepository, events *EventPublisher) *TaskService {
	return &TaskService{repo: repo, events: events, now: time.Now}
}

// List returns one page of the owner's tasks and its pagination metadata.
func (s *TaskService) List(ctx context.Context, ownerID string, q types.TaskQuery) ([]types.Task, types.Pagination, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}

	tasks, total, err := s.repo.List(ctx, ownerID, q)
	if err != nil {
		return nil, types.Pagination{}, err
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	return tasks, paginate(q.Page, q.Limit, total), nil
}

func paginate(page, limit, total int) types.Pagination {
	totalPages := (total + limit - 1) / limit
	return types.Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalTasks:  total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

func (s *TaskService) Get(ctx context.Context, ownerID, id string) (types.Task, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// Create stores a new pending task owned by ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID string, draft types.TaskDraft) (types.Task, error) {
	priority := draft.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}

	task, err := s.repo.Create(ctx, types.Task{
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    priority,
		DueDate:     draft.DueDate,
		UserID:      ownerID,
	})
	if err != nil {
		if errors.Is(err, store.ErrOwnerGone) {
			return types.Task{}, ErrUserGone
		}
		return types.Task{}, err
	}
	s.events.Emit(ctx, taskEvent(EventTaskCreated, task))
	return task, nil
}

// Update applies patch to the owner's task. Only the fields present in the
// patch are written.
func (s *TaskService) Update(ctx context.Context, ownerID, id string, patch types.TaskPatch) (types.Task, error) {
	task, err := s.repo.Update(ctx, ownerID, id, patch, s.now().UTC())
	if err != nil {
		return types.Task{}, err
	}
	s.events.Emit(ctx, taskEvent(EventTaskUpdated, task))
	return task, nil
}

// Toggle flips the completion state of the owner's task.
func (s *TaskService) Toggle(ctx context.Context, ownerID, id string) (types.Task, error) {
	task, err := s.repo.Toggle(ctx, ownerID, id, s.now().UTC())
	if err != nil {
		return types.Task{}, err
	}
	s.events.Emit(ctx, taskEvent(EventTaskToggled, task))
	return task, nil
}

// Delete removes the owner's task and returns its last state.
func (s *TaskService) Delete(ctx context.Context, ownerID, id string) (types.Task, error) {
	task, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		return types.Task{}, err
	}
	s.events.Emit(ctx, taskEvent(EventTaskDeleted, task))
	return task, nil
}

// Stats returns the owner's task counts and most recently created tasks.
func (s *TaskService) Stats(ctx context.Context, ownerID string) (types.TaskStats, []types.Task, error) {
	stats, err := s.repo.Stats(ctx, ownerID, s.now().UTC())
	if err != nil {
		return types.TaskStats{}, nil, err
	}
	recent, err := s.repo.Recent(ctx, ownerID, RecentTaskLimit)
	if err != nil {
		return types.TaskStats{}, nil, err
	}
	return stats, nonNil(recent), nil
}

func nonNil(tasks []types.Task) []types.Task {
	if tasks == nil {
		return []types.Task{}
	}
	return tasks
}
