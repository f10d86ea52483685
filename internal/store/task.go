package store

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tasktrack/apiserver/types"
)

var taskColumns = []string{
	"id",
	"title",
	"description",
	"completed",
	"completed_at",
	"priority",
	"due_date",
	"user_id",
	"created_at",
	"updated_at",
}

const priorityRankExpr = "CASE priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 ELSE 0 END"

var sortColumns = map[string]string{
	types.SortByTitle:     "title",
	types.SortByCreatedAt: "created_at",
	types.SortByUpdatedAt: "updated_at",
	types.SortByDueDate:   "due_date",
	types.SortByPriority:  priorityRankExpr,
}

// TaskRepository handles persistence for tasks. Every read and write is
// scoped to the owning user.
type TaskRepository struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// List returns one page of the owner's tasks and the total number of matches.
func (r *TaskRepository) List(ctx context.Context, ownerID string, q types.TaskQuery) ([]types.Task, int, error) {
	where := sq.And{sq.Eq{"user_id": ownerID}}
	if q.Completed != nil {
		where = append(where, sq.Eq{"completed": *q.Completed})
	}
	if q.Priority != nil {
		where = append(where, sq.Eq{"priority": string(*q.Priority)})
	}

	countQuery, countArgs, err := r.builder.Select("COUNT(*)").From("tasks").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, translate(err)
	}

	limit := q.Limit
	if limit < 1 {
		limit = 10
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = sortColumns[types.SortByCreatedAt]
	}
	direction := " DESC"
	if !q.Descending() {
		direction = " ASC"
	}

	listQuery, listArgs, err := r.builder.
		Select(taskColumns...).
		From("tasks").
		Where(where).
		OrderBy(column+direction, "id"+direction).
		Offset(uint64(q.Offset())).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]types.Task, 0, limit)
	if err := r.db.SelectContext(ctx, &tasks, listQuery, listArgs...); err != nil {
		return nil, 0, translate(err)
	}
	return tasks, total, nil
}

// ListAll returns every task of the owner, newest first.
func (r *TaskRepository) ListAll(ctx context.Context, ownerID string) ([]types.Task, error) {
	query, args, err := r.builder.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"user_id": ownerID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.selectTasks(ctx, query, args)
}

func (r *TaskRepository) Get(ctx context.Context, ownerID, id string) (types.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return types.Task{}, err
	}

	query, args, err := r.builder.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"id": taskID, "user_id": ownerID}).
		ToSql()
	if err != nil {
		return types.Task{}, err
	}

	var task types.Task
	if err := r.db.GetContext(ctx, &task, query, args...); err != nil {
		return types.Task{}, translate(err)
	}
	return task, nil
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now().UTC()
	task.ID = uuid.NewString()
	task.CreatedAt = now
	task.UpdatedAt = now

	query, args, err := r.builder.
		Insert("tasks").
		Columns(taskColumns...).
		Values(
			task.ID,
			task.Title,
			task.Description,
			task.Completed,
			task.CompletedAt,
			string(task.Priority),
			task.DueDate,
			task.UserID,
			task.CreatedAt,
			task.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return types.Task{}, err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return types.Task{}, translate(err)
	}
	return task, nil
}

// Update writes the fields present in patch to a task owned by ownerID in a
// single statement. completed_at follows completed only when it changes.
func (r *TaskRepository) Update(ctx context.Context, ownerID, id string, patch types.TaskPatch, now time.Time) (types.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return types.Task{}, err
	}

	update := r.builder.Update("tasks")
	if patch.Title != nil {
		update = update.Set("title", *patch.Title)
	}
	if patch.Description != nil {
		update = update.Set("description", *patch.Description)
	}
	if patch.Priority != nil {
		update = update.Set("priority", string(*patch.Priority))
	}
	if patch.DueDateSet {
		update = update.Set("due_date", patch.DueDate)
	}
	if patch.Completed != nil {
		update = update.Set("completed", *patch.Completed)
		if *patch.Completed {
			update = update.Set("completed_at", sq.Expr("CASE WHEN completed THEN completed_at ELSE ?::timestamptz END", now.UTC()))
		} else {
			update = update.Set("completed_at", nil)
		}
	}

	query, args, err := update.
		Set("updated_at", now.UTC()).
		Where(sq.Eq{"id": taskID, "user_id": ownerID}).
		Suffix("RETURNING " + strings.Join(taskColumns, ", ")).
		ToSql()
	if err != nil {
		return types.Task{}, err
	}

	var updated types.Task
	if err := r.db.GetContext(ctx, &updated, query, args...); err != nil {
		return types.Task{}, translate(err)
	}
	return updated, nil
}

// Toggle flips the completion state in a single statement and keeps
// completed_at in step with it.
func (r *TaskRepository) Toggle(ctx context.Context, ownerID, id string, now time.Time) (types.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return types.Task{}, err
	}

	query, args, err := r.builder.
		Update("tasks").
		Set("completed", sq.Expr("NOT completed")).
		Set("completed_at", sq.Expr("CASE WHEN completed THEN NULL ELSE ?::timestamptz END", now.UTC())).
		Set("updated_at", now.UTC()).
		Where(sq.Eq{"id": taskID, "user_id": ownerID}).
		Suffix("RETURNING " + strings.Join(taskColumns, ", ")).
		ToSql()
	if err != nil {
		return types.Task{}, err
	}

	var task types.Task
	if err := r.db.GetContext(ctx, &task, query, args...); err != nil {
		return types.Task{}, translate(err)
	}
	return task, nil
}

// Delete removes a task owned by ownerID and returns its last state.
func (r *TaskRepository) Delete(ctx context.Context, ownerID, id string) (types.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return types.Task{}, err
	}

	query, args, err := r.builder.
		Delete("tasks").
		Where(sq.Eq{"id": taskID, "user_id": ownerID}).
		Suffix("RETURNING " + strings.Join(taskColumns, ", ")).
		ToSql()
	if err != nil {
		return types.Task{}, err
	}

	var task types.Task
	if err := r.db.GetContext(ctx, &task, query, args...); err != nil {
		return types.Task{}, translate(err)
	}
	return task, nil
}

// DeleteByUser removes every task of the owner and returns how many were removed.
func (r *TaskRepository) DeleteByUser(ctx context.Context, ownerID string) (int64, error) {
	const query = `DELETE FROM tasks WHERE user_id = $1`
	result, err := r.db.ExecContext(ctx, query, ownerID)
	if err != nil {
		return 0, translate(err)
	}
	return result.RowsAffected()
}

// Stats aggregates the owner's task counts as of now.
func (r *TaskRepository) Stats(ctx context.Context, ownerID string, now time.Time) (types.TaskStats, error) {
	const query = `
		SELECT
			COUNT(*) AS total_tasks,
			COUNT(*) FILTER (WHERE completed) AS completed_tasks,
			COUNT(*) FILTER (WHERE NOT completed) AS pending_tasks,
			COUNT(*) FILTER (WHERE NOT completed AND due_date IS NOT NULL AND due_date < $2) AS overdue_tasks
		FROM tasks
		WHERE user_id = $1`
	var stats types.TaskStats
	if err := r.db.GetContext(ctx, &stats, query, ownerID, now.UTC()); err != nil {
		return types.TaskStats{}, translate(err)
	}
	return stats, nil
}

// Recent returns the owner's newest tasks.
func (r *TaskRepository) Recent(ctx context.Context, ownerID string, limit int) ([]types.Task, error) {
	query, args, err := r.builder.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"user_id": ownerID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.selectTasks(ctx, query, args)
}

// Overdue returns incomplete tasks due before now, earliest first.
func (r *TaskRepository) Overdue(ctx context.Context, ownerID string, now time.Time, limit int) ([]types.Task, error) {
	query, args, err := r.builder.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"user_id": ownerID, "completed": false}).
		Where(sq.Lt{"due_date": now.UTC()}).
		OrderBy("due_date ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.selectTasks(ctx, query, args)
}

// Upcoming returns incomplete tasks due in [now, until], earliest first.
func (r *TaskRepository) Upcoming(ctx context.Context, ownerID string, now, until time.Time, limit int) ([]types.Task, error) {
	query, args, err := r.builder.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"user_id": ownerID, "completed": false}).
		Where(sq.GtOrEq{"due_date": now.UTC()}).
		Where(sq.LtOrEq{"due_date": until.UTC()}).
		OrderBy("due_date ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.selectTasks(ctx, query, args)
}

func (r *TaskRepository) selectTasks(ctx context.Context, query string, args []any) ([]types.Task, error) {
	tasks := []types.Task{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, translate(err)
	}
	return tasks, nil
}
