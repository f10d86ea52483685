package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

func TestUserRepository_Unique(t *testing.T) {
	db := New()
	ctx := context.Background()

	_, err := db.Users().Create(ctx, types.User{Username: "Alice", Email: "alice@example.com"})
	require.NoError(t, err)

	_, err = db.Users().Create(ctx, types.User{Username: "alice", Email: "other@example.com"})
	var dup *store.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "username", dup.Field)

	_, err = db.Users().Create(ctx, types.User{Username: "other", Email: "ALICE@example.com"})
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)
}

func TestTaskRepository_SortByPriority(t *testing.T) {
	db := New()
	ctx := context.Background()
	owner := "6d3b1f3e-8a4b-4c59-9a3e-1f2d3c4b5a69"

	for _, p := range []types.Priority{types.PriorityMedium, types.PriorityHigh, types.PriorityLow} {
		_, err := db.Tasks().Create(ctx, types.Task{Title: string(p), Priority: p, UserID: owner})
		require.NoError(t, err)
	}

	tasks, total, err := db.Tasks().List(ctx, owner, types.TaskQuery{SortBy: types.SortByPriority, Order: types.OrderDesc, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, types.PriorityHigh, tasks[0].Priority)
	assert.Equal(t, types.PriorityMedium, tasks[1].Priority)
	assert.Equal(t, types.PriorityLow, tasks[2].Priority)
}

func TestTaskRepository_DueDateNullsLast(t *testing.T) {
	db := New()
	ctx := context.Background()
	owner := "6d3b1f3e-8a4b-4c59-9a3e-1f2d3c4b5a69"
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := db.Tasks().Create(ctx, types.Task{Title: "none", UserID: owner})
	require.NoError(t, err)
	_, err = db.Tasks().Create(ctx, types.Task{Title: "dated", DueDate: &due, UserID: owner})
	require.NoError(t, err)

	tasks, _, err := db.Tasks().List(ctx, owner, types.TaskQuery{SortBy: types.SortByDueDate, Order: types.OrderAsc, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "dated", tasks[0].Title)
	assert.Equal(t, "none", tasks[1].Title)
}
