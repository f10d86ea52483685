package mongostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestParseID(t *testing.T) {
	oid := primitive.NewObjectID()
	parsed, err := parseID(oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, oid, parsed)

	_, err = parseID("6f1c0f0e-8a47-4b3a-9d55-2f1b0b9d7c11")
	assert.ErrorIs(t, err, store.ErrInvalidID)
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(mongo.ErrNoDocuments), store.ErrNotFound)

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{
		Code:    11000,
		Message: "E11000 duplicate key error collection: tasktrack.users index: users_username_key dup key",
	}}}
	var dupErr *store.DuplicateError
	require.ErrorAs(t, translate(dup), &dupErr)
	assert.Equal(t, "username", dupErr.Field)

	boom := errors.New("boom")
	assert.Same(t, boom, translate(boom))
}

func TestTaskDocument_ToTask(t *testing.T) {
	owner := primitive.NewObjectID()
	due := time.Date(2030, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	doc := taskDocument{
		ID:           primitive.NewObjectID(),
		Title:        "Write report",
		Priority:     "high",
		PriorityRank: 3,
		DueDate:      &due,
		User:         owner,
	}

	task := doc.toTask()
	assert.Equal(t, doc.ID.Hex(), task.ID)
	assert.Equal(t, owner.Hex(), task.UserID)
	assert.Equal(t, types.PriorityHigh, task.Priority)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, time.UTC, task.DueDate.Location())
	assert.True(t, due.Equal(*task.DueDate))
	assert.Nil(t, task.CompletedAt)
}

func TestOwnedFilter(t *testing.T) {
	owner := primitive.NewObjectID()
	id := primitive.NewObjectID()

	filter, err := ownedFilter(owner.Hex(), id.Hex())
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": id, "user": owner}, filter)

	_, err = ownedFilter(owner.Hex(), "bad")
	assert.ErrorIs(t, err, store.ErrInvalidID)
}

func TestPatchPipeline(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	stage := func(t *testing.T, patch types.TaskPatch) bson.D {
		t.Helper()
		pipeline := patchPipeline(patch, now)
		require.Len(t, pipeline, 1)
		require.Equal(t, "$set", pipeline[0][0].Key)
		set, ok := pipeline[0][0].Value.(bson.D)
		require.True(t, ok)
		return set
	}
	keys := func(set bson.D) []string {
		out := make([]string, 0, len(set))
		for _, e := range set {
			out = append(out, e.Key)
		}
		return out
	}

	t.Run("title only leaves completion untouched", func(t *testing.T) {
		title := "$renamed"
		set := stage(t, types.TaskPatch{Title: &title})
		assert.Equal(t, []string{"title", "updatedAt"}, keys(set))
		assert.Equal(t, bson.D{{Key: "$literal", Value: "$renamed"}}, set[0].Value)
	})

	t.Run("completing keeps an existing completedAt", func(t *testing.T) {
		done := true
		set := stage(t, types.TaskPatch{Completed: &done})
		assert.Equal(t, []string{"completed", "completedAt", "updatedAt"}, keys(set))
		assert.Equal(t, bson.D{{Key: "$cond", Value: bson.A{"$completed", "$completedAt", now}}}, set[1].Value)
	})

	t.Run("reopening clears completedAt", func(t *testing.T) {
		open := false
		set := stage(t, types.TaskPatch{Completed: &open})
		assert.Nil(t, set[1].Value)
	})

	t.Run("priority carries its rank", func(t *testing.T) {
		low := types.PriorityLow
		set := stage(t, types.TaskPatch{Priority: &low, DueDateSet: true})
		assert.Equal(t, []string{"priority", "priorityRank", "dueDate", "updatedAt"}, keys(set))
		assert.Equal(t, 1, set[1].Value)
	})
}

func TestRepositoriesWithMockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get task scoped to owner", func(mt *mtest.T) {
		repo := NewTaskRepository(mt.DB)
		owner := primitive.NewObjectID()
		id := primitive.NewObjectID()
		now := time.Now().UTC().Truncate(time.Millisecond)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "tasktrack.tasks", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "title", Value: "Buy milk"},
			{Key: "description", Value: ""},
			{Key: "completed", Value: false},
			{Key: "completedAt", Value: nil},
			{Key: "priority", Value: "medium"},
			{Key: "priorityRank", Value: 2},
			{Key: "dueDate", Value: nil},
			{Key: "user", Value: owner},
			{Key: "createdAt", Value: now},
			{Key: "updatedAt", Value: now},
		}))

		task, err := repo.Get(context.Background(), owner.Hex(), id.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, "Buy milk", task.Title)
		assert.Equal(mt, owner.Hex(), task.UserID)
		assert.Nil(mt, task.DueDate)
	})

	mt.Run("get missing task", func(mt *mtest.T) {
		repo := NewTaskRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "tasktrack.tasks", mtest.FirstBatch))

		_, err := repo.Get(context.Background(), primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, store.ErrNotFound)
	})

	mt.Run("duplicate email on create", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: tasktrack.users index: users_email_key dup key",
		}))

		_, err := repo.Create(context.Background(), types.User{Username: "jane", Email: "Jane@Example.com"})
		var dup *store.DuplicateError
		require.ErrorAs(mt, err, &dup)
		assert.Equal(mt, "email", dup.Field)
	})

	mt.Run("create for an existing owner", func(mt *mtest.T) {
		repo := NewTaskRepository(mt.DB)
		owner := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, "tasktrack.users", mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
		)

		task, err := repo.Create(context.Background(), types.Task{Title: "Buy milk", Priority: types.PriorityMedium, UserID: owner.Hex()})
		require.NoError(mt, err)
		assert.Equal(mt, owner.Hex(), task.UserID)
		assert.NotEmpty(mt, task.ID)
	})

	mt.Run("create after the owner was deleted", func(mt *mtest.T) {
		repo := NewTaskRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, "tasktrack.users", mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(1)}),
		)

		_, err := repo.Create(context.Background(), types.Task{Title: "Too late", Priority: types.PriorityLow, UserID: primitive.NewObjectID().Hex()})
		assert.ErrorIs(mt, err, store.ErrOwnerGone)
	})

	mt.Run("stats", func(mt *mtest.T) {
		repo := NewTaskRepository(mt.DB)
		countResponse := func(n int32) bson.D {
			return mtest.CreateCursorResponse(0, "tasktrack.tasks", mtest.FirstBatch, bson.D{{Key: "n", Value: n}})
		}
		mt.AddMockResponses(countResponse(5), countResponse(2), countResponse(1))

		stats, err := repo.Stats(context.Background(), primitive.NewObjectID().Hex(), time.Now())
		require.NoError(mt, err)
		assert.Equal(mt, types.TaskStats{TotalTasks: 5, CompletedTasks: 2, PendingTasks: 3, OverdueTasks: 1}, stats)
	})
}
