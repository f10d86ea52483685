package mongostore

import (
	"context"
	"time"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// taskDocument is the stored form of a task. PriorityRank mirrors Priority
// as a number so listings can sort by importance.
type taskDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	Title        string             `bson:"title"`
	Description  string             `bson:"description"`
	Completed    bool               `bson:"completed"`
	CompletedAt  *time.Time         `bson:"completedAt"`
	Priority     string             `bson:"priority"`
	PriorityRank int                `bson:"priorityRank"`
	DueDate      *time.Time         `bson:"dueDate"`
	User         primitive.ObjectID `bson:"user"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d taskDocument) toTask() types.Task {
	return types.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		CompletedAt: utcPtr(d.CompletedAt),
		Priority:    types.Priority(d.Priority),
		DueDate:     utcPtr(d.DueDate),
		UserID:      d.User.Hex(),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

var sortFields = map[string]string{
	types.SortByTitle:     "title",
	types.SortByCreatedAt: "createdAt",
	types.SortByUpdatedAt: "updatedAt",
	types.SortByDueDate:   "dueDate",
	types.SortByPriority:  "priorityRank",
}

// TaskRepository stores tasks in the "tasks" collection. Every query filters
// on the owner.
type TaskRepository struct {
	coll  *mongo.Collection
	users *mongo.Collection
}

func NewTaskRepository(db *mongo.Database) *TaskRepository {
	return &TaskRepository{
		coll:  db.Collection(tasksCollection),
		users: db.Collection(usersCollection),
	}
}

func (r *TaskRepository) List(ctx context.Context, ownerID string, q types.TaskQuery) ([]types.Task, int, error) {
	owner, err := parseID(ownerID)
	if err != nil {
		return nil, 0, err
	}

	filter := bson.M{"user": owner}
	if q.Completed != nil {
		filter["completed"] = *q.Completed
	}
	if q.Priority != nil {
		filter["priority"] = string(*q.Priority)
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate(err)
	}

	limit := q.Limit
	if limit < 1 {
		limit = 10
	}
	field, ok := sortFields[q.SortBy]
	if !ok {
		field = sortFields[types.SortByCreatedAt]
	}
	direction := -1
	if !q.Descending() {
		direction = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: direction}, {Key: "_id", Value: direction}}).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(limit))

	tasks, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return tasks, int(total), nil
}

func (r *TaskRepository) ListAll(ctx context.Context, ownerID string) ([]types.Task, error) {
	owner, err := parseID(ownerID)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, bson.M{"user": owner}, options.Find().SetSort(newestFirst()))
}

func (r *TaskRepository) Get(ctx context.Context, ownerID, id string) (types.Task, error) {
	filter, err := ownedFilter(ownerID, id)
	if err != nil {
		return types.Task{}, err
	}
	var doc taskDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return types.Task{}, translate(err)
	}
	return doc.toTask(), nil
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	owner, err := parseID(task.UserID)
	if err != nil {
		return types.Task{}, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := taskDocument{
		ID:           primitive.NewObjectID(),
		Title:        task.Title,
		Description:  task.Description,
		Completed:    task.Completed,
		CompletedAt:  task.CompletedAt,
		Priority:     string(task.Priority),
		PriorityRank: task.Priority.Rank(),
		DueDate:      task.DueDate,
		User:         owner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return types.Task{}, translate(err)
	}

	// Without a foreign key the owner is re-checked after the insert. Account
	// deletion removes the user before sweeping its tasks, so a task inserted
	// after the sweep always sees the user gone here and removes itself.
	owners, err := r.users.CountDocuments(ctx, bson.M{"_id": owner}, options.Count().SetLimit(1))
	if err != nil {
		return types.Task{}, translate(err)
	}
	if owners == 0 {
		if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": doc.ID}); err != nil {
			return types.Task{}, translate(err)
		}
		return types.Task{}, store.ErrOwnerGone
	}
	return doc.toTask(), nil
}

// Update writes only the fields present in patch. It runs as a pipeline
// update so completedAt is derived from the stored completion state.
func (r *TaskRepository) Update(ctx context.Context, ownerID, id string, patch types.TaskPatch, now time.Time) (types.Task, error) {
	filter, err := ownedFilter(ownerID, id)
	if err != nil {
		return types.Task{}, err
	}
	return r.findOneAndUpdate(ctx, filter, patchPipeline(patch, now))
}

// patchPipeline builds the $set stage for patch. Client values are wrapped in
// $literal so a leading "$" is never read as a field path.
func patchPipeline(patch types.TaskPatch, now time.Time) mongo.Pipeline {
	now = now.UTC().Truncate(time.Millisecond)
	set := bson.D{}
	if patch.Title != nil {
		set = append(set, bson.E{Key: "title", Value: literal(*patch.Title)})
	}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: literal(*patch.Description)})
	}
	if patch.Priority != nil {
		set = append(set,
			bson.E{Key: "priority", Value: literal(string(*patch.Priority))},
			bson.E{Key: "priorityRank", Value: patch.Priority.Rank()},
		)
	}
	if patch.DueDateSet {
		set = append(set, bson.E{Key: "dueDate", Value: literal(utcPtr(patch.DueDate))})
	}
	if patch.Completed != nil {
		completedAt := any(nil)
		if *patch.Completed {
			completedAt = bson.D{{Key: "$cond", Value: bson.A{"$completed", "$completedAt", now}}}
		}
		set = append(set,
			bson.E{Key: "completed", Value: *patch.Completed},
			bson.E{Key: "completedAt", Value: completedAt},
		)
	}
	set = append(set, bson.E{Key: "updatedAt", Value: now})
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func literal(v any) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

// Toggle flips completion with a pipeline update so the read and write are atomic.
func (r *TaskRepository) Toggle(ctx context.Context, ownerID, id string, now time.Time) (types.Task, error) {
	filter, err := ownedFilter(ownerID, id)
	if err != nil {
		return types.Task{}, err
	}

	now = now.UTC().Truncate(time.Millisecond)
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "completed", Value: bson.D{{Key: "$not", Value: bson.A{"$completed"}}}},
			{Key: "completedAt", Value: bson.D{{Key: "$cond", Value: bson.A{"$completed", nil, now}}}},
			{Key: "updatedAt", Value: now},
		}}},
	}
	return r.findOneAndUpdate(ctx, filter, pipeline)
}

func (r *TaskRepository) Delete(ctx context.Context, ownerID, id string) (types.Task, error) {
	filter, err := ownedFilter(ownerID, id)
	if err != nil {
		return types.Task{}, err
	}
	var doc taskDocument
	if err := r.coll.FindOneAndDelete(ctx, filter).Decode(&doc); err != nil {
		return types.Task{}, translate(err)
	}
	return doc.toTask(), nil
}

func (r *TaskRepository) DeleteByUser(ctx context.Context, ownerID string) (int64, error) {
	owner, err := parseID(ownerID)
	if err != nil {
		return 0, err
	}
	result, err := r.coll.DeleteMany(ctx, bson.M{"user": owner})
	if err != nil {
		return 0, translate(err)
	}
	return result.DeletedCount, nil
}

func (r *TaskRepository) Stats(ctx context.Context, ownerID string, now time.Time) (types.TaskStats, error) {
	owner, err := parseID(ownerID)
	if err != nil {
		return types.TaskStats{}, err
	}

	count := func(filter bson.M) (int, error) {
		filter["user"] = owner
		n, err := r.coll.CountDocuments(ctx, filter)
		return int(n), translate(err)
	}

	var stats types.TaskStats
	if stats.TotalTasks, err = count(bson.M{}); err != nil {
		return types.TaskStats{}, err
	}
	if stats.CompletedTasks, err = count(bson.M{"completed": true}); err != nil {
		return types.TaskStats{}, err
	}
	if stats.OverdueTasks, err = count(bson.M{"completed": false, "dueDate": bson.M{"$lt": now.UTC()}}); err != nil {
		return types.TaskStats{}, err
	}
	stats.PendingTasks = stats.TotalTasks - stats.CompletedTasks
	return stats, nil
}

func (r *TaskRepository) Recent(ctx context.Context, ownerID string, limit int) ([]types.Task, error) {
	owner, err := parseID(ownerID)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(newestFirst()).SetLimit(int64(limit))
	return r.find(ctx, bson.M{"user": owner}, opts)
}

func (r *TaskRepository) Overdue(ctx context.Context, ownerID string, now time.Time, limit int) ([]types.Task, error) {
	owner, err := parseID(ownerID)
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		"user":      owner,
		"completed": false,
		"dueDate":   bson.M{"$lt": now.UTC()},
	}
	return r.find(ctx, filter, byDueDate(limit))
}

func (r *TaskRepository) Upcoming(ctx context.Context, ownerID string, now, until time.Time, limit int) ([]types.Task, error) {
	owner, err := parseID(ownerID)
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		"user":      owner,
		"completed": false,
		"dueDate":   bson.M{"$gte": now.UTC(), "$lte": until.UTC()},
	}
	return r.find(ctx, filter, byDueDate(limit))
}

func (r *TaskRepository) find(ctx context.Context, filter any, opts *options.FindOptions) ([]types.Task, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err)
	}
	defer cursor.Close(ctx)

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translate(err)
	}

	tasks := make([]types.Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, doc.toTask())
	}
	return tasks, nil
}

func (r *TaskRepository) findOneAndUpdate(ctx context.Context, filter, update any) (types.Task, error) {
	var doc taskDocument
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, returnAfter()).Decode(&doc); err != nil {
		return types.Task{}, translate(err)
	}
	return doc.toTask(), nil
}

func ownedFilter(ownerID, id string) (bson.M, error) {
	taskID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	owner, err := parseID(ownerID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	return bson.M{"_id": taskID, "user": owner}, nil
}

func returnAfter() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func newestFirst() bson.D {
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
}

func byDueDate(limit int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "dueDate", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
