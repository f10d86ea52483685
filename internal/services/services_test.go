package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/auth"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/internal/store/storetest"
	"github.com/tasktrack/apiserver/internal/validation"
	"github.com/tasktrack/apiserver/types"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	events   []Event
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.events = append(p.events, event)
	return "msg-1", nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeArchiver struct {
	archives []types.AccountArchive
	err      error
}

func (a *fakeArchiver) ArchiveAccount(_ context.Context, archive types.AccountArchive) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.archives = append(a.archives, archive)
	return "archives/" + archive.User.ID + ".json", nil
}

type denylist struct {
	revoked map[string]time.Time
}

func (d *denylist) Revoke(_ context.Context, tokenID string, until time.Time) error {
	d.revoked[tokenID] = until
	return nil
}

func (d *denylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := d.revoked[tokenID]
	return ok, nil
}

// stepClock returns increasing times so creation order is deterministic.
func stepClock() func() time.Time {
	var mu sync.Mutex
	current := baseTime
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Minute)
		return current
	}
}

type fixture struct {
	db        *storetest.DB
	publisher *recordingPublisher
	tasks     *TaskService
	users     *UserService
	auth      *AuthService
	denylist  *denylist
}

func newFixture(t *testing.T, archiver Archiver) *fixture {
	t.Helper()
	db := storetest.New()
	db.SetClock(stepClock())

	publisher := &recordingPublisher{}
	events := NewEventPublisher(publisher, "", logging.Discard())
	deny := &denylist{revoked: map[string]time.Time{}}

	tasks := NewTaskService(db.Tasks(), events)
	tasks.now = func() time.Time { return baseTime }
	users := NewUserService(db.Users(), db.Tasks(), archiver, events, logging.Discard())
	users.now = func() time.Time { return baseTime }

	return &fixture{
		db:        db,
		publisher: publisher,
		tasks:     tasks,
		users:     users,
		auth:      NewAuthService(db.Users(), auth.NewTokenManager("test-secret", time.Hour), deny),
		denylist:  deny,
	}
}

func (f *fixture) createUser(t *testing.T, username string) types.User {
	t.Helper()
	user, err := f.db.Users().Create(context.Background(), types.User{
		Name:         "Test User",
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "unused",
	})
	require.NoError(t, err)
	return user
}

func TestAuthService_SignupAndLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	session, err := f.auth.Signup(ctx, types.Registration{
		Name:     "Jane Doe",
		Username: "JaneDoe",
		Email:    "Jane@Example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "janedoe", session.User.Username)
	assert.Equal(t, "jane@example.com", session.User.Email)
	assert.NotEqual(t, "password123", session.User.PasswordHash)

	byEmail, err := f.auth.Login(ctx, "jane@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, byEmail.User.ID)

	byUsername, err := f.auth.Login(ctx, "janedoe", "password123")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, byUsername.User.ID)

	_, err = f.auth.Login(ctx, "janedoe", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_SignupDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.createUser(t, "taken")

	_, err := f.auth.Signup(context.Background(), types.Registration{
		Name:     "Other",
		Username: "taken",
		Email:    "new@example.com",
		Password: "password123",
	})
	var dup *DuplicateFieldError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "username", dup.Field)
	assert.Equal(t, "taken", dup.Value)
	assert.Equal(t, "Username already exists", dup.Error())
}

func TestAuthService_Authenticate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := f.createUser(t, "alice")

	session, err := f.auth.issue(user)
	require.NoError(t, err)

	got, claims, err := f.auth.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.ID, claims.UserID)

	_, _, err = f.auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	require.NoError(t, f.auth.Logout(ctx, claims))
	_, _, err = f.auth.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)
}

func TestAuthService_AuthenticateDeletedUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := f.createUser(t, "ghost")

	session, err := f.auth.issue(user)
	require.NoError(t, err)
	require.NoError(t, f.db.Users().Delete(ctx, user.ID))

	_, _, err = f.auth.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUserGone)

	_, err = f.auth.Verify(ctx, user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTaskService_CreateDefaults(t *testing.T) {
	f := newFixture(t, nil)
	user := f.createUser(t, "alice")

	task, err := f.tasks.Create(context.Background(), user.ID, types.TaskDraft{Title: "Write report"})
	require.NoError(t, err)
	assert.Equal(t, types.PriorityMedium, task.Priority)
	assert.False(t, task.Completed)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, user.ID, task.UserID)
	assert.Equal(t, []EventType{EventTaskCreated}, f.publisher.types())
	assert.Equal(t, []string{DefaultEventChannel}, f.publisher.channels)
}

func TestTaskService_OwnerScoping(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	task, err := f.tasks.Create(ctx, alice.ID, types.TaskDraft{Title: "Private"})
	require.NoError(t, err)

	_, err = f.tasks.Get(ctx, bob.ID, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	title := "Hijacked"
	_, err = f.tasks.Update(ctx, bob.ID, task.ID, types.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.tasks.Toggle(ctx, bob.ID, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.tasks.Delete(ctx, bob.ID, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := f.tasks.Get(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Private", got.Title)

	_, err = f.tasks.Get(ctx, alice.ID, "not-an-id")
	assert.ErrorIs(t, err, store.ErrInvalidID)
}

func TestTaskService_UpdateAndToggle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := f.createUser(t, "alice")

	task, err := f.tasks.Create(ctx, user.ID, types.TaskDraft{Title: "Draft"})
	require.NoError(t, err)

	done := true
	updated, err := f.tasks.Update(ctx, user.ID, task.ID, types.TaskPatch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, baseTime, *updated.CompletedAt)

	toggled, err := f.tasks.Toggle(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Completed)
	assert.Nil(t, toggled.CompletedAt)

	toggled, err = f.tasks.Toggle(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	assert.NotNil(t, toggled.CompletedAt)

	assert.Equal(t, []EventType{EventTaskCreated, EventTaskUpdated, EventTaskToggled, EventTaskToggled}, f.publisher.types())
}

func TestTaskService_ListPagination(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := f.createUser(t, "alice")

	for _, title := range []string{"a", "b", "c", "d", "e"} {
		_, err := f.tasks.Create(ctx, user.ID, types.TaskDraft{Title: title})
		require.NoError(t, err)
	}

	tasks, page, err := f.tasks.List(ctx, user.ID, types.TaskQuery{Page: 2, Limit: 2, SortBy: types.SortByCreatedAt, Order: types.OrderDesc})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "c", tasks[0].Title)
	assert.Equal(t, "b", tasks[1].Title)
	assert.Equal(t, types.Pagination{
		CurrentPage: 2,
		TotalPages:  3,
		TotalTasks:  5,
		HasNextPage: true,
		HasPrevPage: true,
	}, page)

	tasks, page, err = f.tasks.List(ctx, user.ID, types.TaskQuery{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.NotNil(t, tasks)
	assert.False(t, page.HasNextPage)
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name               string
		page, limit, total int
		want               types.Pagination
	}{
		{"empty", 1, 10, 0, types.Pagination{CurrentPage: 1}},
		{"single page", 1, 10, 3, types.Pagination{CurrentPage: 1, TotalPages: 1, TotalTasks: 3}},
		{"exact fit", 2, 5, 10, types.Pagination{CurrentPage: 2, TotalPages: 2, TotalTasks: 10, HasPrevPage: true}},
		{"first of many", 1, 5, 11, types.Pagination{CurrentPage: 1, TotalPages: 3, TotalTasks: 11, HasNextPage: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paginate(tt.page, tt.limit, tt.total))
		})
	}
}

func TestTaskService_Stats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := f.createUser(t, "alice")

	past := baseTime.Add(-24 * time.Hour)
	for i := 0; i < 7; i++ {
		draft := types.TaskDraft{Title: "task"}
		if i == 0 {
			draft.DueDate = &past
		}
		task, err := f.tasks.Create(ctx, user.ID, draft)
		require.NoError(t, err)
		if i == 6 {
			_, err = f.tasks.Toggle(ctx, user.ID, task.ID)
			require.NoError(t, err)
		}
	}

	stats, recent, err := f.tasks.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStats{TotalTasks: 7, CompletedTasks: 1, PendingTasks: 6, OverdueTasks: 1}, stats)
	assert.Len(t, recent, RecentTaskLimit)
}

func TestUserService_CheckAvailability(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := f.createUser(t, "alice")

	require.NoError(t, f.users.CheckAvailability(ctx, "fresh", "fresh@example.com", ""))
	require.NoError(t, f.users.CheckAvailability(ctx, "alice", "alice@example.com", alice.ID))

	err := f.users.CheckAvailability(ctx, "ALICE", "", "")
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Username already exists", verr.Summary())
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "A user with this username already exists", verr.Fields[0].Message)

	err = f.users.CheckAvailability(ctx, "alice", "alice@example.com", "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, validation.DefaultMessage, verr.Summary())
	assert.Len(t, verr.Fields, 2)
}

func TestUserService_UpdateProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := f.createUser(t, "alice")
	f.createUser(t, "bob")

	name := "Alice Liddell"
	user, err := f.users.UpdateProfile(ctx, alice.ID, types.ProfilePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", user.Name)
	assert.Equal(t, "alice", user.Username)

	same := "alice"
	_, err = f.users.UpdateProfile(ctx, alice.ID, types.ProfilePatch{Username: &same})
	require.NoError(t, err)

	taken := "bob"
	_, err = f.users.UpdateProfile(ctx, alice.ID, types.ProfilePatch{Username: &taken})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, validation.DefaultMessage, verr.Summary())
	assert.Equal(t, "username", verr.Fields[0].Field)
}

func TestUserService_Dashboard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := f.createUser(t, "alice")

	overdue := baseTime.Add(-time.Hour)
	soon := baseTime.Add(48 * time.Hour)
	later := baseTime.Add(30 * 24 * time.Hour)
	for _, due := range []*time.Time{&overdue, &soon, &later, nil} {
		_, err := f.tasks.Create(ctx, user.ID, types.TaskDraft{Title: "task", DueDate: due})
		require.NoError(t, err)
	}

	dash, err := f.users.Dashboard(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, dash.Stats.TotalTasks)
	assert.Len(t, dash.RecentTasks, 4)
	require.Len(t, dash.OverdueTasks, 1)
	assert.Equal(t, overdue, *dash.OverdueTasks[0].DueDate)
	require.Len(t, dash.UpcomingTasks, 1)
	assert.Equal(t, soon, *dash.UpcomingTasks[0].DueDate)
}

func TestUserService_DeleteAccount(t *testing.T) {
	archiver := &fakeArchiver{}
	f := newFixture(t, archiver)
	ctx := context.Background()
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	for _, owner := range []string{alice.ID, alice.ID, bob.ID} {
		_, err := f.tasks.Create(ctx, owner, types.TaskDraft{Title: "task"})
		require.NoError(t, err)
	}

	require.NoError(t, f.users.DeleteAccount(ctx, alice.ID))

	require.Len(t, archiver.archives, 1)
	assert.Equal(t, alice.ID, archiver.archives[0].User.ID)
	assert.Len(t, archiver.archives[0].Tasks, 2)

	_, err := f.users.Profile(ctx, alice.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	remaining, err := f.db.Tasks().ListAll(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	bobTasks, err := f.db.Tasks().ListAll(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, bobTasks, 1)

	assert.Contains(t, f.publisher.types(), EventUserDeleted)
}

func TestUserService_DeleteAccountArchiveFailure(t *testing.T) {
	archiver := &fakeArchiver{err: errors.New("bucket unavailable")}
	f := newFixture(t, archiver)
	ctx := context.Background()
	alice := f.createUser(t, "alice")

	err := f.users.DeleteAccount(ctx, alice.ID)
	require.Error(t, err)

	_, err = f.users.Profile(ctx, alice.ID)
	assert.NoError(t, err)
}

// lateTaskUsers creates a task for the user right after deleting it, the way
// a create request that passed the gate earlier would.
type lateTaskUsers struct {
	UserRepository
	db    *storetest.DB
	order *[]string
}

func (u lateTaskUsers) Delete(ctx context.Context, id string) error {
	if err := u.UserRepository.Delete(ctx, id); err != nil {
		return err
	}
	*u.order = append(*u.order, "user")
	_, err := u.db.Tasks().Create(ctx, types.Task{Title: "late", Priority: types.PriorityLow, UserID: id})
	return err
}

type sweepRecorder struct {
	TaskRepository
	order *[]string
}

func (r sweepRecorder) DeleteByUser(ctx context.Context, ownerID string) (int64, error) {
	*r.order = append(*r.order, "tasks")
	return r.TaskRepository.DeleteByUser(ctx, ownerID)
}

func TestUserService_DeleteAccountSweepsLateTasks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := f.createUser(t, "alice")

	var order []string
	users := NewUserService(
		lateTaskUsers{UserRepository: f.db.Users(), db: f.db, order: &order},
		sweepRecorder{TaskRepository: f.db.Tasks(), order: &order},
		nil, nil, logging.Discard(),
	)

	require.NoError(t, users.DeleteAccount(ctx, alice.ID))
	assert.Equal(t, []string{"user", "tasks"}, order)

	remaining, err := f.db.Tasks().ListAll(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

// interleavingTasks toggles the task between the moment the service is
// called and the moment the repository writes the update.
type interleavingTasks struct {
	*storetest.TaskRepository
}

func (r interleavingTasks) Update(ctx context.Context, ownerID, id string, patch types.TaskPatch, now time.Time) (types.Task, error) {
	if _, err := r.TaskRepository.Toggle(ctx, ownerID, id, now); err != nil {
		return types.Task{}, err
	}
	return r.TaskRepository.Update(ctx, ownerID, id, patch, now)
}

func TestTaskService_UpdateKeepsConcurrentToggle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := f.createUser(t, "alice")

	task, err := f.tasks.Create(ctx, user.ID, types.TaskDraft{Title: "Draft", Description: "keep me"})
	require.NoError(t, err)

	tasks := NewTaskService(interleavingTasks{f.db.Tasks()}, nil)
	title := "renamed"
	updated, err := tasks.Update(ctx, user.ID, task.ID, types.TaskPatch{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "keep me", updated.Description)
	assert.True(t, updated.Completed)
	assert.NotNil(t, updated.CompletedAt)

	stored, err := f.db.Tasks().Get(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.Equal(t, "renamed", stored.Title)
}

// goneOwnerTasks rejects every insert the way the task stores do once the
// owning account has been deleted.
type goneOwnerTasks struct {
	TaskRepository
}

func (goneOwnerTasks) Create(context.Context, types.Task) (types.Task, error) {
	return types.Task{}, fmt.Errorf("%w: tasks_user_id_fkey", store.ErrOwnerGone)
}

func TestTaskService_CreateForDeletedOwner(t *testing.T) {
	f := newFixture(t, nil)
	user := f.createUser(t, "alice")

	tasks := NewTaskService(goneOwnerTasks{f.db.Tasks()}, f.tasks.events)
	_, err := tasks.Create(context.Background(), user.ID, types.TaskDraft{Title: "Too late"})
	assert.ErrorIs(t, err, ErrUserGone)
	assert.Empty(t, f.publisher.types())
}

func TestAuthService_ConcurrentDuplicateSignup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	usernames := []string{"racer", "Racer", "RACER", "rAcEr", "racER", "RACer"}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     []*DuplicateFieldError
		others    []error
	)
	for i, username := range usernames {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auth.Signup(ctx, types.Registration{
				Name:     "Racer",
				Username: username,
				Email:    fmt.Sprintf("racer%d@example.com", i),
				Password: "password123",
			})

			mu.Lock()
			defer mu.Unlock()
			var dup *DuplicateFieldError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &dup):
				dupes = append(dupes, dup)
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, succeeded)
	require.Len(t, dupes, len(usernames)-1)
	for _, dup := range dupes {
		assert.Equal(t, "username", dup.Field)
	}

	_, err := f.db.Users().GetByIdentifier(ctx, "racer")
	assert.NoError(t, err)
}

func TestEventPublisher_FailuresAreSwallowed(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	events := NewEventPublisher(publisher, "custom", logging.Discard())
	events.Emit(context.Background(), Event{Type: EventTaskCreated, UserID: "u1"})

	var nilPublisher *EventPublisher
	nilPublisher.Emit(context.Background(), Event{Type: EventTaskCreated})
}
