package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/internal/validation"
	"github.com/tasktrack/apiserver/types"
)

const (
	// DashboardListLimit caps each task list on the dashboard.
	DashboardListLimit = 5

	// UpcomingWindow is how far ahead the dashboard looks for due tasks.
	UpcomingWindow = 7 * 24 * time.Hour
)

// Archiver stores a snapshot of an account before it is deleted and returns
// the object key it was written to.
type Archiver interface {
	ArchiveAccount(ctx context.Context, archive types.AccountArchive) (string, error)
}

// UserService encapsulates profile and account use-cases.
type UserService struct {
	users    UserRepository
	tasks    TaskRepository
	archiver Archiver
	events   *EventPublisher
	logger   *log.Logger
	now      func() time.Time
}

// NewUserService builds a UserService. archiver and events may be nil.
func NewUserService(users UserRepository, tasks TaskRepository, archiver Archiver, events *EventPublisher, logger *log.Logger) *UserService {
	if logger == nil {
		logger = log.Default()
	}
	return &UserService{
		users:    users,
		tasks:    tasks,
		archiver: archiver,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Profile returns the user's account.
func (s *UserService) Profile(ctx context.Context, userID string) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// CheckAvailability reports every supplied username or email already used
// by an account other than excludeID. Empty values are skipped.
func (s *UserService) CheckAvailability(ctx context.Context, username, email, excludeID string) error {
	verr := validation.NewError()

	if username != "" {
		taken, err := s.users.UsernameTaken(ctx, username, excludeID)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("username", "A user with this username already exists", username)
		}
	}
	if email != "" {
		taken, err := s.users.EmailTaken(ctx, email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("email", "A user with this email already exists", email)
		}
	}

	if len(verr.Fields) == 1 {
		verr.Message = fmt.Sprintf("%s already exists", Capitalize(verr.Fields[0].Field))
	}
	return verr.OrNil()
}

// UpdateProfile applies patch to the user's account after checking that a
// new username or email is not taken by someone else.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch types.ProfilePatch) (types.User, error) {
	current, err := s.Profile(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	var username, email string
	if patch.Username != nil {
		username = *patch.Username
	}
	if patch.Email != nil {
		email = *patch.Email
	}
	if err := s.CheckAvailability(ctx, username, email, userID); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			verr.Message = validation.DefaultMessage
		}
		return types.User{}, err
	}

	user, err := s.users.Update(ctx, patch.Apply(current))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, asDuplicate(err, map[string]string{
			"username": username,
			"email":    email,
		})
	}
	return user, nil
}

// Dashboard aggregates statistics with recent, overdue and upcoming tasks.
func (s *UserService) Dashboard(ctx context.Context, userID string) (types.Dashboard, error) {
	now := s.now().UTC()

	stats, err := s.tasks.Stats(ctx, userID, now)
	if err != nil {
		return types.Dashboard{}, err
	}
	recent, err := s.tasks.Recent(ctx, userID, DashboardListLimit)
	if err != nil {
		return types.Dashboard{}, err
	}
	overdue, err := s.tasks.Overdue(ctx, userID, now, DashboardListLimit)
	if err != nil {
		return types.Dashboard{}, err
	}
	upcoming, err := s.tasks.Upcoming(ctx, userID, now, now.Add(UpcomingWindow), DashboardListLimit)
	if err != nil {
		return types.Dashboard{}, err
	}

	return types.Dashboard{
		Stats:         stats,
		RecentTasks:   nonNil(recent),
		OverdueTasks:  nonNil(overdue),
		UpcomingTasks: nonNil(upcoming),
	}, nil
}

// DeleteAccount deletes the user and then sweeps the user's tasks. When an
// archiver is configured the account is archived first and a failed upload
// aborts the deletion.
//
// Deleting the user first closes the gate to new requests, so only a task
// create already past the gate can land after the sweep. The task stores
// refuse such an insert with store.ErrOwnerGone.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	if s.archiver != nil {
		tasks, err := s.tasks.ListAll(ctx, userID)
		if err != nil {
			return err
		}
		key, err := s.archiver.ArchiveAccount(ctx, types.AccountArchive{
			User:      user,
			Tasks:     nonNil(tasks),
			DeletedAt: s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("archive account: %w", err)
		}
		s.logger.Info("account archived", "user_id", userID, "key", key)
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	removed, err := s.tasks.DeleteByUser(ctx, userID)
	if err != nil {
		s.logger.Error("sweep tasks of deleted account", "user_id", userID, "err", err)
		return fmt.Errorf("remove tasks: %w", err)
	}
	s.logger.Info("account deleted", "user_id", userID, "tasks_removed", removed)

	s.events.Emit(ctx, Event{Type: EventUserDeleted, UserID: userID})
	return nil
}
