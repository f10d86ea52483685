package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tasktrack/apiserver/internal/auth"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (types.User, error)
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id string) error
}

// Session is an authenticated user together with a freshly issued token.
type Session struct {
	User      types.User
	Token     string
	ExpiresAt time.Time
}

// AuthService encapsulates signup, login and token checks.
type AuthService struct {
	users    UserRepository
	tokens   *auth.TokenManager
	denylist auth.Denylist
}

func NewAuthService(users UserRepository, tokens *auth.TokenManager, denylist auth.Denylist) *AuthService {
	if denylist == nil {
		denylist = auth.NopDenylist{}
	}
	return &AuthService{users: users, tokens: tokens, denylist: denylist}
}

// Signup creates an account from a validated registration and signs the user in.
func (s *AuthService) Signup(ctx context.Context, reg types.Registration) (Session, error) {
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return Session{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Name:         reg.Name,
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return Session{}, asDuplicate(err, map[string]string{
			"username": reg.Username,
			"email":    reg.Email,
		})
	}
	return s.issue(user)
}

// Login checks identifier (username or email) and password. Unknown
// identities and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (Session, error) {
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			auth.RejectPassword(password)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Logout revokes the presented token when a denylist is configured.
func (s *AuthService) Logout(ctx context.Context, claims auth.Claims) error {
	return s.denylist.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
}

// Verify returns the current snapshot of the user.
func (s *AuthService) Verify(ctx context.Context, userID string) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// Authenticate verifies a bearer token and resolves its user against the
// store on every call.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.User, auth.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return types.User{}, auth.Claims{}, err
	}

	revoked, err := s.denylist.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return types.User{}, auth.Claims{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if revoked {
		return types.User{}, auth.Claims{}, auth.ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			return types.User{}, auth.Claims{}, ErrUserGone
		}
		return types.User{}, auth.Claims{}, err
	}
	return user, claims, nil
}

func (s *AuthService) issue(user types.User) (Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
