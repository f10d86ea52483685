package types

import "time"

// User represents an account in the system.
// It contains identity and audit metadata.
type User struct {
	// ID is the unique identifier of the user. Its format depends on the
	// backing store (UUID for postgres, ObjectID hex for mongo).
	ID string `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Username is the unique login name chosen by the user.
	// It is always stored in lower case.
	Username string `json:"username" db:"username"`

	// Email is the user's email address. It is unique and stored in lower case.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// UserSummary is the public subset of a user embedded in other payloads.
type UserSummary struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Summary returns the public subset of the user.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
		Email:    u.Email,
	}
}

// Registration is a validated signup request.
type Registration struct {
	Name     string
	Username string
	Email    string
	Password string
}

// ProfilePatch is a validated partial profile update. Nil fields are left unchanged.
type ProfilePatch struct {
	Name     *string
	Username *string
	Email    *string
}

// Apply returns u with the patch applied.
func (p ProfilePatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	return u
}
