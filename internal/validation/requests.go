package validation

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50,personname"`
	Username string `json:"username" validate:"required,username,min=3,max=20"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest is the body of POST /auth/login. Identifier is a username or an email.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,min=3,max=100"`
	Password   string `json:"password" validate:"required"`
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Title       string  `json:"title" validate:"required,max=100"`
	Description string  `json:"description" validate:"max=500"`
	Priority    string  `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *string `json:"dueDate" validate:"-"`
}

// UpdateTaskRequest is the body of PUT /tasks/{id}. Every field is optional.
type UpdateTaskRequest struct {
	Title       *string          `json:"title" validate:"omitnil,notblank,max=100"`
	Description *string          `json:"description" validate:"omitnil,max=500"`
	Priority    *string          `json:"priority" validate:"omitnil,oneof=low medium high"`
	Completed   *bool            `json:"completed" validate:"-"`
	DueDate     Nullable[string] `json:"dueDate" validate:"-"`
}

// ProfileRequest is the body of PUT /user/profile. Every field is optional.
type ProfileRequest struct {
	Name     *string `json:"name" validate:"omitnil,notblank,min=2,max=50,personname"`
	Username *string `json:"username" validate:"omitnil,username,min=3,max=20"`
	Email    *string `json:"email" validate:"omitnil,email,max=100"`
}
