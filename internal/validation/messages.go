package validation

import (
	"fmt"
	"strings"
)

const (
	msgDueDateInvalid = "Due date must be a valid date"
	msgDueDatePast    = "Due date must be in the future"
	msgPriority       = "Priority must be one of: low, medium, high"
)

// messages maps "<Struct>.<field>.<tag>" to the client-facing message.
var messages = map[string]string{
	"SignupRequest.name.required":   "Name is required",
	"SignupRequest.name.min":        "Name must be between 2 and 50 characters",
	"SignupRequest.name.max":        "Name must be between 2 and 50 characters",
	"SignupRequest.name.personname": "Name can only contain letters and spaces",

	"SignupRequest.username.required": "Username is required",
	"SignupRequest.username.username": "Username can only contain letters, numbers, and underscores",
	"SignupRequest.username.min":      "Username must be at least 3 characters long",
	"SignupRequest.username.max":      "Username cannot exceed 20 characters",

	"SignupRequest.email.required": "Email is required",
	"SignupRequest.email.email":    "Please provide a valid email address",
	"SignupRequest.email.max":      "Email cannot exceed 100 characters",

	"SignupRequest.password.required": "Password is required",
	"SignupRequest.password.min":      "Password must be at least 8 characters long",
	"SignupRequest.password.max":      "Password cannot exceed 128 characters",

	"LoginRequest.identifier.required": "Email or username is required",
	"LoginRequest.identifier.min":      "Identifier must be between 3 and 100 characters",
	"LoginRequest.identifier.max":      "Identifier must be between 3 and 100 characters",
	"LoginRequest.password.required":   "Password is required",

	"CreateTaskRequest.title.required":  "Task title is required",
	"CreateTaskRequest.title.max":       "Task title must be between 1 and 100 characters",
	"CreateTaskRequest.description.max": "Task description cannot exceed 500 characters",
	"CreateTaskRequest.priority.oneof":  msgPriority,

	"UpdateTaskRequest.title.notblank":  "Task title cannot be empty",
	"UpdateTaskRequest.title.max":       "Task title must be between 1 and 100 characters",
	"UpdateTaskRequest.description.max": "Task description cannot exceed 500 characters",
	"UpdateTaskRequest.priority.oneof":  msgPriority,

	"ProfileRequest.name.notblank":   "Name cannot be empty",
	"ProfileRequest.name.min":        "Name must be between 2 and 50 characters",
	"ProfileRequest.name.max":        "Name must be between 2 and 50 characters",
	"ProfileRequest.name.personname": "Name can only contain letters and spaces",

	"ProfileRequest.username.username": "Username can only contain letters, numbers, and underscores",
	"ProfileRequest.username.min":      "Username must be at least 3 characters long",
	"ProfileRequest.username.max":      "Username cannot exceed 20 characters",

	"ProfileRequest.email.email": "Please provide a valid email address",
	"ProfileRequest.email.max":   "Email cannot exceed 100 characters",
}

// typeMessages is used when a JSON value has the wrong type for its field.
var typeMessages = map[string]string{
	"completed":   "Completed must be a boolean value",
	"dueDate":     msgDueDateInvalid,
	"priority":    msgPriority,
	"title":       "Task title must be a string",
	"description": "Task description must be a string",
}

func messageFor(namespace, tag, field string) string {
	if msg, ok := messages[namespace+"."+tag]; ok {
		return msg
	}
	return fmt.Sprintf("%s is invalid", strings.ToUpper(field[:1])+field[1:])
}
