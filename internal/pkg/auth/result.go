package auth

import "github.com/ManuelReschke/SubFox/app/models"

// ErrorCode is the machine-readable reason of a failed auth operation.
type ErrorCode string

const (
	InvalidCredentials ErrorCode = "invalid_credentials"
	EmailAlreadyExists ErrorCode = "email_already_exists"
	WeakPassword       ErrorCode = "weak_password"
)

// Result is the outcome of an auth operation. User is set iff Success.
type Result struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user,omitempty"`
	Code    ErrorCode    `json:"error_code,omitempty"`
	Message string       `json:"message,omitempty"`
}

func success(user *models.User) Result {
	return Result{Success: true, User: user}
}

func failure(code ErrorCode, message string) Result {
	return Result{Success: false, Code: code, Message: message}
}
