package authshield

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrRateLimited        = errors.New("rate limited")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrTokenInvalid       = errors.New("token invalid or already used")
	ErrTokenExpired       = errors.New("token expired")
	ErrAccountExists      = errors.New("account already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrAccountNotLocked   = errors.New("account not locked")
	ErrValidation         = errors.New("validation failed")
	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrPasswordReuse      = errors.New("new password must be different from current password")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeAccountLocked      Code = "account_locked"
	CodeRateLimited        Code = "rate_limited"
	CodeEmailNotVerified   Code = "email_not_verified"
	CodeTokenInvalid       Code = "token_invalid"
	CodeTokenExpired       Code = "token_expired"
	CodeAccountExists      Code = "account_exists"
	CodeUserNotFound       Code = "user_not_found"
	CodePermissionDenied   Code = "permission_denied"
	CodeAccountNotLocked   Code = "account_not_locked"
	CodeValidation         Code = "validation_error"
	CodePasswordReuse      Code = "password_reuse"
	CodeSessionInvalid     Code = "session_invalid"
	CodeServiceUnavailable Code = "service_unavailable"
)

// Error is the client-facing failure returned by Engine operations. Message
// is safe to show to end users. errors.Is matches the underlying sentinel.
type Error struct {
	Code           Code
	Message        string
	RetryAfter     int
	LockoutMinutes int
	Fields         map[string]string

	sentinel error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.sentinel
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func newError(sentinel error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, sentinel: sentinel}
}

func errInvalidCredentials() *Error {
	return newError(ErrInvalidCredentials, CodeInvalidCredentials, "Invalid credentials")
}

func errRateLimited(retryAfter int) *Error {
	e := newError(ErrRateLimited, CodeRateLimited, "Too many attempts, please try again later.")
	e.RetryAfter = retryAfter
	return e
}

func errAccountLocked(minutes int) *Error {
	e := newError(ErrAccountLocked, CodeAccountLocked, fmt.Sprintf(
		"Account is temporarily locked due to too many failed login attempts. Try again in %d minutes.", minutes))
	e.LockoutMinutes = minutes
	e.RetryAfter = minutes * 60
	return e
}

func errEmailNotVerified() *Error {
	return newError(ErrEmailNotVerified, CodeEmailNotVerified, "Please verify your email address before logging in.")
}

func errValidation(fields map[string]string) *Error {
	e := newError(ErrValidation, CodeValidation, "Invalid input")
	e.Fields = fields
	return e
}

func errPasswordPolicy(reason string) *Error {
	e := newError(ErrPasswordPolicy, CodeValidation, "Password does not meet requirements")
	e.Fields = map[string]string{"password": reason}
	return e
}

func errUnavailable() *Error {
	return newError(ErrServiceUnavailable, CodeServiceUnavailable, "Service temporarily unavailable, please try again")
}

func errPermissionDenied() *Error {
	return newError(ErrPermissionDenied, CodePermissionDenied, "Permission denied")
}

func errUserNotFound() *Error {
	return newError(ErrUserNotFound, CodeUserNotFound, "User not found")
}

func errSessionInvalid() *Error {
	return newError(ErrSessionInvalid, CodeSessionInvalid, "Session is invalid or has expired")
}

func errTokenInvalid() *Error {
	return newError(ErrTokenInvalid, CodeTokenInvalid, "Invalid or already used token")
}

func errTokenExpired() *Error {
	return newError(ErrTokenExpired, CodeTokenExpired, "Token has expired, please request a new one")
}

func errAccountExists() *Error {
	return newError(ErrAccountExists, CodeAccountExists, "An account with this email already exists")
}

func errAccountNotLocked() *Error {
	return newError(ErrAccountNotLocked, CodeAccountNotLocked, "Account is not locked")
}

func errPasswordReuse() *Error {
	e := newError(ErrPasswordReuse, CodePasswordReuse, "New password must be different from current password")
	e.Fields = map[string]string{"newPassword": "must differ from the current password"}
	return e
}
