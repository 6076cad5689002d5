package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("Validation Error")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// Messages shown to the user for the account errors.
const (
	MsgDuplicateEmail     = "This email is already registered."
	MsgInvalidCredentials = "Invalid email or password."
	MsgInternal           = "Something went wrong. Please try again."
	MsgLoginRequired      = "Log in to chat."
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// DuplicateEmail reports a registration against an email that already has an account.
// It is a Conflict, so errors.Is(err, ErrConflict) holds.
func DuplicateEmail() *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: MsgDuplicateEmail,
		Field:   "email",
	}
}

// InvalidCredentials is returned for both an unknown email and a wrong
// password. The two cases must stay indistinguishable to the caller.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: MsgInvalidCredentials,
	}
}

// Unauthenticated reports a request that needs a session but has none.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: MsgLoginRequired,
	}
}

// UserMessage returns the text to render back into a form for err.
// Typed application errors carry their own message; anything else gets a
// generic one so driver details never reach the page.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return MsgInternal
}
