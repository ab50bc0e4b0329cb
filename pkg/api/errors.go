package api

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrValidation         = errors.New("validation failure")
	ErrAlreadyExists      = errors.New("already exists")
)

// Invalid builds a ValidationFailure for input rejected before any request.
func Invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// Unavailable classifies a backend failure while keeping its text for logs.
func Unavailable(err error, action string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrBackendUnavailable, "%s: %v", action, err)
}

// PartialSendError reports that a message was stored but the parent
// conversation preview could not be updated. Nothing is rolled back.
type PartialSendError struct {
	MessageId string
	Err       error
}

func (e *PartialSendError) Error() string {
	return fmt.Sprintf("message %s stored, preview update failed: %v", e.MessageId, e.Err)
}

func (e *PartialSendError) Unwrap() error {
	return e.Err
}

// NoticeFor renders a user-facing failure for action without backend detail.
func NoticeFor(action string, err error) string {
	var partial *PartialSendError
	switch {
	case errors.As(err, &partial):
		return "Message sent, but the conversation could not be refreshed"
	case errors.Is(err, ErrNotAuthenticated):
		return "Sign in to " + action
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to " + action
	case errors.Is(err, ErrNotFound):
		return "Could not " + action + ": not found"
	case errors.Is(err, ErrValidation):
		return "Could not " + action + ": check your input"
	default:
		return "Could not " + action
	}
}
