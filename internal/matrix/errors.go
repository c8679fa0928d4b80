package matrix

import (
	"context"
	"errors"
	"fmt"

	"maunium.net/go/mautrix"

	"matrixmcp/internal/auth"
)

var (
	// ErrMissingServer indicates that no homeserver URL was supplied.
	ErrMissingServer = errors.New("homeserver URL is required")

	// ErrMissingIdentity indicates that no user ID was supplied.
	ErrMissingIdentity = errors.New("matrix user ID is required")

	// ErrMissingToken indicates that no access token was available.
	ErrMissingToken = errors.New("access token is required")

	// ErrSyncFailed indicates that the initial sync did not complete.
	ErrSyncFailed = errors.New("initial sync failed")

	// ErrTimeout indicates that a bounded wait expired.
	ErrTimeout = errors.New("timed out")
)

// Homeserver error classes. Sessions wrap homeserver errors with these so
// callers do not depend on client library error types.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrRoomInUse    = errors.New("room alias already in use")
	ErrUnknownToken = errors.New("access token not recognised by homeserver")
)

// Steps reported by StepError.
const (
	StepVerification = "verification"
	StepExchange     = "exchange"
	StepBootstrap    = "bootstrap"
)

// StepError names the stage of session acquisition that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step recorded in err, or "" if there is none.
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

// IsRetryable reports whether err is transient: a timeout or a failure to
// fetch signing keys.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		auth.IsRetryable(err)
}

// classifyError wraps a homeserver error with the matching error class.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mautrix.MForbidden):
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case errors.Is(err, mautrix.MNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, mautrix.MLimitExceeded):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case errors.Is(err, mautrix.MRoomInUse):
		return fmt.Errorf("%w: %w", ErrRoomInUse, err)
	case errors.Is(err, mautrix.MUnknownToken):
		return fmt.Errorf("%w: %w", ErrUnknownToken, err)
	default:
		return err
	}
}

// Describe turns an error into a message suitable for tool output. It never
// includes credentials.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return "Access denied. You don't have permission to perform this action."
	case errors.Is(err, ErrNotFound):
		return "Not found. The room, user or event does not exist or is not visible to you."
	case errors.Is(err, ErrRateLimited):
		return "Rate limited. Please wait before trying again."
	case errors.Is(err, ErrRoomInUse):
		return "Room alias already exists. Please choose a different alias."
	case errors.Is(err, ErrUnknownToken):
		return "The homeserver rejected the access token. Please sign in again."
	case errors.Is(err, ErrTimeout):
		return "Timed out waiting for the homeserver."
	default:
		return err.Error()
	}
}
