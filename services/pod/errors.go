package pod

import (
	"errors"
	"fmt"
)

// Failure taxonomy for remote store access. NotFound is an expected
// first-use condition and must never be conflated with an auth failure.
var (
	ErrNotFound    = errors.New("pod: document not found")
	ErrNotLoggedIn = errors.New("pod: not logged in")
	ErrLocked      = errors.New("pod: encryption key locked")
)

// StatusError reports an unexpected HTTP status from the pod server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pod: unexpected status %d", e.Code)
}

// Transient reports whether err is worth retrying. NotFound short-circuits
// because retrying cannot make an absent document appear, and auth or key
// failures need user action, not repetition.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotLoggedIn) || errors.Is(err, ErrLocked) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= 500
	}
	// Network-level failures (timeouts, resets) land here.
	return true
}
