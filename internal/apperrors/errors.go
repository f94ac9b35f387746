// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a sync is requested while another sweep
// holds the status flag. It is an expected outcome, not a failure.
var ErrSyncInProgress = errors.New("sync already in progress")

// RemoteError represents a failed call to the GitHub API. StatusCode is zero
// when the request never produced a response (e.g. a network failure).
type RemoteError struct {
	StatusCode  int
	RateLimited bool
	Err         error
}

func (e *RemoteError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("github request rate-limited (status %d): %v", e.StatusCode, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("github request failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("github request failed: %v", e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a RemoteError caused by upstream rate
// limiting, so callers can back off rather than abort.
func IsRateLimited(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.RateLimited
}

// StoreError represents a failed database operation. Op names the store
// method that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
