package travion

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRefreshToken is returned when a token refresh is attempted with no
	// stored refresh token. Fatal for that call; the caller must re-authenticate.
	ErrNoRefreshToken = errors.New("travion: no refresh token available")

	// ErrMalformedResponse is returned when the backend sends a payload that
	// cannot be validated into the canonical data model.
	ErrMalformedResponse = errors.New("travion: malformed response from server")

	// ErrNoCachedUser is returned when a 304 profile response arrives but no
	// previously stored user exists to fall back to.
	ErrNoCachedUser = errors.New("travion: no cached user data available")
)

// ValidationError reports malformed input to a store operation. This is a
// caller bug, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a persistence write failure so the caller can abort the
// operation that produced the unusable data. Read failures never surface as
// errors; they degrade to "no data".
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
