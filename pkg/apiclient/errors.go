package apiclient

import (
	"errors"
	"fmt"
)

// Error codes carried in the response envelope.
const (
	CodeTimeout     = "timeout"
	CodeNetwork     = "network_error"
	CodeServerError = "server_error"
	CodeAuthExpired = "auth_expired"
)

// TimeoutError reports that no response arrived within the configured timeout.
// Counts as a retryable condition.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NetworkError reports a transport-level failure where no response was
// received at all. Retryable.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError reports a 5xx response. Retryable up to the configured ceiling.
type ServerError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.Status)
}

// ClientError reports a non-401 4xx response. Never retried; surfaced to the
// caller with the backend's message and code when present.
type ClientError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *ClientError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed (HTTP %d)", e.Status)
}

// AuthExpiredError reports a 401 response. By the time the caller sees this
// error the default response interceptor has already cleared the persisted
// credentials, so the expired session is visible process-wide. Never retried.
type AuthExpiredError struct{}

func (e *AuthExpiredError) Error() string {
	return "authentication expired"
}

// retryable reports whether the error represents a transient condition worth
// another attempt: transport failures, timeouts and 5xx responses.
func retryable(err error) bool {
	var (
		timeoutErr *TimeoutError
		netErr     *NetworkError
		serverErr  *ServerError
	)
	return errors.As(err, &timeoutErr) ||
		errors.As(err, &netErr) ||
		errors.As(err, &serverErr)
}

// errorCode maps a taxonomy error to the envelope code.
func errorCode(err error) string {
	var (
		timeoutErr *TimeoutError
		netErr     *NetworkError
		serverErr  *ServerError
		clientErr  *ClientError
		authErr    *AuthExpiredError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return CodeTimeout
	case errors.As(err, &netErr):
		return CodeNetwork
	case errors.As(err, &serverErr):
		if serverErr.Code != "" {
			return serverErr.Code
		}
		return CodeServerError
	case errors.As(err, &clientErr):
		return clientErr.Code
	case errors.As(err, &authErr):
		return CodeAuthExpired
	default:
		return ""
	}
}

// errorStatus extracts the HTTP status from a taxonomy error, or 0 when the
// failure happened before any response arrived.
func errorStatus(err error) int {
	var (
		serverErr *ServerError
		clientErr *ClientError
		authErr   *AuthExpiredError
	)
	switch {
	case errors.As(err, &serverErr):
		return serverErr.Status
	case errors.As(err, &clientErr):
		return clientErr.Status
	case errors.As(err, &authErr):
		return 401
	default:
		return 0
	}
}
