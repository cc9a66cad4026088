package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoBody is returned by Decode when the response carried no body to decode,
// which happens on 304 Not Modified. Callers holding a cached copy of the
// resource should use it instead of treating the missing body as a failure.
var ErrNoBody = errors.New("apiclient: response has no body")

// Response is the uniform envelope every client call resolves to. The client
// never returns a Go error from its public methods; terminal failures are
// carried in Err (with Code and Status populated from the error taxonomy) so
// callers can branch without exception-style handling.
type Response struct {
	// Success is true for 2xx and 304 outcomes.
	Success bool

	// Data holds the raw response body on success. Empty on 304 and on
	// bodyless responses such as 204.
	Data json.RawMessage

	// Status is the HTTP status code, or 0 when no response arrived.
	Status int

	// Header holds the response headers when a response was received.
	Header http.Header

	// NotModified marks the 304 success variant: the call succeeded but
	// carried no body, and the caller must fall back to its cached copy.
	NotModified bool

	// Err is the taxonomy error on terminal failure, nil on success.
	Err error

	// Code is the machine-readable error code (backend-provided when
	// available, otherwise derived from the error class).
	Code string
}

// Decode unmarshals the response body into target. It returns the envelope
// error for failed responses and ErrNoBody when there is nothing to decode.
func (r Response) Decode(target any) error {
	if r.Err != nil {
		return r.Err
	}
	if r.NotModified || len(r.Data) == 0 {
		return ErrNoBody
	}
	if err := json.Unmarshal(r.Data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// failure builds a terminal failure envelope from a taxonomy error.
func failure(err error) Response {
	return Response{
		Success: false,
		Status:  errorStatus(err),
		Err:     err,
		Code:    errorCode(err),
	}
}

// backendError is the error body shape the backend uses for non-2xx responses.
type backendError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// parseBackendError extracts a message and code from an error body, falling
// back to the HTTP status text when the body is not the expected JSON shape.
func parseBackendError(status int, body []byte) (message, code string) {
	var payload backendError
	if err := json.Unmarshal(body, &payload); err == nil {
		message = payload.Message
		if message == "" {
			message = payload.Error
		}
		code = payload.Code
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	}
	return message, code
}
