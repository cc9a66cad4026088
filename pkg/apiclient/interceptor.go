package apiclient

import (
	"context"
	"net/http"
	"time"
)

// Request is the mutable description of a single API call as it flows through
// the request interceptor pipeline. Interceptors may rewrite headers or the
// path; returning an error short-circuits the call before dispatch.
type Request struct {
	Method string
	Path   string
	Header http.Header

	// UseAuth controls whether the default interceptor attaches the bearer
	// token. Unauthenticated endpoints (login, register) disable it.
	UseAuth bool

	// body is the serialized request payload, replayed on every retry.
	body        []byte
	contentType string

	// retries and timeout override the client defaults when set.
	retries int
	timeout time.Duration
}

// RequestInterceptor runs before dispatch, in registration order.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor runs after a response arrives, in registration order,
// with the already-read body. Returning an error short-circuits response
// processing and becomes the call's terminal error.
type ResponseInterceptor func(ctx context.Context, resp *http.Response, body []byte) error

// ErrorInterceptor runs over every terminal error before it enters the
// envelope, and may replace it.
type ErrorInterceptor func(ctx context.Context, err error) error

// CredentialSource supplies the access token for the default auth interceptor
// and receives the forced clear on 401.
type CredentialSource interface {
	// AccessToken returns the stored access token, or "" when unauthenticated.
	AccessToken(ctx context.Context) (string, error)

	// ClearAuthData removes all persisted credential state.
	ClearAuthData(ctx context.Context) error
}

// authInterceptor attaches "Authorization: Bearer <token>" to authenticated
// requests. In cookie mode credentials travel in the jar instead, so the
// header is never attached client-side.
func (c *Client) authInterceptor(ctx context.Context, req *Request) error {
	if !req.UseAuth || c.useCookies || c.creds == nil {
		return nil
	}

	token, err := c.creds.AccessToken(ctx)
	if err != nil || token == "" {
		// An unauthenticated call to an authenticated endpoint is the
		// backend's to reject; don't fail locally.
		return nil
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// unauthorizedInterceptor clears all local credential data when any endpoint
// answers 401, then raises AuthExpiredError. This is the single mechanism by
// which an expired session becomes visible to the rest of the app.
func (c *Client) unauthorizedInterceptor(ctx context.Context, resp *http.Response, _ []byte) error {
	if resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	if c.creds != nil {
		if err := c.creds.ClearAuthData(ctx); err != nil {
			c.logger.Warn("failed to clear credentials after 401", "error", err)
		}
	}

	return &AuthExpiredError{}
}
