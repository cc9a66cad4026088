// Package apiclient implements the single configured gateway for every
// Travion backend call: auth header injection, per-request timeout,
// exponential-backoff retry and centralized 401 handling. Every call resolves
// to a uniform Response envelope; the client never returns a Go error from
// its public surface.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/travion/travion-go/pkg/idx"
	"github.com/travion/travion-go/pkg/slogx"
)

// Config fixes the client's behaviour at construction.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.travion.com".
	BaseURL string

	// APIPrefix is prepended to every path, e.g. "/api/v1".
	APIPrefix string

	// Timeout bounds each dispatch attempt. Default 30s.
	Timeout time.Duration

	// RetryAttempts is the retry ceiling for transient failures. Default 3.
	RetryAttempts int

	// RetryDelay is the base backoff delay; attempt n waits delay * 2^n.
	// Default 1s.
	RetryDelay time.Duration

	// UseCookies switches credential transport to a cookie jar; the bearer
	// header is not attached client-side in this mode.
	UseCookies bool

	// Credentials supplies tokens for the default interceptors. Optional;
	// without it requests go out unauthenticated and 401s are not able to
	// clear local state.
	Credentials CredentialSource

	// Limiter optionally throttles outgoing requests client-side.
	Limiter *rate.Limiter

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client is the configured HTTP gateway. Safe for concurrent use.
type Client struct {
	baseURL       string
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration
	useCookies    bool

	httpClient *http.Client
	creds      CredentialSource
	limiter    *rate.Limiter
	logger     *slog.Logger

	reqInterceptors  []RequestInterceptor
	respInterceptors []ResponseInterceptor
	errInterceptors  []ErrorInterceptor
}

// New creates a Client with the default interceptors registered.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	} else if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &slogx.Transport{Logger: cfg.Logger},
	}
	if cfg.UseCookies {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("apiclient: create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	c := &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/") + cfg.APIPrefix,
		timeout:       cfg.Timeout,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		useCookies:    cfg.UseCookies,
		httpClient:    httpClient,
		creds:         cfg.Credentials,
		limiter:       cfg.Limiter,
		logger:        cfg.Logger,
	}

	c.reqInterceptors = append(c.reqInterceptors, c.authInterceptor)
	c.respInterceptors = append(c.respInterceptors, c.unauthorizedInterceptor)

	return c, nil
}

// AddRequestInterceptor appends a request stage after the defaults.
func (c *Client) AddRequestInterceptor(fn RequestInterceptor) {
	c.reqInterceptors = append(c.reqInterceptors, fn)
}

// AddResponseInterceptor appends a response stage after the defaults.
func (c *Client) AddResponseInterceptor(fn ResponseInterceptor) {
	c.respInterceptors = append(c.respInterceptors, fn)
}

// AddErrorInterceptor appends an error stage.
func (c *Client) AddErrorInterceptor(fn ErrorInterceptor) {
	c.errInterceptors = append(c.errInterceptors, fn)
}

// Option adjusts a single call.
type Option func(*Request)

// WithHeader sets a header override on the request.
func WithHeader(key, value string) Option {
	return func(r *Request) { r.Header.Set(key, value) }
}

// WithoutAuth disables bearer-token injection for unauthenticated endpoints.
func WithoutAuth() Option {
	return func(r *Request) { r.UseAuth = false }
}

// WithRetries overrides the retry ceiling for this call. Zero disables
// retries entirely.
func WithRetries(n int) Option {
	return func(r *Request) { r.retries = n }
}

// WithTimeout overrides the per-attempt timeout for this call.
func WithTimeout(d time.Duration) Option {
	return func(r *Request) { r.timeout = d }
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...Option) Response {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...Option) Response {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...Option) Response {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...Option) Response {
	return c.Do(ctx, http.MethodPatch, path, body, opts...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...Option) Response {
	return c.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Upload issues a multipart POST. The multipart writer supplies its own
// Content-Type (with boundary); the JSON default is not applied.
func (c *Client) Upload(ctx context.Context, path, fileField, fileName string, file io.Reader, fields map[string]string, opts ...Option) Response {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return failure(&NetworkError{Err: fmt.Errorf("write multipart field: %w", err)})
		}
	}

	part, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return failure(&NetworkError{Err: fmt.Errorf("create multipart file: %w", err)})
	}
	if _, err := io.Copy(part, file); err != nil {
		return failure(&NetworkError{Err: fmt.Errorf("copy multipart file: %w", err)})
	}
	if err := w.Close(); err != nil {
		return failure(&NetworkError{Err: fmt.Errorf("close multipart writer: %w", err)})
	}

	req := c.newRequest(http.MethodPost, path, opts...)
	req.body = buf.Bytes()
	req.contentType = w.FormDataContentType()

	return c.do(ctx, req)
}

// Do issues a request with an arbitrary method. A non-nil body is JSON
// serialized unless it is a raw []byte.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...Option) Response {
	req := c.newRequest(method, path, opts...)

	switch b := body.(type) {
	case nil:
	case []byte:
		req.body = b
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return failure(&NetworkError{Err: fmt.Errorf("encode request body: %w", err)})
		}
		req.body = data
		req.contentType = "application/json"
	}

	return c.do(ctx, req)
}

func (c *Client) newRequest(method, path string, opts ...Option) *Request {
	req := &Request{
		Method:  method,
		Path:    path,
		Header:  make(http.Header),
		UseAuth: true,
		retries: c.retryAttempts,
		timeout: c.timeout,
	}
	// One request ID per logical call, stable across retries.
	req.Header.Set("X-Request-ID", idx.New().String())

	for _, opt := range opts {
		opt(req)
	}
	return req
}

// do runs the retry loop around single attempts. Transient failures (network,
// timeout, 5xx) are retried with exponential backoff while the attempt counter
// is below the ceiling; everything else is terminal.
func (c *Client) do(ctx context.Context, req *Request) Response {
	for attempt := 0; ; attempt++ {
		resp := c.attempt(ctx, req)
		if resp.Err == nil || !retryable(resp.Err) || attempt >= req.retries {
			return resp
		}

		delay := c.retryDelay * (1 << attempt)
		c.logger.Debug("retrying request",
			"method", req.Method,
			"path", req.Path,
			"attempt", attempt+1,
			"delay", delay,
			"error", resp.Err,
		)

		select {
		case <-ctx.Done():
			return failure(&NetworkError{Err: ctx.Err()})
		case <-time.After(delay):
		}
	}
}

// attempt performs one full pass: request interceptors, dispatch with timeout,
// response interceptors, status classification.
func (c *Client) attempt(ctx context.Context, req *Request) Response {
	// Interceptors re-run on every attempt so a refreshed token is picked up.
	for _, fn := range c.reqInterceptors {
		if err := fn(ctx, req); err != nil {
			return c.terminal(ctx, err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.terminal(ctx, &NetworkError{Err: err})
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	var body io.Reader
	if len(req.body) > 0 {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return c.terminal(ctx, &NetworkError{Err: err})
	}
	httpReq.Header = req.Header.Clone()
	if req.contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.terminal(ctx, classifyTransportError(err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return c.terminal(ctx, &NetworkError{Err: fmt.Errorf("read response body: %w", err)})
	}

	for _, fn := range c.respInterceptors {
		if err := fn(ctx, httpResp, respBody); err != nil {
			return c.terminal(ctx, err)
		}
	}

	switch {
	case httpResp.StatusCode == http.StatusNotModified:
		return Response{
			Success:     true,
			Status:      httpResp.StatusCode,
			Header:      httpResp.Header,
			NotModified: true,
		}
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		return Response{
			Success: true,
			Data:    respBody,
			Status:  httpResp.StatusCode,
			Header:  httpResp.Header,
		}
	case httpResp.StatusCode >= 500:
		message, code := parseBackendError(httpResp.StatusCode, respBody)
		return c.terminal(ctx, &ServerError{
			Status:  httpResp.StatusCode,
			Code:    code,
			Message: message,
			Body:    respBody,
		})
	default:
		message, code := parseBackendError(httpResp.StatusCode, respBody)
		return c.terminal(ctx, &ClientError{
			Status:  httpResp.StatusCode,
			Code:    code,
			Message: message,
			Body:    respBody,
		})
	}
}

// terminal runs the error interceptor chain and wraps the result into a
// failure envelope.
func (c *Client) terminal(ctx context.Context, err error) Response {
	for _, fn := range c.errInterceptors {
		if replaced := fn(ctx, err); replaced != nil {
			err = replaced
		}
	}
	return failure(err)
}

// classifyTransportError separates timeouts from other transport failures.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	return &NetworkError{Err: err}
}
