// Package travion holds the canonical data model, credential storage, the
// auth and user resource services, and the process-wide session store for the
// Travion travel companion client.
package travion

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"github.com/travion/travion-go/internal/store"
)

// Logical storage keys. The key space is global and last-write-wins; writes
// are serialized by the store drivers.
const (
	keyTokens     = "auth_tokens"
	keyUser       = "user_profile"
	keyAuthFlag   = "is_authenticated"
	keyOnboarding = "onboarding_seen"
	keyCookies    = "cookie_jar"
)

// fallbackTokenTTL is the assumed lifetime for access tokens that carry no
// usable expiry (opaque tokens from cookie extraction or OAuth fallback).
const fallbackTokenTTL = 24 * time.Hour

// OAuthProvider is the boundary to a third-party sign-in SDK. Only sign-out
// matters here; the sign-in data shape is GoogleAuthData.
type OAuthProvider interface {
	SignOut(ctx context.Context) error
}

// Credentials persists and validates token and user records. Read failures
// (missing key, corrupt blob) always degrade to "no data"; write failures
// surface as ValidationError or StorageError so the caller can abort the
// operation that produced them.
type Credentials struct {
	kv       store.KV
	provider OAuthProvider
	logger   *slog.Logger
	now      func() time.Time
}

// CredentialOption configures a Credentials.
type CredentialOption func(*Credentials)

// WithOAuthProvider registers the third-party SDK to sign out of on clear.
func WithOAuthProvider(p OAuthProvider) CredentialOption {
	return func(c *Credentials) { c.provider = p }
}

// WithCredentialLogger overrides the default logger.
func WithCredentialLogger(l *slog.Logger) CredentialOption {
	return func(c *Credentials) { c.logger = l }
}

// NewCredentials returns a Credentials over the given store.
func NewCredentials(kv store.KV, opts ...CredentialOption) *Credentials {
	c := &Credentials{
		kv:     kv,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StoreTokens serializes and writes the token record, replacing any prior
// value wholesale.
func (c *Credentials) StoreTokens(ctx context.Context, tokens *AuthTokens) error {
	if tokens == nil {
		return &ValidationError{Field: "tokens", Reason: "record is nil"}
	}
	if tokens.AccessToken == "" {
		return &ValidationError{Field: "tokens", Reason: "access token is missing"}
	}

	data, err := json.Marshal(tokens)
	if err != nil {
		return &StorageError{Op: "encode tokens", Err: err}
	}
	if err := c.kv.Set(ctx, keyTokens, data); err != nil {
		return &StorageError{Op: "write tokens", Err: err}
	}
	return nil
}

// StoredTokens returns the persisted token record, or nil when absent,
// unreadable or missing its access token. Never returns an error: a read
// failure is equivalent to "not authenticated".
func (c *Credentials) StoredTokens(ctx context.Context) *AuthTokens {
	data, err := c.kv.Get(ctx, keyTokens)
	if err != nil {
		return nil
	}

	var tokens AuthTokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		c.logger.Warn("discarding corrupt token record", "error", err)
		return nil
	}
	if tokens.AccessToken == "" {
		return nil
	}
	return &tokens
}

// StoreUser replaces the stored user record. UserID and Email are mandatory.
func (c *Credentials) StoreUser(ctx context.Context, user *User) error {
	if user == nil {
		return &ValidationError{Field: "user", Reason: "record is nil"}
	}
	if user.UserID == "" {
		return &ValidationError{Field: "user", Reason: "userId is missing"}
	}
	if user.Email == "" {
		return &ValidationError{Field: "user", Reason: "email is missing"}
	}

	data, err := json.Marshal(user)
	if err != nil {
		return &StorageError{Op: "encode user", Err: err}
	}
	if err := c.kv.Set(ctx, keyUser, data); err != nil {
		return &StorageError{Op: "write user", Err: err}
	}
	return nil
}

// StoredUser returns the persisted user record with the same null-on-failure
// contract as StoredTokens.
func (c *Credentials) StoredUser(ctx context.Context) *User {
	data, err := c.kv.Get(ctx, keyUser)
	if err != nil {
		return nil
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		c.logger.Warn("discarding corrupt user record", "error", err)
		return nil
	}
	if user.UserID == "" || user.Email == "" {
		return nil
	}
	return &user
}

// ClearAuthData removes the token and user records, then best-effort signs out
// of the third-party OAuth session. A provider sign-out failure never blocks
// the local clear. Safe to call repeatedly.
func (c *Credentials) ClearAuthData(ctx context.Context) error {
	if err := c.kv.Delete(ctx, keyTokens); err != nil {
		return &StorageError{Op: "clear tokens", Err: err}
	}
	if err := c.kv.Delete(ctx, keyUser); err != nil {
		return &StorageError{Op: "clear user", Err: err}
	}
	if err := c.kv.Delete(ctx, keyAuthFlag); err != nil {
		return &StorageError{Op: "clear auth flag", Err: err}
	}

	if c.provider != nil {
		if err := c.provider.SignOut(ctx); err != nil {
			c.logger.Warn("oauth provider sign-out failed", "error", err)
		}
	}
	return nil
}

// IsAuthenticated reports whether stored tokens exist and are unexpired
// (strictly before the expiry timestamp). No refresh is attempted here.
func (c *Credentials) IsAuthenticated(ctx context.Context) bool {
	tokens := c.StoredTokens(ctx)
	return tokens != nil && !tokens.Expired(c.now())
}

// AuthState is the persisted snapshot read at process start.
type AuthState struct {
	User            *User
	Tokens          *AuthTokens
	IsAuthenticated bool
}

// GetAuthState fans out the three reads concurrently and combines them into
// one snapshot.
func (c *Credentials) GetAuthState(ctx context.Context) AuthState {
	var state AuthState

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		state.User = c.StoredUser(gctx)
		return nil
	})
	g.Go(func() error {
		state.Tokens = c.StoredTokens(gctx)
		return nil
	})
	g.Go(func() error {
		state.IsAuthenticated = c.IsAuthenticated(gctx)
		return nil
	})
	_ = g.Wait() // reads never fail, they degrade to nil/false

	return state
}

// AccessToken implements apiclient.CredentialSource.
func (c *Credentials) AccessToken(ctx context.Context) (string, error) {
	tokens := c.StoredTokens(ctx)
	if tokens == nil {
		return "", nil
	}
	return tokens.AccessToken, nil
}

// SetAuthenticated persists the authenticated flag. Rehydration ignores it
// and recomputes from the token record; it exists for storage compatibility.
func (c *Credentials) SetAuthenticated(ctx context.Context, authenticated bool) error {
	data, _ := json.Marshal(authenticated)
	if err := c.kv.Set(ctx, keyAuthFlag, data); err != nil {
		return &StorageError{Op: "write auth flag", Err: err}
	}
	return nil
}

// SeenOnboarding reports whether the onboarding latch has been set.
func (c *Credentials) SeenOnboarding(ctx context.Context) bool {
	data, err := c.kv.Get(ctx, keyOnboarding)
	if err != nil {
		return false
	}
	var seen bool
	if err := json.Unmarshal(data, &seen); err != nil {
		return false
	}
	return seen
}

// MarkOnboardingSeen sets the one-way onboarding latch.
func (c *Credentials) MarkOnboardingSeen(ctx context.Context) error {
	data, _ := json.Marshal(true)
	if err := c.kv.Set(ctx, keyOnboarding, data); err != nil {
		return &StorageError{Op: "write onboarding flag", Err: err}
	}
	return nil
}

// tokenExpiry recovers an absolute epoch-millisecond expiry from a JWT access
// token's exp claim, without verifying the signature (the backend remains the
// authority; this only schedules local expiry). Opaque tokens fall back to a
// fixed TTL from now.
func tokenExpiry(accessToken string, now time.Time) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.UnixMilli()
		}
	}
	return now.Add(fallbackTokenTTL).UnixMilli()
}
