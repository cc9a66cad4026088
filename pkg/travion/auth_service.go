package travion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/travion/travion-go/pkg/apiclient"
)

// AuthService translates authentication operations into API calls and keeps
// the stored credential snapshot consistent: on every successful flow the
// token record is persisted before the user record, so any component reading
// storage immediately afterwards sees a coherent state.
type AuthService struct {
	api    *apiclient.Client
	creds  *Credentials
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService returns an AuthService over the shared client and store.
func NewAuthService(api *apiclient.Client, creds *Credentials) *AuthService {
	return &AuthService{
		api:    api,
		creds:  creds,
		logger: slog.Default(),
		now:    time.Now,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// GoogleProfile is the user shape the third-party sign-in SDK provides.
type GoogleProfile struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

// GoogleAuthData is the result of a completed third-party Google sign-in.
type GoogleAuthData struct {
	Token *oauth2.Token
	User  GoogleProfile
}

type googleLoginRequest struct {
	IDToken string        `json:"idToken"`
	User    GoogleProfile `json:"user"`
}

// Login authenticates with email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	resp := s.api.Post(ctx, "/auth/login", loginRequest{Email: email, Password: password},
		apiclient.WithoutAuth())

	auth, err := s.consumeAuthPayload(ctx, resp, "")
	if err != nil {
		s.logger.Error("login failed", "error", err)
		return nil, err
	}
	return auth, nil
}

// Register creates a new account and signs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	resp := s.api.Post(ctx, "/auth/register", req, apiclient.WithoutAuth())

	auth, err := s.consumeAuthPayload(ctx, resp, "")
	if err != nil {
		s.logger.Error("registration failed", "error", err)
		return nil, err
	}
	return auth, nil
}

// LoginWithGoogle exchanges a third-party ID token with the backend. When the
// backend is unreachable (network, timeout, 5xx) the provider-supplied data is
// treated as authoritative so a successful third-party sign-in keeps the app
// usable offline-from-backend. A well-formed backend rejection (4xx) is not a
// fallback condition and propagates as an error.
func (s *AuthService) LoginWithGoogle(ctx context.Context, data GoogleAuthData) (*AuthResponse, error) {
	if data.Token == nil || data.Token.AccessToken == "" {
		return nil, &ValidationError{Field: "google auth", Reason: "provider token is missing"}
	}

	resp := s.api.Post(ctx, "/auth/google",
		googleLoginRequest{IDToken: data.Token.AccessToken, User: data.User},
		apiclient.WithoutAuth())

	if resp.Err != nil && transportFailure(resp.Err) {
		s.logger.Warn("backend google auth unreachable, using provider data", "error", resp.Err)
		return s.googleFallback(ctx, data)
	}

	auth, err := s.consumeAuthPayload(ctx, resp, ProfileIncomplete)
	if err != nil {
		s.logger.Error("google login failed", "error", err)
		return nil, err
	}
	return auth, nil
}

// googleFallback synthesizes a locally-authoritative session from the
// provider's own token and profile. New Google users start Incomplete until
// the backend confirms otherwise.
func (s *AuthService) googleFallback(ctx context.Context, data GoogleAuthData) (*AuthResponse, error) {
	expiresAt := data.Token.Expiry.UnixMilli()
	if data.Token.Expiry.IsZero() {
		expiresAt = tokenExpiry(data.Token.AccessToken, s.now())
	}

	tokens := AuthTokens{
		AccessToken:  data.Token.AccessToken,
		RefreshToken: data.Token.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	user := User{
		UserID:        data.User.UserID,
		Name:          data.User.Name,
		Email:         data.User.Email,
		Avatar:        data.User.Picture,
		Verified:      data.User.Verified,
		ProfileStatus: ProfileIncomplete,
	}

	if err := s.creds.StoreTokens(ctx, &tokens); err != nil {
		return nil, err
	}
	if err := s.creds.StoreUser(ctx, &user); err != nil {
		return nil, err
	}

	return &AuthResponse{Tokens: tokens, User: user}, nil
}

// Profile fetches the account record tied to the current access token. Used
// after token-only flows (refresh, cookie extraction) to recover the user
// record; the richer profile endpoint lives on the user service.
func (s *AuthService) Profile(ctx context.Context) (*User, error) {
	resp := s.api.Get(ctx, "/auth/profile")

	var payload struct {
		User userPayload `json:"user"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}

	user, err := normalizeUser(payload.User)
	if err != nil {
		return nil, err
	}
	if err := s.creds.StoreUser(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshToken exchanges the stored refresh token for a new token record and
// overwrites the stored one.
func (s *AuthService) RefreshToken(ctx context.Context) (*AuthTokens, error) {
	stored := s.creds.StoredTokens(ctx)
	if stored == nil || stored.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	resp := s.api.Post(ctx, "/auth/refresh",
		refreshRequest{RefreshToken: stored.RefreshToken},
		apiclient.WithoutAuth())

	var payload struct {
		Tokens tokenPayload `json:"tokens"`
	}
	if err := resp.Decode(&payload); err != nil {
		s.logger.Error("token refresh failed", "error", err)
		return nil, err
	}

	tokens := normalizeTokens(payload.Tokens, s.now())
	if err := s.creds.StoreTokens(ctx, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Logout notifies the backend best-effort, then unconditionally clears local
// credential data. It must always succeed locally even when the network is
// down, so a backend failure is logged and swallowed.
func (s *AuthService) Logout(ctx context.Context) error {
	if s.creds.StoredTokens(ctx) != nil {
		resp := s.api.Post(ctx, "/auth/logout", struct{}{})
		if resp.Err != nil {
			s.logger.Warn("backend logout failed, continuing with local cleanup", "error", resp.Err)
		}
	}

	return s.creds.ClearAuthData(ctx)
}

// consumeAuthPayload validates a combined token+user payload, normalizes it
// into the canonical model and persists tokens then user, in that order.
func (s *AuthService) consumeAuthPayload(ctx context.Context, resp apiclient.Response, defaultStatus ProfileStatus) (*AuthResponse, error) {
	var payload authPayload
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}

	tokens := normalizeTokens(payload.Tokens, s.now())
	user, err := normalizeUser(payload.User)
	if err != nil {
		return nil, err
	}
	if user.ProfileStatus == "" && defaultStatus != "" {
		user.ProfileStatus = defaultStatus
	}

	if err := s.creds.StoreTokens(ctx, &tokens); err != nil {
		return nil, err
	}
	if err := s.creds.StoreUser(ctx, &user); err != nil {
		return nil, err
	}

	return &AuthResponse{Tokens: tokens, User: user}, nil
}

// transportFailure reports whether the call failed without a well-formed
// backend decision: no response at all, a timeout, or a 5xx.
func transportFailure(err error) bool {
	var (
		netErr     *apiclient.NetworkError
		timeoutErr *apiclient.TimeoutError
		serverErr  *apiclient.ServerError
	)
	return errors.As(err, &netErr) ||
		errors.As(err, &timeoutErr) ||
		errors.As(err, &serverErr)
}
