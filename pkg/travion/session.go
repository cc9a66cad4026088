package travion

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionState is the immutable snapshot handed to subscribers.
type SessionState struct {
	User   *User
	Tokens *AuthTokens

	// IsAuthenticated is derived: user and tokens present and unexpired.
	// It is recomputed on every read, never cached.
	IsAuthenticated bool

	// IsLoading marks an action in flight. Transient, never persisted.
	IsLoading bool

	// HasSeenOnboarding is a one-way latch.
	HasSeenOnboarding bool
}

// Session is the process-wide reactive holder of authentication state. All
// mutation funnels through its named actions; every action keeps the
// persisted snapshot and the in-memory state consistent, and within one
// action the token write happens before the user write, which happens before
// the update becomes visible to subscribers.
type Session struct {
	auth   *AuthService
	users  *UserService
	creds  *Credentials
	logger *slog.Logger
	now    func() time.Time

	mu             sync.RWMutex
	user           *User
	tokens         *AuthTokens
	loading        bool
	seenOnboarding bool

	subMu  sync.Mutex
	subs   map[int]chan SessionState
	nextID int
}

// NewSession returns an empty (unauthenticated) session. Call InitializeAuth
// to rehydrate persisted state.
func NewSession(auth *AuthService, users *UserService, creds *Credentials) *Session {
	return &Session{
		auth:   auth,
		users:  users,
		creds:  creds,
		logger: slog.Default(),
		now:    time.Now,
		subs:   make(map[int]chan SessionState),
	}
}

// State returns the current snapshot.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() SessionState {
	return SessionState{
		User:              s.user,
		Tokens:            s.tokens,
		IsAuthenticated:   s.user != nil && s.tokens != nil && !s.tokens.Expired(s.now()),
		IsLoading:         s.loading,
		HasSeenOnboarding: s.seenOnboarding,
	}
}

// Subscribe registers a state feed. The channel holds the latest snapshot
// (stale ones are dropped, never blocking a mutation). The returned cancel
// function removes the subscription.
func (s *Session) Subscribe() (<-chan SessionState, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan SessionState, 1)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}

// publish pushes the current snapshot to every subscriber, latest-wins.
func (s *Session) publish() {
	state := s.State()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}

func (s *Session) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
	s.publish()
}

// InitializeAuth rehydrates the session from the persisted snapshot at
// process start. The session becomes authenticated only when both a user and
// valid tokens are present; any failure defaults to unauthenticated. The
// loading flag is always reset.
func (s *Session) InitializeAuth(ctx context.Context) {
	s.setLoading(true)
	defer s.setLoading(false)

	state := s.creds.GetAuthState(ctx)
	seen := s.creds.SeenOnboarding(ctx)

	s.mu.Lock()
	if state.IsAuthenticated && state.User != nil && state.Tokens != nil {
		s.user = state.User
		s.tokens = state.Tokens
	} else {
		// Stale or partial data is not carried into the session.
		s.user = nil
		s.tokens = nil
	}
	s.seenOnboarding = seen
	s.mu.Unlock()
	s.publish()
}

// Login authenticates and transitions to Authenticated. On failure the prior
// state is left untouched apart from the loading flag.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	auth, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}

	s.adopt(ctx, auth)
	return nil
}

// Register creates an account and transitions to Authenticated.
func (s *Session) Register(ctx context.Context, req RegisterRequest) error {
	s.setLoading(true)
	defer s.setLoading(false)

	auth, err := s.auth.Register(ctx, req)
	if err != nil {
		return err
	}

	s.adopt(ctx, auth)
	return nil
}

// LoginWithGoogle signs in with third-party auth data, falling back to the
// provider's own records when the backend is unreachable.
func (s *Session) LoginWithGoogle(ctx context.Context, data GoogleAuthData) error {
	s.setLoading(true)
	defer s.setLoading(false)

	auth, err := s.auth.LoginWithGoogle(ctx, data)
	if err != nil {
		return err
	}

	s.adopt(ctx, auth)
	return nil
}

// adopt installs a normalized auth result. The services have already
// persisted tokens and user in order; this publishes the in-memory update.
func (s *Session) adopt(ctx context.Context, auth *AuthResponse) {
	if err := s.creds.SetAuthenticated(ctx, true); err != nil {
		s.logger.Warn("failed to persist authenticated flag", "error", err)
	}

	s.mu.Lock()
	s.user = &auth.User
	s.tokens = &auth.Tokens
	s.mu.Unlock()
	s.publish()
}

// Logout unconditionally transitions to Unauthenticated. The backend call is
// best-effort inside the auth service; only a local storage failure is
// returned, and even then the in-memory state is cleared.
func (s *Session) Logout(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	err := s.auth.Logout(ctx)

	s.mu.Lock()
	s.user = nil
	s.tokens = nil
	s.mu.Unlock()
	s.publish()

	if err != nil {
		s.logger.Error("local credential clear failed during logout", "error", err)
	}
	return err
}

// RefreshProfile re-fetches the profile. A no-op without tokens; a fetch
// failure is treated as session-invalidating, forcing a full logout before
// the error is returned.
func (s *Session) RefreshProfile(ctx context.Context) error {
	s.mu.RLock()
	hasTokens := s.tokens != nil
	s.mu.RUnlock()
	if !hasTokens {
		return nil
	}

	user, err := s.users.Profile(ctx)
	if err != nil {
		s.logger.Warn("profile refresh failed, forcing logout", "error", err)
		if logoutErr := s.Logout(ctx); logoutErr != nil {
			s.logger.Error("forced logout failed", "error", logoutErr)
		}
		return err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.publish()
	return nil
}

// UpdateUser persists and swaps in a new user record without touching tokens.
func (s *Session) UpdateUser(ctx context.Context, user *User) error {
	if err := s.creds.StoreUser(ctx, user); err != nil {
		return err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.publish()
	return nil
}

// CompleteOnboarding sets the one-way onboarding latch. Calling it again is a
// no-op.
func (s *Session) CompleteOnboarding(ctx context.Context) error {
	s.mu.RLock()
	seen := s.seenOnboarding
	s.mu.RUnlock()
	if seen {
		return nil
	}

	if err := s.creds.MarkOnboardingSeen(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.seenOnboarding = true
	s.mu.Unlock()
	s.publish()
	return nil
}
