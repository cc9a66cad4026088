package travion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/travion/travion-go/internal/store"
	"github.com/travion/travion-go/pkg/apiclient"
)

// newSessionFixture wires the whole stack (store, client, services, session)
// against a test backend.
func newSessionFixture(t *testing.T, handler http.Handler) (*Session, *Credentials) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	kv := store.NewMemory()
	creds := NewCredentials(kv)
	creds.now = fixedTime

	api, err := apiclient.New(apiclient.Config{
		BaseURL:       srv.URL,
		RetryAttempts: -1,
		RetryDelay:    time.Millisecond,
		Credentials:   creds,
	})
	require.NoError(t, err)

	auth := NewAuthService(api, creds)
	auth.now = fixedTime
	users := NewUserService(api, creds)

	session := NewSession(auth, users, creds)
	session.now = fixedTime
	return session, creds
}

func seedAuthenticated(t *testing.T, creds *Credentials) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, creds.StoreTokens(ctx, validTokens()))
	require.NoError(t, creds.StoreUser(ctx, &User{UserID: "u1", Name: "Alice", Email: "alice@example.com"}))
}

func TestInitializeAuth(t *testing.T) {
	t.Parallel()

	noBackend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected during rehydration")
	})

	t.Run("rehydrates persisted session", func(t *testing.T) {
		t.Parallel()

		session, creds := newSessionFixture(t, noBackend)
		seedAuthenticated(t, creds)
		require.NoError(t, creds.MarkOnboardingSeen(context.Background()))

		session.InitializeAuth(context.Background())

		state := session.State()
		require.True(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		require.True(t, state.HasSeenOnboarding)
		require.Equal(t, "u1", state.User.UserID)
	})

	t.Run("empty store defaults to unauthenticated", func(t *testing.T) {
		t.Parallel()

		session, _ := newSessionFixture(t, noBackend)
		session.InitializeAuth(context.Background())

		state := session.State()
		require.False(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		require.Nil(t, state.User)
		require.Nil(t, state.Tokens)
	})

	t.Run("partial snapshot is discarded", func(t *testing.T) {
		t.Parallel()

		session, creds := newSessionFixture(t, noBackend)
		// Tokens without a user record: not a coherent session.
		require.NoError(t, creds.StoreTokens(context.Background(), validTokens()))

		session.InitializeAuth(context.Background())

		state := session.State()
		require.False(t, state.IsAuthenticated)
		require.Nil(t, state.Tokens)
	})

	t.Run("expired tokens are discarded", func(t *testing.T) {
		t.Parallel()

		session, creds := newSessionFixture(t, noBackend)
		ctx := context.Background()
		require.NoError(t, creds.StoreTokens(ctx, &AuthTokens{
			AccessToken:  "stale",
			RefreshToken: "stale",
			ExpiresAt:    fixedTime().Add(-time.Minute).UnixMilli(),
		}))
		require.NoError(t, creds.StoreUser(ctx, &User{UserID: "u1", Email: "a@b.c"}))

		session.InitializeAuth(ctx)
		require.False(t, session.State().IsAuthenticated)
	})
}

func TestSessionLogin(t *testing.T) {
	t.Parallel()

	session, _ := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		w.Write(authResponseBody(3600))
	}))

	updates, cancel := session.Subscribe()
	defer cancel()

	require.NoError(t, session.Login(context.Background(), "alice@example.com", "hunter2"))

	state := session.State()
	require.True(t, state.IsAuthenticated)
	require.False(t, state.IsLoading)
	require.Equal(t, "u1", state.User.UserID)

	// The subscription channel holds the latest snapshot.
	select {
	case got := <-updates:
		require.True(t, got.IsAuthenticated)
		require.False(t, got.IsLoading)
	default:
		t.Fatal("expected a published snapshot")
	}
}

func TestSessionLoginFailure(t *testing.T) {
	t.Parallel()

	session, _ := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid credentials"}`))
	}))

	err := session.Login(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)

	state := session.State()
	require.False(t, state.IsAuthenticated)
	require.False(t, state.IsLoading)
}

func TestSessionLogoutUnconditional(t *testing.T) {
	t.Parallel()

	session, creds := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Backend logout is down; the local transition still happens.
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	seedAuthenticated(t, creds)
	session.InitializeAuth(context.Background())
	require.True(t, session.State().IsAuthenticated)

	require.NoError(t, session.Logout(context.Background()))

	state := session.State()
	require.False(t, state.IsAuthenticated)
	require.Nil(t, state.User)
	require.Nil(t, state.Tokens)
	require.Nil(t, creds.StoredTokens(context.Background()))
}

func TestRefreshProfile(t *testing.T) {
	t.Parallel()

	t.Run("no-op without tokens", func(t *testing.T) {
		t.Parallel()

		session, _ := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		}))

		require.NoError(t, session.RefreshProfile(context.Background()))
	})

	t.Run("swaps in the fresh user", func(t *testing.T) {
		t.Parallel()

		session, creds := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user":{"userId":"u1","name":"Alice Renamed","email":"alice@example.com"}}`))
		}))

		seedAuthenticated(t, creds)
		session.InitializeAuth(context.Background())

		require.NoError(t, session.RefreshProfile(context.Background()))
		require.Equal(t, "Alice Renamed", session.State().User.Name)
	})

	t.Run("expired session forces logout", func(t *testing.T) {
		t.Parallel()

		session, creds := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		seedAuthenticated(t, creds)
		session.InitializeAuth(context.Background())

		err := session.RefreshProfile(context.Background())
		var authErr *apiclient.AuthExpiredError
		require.ErrorAs(t, err, &authErr)

		state := session.State()
		require.False(t, state.IsAuthenticated)
		require.Nil(t, state.User)
	})
}

func TestSessionUpdateUser(t *testing.T) {
	t.Parallel()

	session, creds := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	seedAuthenticated(t, creds)
	session.InitializeAuth(context.Background())

	updated := &User{UserID: "u1", Name: "Alice Updated", Email: "alice@example.com"}
	require.NoError(t, session.UpdateUser(context.Background(), updated))

	require.Equal(t, updated, session.State().User)
	require.Equal(t, updated, creds.StoredUser(context.Background()))

	// A record failing validation leaves the session untouched.
	require.Error(t, session.UpdateUser(context.Background(), &User{Name: "no id"}))
	require.Equal(t, updated, session.State().User)
}

func TestSessionCompleteOnboarding(t *testing.T) {
	t.Parallel()

	session, creds := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	require.False(t, session.State().HasSeenOnboarding)

	require.NoError(t, session.CompleteOnboarding(context.Background()))
	require.True(t, session.State().HasSeenOnboarding)
	require.True(t, creds.SeenOnboarding(context.Background()))

	// The latch only moves one way.
	require.NoError(t, session.CompleteOnboarding(context.Background()))
	require.True(t, session.State().HasSeenOnboarding)
}

func TestSubscribeLatestWins(t *testing.T) {
	t.Parallel()

	session, creds := newSessionFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	updates, cancel := session.Subscribe()

	// Multiple publishes without a read leave exactly the newest snapshot.
	require.NoError(t, session.CompleteOnboarding(context.Background()))
	seedAuthenticated(t, creds)
	session.InitializeAuth(context.Background())

	got := <-updates
	require.True(t, got.IsAuthenticated)
	require.True(t, got.HasSeenOnboarding)

	select {
	case <-updates:
		t.Fatal("expected only the latest snapshot to be buffered")
	default:
	}

	cancel()
	session.InitializeAuth(context.Background())
	select {
	case <-updates:
		t.Fatal("cancelled subscription must not receive updates")
	default:
	}
}
