package apiclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCreds struct {
	mu      sync.Mutex
	token   string
	cleared bool
}

func (f *fakeCreds) AccessToken(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeCreds) ClearAuthData(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.token = ""
	return nil
}

func newTestClient(t *testing.T, url string, creds CredentialSource) *Client {
	t.Helper()

	client, err := New(Config{
		BaseURL:       url,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		Credentials:   creds,
	})
	require.NoError(t, err)
	return client
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "access-123"}
	client := newTestClient(t, srv.URL, creds)

	t.Run("attached by default", func(t *testing.T) {
		resp := client.Get(context.Background(), "/ping")
		require.True(t, resp.Success)
		require.Equal(t, "Bearer access-123", gotAuth)
	})

	t.Run("skipped with WithoutAuth", func(t *testing.T) {
		resp := client.Get(context.Background(), "/ping", WithoutAuth())
		require.True(t, resp.Success)
		require.Empty(t, gotAuth)
	})

	t.Run("skipped when no token stored", func(t *testing.T) {
		creds.mu.Lock()
		creds.token = ""
		creds.mu.Unlock()

		resp := client.Get(context.Background(), "/ping")
		require.True(t, resp.Success)
		require.Empty(t, gotAuth)
	})
}

func TestRetryOnTransientFailure(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	resp := client.Get(context.Background(), "/flaky")
	require.True(t, resp.Success)
	require.NoError(t, resp.Err)
	require.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhaustion(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"backend down"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	resp := client.Get(context.Background(), "/broken")
	require.False(t, resp.Success)
	require.Equal(t, http.StatusInternalServerError, resp.Status)
	require.Equal(t, CodeServerError, resp.Code)

	var serverErr *ServerError
	require.ErrorAs(t, resp.Err, &serverErr)
	require.Equal(t, "backend down", serverErr.Message)

	// Initial attempt plus two retries.
	require.Equal(t, int32(3), attempts.Load())
}

func TestClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"email is taken","code":"email_taken"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	resp := client.Post(context.Background(), "/auth/register", map[string]string{"email": "a@b.c"})
	require.False(t, resp.Success)
	require.Equal(t, int32(1), attempts.Load())
	require.Equal(t, "email_taken", resp.Code)

	var clientErr *ClientError
	require.ErrorAs(t, resp.Err, &clientErr)
	require.Equal(t, "email is taken", clientErr.Message)
}

func TestUnauthorizedClearsCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "stale"}
	client := newTestClient(t, srv.URL, creds)

	resp := client.Get(context.Background(), "/users/profile")
	require.False(t, resp.Success)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Equal(t, CodeAuthExpired, resp.Code)

	var authErr *AuthExpiredError
	require.ErrorAs(t, resp.Err, &authErr)

	creds.mu.Lock()
	defer creds.mu.Unlock()
	require.True(t, creds.cleared)
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	resp := client.Get(context.Background(), "/slow",
		WithTimeout(50*time.Millisecond), WithRetries(0))
	require.False(t, resp.Success)
	require.Equal(t, CodeTimeout, resp.Code)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, resp.Err, &timeoutErr)
}

func TestNotModified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	resp := client.Get(context.Background(), "/users/profile")
	require.True(t, resp.Success)
	require.True(t, resp.NotModified)
	require.Empty(t, resp.Data)

	var target map[string]any
	require.ErrorIs(t, resp.Decode(&target), ErrNoBody)
}

func TestRequestIDStableAcrossRetries(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("X-Request-ID"))
		count := len(seen)
		mu.Unlock()

		if count < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	resp := client.Get(context.Background(), "/flaky")
	require.True(t, resp.Success)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	require.NotEmpty(t, seen[0])
	require.Equal(t, seen[0], seen[1])
	require.Equal(t, seen[0], seen[2])
}

func TestAPIPrefix(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, err := New(Config{
		BaseURL:    srv.URL + "/",
		APIPrefix:  "/api/v1",
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	resp := client.Get(context.Background(), "/auth/login")
	require.True(t, resp.Success)
	require.Equal(t, "/api/v1/auth/login", gotPath)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"userId":"u1","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	var payload struct {
		User struct {
			UserID string `json:"userId"`
			Email  string `json:"email"`
		} `json:"user"`
	}
	resp := client.Get(context.Background(), "/users/profile")
	require.NoError(t, resp.Decode(&payload))
	require.Equal(t, "u1", payload.User.UserID)
	require.Equal(t, "a@b.c", payload.User.Email)
}

func TestUpload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("avatar")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "me.png", header.Filename)
		require.Equal(t, "resize", r.FormValue("mode"))

		w.Write([]byte(`{"avatarUrl":"https://cdn.example.com/me.png"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	resp := client.Upload(context.Background(), "/users/avatar", "avatar", "me.png",
		bytes.NewReader([]byte("png-bytes")), map[string]string{"mode": "resize"})
	require.True(t, resp.Success)

	var uploaded struct {
		AvatarURL string `json:"avatarUrl"`
	}
	require.NoError(t, resp.Decode(&uploaded))
	require.Equal(t, "https://cdn.example.com/me.png", uploaded.AvatarURL)
}
