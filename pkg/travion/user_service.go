package travion

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/travion/travion-go/pkg/apiclient"
)

// UserService exposes profile and preference operations over the shared
// client, keeping the stored user record in sync with backend responses.
type UserService struct {
	api    *apiclient.Client
	creds  *Credentials
	logger *slog.Logger
}

// NewUserService returns a UserService over the shared client and store.
func NewUserService(api *apiclient.Client, creds *Credentials) *UserService {
	return &UserService{
		api:    api,
		creds:  creds,
		logger: slog.Default(),
	}
}

// Profile fetches the current user's profile. A 304 Not Modified resolves to
// the previously stored user; other fetch failures also fall back to the
// stored copy when one exists, except an expired session which propagates.
func (s *UserService) Profile(ctx context.Context) (*User, error) {
	resp := s.api.Get(ctx, "/users/profile")

	if resp.NotModified {
		if cached := s.creds.StoredUser(ctx); cached != nil {
			return cached, nil
		}
		return nil, ErrNoCachedUser
	}

	var payload struct {
		User userPayload `json:"user"`
	}
	if err := resp.Decode(&payload); err != nil {
		var authErr *apiclient.AuthExpiredError
		if errors.As(err, &authErr) {
			return nil, err
		}
		if cached := s.creds.StoredUser(ctx); cached != nil {
			s.logger.Warn("profile fetch failed, using stored user", "error", err)
			return cached, nil
		}
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

// UpdateProfile applies a partial profile mutation and returns the canonical
// updated user, which also replaces the stored record.
func (s *UserService) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	resp := s.api.Put(ctx, "/users/profile", update)

	var payload struct {
		User userPayload `json:"user"`
	}
	if err := resp.Decode(&payload); err != nil {
		s.logger.Error("profile update failed", "error", err)
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

// DeleteAccount removes the account on the backend, then clears all local
// credential data.
func (s *UserService) DeleteAccount(ctx context.Context) error {
	resp := s.api.Delete(ctx, "/users/account")
	if resp.Err != nil {
		s.logger.Error("account deletion failed", "error", resp.Err)
		return resp.Err
	}

	return s.creds.ClearAuthData(ctx)
}

// UploadAvatar uploads a new avatar image as multipart form data.
func (s *UserService) UploadAvatar(ctx context.Context, fileName string, file io.Reader) (*AvatarUploadResponse, error) {
	resp := s.api.Upload(ctx, "/users/avatar", "avatar", fileName, file, nil)

	var uploaded AvatarUploadResponse
	if err := resp.Decode(&uploaded); err != nil {
		s.logger.Error("avatar upload failed", "error", err)
		return nil, err
	}
	return &uploaded, nil
}

// Preferences fetches the user's preference record.
func (s *UserService) Preferences(ctx context.Context) (*UserPreferences, error) {
	resp := s.api.Get(ctx, "/users/preferences")

	var payload struct {
		Preferences UserPreferences `json:"preferences"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload.Preferences, nil
}

// UpdatePreferences replaces the user's preference record and returns the
// canonical stored version.
func (s *UserService) UpdatePreferences(ctx context.Context, prefs UserPreferences) (*UserPreferences, error) {
	resp := s.api.Put(ctx, "/users/preferences", prefs)

	var payload struct {
		Preferences UserPreferences `json:"preferences"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload.Preferences, nil
}
