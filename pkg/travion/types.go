package travion

import "time"

// ProfileStatus tracks whether a user has finished profile setup.
type ProfileStatus string

const (
	ProfileIncomplete ProfileStatus = "Incomplete"
	ProfileComplete   ProfileStatus = "Complete"
)

// AuthTokens is the canonical credential record. ExpiresAt is an absolute
// epoch-millisecond expiry timestamp; the wire format carries a
// duration-in-seconds which the services normalize before the record enters
// storage or the session.
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresIn"`
}

// Complete reports whether all three fields are present. OAuth fallback
// sessions are not complete: they carry no refresh token.
func (t *AuthTokens) Complete() bool {
	return t != nil && t.AccessToken != "" && t.RefreshToken != "" && t.ExpiresAt != 0
}

// Expired reports whether the record's expiry is at or before now.
// The boundary now == expiry counts as expired.
func (t *AuthTokens) Expired(now time.Time) bool {
	return t == nil || now.UnixMilli() >= t.ExpiresAt
}

// User is the canonical user record. UserID and Email are mandatory for a
// record to be persisted.
type User struct {
	UserID        string        `json:"userId"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Avatar        string        `json:"avatar,omitempty"`
	Verified      bool          `json:"verified,omitempty"`
	ProfileStatus ProfileStatus `json:"profileStatus,omitempty"`
}

// AuthResponse is the normalized result of a login, register or OAuth flow.
type AuthResponse struct {
	Tokens AuthTokens `json:"tokens"`
	User   User       `json:"user"`
}

// RegisterRequest carries the fields for account creation.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// ProfileUpdate is a partial profile mutation. Zero-valued fields are omitted
// from the request body.
type ProfileUpdate struct {
	Name              string        `json:"name,omitempty"`
	UserName          string        `json:"userName,omitempty"`
	Phone             string        `json:"phone,omitempty"`
	DateOfBirth       string        `json:"dateOfBirth,omitempty"`
	Gender            string        `json:"gender,omitempty"`
	Country           string        `json:"country,omitempty"`
	Bio               string        `json:"bio,omitempty"`
	Interests         []string      `json:"interests,omitempty"`
	PreferredLanguage string        `json:"preferredLanguage,omitempty"`
	ProfileStatus     ProfileStatus `json:"profileStatus,omitempty"`
}

// NotificationPreferences controls the notification channels a user opted into.
type NotificationPreferences struct {
	Email     bool `json:"email"`
	Push      bool `json:"push"`
	Marketing bool `json:"marketing"`
}

// PrivacyPreferences controls profile visibility and data sharing.
type PrivacyPreferences struct {
	ProfileVisible bool `json:"profileVisible"`
	DataSharing    bool `json:"dataSharing"`
}

// UserPreferences is the preference record stored per user.
type UserPreferences struct {
	Language      string                  `json:"language"`
	Currency      string                  `json:"currency"`
	Notifications NotificationPreferences `json:"notifications"`
	Privacy       PrivacyPreferences      `json:"privacy"`
}

// AvatarUploadResponse is returned from the avatar upload endpoint.
type AvatarUploadResponse struct {
	AvatarURL string `json:"avatarUrl"`
	Message   string `json:"message,omitempty"`
}

// ============================================================================
// Wire Types
// ============================================================================

// tokenPayload is the token shape as the backend sends it: expires_in is a
// duration in seconds, not an absolute timestamp.
type tokenPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// userPayload tolerates the backend's heterogeneous user shapes. Some
// endpoints return the identifier as "_id" instead of "userId".
type userPayload struct {
	UserID        string `json:"userId"`
	LegacyID      string `json:"_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Avatar        string `json:"avatar"`
	Picture       string `json:"picture"`
	Verified      bool   `json:"verified"`
	ProfileStatus string `json:"profileStatus"`
}

// authPayload is the combined login/register/google response body.
type authPayload struct {
	Tokens tokenPayload `json:"tokens"`
	User   userPayload  `json:"user"`
}

// normalizeTokens converts a wire token payload into the canonical record,
// turning the duration into an absolute expiry.
func normalizeTokens(p tokenPayload, now time.Time) AuthTokens {
	return AuthTokens{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(p.ExpiresIn) * time.Second).UnixMilli(),
	}
}

// normalizeUser validates a wire user payload at the service boundary and maps
// it into the canonical record. Payloads without an identifier or email are
// rejected rather than propagated with missing fields.
func normalizeUser(p userPayload) (User, error) {
	id := p.UserID
	if id == "" {
		id = p.LegacyID
	}
	if id == "" || p.Email == "" {
		return User{}, ErrMalformedResponse
	}

	avatar := p.Avatar
	if avatar == "" {
		avatar = p.Picture
	}

	return User{
		UserID:        id,
		Name:          p.Name,
		Email:         p.Email,
		Avatar:        avatar,
		Verified:      p.Verified,
		ProfileStatus: ProfileStatus(p.ProfileStatus),
	}, nil
}
