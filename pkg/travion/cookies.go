package travion

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Cookie jar persistence for WebView-based OAuth flows. The jar is a single
// JSON map under one key, separate from the token and user records.

// Cookies returns the stored cookie map, empty on any failure.
func (c *Credentials) Cookies(ctx context.Context) map[string]string {
	data, err := c.kv.Get(ctx, keyCookies)
	if err != nil {
		return map[string]string{}
	}

	var cookies map[string]string
	if err := json.Unmarshal(data, &cookies); err != nil || cookies == nil {
		return map[string]string{}
	}
	return cookies
}

// SetCookie stores or replaces one cookie in the jar.
func (c *Credentials) SetCookie(ctx context.Context, name, value string) error {
	cookies := c.Cookies(ctx)
	cookies[name] = value

	data, _ := json.Marshal(cookies)
	if err := c.kv.Set(ctx, keyCookies, data); err != nil {
		return &StorageError{Op: "write cookies", Err: err}
	}
	return nil
}

// RemoveCookie deletes one cookie from the jar.
func (c *Credentials) RemoveCookie(ctx context.Context, name string) error {
	cookies := c.Cookies(ctx)
	delete(cookies, name)

	data, _ := json.Marshal(cookies)
	if err := c.kv.Set(ctx, keyCookies, data); err != nil {
		return &StorageError{Op: "write cookies", Err: err}
	}
	return nil
}

// ClearCookies drops the whole jar.
func (c *Credentials) ClearCookies(ctx context.Context) error {
	if err := c.kv.Delete(ctx, keyCookies); err != nil {
		return &StorageError{Op: "clear cookies", Err: err}
	}
	return nil
}

// ExtractTokensFromCookies parses a cookie header string produced by a
// WebView OAuth redirect into a token record. Both access_token and
// refresh_token must be present; the expiry is taken from the expires_in
// cookie (absolute epoch milliseconds) when set, otherwise recovered from the
// access token's exp claim.
func (c *Credentials) ExtractTokensFromCookies(cookieStr string) *AuthTokens {
	var accessToken, refreshToken string
	var expiresAt int64

	for _, cookie := range strings.Split(cookieStr, ";") {
		parts := strings.SplitN(strings.TrimSpace(cookie), "=", 2)
		if len(parts) != 2 {
			continue
		}

		value, err := url.QueryUnescape(parts[1])
		if err != nil {
			value = parts[1]
		}

		switch parts[0] {
		case "access_token":
			accessToken = value
		case "refresh_token":
			refreshToken = value
		case "expires_in":
			expiresAt, _ = strconv.ParseInt(value, 10, 64)
		}
	}

	if accessToken == "" || refreshToken == "" {
		return nil
	}

	if expiresAt == 0 {
		expiresAt = tokenExpiry(accessToken, c.now())
	}

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
}
