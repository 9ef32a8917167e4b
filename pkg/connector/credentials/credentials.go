// Package credentials provides bearer tokens for outbound connector calls.
//
// A TokenCredential is shared by every client surface built from it. Surfaces
// borrow it for the duration of each call and never own it, so one credential
// (and its token cache) can serve the conversations, user-token and
// attachments clients at the same time.
package credentials

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyToken is returned when a token endpoint answers without a token.
var ErrEmptyToken = errors.New("credentials: empty access token")

// AccessToken is a bearer token and the moment it stops being valid.
type AccessToken struct {
	Token     string
	ExpiresOn time.Time
}

// Expired reports whether the token is expired or will be within the window.
func (t AccessToken) Expired(now time.Time, window time.Duration) bool {
	return t.Token == "" || !now.Add(window).Before(t.ExpiresOn)
}

// TokenCredential issues bearer tokens for a scope. Implementations must be
// safe for concurrent use and may cache and rotate tokens transparently.
type TokenCredential interface {
	Token(ctx context.Context, scope string) (AccessToken, error)
}

// StaticCredential always returns the same token. Useful for emulators and
// tests.
type StaticCredential string

// Token implements TokenCredential.
func (s StaticCredential) Token(_ context.Context, _ string) (AccessToken, error) {
	if s == "" {
		return AccessToken{}, ErrEmptyToken
	}
	return AccessToken{
		Token:     string(s),
		ExpiresOn: time.Now().Add(24 * time.Hour),
	}, nil
}
