package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway absorbs clock skew between the channel and us.
const DefaultLeeway = 5 * time.Minute

// ChannelClaims are the claims a channel puts in the token it sends with each
// activity.
type ChannelClaims struct {
	jwt.RegisteredClaims

	// ServiceURL is the endpoint the activity came from. It must match the
	// activity's serviceUrl so a token can't be replayed against another
	// channel endpoint.
	ServiceURL string `json:"serviceurl,omitempty"`

	// AppID is the app the token was issued for, when the issuer sets it.
	AppID string `json:"appid,omitempty"`

	// Version of the token format ("1.0" or "2.0").
	Version string `json:"ver,omitempty"`
}

// NewChannelClaims builds claims the way a channel issues them. Used by the
// emulator and tests.
func NewChannelClaims(issuer, audience, serviceURL string, ttl time.Duration, now time.Time) ChannelClaims {
	return ChannelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ServiceURL: serviceURL,
		AppID:      audience,
		Version:    "1.0",
	}
}

// ValidateIssuer checks the issuer is one of the allowed values.
func (c *ChannelClaims) ValidateIssuer(allowed []string) error {
	if len(allowed) == 0 {
		return nil // nothing to enforce
	}
	if !slices.Contains(allowed, c.Issuer) {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks the token was issued for appID.
func (c *ChannelClaims) ValidateAudience(appID string) error {
	if slices.Contains(c.Audience, appID) {
		return nil
	}
	return ErrAudience
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *ChannelClaims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	// Check After Leeway
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	// Check Before Leeway
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateServiceURL checks the token was issued for the endpoint an
// activity claims to come from.
func (c *ChannelClaims) ValidateServiceURL(serviceURL string) error {
	if c.ServiceURL == "" || c.ServiceURL != serviceURL {
		return ErrServiceURL
	}
	return nil
}
