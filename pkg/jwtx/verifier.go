package jwtx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrEndorsement = errors.New("jwtx: key not endorsed for channel")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrServiceURL  = errors.New("jwtx: service url mismatch")
)

// VerifyOptions captures what a channel token must look like.
type VerifyOptions struct {
	// Issuers the token may come from. Empty means "don't care".
	Issuers []string

	// AppID is the audience the token must carry.
	AppID string

	// Leeway allows small clock skew when validating exp/nbf.
	// Because time sync is never perfect.
	Leeway time.Duration
}

// ChannelVerifier validates the bearer tokens channels attach to inbound
// activities. Only RS256 is accepted.
type ChannelVerifier struct {
	keys KeySource
	opts VerifyOptions
	now  func() time.Time
}

// NewChannelVerifier creates a verifier over keys. A zero Leeway gets
// DefaultLeeway.
func NewChannelVerifier(keys KeySource, opts VerifyOptions) *ChannelVerifier {
	if opts.Leeway == 0 {
		opts.Leeway = DefaultLeeway
	}
	return &ChannelVerifier{keys: keys, opts: opts, now: time.Now}
}

// Verify checks the token signature, issuer, audience and lifetime, and that
// the signing key is endorsed for channelID.
func (v *ChannelVerifier) Verify(ctx context.Context, tokenStr, channelID string) (*ChannelClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &ChannelClaims{}, func(t *jwt.Token) (any, error) {
		// Need the kid to know which key to use
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrMalformed)
		}

		pub, jwk, err := v.keys.Key(ctx, kid)
		if errors.Is(err, ErrNoKey) {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}
		if err != nil {
			return nil, err
		}
		if !jwk.Endorses(channelID) {
			return nil, fmt.Errorf("%w %q", ErrEndorsement, channelID)
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*ChannelClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}

	// Now check all the claim requirements
	if err := claims.ValidateIssuer(v.opts.Issuers); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.opts.AppID); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryWithLeeway(v.now().UTC(), v.opts.Leeway); err != nil {
		return nil, err
	}

	return claims, nil
}
