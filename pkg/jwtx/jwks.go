package jwtx

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"slices"
)

// JWK represents a public key in JSON Web Key format (RFC 7517).
// Channel key sets add an "endorsements" list naming the channels a key may
// sign for.
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA" or "EC"
	Use string `json:"use,omitempty"` // "sig"
	Alg string `json:"alg,omitempty"` // "RS256"
	Kid string `json:"kid,omitempty"` // key ID

	// RSA stuff
	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)

	// EC stuff
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`

	// X5c is the certificate chain some issuers publish alongside n/e.
	X5c []string `json:"x5c,omitempty"`

	// Endorsements are the channel ids this key is allowed to sign for.
	Endorsements []string `json:"endorsements,omitempty"`
}

// Endorses reports whether the key may sign tokens for channelID. Keys
// without endorsements endorse every channel.
func (j JWK) Endorses(channelID string) bool {
	if len(j.Endorsements) == 0 || channelID == "" {
		return true
	}
	return slices.Contains(j.Endorsements, channelID)
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a JWK for an RSA public key.
func NewRSAJWK(kid, use, alg string, pub *rsa.PublicKey, endorsements ...string) JWK {
	return JWK{
		Kty:          "RSA",
		Use:          use,
		Alg:          alg,
		Kid:          kid,
		N:            base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:            base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		Endorsements: endorsements,
	}
}
