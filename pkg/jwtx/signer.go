package jwtx

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Signer signs channel tokens. The emulator uses it to play the channel
// side of the handshake.
type RS256Signer struct {
	kid          string
	key          *rsa.PrivateKey
	endorsements []string
}

// NewRS256Signer wraps an RSA private key.
func NewRS256Signer(kid string, key *rsa.PrivateKey, endorsements ...string) (*RS256Signer, error) {
	if key == nil {
		return nil, errors.New("jwtx: nil RSA key")
	}
	return &RS256Signer{kid: kid, key: key, endorsements: endorsements}, nil
}

// NewRS256SignerFromPEM loads an RSA private key from PEM bytes. Handles both
// PKCS1 and PKCS8 because otherwise we will be chasing a bug for longer
// that we would be willing to admit.
func NewRS256SignerFromPEM(kid string, pemKey []byte, endorsements ...string) (*RS256Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for RSA key")
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse RSA key: %w", err)
		}
		key = k
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		rk, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: not RSA private key")
		}
		key = rk
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}

	return NewRS256Signer(kid, key, endorsements...)
}

func (s *RS256Signer) KID() string { return s.kid }

// Sign turns claims into a signed JWT string.
func (s *RS256Signer) Sign(claims ChannelClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWKS returns the key set to publish so others can verify our tokens.
func (s *RS256Signer) PublicJWKS() JWKS {
	return JWKS{Keys: []JWK{
		NewRSAJWK(s.kid, "sig", jwt.SigningMethodRS256.Alg(), &s.key.PublicKey, s.endorsements...),
	}}
}
