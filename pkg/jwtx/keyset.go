package jwtx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds the public keys channels sign their tokens with. It's safe for
// concurrent use so request handlers can verify while a refresh swaps keys.
type KeySet struct {
	mu   sync.RWMutex
	jwks map[string]JWK
	pub  map[string]any // kid: *rsa.PublicKey | *ecdsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{
		jwks: make(map[string]JWK),
		pub:  make(map[string]any),
	}
}

// AddJWK adds a JWK to the KeySet and parses it into a usable crypto key.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := parseJWKToKey(j)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	k.jwks[j.Kid] = j
	return nil
}

// Get returns the public key and its JWK for the given kid.
func (k *KeySet) Get(kid string) (any, JWK, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, k.jwks[kid], nil
	}
	return nil, JWK{}, ErrNoKey
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// ResetFromJWKS replaces all keys from a JWKS. Keys of an unsupported type
// are skipped, since channel key sets mix in keys we never verify with.
func (k *KeySet) ResetFromJWKS(set JWKS) error {
	pub := make(map[string]any, len(set.Keys))
	jwks := make(map[string]JWK, len(set.Keys))
	for _, j := range set.Keys {
		key, err := parseJWKToKey(j)
		if errors.Is(err, errUnsupportedKey) {
			continue
		}
		if err != nil {
			return err
		}
		pub[j.Kid] = key
		jwks[j.Kid] = j
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = pub
	k.jwks = jwks

	return nil
}

var errUnsupportedKey = errors.New("jwtx: unsupported key")

// parseJWKToKey converts a JWK into a crypto public key.
func parseJWKToKey(j JWK) (any, error) {
	switch j.Kty {
	case "RSA":
		nb, err := base64.RawURLEncoding.DecodeString(j.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(j.E)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(nb)
		e := new(big.Int).SetBytes(eb).Int64()
		return &rsa.PublicKey{N: n, E: int(e)}, nil

	case "EC":
		// Only P-256 is supported for now
		if j.Crv != "P-256" {
			return nil, errUnsupportedKey
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, err
		}
		yb, err := base64.RawURLEncoding.DecodeString(j.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		}, nil

	default:
		return nil, errUnsupportedKey
	}
}
