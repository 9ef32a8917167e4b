package jwtx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// KeySource resolves a kid to a verification key.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, JWK, error)
}

// Key implements KeySource for a static KeySet.
func (k *KeySet) Key(_ context.Context, kid string) (any, JWK, error) {
	return k.Get(kid)
}

// RemoteKeySet is a KeySet backed by a published JWKS document. Keys are
// fetched lazily and refetched when a token names a kid we don't have yet,
// which is how channels roll their signing keys.
type RemoteKeySet struct {
	url        string
	httpClient *http.Client
	keys       *KeySet

	// minInterval throttles refetches triggered by unknown kids.
	minInterval  time.Duration
	fetchTimeout time.Duration

	mu        sync.Mutex
	lastFetch time.Time
	sf        singleflight.Group
}

// NewRemoteKeySet returns a key set that fetches from url. A nil httpClient
// gets a 10 second timeout.
func NewRemoteKeySet(url string, httpClient *http.Client) *RemoteKeySet {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteKeySet{
		url:          url,
		httpClient:   httpClient,
		keys:         NewKeySet(),
		minInterval:  30 * time.Second,
		fetchTimeout: 10 * time.Second,
	}
}

// Key implements KeySource.
func (r *RemoteKeySet) Key(ctx context.Context, kid string) (any, JWK, error) {
	if pk, j, err := r.keys.Get(kid); err == nil {
		return pk, j, nil
	}

	r.mu.Lock()
	throttled := r.keys.IsReady() && time.Since(r.lastFetch) < r.minInterval
	r.mu.Unlock()

	if !throttled {
		if err := r.Refresh(ctx); err != nil {
			return nil, JWK{}, err
		}
	}
	return r.keys.Get(kid)
}

// Refresh fetches the key set now. Concurrent callers share one request,
// which is detached from any single caller: a caller whose ctx ends gets
// ctx.Err() while the fetch carries on for the rest.
func (r *RemoteKeySet) Refresh(ctx context.Context) error {
	ch := r.sf.DoChan("refresh", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		return nil, r.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// IsReady reports whether at least one key has been loaded.
func (r *RemoteKeySet) IsReady() bool {
	return r.keys.IsReady()
}

var ErrFetchKeys = errors.New("jwtx: failed to fetch keys")

func (r *RemoteKeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchKeys, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchKeys, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrFetchKeys, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchKeys, err)
	}

	var set JWKS
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("%w: %v", ErrFetchKeys, err)
	}
	if err := r.keys.ResetFromJWKS(set); err != nil {
		return fmt.Errorf("%w: %v", ErrFetchKeys, err)
	}

	r.mu.Lock()
	r.lastFetch = time.Now()
	r.mu.Unlock()
	return nil
}
