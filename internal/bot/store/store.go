package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey      = errors.New("store: empty key")
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// Driver names accepted by the registry configuration.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// LoginRegistry tracks which login keys have a sign-in prompt outstanding.
// Entries carry no payload; presence is the whole state. Implementations must
// be safe for concurrent use.
type LoginRegistry interface {
	// Add marks key as awaiting a magic code, restarting its lifetime if it
	// was already present.
	Add(ctx context.Context, key string) error

	// Contains reports whether key has a live entry. Entries older than the
	// registry TTL are reported absent.
	Contains(ctx context.Context, key string) (bool, error)

	// Remove drops key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// DeleteExpired sweeps entries past the TTL and returns how many went.
	DeleteExpired(ctx context.Context) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

// Options are shared by every driver.
type Options struct {
	// TTL bounds how long an abandoned login stays outstanding. Zero keeps
	// entries until they are removed.
	TTL time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Clock returns the configured clock, defaulting to time.Now.
func (o Options) Clock() func() time.Time {
	if o.Now == nil {
		return time.Now
	}
	return o.Now
}

// Expired reports whether an entry created at created is past the TTL at now.
func (o Options) Expired(created, now time.Time) bool {
	return o.TTL > 0 && !now.Before(created.Add(o.TTL))
}
