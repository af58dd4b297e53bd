// Package lock provides redis backed leases used to serialize writers
// touching the same aggregate across instances.
package lock

import (
	"errors"
	"time"

	"github.com/bidhaus/goapi/base/ctx"
)

var (
	// ErrNotHeld is returned when releasing or extending a lease whose
	// token no longer matches, e.g. after ttl expiry and re-acquisition.
	ErrNotHeld = errors.New("lock not held")
)

// Handle is a single acquired lease. It is owned by the acquiring
// goroutine and must be released exactly once.
type Handle interface {
	// Key returns the locked key.
	Key() string
	// Extend pushes the lease expiry ttl from now. Fails with ErrNotHeld
	// when the lease has been lost.
	Extend(c ctx.Ctx, ttl time.Duration) error
	// Release frees the lease. Releasing an expired or re-acquired lease
	// is a no-op.
	Release(c ctx.Ctx) error
}

// Service provides interface for distributed locks
type Service interface {
	// TryAcquire attempts the lease once, returning domain.ErrLockBusy
	// when someone else holds it.
	TryAcquire(c ctx.Ctx, key string, ttl time.Duration) (Handle, error)
	// Acquire retries until the lease is granted or wait elapses, then
	// returns domain.ErrLockTimeout.
	Acquire(c ctx.Ctx, key string, ttl, wait time.Duration) (Handle, error)
	// WithLock runs fn while holding the lease and releases it after.
	WithLock(c ctx.Ctx, key string, ttl, wait time.Duration, fn func(c ctx.Ctx) error) error
}
