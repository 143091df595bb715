package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locks so a batch run is not started
// twice by concurrent instances.
type LockManager interface {
	// Acquire obtains the lock for key, returning an unlock function, or
	// ErrLockHeld when another party holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles calls to external APIs shared across instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
