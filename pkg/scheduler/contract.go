package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LockLease is one holder's claim on a lock key. Token identifies the holder
// and must be presented to Renew and Release.
type LockLease struct {
	Key      string
	Token    string
	ExpireAt time.Time
}

// LockProvider grants time-bounded exclusive leases so that only one
// coordinator replica runs a refresh cycle at a time.
type LockProvider interface {
	// Acquire returns ok=false, nil when key is held by someone else.
	Acquire(ctx context.Context, key string, ttl time.Duration) (lease *LockLease, ok bool, err error)
	// Renew fails with ErrConflict once the lease is lost.
	Renew(ctx context.Context, lease *LockLease, ttl time.Duration) error
	Release(ctx context.Context, lease *LockLease) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Job is the work the Runtime runs on every tick while holding the lease.
type Job func(ctx context.Context) error

func newLeaseToken() string {
	return uuid.NewString()
}
