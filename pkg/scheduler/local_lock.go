package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LocalLockProvider keeps leases in process memory. It serializes cycles within
// one coordinator and is used when no shared lock backend is configured.
type LocalLockProvider struct {
	mu     sync.Mutex
	leases map[string]LockLease
	now    func() time.Time
	closed bool
}

// NewLocalLockProvider creates an in-memory lock provider.
func NewLocalLockProvider() *LocalLockProvider {
	return &LocalLockProvider{
		leases: map[string]LockLease{},
		now:    time.Now,
	}
}

// Acquire grants the lease when the key is free or its previous lease expired.
func (p *LocalLockProvider) Acquire(_ context.Context, key string, ttl time.Duration) (*LockLease, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, schedulerError(ErrInvalidArgument, "lock key is required")
	}
	if ttl <= 0 {
		return nil, false, schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false, schedulerError(ErrClosed, "local lock provider is closed")
	}

	now := p.now().UTC()
	if current, ok := p.leases[key]; ok && now.Before(current.ExpireAt) {
		return nil, false, nil
	}

	lease := LockLease{
		Key:      key,
		Token:    newLeaseToken(),
		ExpireAt: now.Add(ttl),
	}
	p.leases[key] = lease
	return &lease, true, nil
}

// Renew extends the lease when the caller still owns it.
func (p *LocalLockProvider) Renew(_ context.Context, lease *LockLease, ttl time.Duration) error {
	if lease == nil {
		return schedulerError(ErrInvalidArgument, "lease is required")
	}
	if ttl <= 0 {
		return schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return schedulerError(ErrClosed, "local lock provider is closed")
	}

	current, ok := p.leases[lease.Key]
	if !ok || current.Token != lease.Token || !p.now().Before(current.ExpireAt) {
		return schedulerError(ErrConflict, "lock renew rejected")
	}
	current.ExpireAt = p.now().UTC().Add(ttl)
	p.leases[lease.Key] = current
	lease.ExpireAt = current.ExpireAt
	return nil
}

// Release drops the lease when the token matches.
func (p *LocalLockProvider) Release(_ context.Context, lease *LockLease) error {
	if lease == nil {
		return schedulerError(ErrInvalidArgument, "lease is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	current, ok := p.leases[lease.Key]
	if !ok || current.Token != lease.Token {
		return schedulerError(ErrConflict, "lock release rejected")
	}
	delete(p.leases, lease.Key)
	return nil
}

// HealthCheck fails once the provider is closed.
func (p *LocalLockProvider) HealthCheck(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return schedulerError(ErrClosed, "local lock provider is closed")
	}
	return nil
}

// Close drops every lease.
func (p *LocalLockProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.leases = map[string]LockLease{}
	return nil
}
