package scheduler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/mountsync/pkg/observability/logger"
)

const (
	defaultRedisPrefix           = "mountsync:lock"
	defaultRedisOperationTimeout = 3 * time.Second
)

// ownerScript touches KEYS[1] only while it still holds the caller's token
// (ARGV[1]). ARGV[2] is a new TTL in milliseconds, or "0" to delete the key.
// Returns 0 when the key belongs to someone else or has expired.
var ownerScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
if ARGV[2] == "0" then
  return redis.call("DEL", KEYS[1])
end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])
`)

// RedisLockProviderConfig configures the Redis lease store.
type RedisLockProviderConfig struct {
	URL              string
	Prefix           string
	OperationTimeout time.Duration
}

func (c *RedisLockProviderConfig) normalize() {
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = defaultRedisPrefix
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultRedisOperationTimeout
	}
}

// RedisLockProvider stores refresh leases as Redis keys written with SET NX PX.
// Coordinator replicas sharing an instance run at most one cycle at a time.
type RedisLockProvider struct {
	client redis.UniversalClient
	// owned is false for borrowed clients, which Close leaves open.
	owned  bool
	log    logger.Logger
	prefix string
	opTTL  time.Duration
}

// NewRedisLockProvider dials cfg.URL and pings it before returning.
func NewRedisLockProvider(cfg RedisLockProviderConfig, log logger.Logger) (*RedisLockProvider, error) {
	if log == nil {
		return nil, schedulerError(ErrInvalidArgument, "logger is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, schedulerError(ErrInvalidArgument, "redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(schedulerError(ErrValidation, "parse redis url failed"), err)
	}

	p := newRedisLockProvider(redis.NewClient(opts), true, cfg, log)
	if err := p.HealthCheck(context.Background()); err != nil {
		_ = p.client.Close()
		return nil, err
	}
	return p, nil
}

// NewRedisLockProviderFromClient uses an existing client without taking
// ownership of it.
func NewRedisLockProviderFromClient(client redis.UniversalClient, cfg RedisLockProviderConfig, log logger.Logger) (*RedisLockProvider, error) {
	if client == nil {
		return nil, schedulerError(ErrInvalidArgument, "redis client is required")
	}
	if log == nil {
		return nil, schedulerError(ErrInvalidArgument, "logger is required")
	}
	return newRedisLockProvider(client, false, cfg, log), nil
}

func newRedisLockProvider(client redis.UniversalClient, owned bool, cfg RedisLockProviderConfig, log logger.Logger) *RedisLockProvider {
	cfg.normalize()
	return &RedisLockProvider{
		client: client,
		owned:  owned,
		log:    log.With("lock_provider", "redis"),
		prefix: strings.TrimRight(cfg.Prefix, ":") + ":",
		opTTL:  cfg.OperationTimeout,
	}
}

// Acquire takes key for ttl. It returns ok=false without error when another
// holder has it.
func (p *RedisLockProvider) Acquire(ctx context.Context, key string, ttl time.Duration) (*LockLease, bool, error) {
	if err := p.ready(); err != nil {
		return nil, false, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, schedulerError(ErrInvalidArgument, "lock key is required")
	}
	if ttl <= 0 {
		return nil, false, schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opTTL)
	defer cancel()

	lease := &LockLease{Key: key, Token: newLeaseToken()}
	ok, err := p.client.SetNX(ctx, p.prefix+key, lease.Token, ttl).Result()
	if err != nil {
		return nil, false, errors.Join(schedulerError(ErrRetryable, "acquire lock failed"), err)
	}
	if !ok {
		return nil, false, nil
	}
	lease.ExpireAt = time.Now().UTC().Add(ttl)
	return lease, true, nil
}

// Renew pushes the lease expiry to now+ttl. ErrConflict means the lease was
// lost and the caller no longer holds the key.
func (p *RedisLockProvider) Renew(ctx context.Context, lease *LockLease, ttl time.Duration) error {
	if ttl <= 0 {
		return schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}
	held, err := p.ifOwner(ctx, lease, ttl.Milliseconds())
	if err != nil {
		return err
	}
	if !held {
		p.log.Warn("refresh lock lease lost before renewal", "key", lease.Key)
		return schedulerError(ErrConflict, "lock renew rejected")
	}
	lease.ExpireAt = time.Now().UTC().Add(ttl)
	return nil
}

// Release deletes the key if lease still holds it.
func (p *RedisLockProvider) Release(ctx context.Context, lease *LockLease) error {
	held, err := p.ifOwner(ctx, lease, 0)
	if err != nil {
		return err
	}
	if !held {
		return schedulerError(ErrConflict, "lock release rejected")
	}
	return nil
}

func (p *RedisLockProvider) ifOwner(ctx context.Context, lease *LockLease, ttlMillis int64) (bool, error) {
	if err := p.ready(); err != nil {
		return false, err
	}
	if lease == nil || strings.TrimSpace(lease.Key) == "" || lease.Token == "" {
		return false, schedulerError(ErrInvalidArgument, "lease key and token are required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opTTL)
	defer cancel()

	key := p.prefix + strings.TrimSpace(lease.Key)
	n, err := ownerScript.Run(ctx, p.client, []string{key}, lease.Token, strconv.FormatInt(ttlMillis, 10)).Int64()
	if err != nil {
		return false, errors.Join(schedulerError(ErrRetryable, "lock ownership update failed"), err)
	}
	return n != 0, nil
}

// HealthCheck pings Redis.
func (p *RedisLockProvider) HealthCheck(ctx context.Context) error {
	if err := p.ready(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.opTTL)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return errors.Join(schedulerError(ErrRetryable, "ping redis failed"), err)
	}
	return nil
}

// Close closes the client if the provider dialed it.
func (p *RedisLockProvider) Close() error {
	if p == nil || p.client == nil || !p.owned {
		return nil
	}
	return p.client.Close()
}

func (p *RedisLockProvider) ready() error {
	if p == nil || p.client == nil {
		return schedulerError(ErrNotInitialized, "redis lock provider is not initialized")
	}
	return nil
}
