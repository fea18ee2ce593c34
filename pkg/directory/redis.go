package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/mountsync/pkg/observability/logger"
)

// DefaultRedisKey is the hash holding router records.
const DefaultRedisKey = "mountsync:routers"

// RedisConfig configures the redis directory.
type RedisConfig struct {
	URL              string
	Key              string
	OperationTimeout time.Duration
}

// Redis reads router records from a hash: field is the router id, value the
// JSON descriptor or a bare admin address.
type Redis struct {
	client redis.UniversalClient
	key    string
	opTO   time.Duration
	owned  bool
	log    logger.Logger
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, log logger.Logger) (*Redis, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, directoryError(ErrInvalidArgument, "redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %w", ErrInvalidArgument, err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", ErrUnavailable, err)
	}

	dir := NewRedisFromClient(client, cfg, log)
	dir.owned = true
	dir.log.Info("redis directory configured", "key", dir.key)
	return dir, nil
}

// NewRedisFromClient wraps an existing client. The client is not closed by Close.
func NewRedisFromClient(client redis.UniversalClient, cfg RedisConfig, log logger.Logger) *Redis {
	if log == nil {
		log = logger.Nop()
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = DefaultRedisKey
	}
	opTO := cfg.OperationTimeout
	if opTO <= 0 {
		opTO = 3 * time.Second
	}
	return &Redis{client: client, key: key, opTO: opTO, log: log}
}

// ListNodes returns every router in the hash, ordered by id.
func (r *Redis) ListNodes(ctx context.Context) ([]NodeDescriptor, error) {
	opCtx, cancel := context.WithTimeout(ctx, r.opTO)
	defer cancel()

	records, err := r.client.HGetAll(opCtx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis hgetall %s: %w", ErrUnavailable, r.key, err)
	}

	nodes := make([]NodeDescriptor, 0, len(records))
	for id, raw := range records {
		node, err := decodeNode(id, []byte(raw))
		if err != nil {
			r.log.Warn("skipping malformed router record", "field", id, "error", err)
			continue
		}
		nodes = append(nodes, node)
	}
	sortNodes(nodes)
	return nodes, nil
}

// Register stores a router record.
func (r *Redis) Register(ctx context.Context, node NodeDescriptor) error {
	if strings.TrimSpace(node.ID) == "" {
		return directoryError(ErrInvalidArgument, "router id is required")
	}
	value, err := encodeNode(node)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key, node.ID, value).Err(); err != nil {
		return fmt.Errorf("%w: redis hset: %w", ErrUnavailable, err)
	}
	return nil
}

// Deregister removes a router record.
func (r *Redis) Deregister(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("%w: redis hdel: %w", ErrUnavailable, err)
	}
	return nil
}

// HealthCheck pings redis.
func (r *Redis) HealthCheck(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, r.opTO)
	defer cancel()
	return r.client.Ping(opCtx).Err()
}

// Client exposes the underlying redis client so a cycle lock on the same
// server can share it.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Close closes the client when the directory created it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
