package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/nimburion/mountsync/pkg/observability/logger"
)

// DefaultEtcdPrefix is the key prefix router records live under.
const DefaultEtcdPrefix = "/mountsync/routers/"

// EtcdConfig configures the etcd directory.
type EtcdConfig struct {
	Endpoints        []string
	Prefix           string
	DialTimeout      time.Duration
	OperationTimeout time.Duration
	Username         string
	Password         string
}

// Etcd reads router records stored as JSON values under a key prefix.
type Etcd struct {
	client *clientv3.Client
	prefix string
	opTO   time.Duration
	log    logger.Logger
}

// NewEtcd connects to etcd.
func NewEtcd(cfg EtcdConfig, log logger.Logger) (*Etcd, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, directoryError(ErrInvalidArgument, "etcd endpoints are required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultEtcdPrefix
	}
	if !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 3 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect etcd: %w", ErrUnavailable, err)
	}

	log.Info("etcd directory configured", "endpoints", cfg.Endpoints, "prefix", cfg.Prefix)
	return &Etcd{client: cli, prefix: cfg.Prefix, opTO: cfg.OperationTimeout, log: log}, nil
}

// ListNodes returns every router record under the prefix, ordered by id.
// Records that fail to decode are logged and skipped.
func (e *Etcd) ListNodes(ctx context.Context) ([]NodeDescriptor, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.opTO)
	defer cancel()

	resp, err := e.client.Get(opCtx, e.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("%w: etcd get %s: %w", ErrUnavailable, e.prefix, err)
	}

	nodes := make([]NodeDescriptor, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		id := strings.TrimPrefix(string(kv.Key), e.prefix)
		node, err := decodeNode(id, kv.Value)
		if err != nil {
			e.log.Warn("skipping malformed router record", "key", string(kv.Key), "error", err)
			continue
		}
		nodes = append(nodes, node)
	}
	sortNodes(nodes)
	return nodes, nil
}

// Register writes a router record, optionally bound to a lease with ttl. The
// lease is granted in whole seconds, rounded up.
func (e *Etcd) Register(ctx context.Context, node NodeDescriptor, ttl time.Duration) error {
	if strings.TrimSpace(node.ID) == "" {
		return directoryError(ErrInvalidArgument, "router id is required")
	}
	value, err := encodeNode(node)
	if err != nil {
		return err
	}

	var opts []clientv3.OpOption
	if ttl > 0 {
		lease, err := e.client.Grant(ctx, leaseSeconds(ttl))
		if err != nil {
			return fmt.Errorf("%w: etcd grant: %w", ErrUnavailable, err)
		}
		opts = append(opts, clientv3.WithLease(lease.ID))
	}
	if _, err := e.client.Put(ctx, e.prefix+node.ID, value, opts...); err != nil {
		return fmt.Errorf("%w: etcd put: %w", ErrUnavailable, err)
	}
	return nil
}

func leaseSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Deregister removes a router record.
func (e *Etcd) Deregister(ctx context.Context, id string) error {
	if _, err := e.client.Delete(ctx, e.prefix+id); err != nil {
		return fmt.Errorf("%w: etcd delete: %w", ErrUnavailable, err)
	}
	return nil
}

// HealthCheck reads the cluster status of the first reachable endpoint.
func (e *Etcd) HealthCheck(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, e.opTO)
	defer cancel()

	for _, endpoint := range e.client.Endpoints() {
		if _, err := e.client.Status(opCtx, endpoint); err == nil {
			return nil
		}
	}
	return directoryError(ErrUnavailable, "no etcd endpoint reachable")
}

// Close closes the etcd client.
func (e *Etcd) Close() error {
	return e.client.Close()
}
