package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/mountsync/pkg/config"
	"github.com/nimburion/mountsync/pkg/observability/logger"
)

// NewBackend selects and initializes the directory backend configured in cfg.
func NewBackend(ctx context.Context, cfg config.DirectoryConfig, log logger.Logger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "static":
		return NewStatic(cfg.Static.Addresses), nil
	case "etcd":
		return NewEtcd(EtcdConfig{
			Endpoints:        cfg.Etcd.Endpoints,
			Prefix:           cfg.Etcd.Prefix,
			DialTimeout:      cfg.Etcd.DialTimeout,
			OperationTimeout: cfg.OperationTimeout,
			Username:         cfg.Etcd.Username,
			Password:         cfg.Etcd.Password,
		}, log)
	case "redis":
		return NewRedis(ctx, RedisConfig{
			URL:              cfg.Redis.URL,
			Key:              cfg.Redis.Key,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("%w: unsupported directory.type %q (supported: static, etcd, redis)", ErrInvalidArgument, cfg.Type)
	}
}
