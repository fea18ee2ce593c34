package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/mountsync/pkg/config"
	"github.com/nimburion/mountsync/pkg/directory"
	"github.com/nimburion/mountsync/pkg/observability/logger"
	"github.com/nimburion/mountsync/pkg/scheduler"
)

// unreachableRedis points at a port nothing listens on, so any dial fails.
const unreachableRedis = "redis://127.0.0.1:1/0"

func lockConfig(directoryURL, lockURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Directory.Type = config.DirectoryTypeRedis
	cfg.Directory.Redis.URL = directoryURL
	cfg.Lock.Enabled = true
	cfg.Lock.Provider = config.LockProviderRedis
	cfg.Lock.Redis.URL = lockURL
	return cfg
}

func TestNewLockProvider_LocalWhenDisabled(t *testing.T) {
	cfg := &config.Config{}
	lock, err := newLockProvider(cfg, directory.NewStatic(nil), logger.Nop())
	if err != nil {
		t.Fatalf("newLockProvider: %v", err)
	}
	if _, ok := lock.(*scheduler.LocalLockProvider); !ok {
		t.Fatalf("expected local lock provider, got %T", lock)
	}
}

func TestNewLockProvider_SharesDirectoryClient(t *testing.T) {
	opts, err := redis.ParseURL(unreachableRedis)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()
	dir := directory.NewRedisFromClient(client, directory.RedisConfig{}, nil)

	// A shared client is not dialed, so the unreachable server goes unnoticed.
	lock, err := newLockProvider(lockConfig(unreachableRedis, unreachableRedis), dir, logger.Nop())
	if err != nil {
		t.Fatalf("expected shared client without dialing, got %v", err)
	}
	if _, ok := lock.(*scheduler.RedisLockProvider); !ok {
		t.Fatalf("expected redis lock provider, got %T", lock)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("close lock: %v", err)
	}
	if err := client.Ping(context.Background()).Err(); errors.Is(err, redis.ErrClosed) {
		t.Fatal("closing the lock closed the directory client")
	}
}

func TestNewLockProvider_DialsOwnClientForOtherURL(t *testing.T) {
	opts, err := redis.ParseURL(unreachableRedis)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()
	dir := directory.NewRedisFromClient(client, directory.RedisConfig{}, nil)

	_, err = newLockProvider(lockConfig(unreachableRedis, "redis://127.0.0.1:2/0"), dir, logger.Nop())
	if err == nil {
		t.Fatal("expected the lock to dial its own unreachable server")
	}
}
