package directory

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimburion/mountsync/pkg/testutil"
)

func TestRedisDirectory_Integration(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	dir, err := NewRedis(ctx, RedisConfig{URL: connStr, Key: "it:routers"}, nil)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer dir.Close()

	for _, node := range []NodeDescriptor{
		{ID: "r2", AdminAddress: "router-2:8111"},
		{ID: "r1", AdminAddress: "local"},
		{ID: "r3"},
	} {
		if err := dir.Register(ctx, node); err != nil {
			t.Fatalf("Register %s: %v", node.ID, err)
		}
	}
	if err := dir.Client().HSet(ctx, "it:routers", "r4", "router-4:8111").Err(); err != nil {
		t.Fatalf("hset bare address: %v", err)
	}
	if err := dir.Client().HSet(ctx, "it:routers", "r5", "{broken").Err(); err != nil {
		t.Fatalf("hset malformed: %v", err)
	}

	nodes, err := dir.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	want := []NodeDescriptor{
		{ID: "r1", AdminAddress: "local"},
		{ID: "r2", AdminAddress: "router-2:8111"},
		{ID: "r3"},
		{ID: "r4", AdminAddress: "router-4:8111"},
	}
	if len(nodes) != len(want) {
		t.Fatalf("expected %d nodes, got %+v", len(want), nodes)
	}
	for i := range want {
		if nodes[i] != want[i] {
			t.Fatalf("node %d: expected %+v, got %+v", i, want[i], nodes[i])
		}
	}

	if err := dir.Deregister(ctx, "r2"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	nodes, _ = dir.ListNodes(ctx)
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes after deregister, got %d", len(nodes))
	}
	if err := dir.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
