package clientcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimburion/mountsync/pkg/testutil"
)

type fakeClient struct {
	addr     string
	closed   atomic.Int32
	closeErr error
}

func (c *fakeClient) Close() error {
	c.closed.Add(1)
	return c.closeErr
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func countingFactory(calls *atomic.Int32) Factory[*fakeClient] {
	return func(_ context.Context, key string) (*fakeClient, error) {
		calls.Add(1)
		return &fakeClient{addr: key}, nil
	}
}

func TestNew_RequiresFactory(t *testing.T) {
	if _, err := New[*fakeClient](nil, Options{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNew_DefaultsLifetime(t *testing.T) {
	var calls atomic.Int32
	cache, err := New(countingFactory(&calls), Options{})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if cache.MaxLifetime() != DefaultMaxLifetime {
		t.Fatalf("expected default lifetime, got %v", cache.MaxLifetime())
	}
}

func TestCache_GetOrCreateReusesHandle(t *testing.T) {
	var calls atomic.Int32
	cache, err := New(countingFactory(&calls), Options{})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	first, err := cache.GetOrCreate(context.Background(), "router-1:8111")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	second, err := cache.GetOrCreate(context.Background(), "router-1:8111")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if first != second {
		t.Fatal("expected the cached handle to be reused")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one factory call, got %d", got)
	}
}

func TestCache_GetOrCreateRejectsEmptyKey(t *testing.T) {
	var calls atomic.Int32
	cache, _ := New(countingFactory(&calls), Options{})
	if _, err := cache.GetOrCreate(context.Background(), " "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCache_ConcurrentMissesShareOneCreate(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	factory := func(_ context.Context, key string) (*fakeClient, error) {
		calls.Add(1)
		<-release
		return &fakeClient{addr: key}, nil
	}
	cache, err := New(factory, Options{})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	const callers = 32
	results := make([]*fakeClient, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := cache.GetOrCreate(context.Background(), "router-2:8111")
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			results[i] = client
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one factory call, got %d", got)
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d received a different handle", i)
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one entry, got %d", cache.Len())
	}
}

func TestCache_FactoryErrorDoesNotPoison(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("dial refused")
	factory := func(_ context.Context, key string) (*fakeClient, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return &fakeClient{addr: key}, nil
	}
	cache, _ := New(factory, Options{})

	_, err := cache.GetOrCreate(context.Background(), "router-3:8111")
	if !errors.Is(err, ErrCreate) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped factory error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected no entry after failure, got %d", cache.Len())
	}

	client, err := cache.GetOrCreate(context.Background(), "router-3:8111")
	if err != nil {
		t.Fatalf("retry get or create: %v", err)
	}
	if client == nil || cache.Len() != 1 {
		t.Fatal("expected retry to populate the cache")
	}
}

func TestCache_GetOrCreateHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	factory := func(_ context.Context, key string) (*fakeClient, error) {
		<-block
		return &fakeClient{addr: key}, nil
	}
	cache, _ := New(factory, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := cache.GetOrCreate(ctx, "router-4:8111"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCache_CancelledCallerDoesNotFailOtherWaiters(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	factory := func(ctx context.Context, key string) (*fakeClient, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return &fakeClient{addr: key}, nil
		}
	}
	cache, _ := New(factory, Options{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.GetOrCreate(ctxA, "router-5:8111")
		errA <- err
	}()
	<-started

	type result struct {
		client *fakeClient
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		client, err := cache.GetOrCreate(context.Background(), "router-5:8111")
		resB <- result{client: client, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to see context.Canceled, got %v", err)
	}

	close(release)
	select {
	case res := <-resB:
		if res.err != nil {
			t.Fatalf("expected second caller to get a handle, got %v", res.err)
		}
		if res.client == nil || res.client.addr != "router-5:8111" {
			t.Fatalf("unexpected handle %+v", res.client)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one entry, got %d", cache.Len())
	}
}

func TestCache_InvalidateClosesAndRecreates(t *testing.T) {
	var calls atomic.Int32
	cache, _ := New(countingFactory(&calls), Options{})

	first, _ := cache.GetOrCreate(context.Background(), "router-5:8111")
	cache.Invalidate("router-5:8111")

	if first.closed.Load() != 1 {
		t.Fatalf("expected invalidated handle to be closed once, got %d", first.closed.Load())
	}
	second, _ := cache.GetOrCreate(context.Background(), "router-5:8111")
	if second == first {
		t.Fatal("expected a new handle after invalidation")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected two factory calls, got %d", got)
	}
}

func TestCache_InvalidateAbsentKeyIsNoop(t *testing.T) {
	var calls atomic.Int32
	cache, _ := New(countingFactory(&calls), Options{})

	cache.Invalidate("never-cached")
	cache.Invalidate("never-cached")

	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Len())
	}
}

func TestCache_SweepEvictsOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	cache, _ := New(countingFactory(&calls), Options{MaxLifetime: time.Minute, Now: clock.Now})

	old, _ := cache.GetOrCreate(context.Background(), "old")
	clock.Advance(40 * time.Second)
	fresh, _ := cache.GetOrCreate(context.Background(), "fresh")
	clock.Advance(30 * time.Second)

	if evicted := cache.Sweep(); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}
	if old.closed.Load() != 1 {
		t.Fatal("expected expired handle to be closed")
	}
	if fresh.closed.Load() != 0 {
		t.Fatal("expected fresh handle to stay open")
	}
	if keys := cache.Keys(); len(keys) != 1 || keys[0] != "fresh" {
		t.Fatalf("unexpected keys after sweep: %v", keys)
	}
}

func TestCache_ReadsDoNotExtendLifetime(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	cache, _ := New(countingFactory(&calls), Options{MaxLifetime: time.Minute, Now: clock.Now})

	_, _ = cache.GetOrCreate(context.Background(), "router-6:8111")
	for i := 0; i < 5; i++ {
		clock.Advance(15 * time.Second)
		_, _ = cache.GetOrCreate(context.Background(), "router-6:8111")
	}

	if evicted := cache.Sweep(); evicted != 1 {
		t.Fatalf("expected read-only entry to expire, got %d evictions", evicted)
	}
}

func TestCache_AddReplacesAndCloses(t *testing.T) {
	var calls atomic.Int32
	cache, _ := New(countingFactory(&calls), Options{})

	first := &fakeClient{addr: "a"}
	second := &fakeClient{addr: "a"}
	cache.Add("a", first)
	cache.Add("a", second)

	if first.closed.Load() != 1 {
		t.Fatal("expected replaced handle to be closed")
	}
	got, ok := cache.Get("a")
	if !ok || got != second {
		t.Fatal("expected latest handle to be cached")
	}
	if calls.Load() != 0 {
		t.Fatal("expected Add not to call the factory")
	}
}

func TestCache_CleanUpClosesEverything(t *testing.T) {
	var calls atomic.Int32
	cache, _ := New(countingFactory(&calls), Options{})

	handles := make([]*fakeClient, 0, 3)
	for _, key := range []string{"a", "b", "c"} {
		client, _ := cache.GetOrCreate(context.Background(), key)
		handles = append(handles, client)
	}

	if n := cache.CleanUp(); n != 3 {
		t.Fatalf("expected three entries cleaned, got %d", n)
	}
	for _, client := range handles {
		if client.closed.Load() != 1 {
			t.Fatalf("expected %s to be closed", client.addr)
		}
	}
	if cache.Len() != 0 {
		t.Fatal("expected empty cache after cleanup")
	}
}

func TestCache_CloseErrorsAreLogged(t *testing.T) {
	log := testutil.NewMockLogger()
	cache, _ := New(func(_ context.Context, key string) (*fakeClient, error) {
		return &fakeClient{addr: key, closeErr: errors.New("socket already closed")}, nil
	}, Options{Logger: log})

	_, _ = cache.GetOrCreate(context.Background(), "router-7:8111")
	cache.Invalidate("router-7:8111")

	if got := log.Count("warn", "failed to close cached client"); got != 1 {
		t.Fatalf("expected one close warning, got %d", got)
	}
}

func TestCache_SweepRacesWithGetOrCreate(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	cache, _ := New(countingFactory(&calls), Options{MaxLifetime: time.Millisecond, Now: clock.Now})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			clock.Advance(time.Millisecond)
			cache.Sweep()
		}
	}()

	keys := []string{"a", "b", "c", "d"}
	for i := 0; i < 500; i++ {
		key := keys[i%len(keys)]
		if _, err := cache.GetOrCreate(context.Background(), key); err != nil {
			t.Fatalf("get or create: %v", err)
		}
		if i%7 == 0 {
			cache.Invalidate(key)
		}
	}
	cancel()
	wg.Wait()
	cache.CleanUp()
}
