package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubCheckable struct {
	err   error
	delay time.Duration
}

func (s stubCheckable) HealthCheck(ctx context.Context) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func staticResult(name string, status Status) func(context.Context) CheckResult {
	return func(context.Context) CheckResult {
		return CheckResult{Name: name, Status: status}
	}
}

func TestRegistry_AggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{name: "empty", want: StatusHealthy},
		{name: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, want: StatusHealthy},
		{name: "one degraded", statuses: []Status{StatusHealthy, StatusDegraded}, want: StatusDegraded},
		{name: "unhealthy wins", statuses: []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			for i, status := range tt.statuses {
				name := string(rune('a' + i))
				registry.RegisterFunc(name, staticResult(name, status))
			}
			result := registry.Check(context.Background())
			if result.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, result.Status)
			}
			if len(result.Checks) != len(tt.statuses) {
				t.Fatalf("expected %d results, got %d", len(tt.statuses), len(result.Checks))
			}
			if result.IsHealthy() != (tt.want == StatusHealthy) {
				t.Fatalf("IsHealthy mismatch for %s", tt.want)
			}
		})
	}
}

func TestRegistry_ResultsSortedByName(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("zeta", func(context.Context) CheckResult { return CheckResult{Status: StatusHealthy} })
	registry.Register(NewDirectoryChecker(stubCheckable{}))
	registry.Register(NewAdapterChecker("alpha", stubCheckable{}, time.Second))

	result := registry.Check(context.Background())
	got := []string{result.Checks[0].Name, result.Checks[1].Name, result.Checks[2].Name}
	want := []string{"alpha", "directory", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if names := registry.List(); len(names) != 3 || names[0] != "alpha" {
		t.Fatalf("unexpected list %v", names)
	}
}

func TestRegistry_ReplaceAndUnregister(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("lock", staticResult("", StatusUnhealthy))
	registry.RegisterFunc("lock", staticResult("", StatusHealthy))

	result, err := registry.CheckOne(context.Background(), "lock")
	if err != nil {
		t.Fatalf("CheckOne: %v", err)
	}
	if result.Status != StatusHealthy || result.Name != "lock" {
		t.Fatalf("expected replaced healthy check named lock, got %+v", result)
	}

	registry.Unregister("lock")
	if _, err := registry.CheckOne(context.Background(), "lock"); err == nil {
		t.Fatal("expected error for unregistered check")
	}
	registry.Register(nil)
	if len(registry.List()) != 0 {
		t.Fatal("nil checker must be ignored")
	}
}

func TestAdapterChecker(t *testing.T) {
	healthy := NewAdapterChecker("etcd", stubCheckable{}, 0).Check(context.Background())
	if healthy.Status != StatusHealthy || healthy.Message != "OK" {
		t.Fatalf("expected healthy result, got %+v", healthy)
	}

	failing := NewAdapterChecker("etcd", stubCheckable{err: errors.New("connection refused")}, time.Second).Check(context.Background())
	if failing.Status != StatusUnhealthy || failing.Error != "connection refused" {
		t.Fatalf("expected unhealthy result, got %+v", failing)
	}

	slow := NewAdapterChecker("etcd", stubCheckable{delay: time.Second}, 20*time.Millisecond).Check(context.Background())
	if slow.Status != StatusUnhealthy {
		t.Fatalf("expected timeout to be unhealthy, got %+v", slow)
	}
}

func TestCycleChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status CycleStatus
		ok     bool
		maxAge time.Duration
		want   Status
	}{
		{name: "no cycle yet", want: StatusHealthy},
		{name: "clean cycle", ok: true, status: CycleStatus{FinishedAt: now, Success: 3}, want: StatusHealthy},
		{name: "failures degrade", ok: true, status: CycleStatus{FinishedAt: now, Success: 2, Failure: 1}, want: StatusDegraded},
		{name: "timeout degrades", ok: true, status: CycleStatus{FinishedAt: now, TimedOut: true}, want: StatusDegraded},
		{
			name:   "stale cycle",
			ok:     true,
			status: CycleStatus{FinishedAt: now.Add(-10 * time.Minute), Success: 3},
			maxAge: 5 * time.Minute,
			want:   StatusUnhealthy,
		},
		{
			name:   "staleness disabled",
			ok:     true,
			status: CycleStatus{FinishedAt: now.Add(-10 * time.Minute), Success: 3},
			want:   StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCycleChecker("", func() (CycleStatus, bool) { return tt.status, tt.ok }, tt.maxAge)
			checker.now = func() time.Time { return now }

			result := checker.Check(context.Background())
			if result.Status != tt.want {
				t.Fatalf("expected %s, got %s (%+v)", tt.want, result.Status, result)
			}
			if result.Name != "refresh-cycle" {
				t.Fatalf("unexpected name %s", result.Name)
			}
		})
	}
}

func TestRegistry_CheckOneUnknown(t *testing.T) {
	_, err := NewRegistry().CheckOne(context.Background(), "missing")
	if !errors.Is(err, ErrUnknownCheck) {
		t.Fatalf("expected ErrUnknownCheck, got %v", err)
	}
}
