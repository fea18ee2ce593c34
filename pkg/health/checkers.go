package health

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultAdapterTimeout   = 5 * time.Second
	defaultDirectoryTimeout = 3 * time.Second
)

// Checkable is implemented by components that can check their backing store,
// such as directory backends and lock providers.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker turns a Checkable into a Checker with its own deadline.
type AdapterChecker struct {
	name    string
	target  Checkable
	timeout time.Duration
}

// NewAdapterChecker wraps target. A non-positive timeout means 5s.
func NewAdapterChecker(name string, target Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = defaultAdapterTimeout
	}
	return &AdapterChecker{name: name, target: target, timeout: timeout}
}

// NewDirectoryChecker checks the router directory backend.
func NewDirectoryChecker(directory Checkable) *AdapterChecker {
	return NewAdapterChecker("directory", directory, defaultDirectoryTimeout)
}

func (c *AdapterChecker) Name() string { return c.name }

// Check is unhealthy when the check fails or outlives the timeout.
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.target.HealthCheck(ctx)
	result := CheckResult{Name: c.name, Status: StatusHealthy, Message: "OK", Timestamp: time.Now(), Duration: time.Since(start)}
	if err != nil {
		result.Status, result.Message, result.Error = StatusUnhealthy, "", err.Error()
	}
	return result
}

// CycleStatus summarizes the most recent refresh cycle.
type CycleStatus struct {
	FinishedAt time.Time
	Success    int
	Failure    int
	TimedOut   bool
}

// CycleChecker reports on the freshness and outcome of the last refresh cycle.
// It is healthy before the first cycle, degraded when the last cycle left some
// routers stale, and unhealthy when no cycle finished within MaxAge.
type CycleChecker struct {
	name   string
	last   func() (CycleStatus, bool)
	maxAge time.Duration
	now    func() time.Time
}

// NewCycleChecker creates a refresh cycle checker. A zero maxAge disables the
// staleness check.
func NewCycleChecker(name string, last func() (CycleStatus, bool), maxAge time.Duration) *CycleChecker {
	if name == "" {
		name = "refresh-cycle"
	}
	return &CycleChecker{name: name, last: last, maxAge: maxAge, now: time.Now}
}

// Check evaluates the last cycle snapshot.
func (c *CycleChecker) Check(context.Context) CheckResult {
	result := CheckResult{Name: c.name, Status: StatusHealthy, Timestamp: c.now()}

	status, ok := c.last()
	if !ok {
		result.Message = "no refresh cycle completed yet"
		return result
	}

	result.Metadata = map[string]any{
		"success":     status.Success,
		"failure":     status.Failure,
		"timed_out":   status.TimedOut,
		"finished_at": status.FinishedAt,
	}

	age := c.now().Sub(status.FinishedAt)
	switch {
	case c.maxAge > 0 && age > c.maxAge:
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("last refresh cycle finished %s ago", age.Truncate(time.Second))
	case status.Failure > 0 || status.TimedOut:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("successCount=%d,failureCount=%d", status.Success, status.Failure)
	default:
		result.Message = fmt.Sprintf("successCount=%d,failureCount=%d", status.Success, status.Failure)
	}
	return result
}

// Name returns the name of the health check
func (c *CycleChecker) Name() string {
	return c.name
}
