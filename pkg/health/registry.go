package health

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Status is the outcome of a check. Order of severity: healthy, degraded, unhealthy.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

// ErrUnknownCheck is returned by CheckOne for an unregistered name.
var ErrUnknownCheck = errors.New("health check not found")

// CheckResult is what one checker reports.
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Checker reports the health of one dependency.
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// AggregatedResult is the combined readiness of every registered check.
type AggregatedResult struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// IsHealthy reports whether no check was degraded or unhealthy.
func (r AggregatedResult) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Registry holds the readiness checks of a coordinator process, keyed by name.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: map[string]Checker{}}
}

// Register adds checker, replacing any checker with the same name. nil is ignored.
func (r *Registry) Register(checker Checker) {
	if checker == nil {
		return
	}
	r.mu.Lock()
	r.checkers[checker.Name()] = checker
	r.mu.Unlock()
}

// RegisterFunc registers fn under name. Results without a name get name.
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context) CheckResult) {
	r.Register(funcChecker{name: name, fn: fn})
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.checkers, name)
	r.mu.Unlock()
}

// List returns the registered names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.checkers))
}

// Check runs every check concurrently and reports them in name order. The
// aggregate takes the most severe status.
func (r *Registry) Check(ctx context.Context) AggregatedResult {
	start := time.Now()
	checkers := r.snapshot()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Go(func() { results[i] = checker.Check(ctx) })
	}
	wg.Wait()

	aggregate := AggregatedResult{Status: StatusHealthy, Checks: results, Timestamp: time.Now()}
	for _, result := range results {
		if severity[result.Status] > severity[aggregate.Status] {
			aggregate.Status = result.Status
		}
	}
	aggregate.Duration = time.Since(start)
	return aggregate
}

// CheckOne runs the check registered under name.
func (r *Registry) CheckOne(ctx context.Context, name string) (CheckResult, error) {
	r.mu.RLock()
	checker, ok := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return CheckResult{}, fmt.Errorf("%w: %s", ErrUnknownCheck, name)
	}
	return checker.Check(ctx), nil
}

func (r *Registry) snapshot() []Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	checkers := make([]Checker, 0, len(r.checkers))
	for _, name := range slices.Sorted(maps.Keys(r.checkers)) {
		checkers = append(checkers, r.checkers[name])
	}
	return checkers
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func (c funcChecker) Name() string { return c.name }

func (c funcChecker) Check(ctx context.Context) CheckResult {
	result := c.fn(ctx)
	if result.Name == "" {
		result.Name = c.name
	}
	return result
}
