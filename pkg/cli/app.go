package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nimburion/mountsync/pkg/adminclient"
	"github.com/nimburion/mountsync/pkg/clientcache"
	"github.com/nimburion/mountsync/pkg/config"
	"github.com/nimburion/mountsync/pkg/directory"
	"github.com/nimburion/mountsync/pkg/health"
	"github.com/nimburion/mountsync/pkg/observability/logger"
	"github.com/nimburion/mountsync/pkg/observability/metrics"
	"github.com/nimburion/mountsync/pkg/observability/tracing"
	"github.com/nimburion/mountsync/pkg/refresher"
	"github.com/nimburion/mountsync/pkg/scheduler"
	"github.com/nimburion/mountsync/pkg/server"
	"github.com/nimburion/mountsync/pkg/version"
)

const healthCheckTimeout = 3 * time.Second

type appOptions struct {
	management bool
	schedule   bool
}

// app holds every component of a running coordinator.
type app struct {
	cfg *config.Config
	log logger.Logger

	tracer     *tracing.TracerProvider
	directory  directory.Backend
	clients    *clientcache.Cache[adminclient.Client]
	refresher  *refresher.Service
	lock       scheduler.LockProvider
	runtime    *scheduler.Runtime
	management *server.ManagementServer
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			if closeErr := a.close(context.WithoutCancel(ctx)); closeErr != nil {
				log.Error("failed to release partially built coordinator", "error", closeErr)
			}
		}
	}()

	info := version.Current(cfg.Service.Name)
	a.tracer, err = tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		Enabled:        cfg.Observability.TracingEnabled,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: info.Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Insecure:       cfg.Observability.TracingInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	a.directory, err = directory.NewBackend(ctx, cfg.Directory, log)
	if err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	clientCfg := adminclient.Config{
		Scheme:      cfg.AdminClient.Scheme,
		RefreshPath: cfg.AdminClient.RefreshPath,
		Timeout:     cfg.AdminClient.Timeout,
		Token:       cfg.AdminClient.Token,
	}
	a.clients, err = clientcache.New[adminclient.Client](adminclient.NewFactory(clientCfg, log), clientcache.Options{
		MaxLifetime: cfg.Refresh.ClientMaxLifetime,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("create client cache: %w", err)
	}

	a.refresher, err = refresher.New(a.directory, a.clients, nil, log, refresher.Options{
		BatchTimeout:          cfg.Refresh.BatchTimeout,
		SweepPeriod:           cfg.Refresh.SweepPeriod,
		LocalMarker:           cfg.Refresh.LocalMarker,
		LocalReload:           localReload(clientCfg, log),
		AllowConcurrentCycles: !cfg.Refresh.SerializeCycles,
		CancelOnTimeout:       cfg.Refresh.CancelOnTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create refresher: %w", err)
	}

	if !opts.schedule && !opts.management {
		return a, nil
	}

	a.lock, err = newLockProvider(cfg, a.directory, log)
	if err != nil {
		return nil, fmt.Errorf("create lock provider: %w", err)
	}

	if opts.schedule && cfg.Refresh.Interval > 0 {
		a.runtime, err = scheduler.NewRuntime(a.refreshJob, a.lock, log, scheduler.Config{
			Interval:   cfg.Refresh.Interval,
			RunOnStart: cfg.Refresh.RunOnStart,
			LockKey:    cfg.Lock.Key,
			LockTTL:    cfg.Lock.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create scheduler: %w", err)
		}
	}

	if opts.management {
		a.management, err = server.NewManagementServer(cfg.Management, log, a.healthRegistry(), a.metricsRegistry(),
			server.WithRefreshController(a.refresher),
			server.WithCacheInspector(a.clients),
			server.WithVersion(info),
		)
		if err != nil {
			return nil, fmt.Errorf("create management server: %w", err)
		}
	}

	return a, nil
}

// localReload refreshes the router running beside the coordinator through a
// one-off client that never enters the cache. The local path is uncached, not
// RPC-free: it still calls the router's admin endpoint.
func localReload(cfg adminclient.Config, log logger.Logger) refresher.LocalReloadFunc {
	return func(ctx context.Context, adminAddress string) (bool, error) {
		client, err := adminclient.NewHTTPClient(adminAddress, cfg, log)
		if err != nil {
			return false, err
		}
		defer client.Close()
		return client.Refresh(ctx)
	}
}

// newLockProvider reuses the redis directory's client when the lock points at
// the same server.
func newLockProvider(cfg *config.Config, dir directory.Backend, log logger.Logger) (scheduler.LockProvider, error) {
	if !cfg.Lock.Enabled {
		return scheduler.NewLocalLockProvider(), nil
	}
	lockCfg := scheduler.RedisLockProviderConfig{
		URL:              cfg.Lock.Redis.URL,
		Prefix:           cfg.Lock.Redis.Prefix,
		OperationTimeout: cfg.Lock.Redis.OperationTimeout,
	}
	if shared, ok := dir.(*directory.Redis); ok &&
		strings.TrimSpace(cfg.Directory.Redis.URL) == strings.TrimSpace(cfg.Lock.Redis.URL) {
		log.Debug("cycle lock shares the directory redis client")
		return scheduler.NewRedisLockProviderFromClient(shared.Client(), lockCfg, log)
	}
	return scheduler.NewRedisLockProvider(lockCfg, log)
}

func (a *app) healthRegistry() *health.Registry {
	registry := health.NewRegistry()
	registry.Register(health.NewDirectoryChecker(a.directory))
	registry.Register(scheduler.NewLockProviderHealthChecker("", a.lock, healthCheckTimeout))

	var maxAge time.Duration
	if a.cfg.Refresh.Interval > 0 {
		maxAge = 3*a.cfg.Refresh.Interval + a.cfg.Refresh.BatchTimeout
	}
	registry.Register(health.NewCycleChecker("", a.lastCycle, maxAge))
	return registry
}

func (a *app) lastCycle() (health.CycleStatus, bool) {
	result, ok := a.refresher.LastResult()
	if !ok {
		return health.CycleStatus{}, false
	}
	return health.CycleStatus{
		FinishedAt: result.StartedAt.Add(result.Duration),
		Success:    result.Success,
		Failure:    result.Failure,
		TimedOut:   result.TimedOut,
	}, true
}

func (a *app) metricsRegistry() *metrics.Registry {
	var collectors []prometheus.Collector
	collectors = append(collectors, clientcache.Collectors()...)
	collectors = append(collectors, refresher.Collectors()...)
	collectors = append(collectors, scheduler.Collectors()...)
	return metrics.NewRegistry(collectors...)
}

// refreshJob is the scheduled unit of work. Cycle outcomes are already logged
// by the refresher, so only errors that prevented a cycle are returned.
func (a *app) refreshJob(ctx context.Context) error {
	_, err := a.refresher.Refresh(ctx)
	if errors.Is(err, refresher.ErrCycleInProgress) {
		return nil
	}
	return err
}

func (a *app) refreshOnce(ctx context.Context) (refresher.Result, error) {
	defer func() {
		if err := a.close(context.WithoutCancel(ctx)); err != nil {
			a.log.Error("failed to shut down cleanly", "error", err)
		}
	}()
	return a.refresher.Refresh(ctx)
}

// serve runs until SIGINT/SIGTERM or until a component fails.
func (a *app) serve(ctx context.Context) error {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if err := a.close(context.WithoutCancel(ctx)); err != nil {
			a.log.Error("failed to shut down cleanly", "error", err)
		}
	}()

	if err := a.refresher.Init(runCtx); err != nil {
		return fmt.Errorf("init refresher: %w", err)
	}

	a.log.Info("mountsync started",
		"directory", a.cfg.Directory.Type,
		"interval", a.cfg.Refresh.Interval,
		"batch_timeout", a.cfg.Refresh.BatchTimeout,
		"client_max_lifetime", a.cfg.Refresh.ClientMaxLifetime,
		"lock_enabled", a.cfg.Lock.Enabled,
	)

	group, groupCtx := errgroup.WithContext(runCtx)
	if a.runtime != nil {
		group.Go(func() error { return a.runtime.Start(groupCtx) })
	}
	if a.management != nil {
		group.Go(func() error { return a.management.Start(groupCtx) })
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})

	err := group.Wait()
	a.log.Info("mountsync stopping")
	return err
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.runtime != nil {
		errs = append(errs, a.runtime.Stop(ctx))
	}
	if a.refresher != nil {
		errs = append(errs, a.refresher.Stop(ctx))
	} else if a.clients != nil {
		a.clients.CleanUp()
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Close())
		a.lock = nil
	}
	if a.directory != nil {
		errs = append(errs, a.directory.Close())
		a.directory = nil
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
		a.tracer = nil
	}
	return errors.Join(errs...)
}
