package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nimburion/mountsync/pkg/config"
	"github.com/nimburion/mountsync/pkg/health"
	"github.com/nimburion/mountsync/pkg/observability/logger"
	"github.com/nimburion/mountsync/pkg/observability/metrics"
	"github.com/nimburion/mountsync/pkg/refresher"
	"github.com/nimburion/mountsync/pkg/version"
)

const defaultIdleTimeout = 60 * time.Second

// RefreshController runs refresh cycles on demand and reports the last one.
type RefreshController interface {
	Refresh(ctx context.Context) (refresher.Result, error)
	LastResult() (refresher.Result, bool)
}

// CacheInspector exposes the admin client cache contents.
type CacheInspector interface {
	Keys() []string
	Len() int
	MaxLifetime() time.Duration
}

// ManagementOption wires optional endpoints into the management server.
type ManagementOption func(*ManagementServer)

// WithRefreshController enables POST /refresh and GET /refresh/last.
func WithRefreshController(controller RefreshController) ManagementOption {
	return func(s *ManagementServer) { s.refresh = controller }
}

// WithCacheInspector enables GET /cache.
func WithCacheInspector(inspector CacheInspector) ManagementOption {
	return func(s *ManagementServer) { s.cache = inspector }
}

// WithVersion enables GET /version.
func WithVersion(info version.Info) ManagementOption {
	return func(s *ManagementServer) { s.version = &info }
}

// ManagementServer serves health, readiness, metrics, and operator endpoints.
type ManagementServer struct {
	*Server
	router          *mux.Router
	log             logger.Logger
	healthRegistry  *health.Registry
	metricsRegistry *metrics.Registry
	refresh         RefreshController
	cache           CacheInspector
	version         *version.Info
}

// NewManagementServer creates the management server and registers its routes:
//
//	GET  /health        liveness, always 200
//	GET  /ready         readiness from the health registry, 503 when unhealthy
//	GET  /metrics       Prometheus exposition
//	POST /refresh       run one refresh cycle now
//	GET  /refresh/last  result of the most recent cycle
//	GET  /cache         cached admin client addresses
//	GET  /version       build metadata
func NewManagementServer(
	cfg config.ManagementConfig,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *metrics.Registry,
	opts ...ManagementOption,
) (*ManagementServer, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if healthRegistry == nil {
		return nil, errors.New("health registry is required")
	}
	if metricsRegistry == nil {
		return nil, errors.New("metrics registry is required")
	}

	r := mux.NewRouter()
	s := &ManagementServer{
		router:          r,
		log:             log,
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(requestID(), instrument(log), recovery(log))
	s.registerEndpoints()

	s.Server = NewServer(Config{
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     defaultIdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, r, log)

	return s, nil
}

func (s *ManagementServer) registerEndpoints() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metricsRegistry.Handler()).Methods(http.MethodGet)

	if s.refresh != nil {
		s.router.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
		s.router.HandleFunc("/refresh/last", s.handleLastRefresh).Methods(http.MethodGet)
	}
	if s.cache != nil {
		s.router.HandleFunc("/cache", s.handleCache).Methods(http.MethodGet)
	}
	if s.version != nil {
		s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler, mainly for tests.
func (s *ManagementServer) Handler() http.Handler {
	return s.router
}

func (s *ManagementServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": health.StatusHealthy})
}

func (s *ManagementServer) handleReady(w http.ResponseWriter, r *http.Request) {
	result := s.healthRegistry.Check(r.Context())
	if result.Status == health.StatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *ManagementServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.refresh.Refresh(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, refresher.ErrCycleInProgress):
			status = http.StatusConflict
		case errors.Is(err, refresher.ErrClosed):
			status = http.StatusServiceUnavailable
		case errors.Is(err, refresher.ErrDirectory):
			status = http.StatusBadGateway
		}
		s.log.Warn("manual refresh rejected", "request_id", GetRequestID(r.Context()), "error", err)
		writeJSON(w, status, map[string]any{
			"error":      err.Error(),
			"request_id": GetRequestID(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *ManagementServer) handleLastRefresh(w http.ResponseWriter, _ *http.Request) {
	result, ok := s.refresh.LastResult()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no refresh cycle has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *ManagementServer) handleCache(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":      s.cache.Len(),
		"addresses":    s.cache.Keys(),
		"max_lifetime": s.cache.MaxLifetime().String(),
	})
}

func (s *ManagementServer) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.version)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
