package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nimburion/mountsync/pkg/observability/logger"
	"github.com/nimburion/mountsync/pkg/observability/metrics"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// GetRequestID extracts the request ID from a context, or "" when absent.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return requestID
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.written {
		r.status = status
		r.written = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// requestID preserves an incoming X-Request-ID or generates one.
func requestID() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// recovery turns handler panics into a 500 JSON response.
func recovery(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					id := GetRequestID(r.Context())
					log.Error("panic recovered",
						"request_id", id,
						"panic", p,
						"stack", string(debug.Stack()),
					)
					if !rec.written {
						writeJSON(rec, http.StatusInternalServerError, map[string]any{
							"error":      "internal_server_error",
							"message":    "an unexpected error occurred",
							"request_id": id,
						})
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// instrument logs each request and records management HTTP metrics labelled by
// route template.
func instrument(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.IncrementInFlight()
			defer metrics.DecrementInFlight()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := ""
			if current := mux.CurrentRoute(r); current != nil {
				route, _ = current.GetPathTemplate()
			}
			duration := time.Since(start)
			metrics.RecordHTTPMetrics(r.Method, route, rec.status, duration)

			fields := []any{
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", duration.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			switch {
			case rec.status >= http.StatusInternalServerError:
				log.Error("http request", fields...)
			case route == "/health" || route == "/metrics":
				log.Debug("http request", fields...)
			default:
				log.Info("http request", fields...)
			}
		})
	}
}
