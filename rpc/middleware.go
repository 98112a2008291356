package rpc

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"leverlend/observability"
)

const requestIDHeader = "X-Request-Id"

// requestID tags every request with a correlation id, generating one when
// the client did not supply it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"request_id", w.Header().Get(requestIDHeader),
			"elapsed_ms", time.Since(started).Milliseconds(),
		)
	})
}

// instrument records per-module request metrics.
func instrument(module string) func(http.Handler) http.Handler {
	metrics := observability.ModuleMetrics()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			var callErr error
			if recorder.status >= http.StatusBadRequest {
				callErr = errStatus
			}
			metrics.Observe(module, routePattern(r), callErr, time.Since(started))
		})
	}
}

var errStatus = statusError{}

type statusError struct{}

func (statusError) Error() string { return "request failed" }

func routePattern(r *http.Request) string {
	ctx := chi.RouteContext(r.Context())
	if ctx == nil {
		return r.URL.Path
	}
	if pattern := ctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return r.URL.Path
}
