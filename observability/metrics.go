package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC
// module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leverlend",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leverlend",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total RPC errors segmented by module and method.",
			}, []string{"module", "method"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "leverlend",
				Subsystem: "module",
				Name:      "latency_seconds",
				Help:      "RPC handler latency segmented by module and method.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records a completed RPC call.
func (m *moduleMetrics) Observe(module, method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	module = normalizeLabel(module)
	method = normalizeLabel(method)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(module, method).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(elapsed.Seconds())
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
