package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/datastar/pkg/protocol"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "datastar").
	Namespace string

	// Subsystem is the metrics subsystem (default: "http").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// PathLabel maps a request to its path label. The default uses the raw
	// path; pass a route-pattern lookup to keep cardinality bounded.
	PathLabel func(*http.Request) string
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// WithPathLabel sets the function deriving the path label.
func WithPathLabel(fn func(*http.Request) string) MetricsOption {
	return func(c *MetricsConfig) {
		c.PathLabel = fn
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "datastar",
		Subsystem: "http",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
		PathLabel: func(r *http.Request) string { return r.URL.Path },
	}
}

// HTTPMetrics holds the request collectors of one Prometheus middleware.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func newHTTPMetrics(config MetricsConfig) *HTTPMetrics {
	factory := promauto.With(config.Registry)

	return &HTTPMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "path", "status", "kind"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method", "path", "kind"}),

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_in_flight",
			Help:        "Number of requests being served",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus creates middleware that records request metrics.
//
// Metrics collected:
//   - datastar_http_requests_total: Counter by method, path, status and kind
//   - datastar_http_request_duration_seconds: Histogram by method, path and kind
//   - datastar_http_requests_in_flight: Gauge of requests being served
//
// kind is "datastar" for requests sent by the client runtime and "plain"
// otherwise.
func Prometheus(opts ...MetricsOption) func(http.Handler) http.Handler {
	mw, _ := NewPrometheus(opts...)
	return mw
}

// NewPrometheus is Prometheus that also returns the collectors.
func NewPrometheus(opts ...MetricsOption) (func(http.Handler) http.Handler, *HTTPMetrics) {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	m := newHTTPMetrics(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			kind := "plain"
			if protocol.IsDatastarRequest(r) {
				kind = "datastar"
			}

			m.inflight.Inc()
			start := time.Now()
			rec := newStatusRecorder(w)

			defer func() {
				m.inflight.Dec()
				path := config.PathLabel(r)
				if path == "" {
					path = "/"
				}
				m.duration.WithLabelValues(r.Method, path, kind).Observe(time.Since(start).Seconds())
				m.requests.WithLabelValues(r.Method, path, strconv.Itoa(rec.Status()), kind).Inc()
			}()

			next.ServeHTTP(rec, r)
		})
	}, m
}
