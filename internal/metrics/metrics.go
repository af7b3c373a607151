// Package metrics holds the process-wide Prometheus collectors recorded by
// the protocol core. Recording is a no-op until Init has run.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "datastar").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are added to every collector.
	ConstLabels prometheus.Labels

	// Buckets are the stream duration histogram buckets.
	Buckets []float64

	// Registry receives the collectors. Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Option configures Init.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) { c.Subsystem = subsystem }
}

// WithConstLabels sets constant labels.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithRegistry sets the registry.
func WithRegistry(r prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = r }
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "datastar",
		Buckets:   []float64{.05, .25, 1, 5, 30, 120, 600},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is the set of core collectors.
type Metrics struct {
	tamper        *prometheus.CounterVec
	events        *prometheus.CounterVec
	responses     *prometheus.CounterVec
	activeStreams prometheus.Gauge
	streamSeconds prometheus.Histogram
	disconnects   prometheus.Counter
	navRejected   prometheus.Counter
	validation    prometheus.Counter
	redirects     prometheus.Counter
}

var global atomic.Pointer[Metrics]

// New registers a fresh set of collectors with the configured registry.
func New(opts ...Option) *Metrics {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		tamper:    counterVec("signal_tamper_total", "Locked signal violations by kind", "kind"),
		events:    counterVec("events_sent_total", "Events written to clients by type", "type"),
		responses: counterVec("responses_total", "Responses by delivery mode", "mode"),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_streams",
			Help:        "Number of open long-lived event streams",
			ConstLabels: config.ConstLabels,
		}),
		streamSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "stream_duration_seconds",
			Help:        "Lifetime of event streams in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		disconnects: counter("client_disconnects_total", "Streams ended by a failed write or cancelled request"),
		navRejected: counter("navigation_rejected_total", "Navigation targets rejected by the URL guard"),
		validation:  counter("validation_failures_total", "Signal validation failures"),
		redirects:   counter("redirects_total", "Redirect scripts emitted"),
	}
}

// Init creates the global collectors once. Later calls return the existing
// set and ignore their options.
func Init(opts ...Option) *Metrics {
	if m := global.Load(); m != nil {
		return m
	}
	m := New(opts...)
	if !global.CompareAndSwap(nil, m) {
		return global.Load()
	}
	return m
}

// Set replaces the global collectors. Tests use it with a private registry.
func Set(m *Metrics) {
	global.Store(m)
}

// Default returns the global collectors, or nil before Init.
func Default() *Metrics {
	return global.Load()
}

// RecordTamper counts a locked signal violation. kind is "tampered" or
// "unexpected".
func RecordTamper(kind string) {
	if m := global.Load(); m != nil {
		m.tamper.WithLabelValues(kind).Inc()
	}
}

// RecordEvent counts one event written to a client.
func RecordEvent(eventType string) {
	if m := global.Load(); m != nil {
		m.events.WithLabelValues(eventType).Inc()
	}
}

// RecordResponse counts a response by mode: "accumulate", "stream" or
// "fallback".
func RecordResponse(mode string) {
	if m := global.Load(); m != nil {
		m.responses.WithLabelValues(mode).Inc()
	}
}

// StreamStarted marks a stream as open and returns the function that
// closes it.
func StreamStarted() func() {
	m := global.Load()
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.activeStreams.Inc()
	return func() {
		m.activeStreams.Dec()
		m.streamSeconds.Observe(time.Since(start).Seconds())
	}
}

// RecordDisconnect counts a client that went away mid-response.
func RecordDisconnect() {
	if m := global.Load(); m != nil {
		m.disconnects.Inc()
	}
}

// RecordNavigationRejected counts a rejected navigation target.
func RecordNavigationRejected() {
	if m := global.Load(); m != nil {
		m.navRejected.Inc()
	}
}

// RecordValidationFailure counts a failed Validate call.
func RecordValidationFailure() {
	if m := global.Load(); m != nil {
		m.validation.Inc()
	}
}

// RecordRedirect counts an emitted redirect.
func RecordRedirect() {
	if m := global.Load(); m != nil {
		m.redirects.Inc()
	}
}
