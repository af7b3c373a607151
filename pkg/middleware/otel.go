package middleware

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/session"
)

const defaultTracerName = "datastar"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "datastar").
	TracerName string

	// IncludeSessionID adds the session id to spans. Disabled by default;
	// the id is a bearer credential.
	IncludeSessionID bool

	// Filter determines which requests to trace. nil traces all.
	Filter func(r *http.Request) bool

	// AttributeExtractor adds custom attributes per request.
	AttributeExtractor func(r *http.Request) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeSessionID enables the session id attribute.
func WithIncludeSessionID(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeSessionID = include
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(r *http.Request) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(r *http.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{TracerName: defaultTracerName}
}

// OpenTelemetry creates middleware that traces every request.
//
// The span carries the method, path, status and whether the request came
// from the Datastar client. 5xx responses mark the span as failed. The
// span is stored in the request context; see SpanFromContext.
func OpenTelemetry(opts ...OTelOption) func(http.Handler) http.Handler {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.tracer = otel.Tracer(config.TracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Filter != nil && !config.Filter(r) {
				next.ServeHTTP(w, r)
				return
			}

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.Bool("datastar.request", protocol.IsDatastarRequest(r)),
			}
			if config.IncludeSessionID {
				if sess := session.FromContext(r.Context()); sess != nil {
					attrs = append(attrs, attribute.String("datastar.session_id", sess.ID()))
				}
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(r)...)
			}

			ctx, span := config.tracer.Start(r.Context(), spanName(r),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.Status()
			span.SetAttributes(
				attribute.Int("http.status_code", status),
				attribute.Int64("http.response_size", rec.written),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// SpanFromContext returns the request span, or nil outside a traced
// request.
func SpanFromContext(ctx context.Context) trace.Span {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() && !span.IsRecording() {
		return nil
	}
	return span
}

func spanName(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s %s", r.Method, path)
}
