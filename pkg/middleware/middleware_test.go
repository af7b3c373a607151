package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vango-dev/datastar/pkg/protocol"
)

func TestStatusRecorder_DefaultsAndFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := newStatusRecorder(rec)
	if sr.Status() != http.StatusOK {
		t.Fatalf("Status()=%d before write, want 200", sr.Status())
	}

	sr.WriteHeader(http.StatusTeapot)
	sr.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(sr, "hello")
	sr.Flush()

	if sr.Status() != http.StatusTeapot {
		t.Fatalf("Status()=%d, want first written status 418", sr.Status())
	}
	if sr.written != 5 {
		t.Fatalf("written=%d, want 5", sr.written)
	}
	if !rec.Flushed {
		t.Fatal("expected Flush to reach the underlying writer")
	}
	if sr.Unwrap() != rec {
		t.Fatal("Unwrap should return the wrapped writer")
	}
}

func TestPrometheusMiddleware_RecordsByKindAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw, m := NewPrometheus(WithRegistry(reg))

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if _, ok := w.(http.Flusher); !ok {
			t.Error("handler lost http.Flusher")
		}
		_, _ = io.WriteString(w, "ok")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page", nil))

	req := httptest.NewRequest(http.MethodPost, "/page", nil)
	req.Header.Set(protocol.RequestHeader, "true")
	h.ServeHTTP(httptest.NewRecorder(), req)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/page", "200", "plain")); got != 1 {
		t.Fatalf("requests_total(plain)=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("POST", "/page", "200", "datastar")); got != 1 {
		t.Fatalf("requests_total(datastar)=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/missing", "404", "plain")); got != 1 {
		t.Fatalf("requests_total(404)=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("requests_in_flight=%v after requests, want 0", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 3 {
		t.Fatalf("duration series=%d, want 3", n)
	}
}

func TestPrometheusMiddleware_OptionsApplied(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw, _ := NewPrometheus(
		WithRegistry(reg),
		WithNamespace("app"),
		WithSubsystem("web"),
		WithConstLabels(prometheus.Labels{"env": "test"}),
		WithBuckets([]float64{0.1, 1}),
		WithPathLabel(func(*http.Request) string { return "/users/{id}" }),
	)
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/7", nil))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "app_web_requests_total" {
			continue
		}
		found = true
		labels := map[string]string{}
		for _, lp := range f.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["env"] != "test" || labels["path"] != "/users/{id}" {
			t.Fatalf("unexpected labels %v", labels)
		}
	}
	if !found {
		t.Fatal("app_web_requests_total not registered")
	}
}

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOpenTelemetryMiddleware_RecordsSpan(t *testing.T) {
	sr := withSpanRecorder(t)

	mw := OpenTelemetry(
		WithTracerName("test"),
		WithAttributeExtractor(func(*http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SpanFromContext(r.Context()) == nil {
			t.Error("expected a span in the handler context")
		}
		_, _ = io.WriteString(w, "ok")
	}))

	req := httptest.NewRequest(http.MethodPost, "/save", nil)
	req.Header.Set(protocol.RequestHeader, "true")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans=%d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "POST /save" {
		t.Fatalf("span name=%q", span.Name())
	}
	if v, ok := attrValue(span.Attributes(), "datastar.request"); !ok || !v.AsBool() {
		t.Fatal("expected datastar.request=true")
	}
	if v, ok := attrValue(span.Attributes(), "http.status_code"); !ok || v.AsInt64() != 200 {
		t.Fatalf("http.status_code=%v", v.Emit())
	}
	if v, ok := attrValue(span.Attributes(), "test.attr"); !ok || v.AsString() != "ok" {
		t.Fatal("expected custom attribute")
	}
	if span.Status().Code != codes.Ok {
		t.Fatalf("status=%v, want Ok", span.Status().Code)
	}
}

func TestOpenTelemetryMiddleware_ServerErrorAndFilter(t *testing.T) {
	sr := withSpanRecorder(t)

	mw := OpenTelemetry(WithRequestFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz"
	}))
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans=%d, want 1 (healthz filtered)", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("status=%v, want Error", spans[0].Status().Code)
	}
}

func TestSpanFromContext_NoSpan(t *testing.T) {
	if SpanFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != nil {
		t.Fatal("expected nil span outside a traced request")
	}
}
