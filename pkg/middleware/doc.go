// Package middleware provides HTTP middleware for Datastar applications.
//
// # OpenTelemetry
//
// OpenTelemetry starts a server span for every request and stores it in the
// request context, so responders and database calls inherit the trace:
//
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	))
//
// The tracer comes from the global provider; configure it in main:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//
// # Prometheus
//
// Prometheus counts requests by method, status and kind (datastar or plain)
// and observes their duration:
//
//	r.Use(middleware.Prometheus(middleware.WithNamespace("myapp")))
//	r.Handle("/metrics", promhttp.Handler())
//
// Long-lived event streams are counted when they end. Both middlewares keep
// http.Flusher available to the handler.
package middleware
