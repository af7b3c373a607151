// Package app assembles the HTTP server from configuration: session
// backend, signal encryption, metrics, tracing and the demo routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vango-dev/datastar/internal/config"
	"github.com/vango-dev/datastar/internal/demo"
	"github.com/vango-dev/datastar/internal/metrics"
	"github.com/vango-dev/datastar/pkg/encrypt"
	"github.com/vango-dev/datastar/pkg/middleware"
	"github.com/vango-dev/datastar/pkg/responder"
	"github.com/vango-dev/datastar/pkg/routes"
	"github.com/vango-dev/datastar/pkg/session"
	"github.com/vango-dev/datastar/pkg/signals"
)

// App is an assembled server.
type App struct {
	Config   *config.Config
	Handler  http.Handler
	Routes   *routes.Registry
	Sessions *session.Manager
	Registry *prometheus.Registry

	logger  *slog.Logger
	closers []func(context.Context) error
}

// Option configures New.
type Option func(*options)

type options struct {
	demo     demo.Options
	tracer   *sdktrace.TracerProvider
	registry *prometheus.Registry
}

// WithDemoOptions configures the demo routes.
func WithDemoOptions(o demo.Options) Option {
	return func(opts *options) { opts.demo = o }
}

// WithTracerProvider installs tp instead of an exporter-less provider when
// tracing is enabled. The App shuts it down on Close.
func WithTracerProvider(tp *sdktrace.TracerProvider) Option {
	return func(opts *options) { opts.tracer = tp }
}

// WithRegistry collects metrics into reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(opts *options) { opts.registry = reg }
}

// New builds the server described by cfg. Close releases the session
// backend and tracer provider.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logger.With("component", "app")}

	enc, err := encrypter(cfg.Signals.EncryptionKey, a.logger)
	if err != nil {
		return nil, err
	}

	store, err := a.openStore(ctx, cfg.Session)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Sessions = session.NewManager(store, session.ManagerConfig{
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Session.Secure,
		TTL:        cfg.Session.TTL,
	}, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)

	if cfg.Tracing.Enabled {
		tp := o.tracer
		if tp == nil {
			tp = sdktrace.NewTracerProvider()
		}
		otel.SetTracerProvider(tp)
		a.closers = append(a.closers, tp.Shutdown)
		r.Use(middleware.OpenTelemetry(middleware.WithTracerName(cfg.Tracing.TracerName)))
	}

	if cfg.Metrics.Enabled {
		reg := o.registry
		if reg == nil {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}
		a.Registry = reg
		metrics.Set(metrics.New(metrics.WithNamespace(cfg.Metrics.Namespace), metrics.WithRegistry(reg)))
		r.Use(middleware.Prometheus(
			middleware.WithRegistry(reg),
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithPathLabel(routePattern),
		))
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	app := r.With(a.Sessions.Middleware)
	a.Routes = routes.New(app)
	demo.New(a.Routes, responder.Config{
		Encrypter:     enc,
		Locks:         signals.NewLocks(),
		BaseURL:       cfg.Server.BaseURL,
		AllowedHosts:  cfg.Server.AllowedHosts,
		RedirectDelay: cfg.Redirect.Delay,
		SignalsParam:  cfg.Signals.Param,
		MaxBodyBytes:  cfg.Signals.MaxBodyBytes,
		Debug:         cfg.Server.Debug,
		Logger:        logger,
	}, o.demo).Register()

	a.Handler = r
	a.logger.Info("app ready", "session_driver", cfg.Session.Driver,
		"metrics", cfg.Metrics.Enabled, "tracing", cfg.Tracing.Enabled)
	return a, nil
}

// Close releases the resources opened by New, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func encrypter(key string, logger *slog.Logger) (*encrypt.Encrypter, error) {
	if key == "" {
		logger.Warn("no signals.encryption_key configured; locked signals will not survive a restart")
		generated, err := encrypt.GenerateKey()
		if err != nil {
			return nil, err
		}
		key = generated
	}
	return encrypt.NewFromString(key)
}

func (a *App) openStore(ctx context.Context, cfg config.SessionConfig) (session.SessionStore, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("app: connect redis %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		store := session.NewRedisStore(client, session.WithRedisPrefix(cfg.RedisPrefix))
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: connect postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		store := session.NewPostgresStore(pool, session.WithPostgresLogger(a.logger))
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil

	case config.DriverBadger:
		opts := badger.DefaultOptions(cfg.BadgerPath).WithLogger(nil)
		if cfg.BadgerPath == "" {
			opts = opts.WithInMemory(true)
		}
		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("app: open badger: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		store := session.NewBadgerStore(db)
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil

	default:
		store := session.NewMemoryStore()
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	}
}

// routePattern labels metrics by chi route pattern to bound cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
