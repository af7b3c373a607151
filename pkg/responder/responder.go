package responder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/datastar/internal/metrics"
	"github.com/vango-dev/datastar/pkg/encrypt"
	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/session"
	"github.com/vango-dev/datastar/pkg/signals"
	"github.com/vango-dev/datastar/pkg/urlguard"
)

var (
	// ErrNoFallback is returned by Send for a plain request without a
	// fallback handler.
	ErrNoFallback = errors.New("responder: no fallback for non-datastar request")

	// ErrAlreadySent is returned when events are added after Send.
	ErrAlreadySent = errors.New("responder: response already sent")

	// ErrAlreadyStreaming is returned by a second Stream call.
	ErrAlreadyStreaming = errors.New("responder: stream already registered")

	// ErrClientGone is reported by Err once a stream write failed or the
	// request was cancelled.
	ErrClientGone = errors.New("responder: client disconnected")

	// ErrStreamEnded is reported by Err after Redirect or Dump ended the
	// stream.
	ErrStreamEnded = errors.New("responder: stream ended")

	// ErrEmptyEventName is returned by Dispatch without an event name.
	ErrEmptyEventName = errors.New("responder: empty event name")
)

// ErrorRenderer renders an application error page for a failed stream.
type ErrorRenderer interface {
	RenderError(w io.Writer, r *http.Request, err error) error
}

// ErrorRendererFunc adapts a function to ErrorRenderer.
type ErrorRendererFunc func(w io.Writer, r *http.Request, err error) error

// RenderError calls f.
func (f ErrorRendererFunc) RenderError(w io.Writer, r *http.Request, err error) error {
	return f(w, r, err)
}

// Config holds the collaborators shared by every Responder of an
// application.
type Config struct {
	// Encrypter seals the locked-signal record.
	Encrypter *encrypt.Encrypter

	// Locks serialises locked-signal access per session.
	Locks *signals.Locks

	// Routes resolves route names for navigation and redirects.
	Routes urlguard.RouteResolver

	// BaseURL is the application origin relative targets resolve against.
	BaseURL string

	// AllowedHosts are extra same-origin hosts.
	AllowedHosts []string

	// RedirectDelay is the client-side delay before redirects and reloads.
	// Default: 100ms.
	RedirectDelay time.Duration

	// SignalsParam is the query parameter carrying GET signals.
	// Default: "datastar".
	SignalsParam string

	// MaxBodyBytes bounds the signals body. Default: 1 MiB.
	MaxBodyBytes int64

	// ErrorRenderer renders stream failures. When nil or failing a minimal
	// page is used.
	ErrorRenderer ErrorRenderer

	// Debug shows error details and stacks on error pages.
	Debug bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Tracer records stream events on the request span. Default: the
	// global provider's "datastar" tracer.
	Tracer trace.Tracer
}

type state uint8

const (
	stateIdle state = iota
	stateAccumulating
	stateStreaming
	stateFlushed
)

func (s state) String() string {
	switch s {
	case stateAccumulating:
		return "accumulating"
	case stateStreaming:
		return "streaming"
	case stateFlushed:
		return "flushed"
	default:
		return "idle"
	}
}

// Responder collects the events of one response.
type Responder struct {
	req      *http.Request
	cfg      Config
	logger   *slog.Logger
	reactive bool

	store *signals.Store
	guard *urlguard.Guard

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serialises operations touching the signal store and URL guard.
	opMu sync.Mutex

	mu       sync.Mutex
	state    state
	events   []protocol.Event
	writer   *protocol.Writer
	streamFn func(*Responder) error
	fallback http.Handler
	ended    error
	output   bytes.Buffer
}

// New creates the Responder of r.
func New(r *http.Request, cfg Config) *Responder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("datastar")
	}
	logger := cfg.Logger.With("component", "responder")

	ctx, cancel := context.WithCancel(r.Context())
	res := &Responder{
		req:      r,
		cfg:      cfg,
		logger:   logger,
		reactive: protocol.IsDatastarRequest(r),
		ctx:      ctx,
		cancel:   cancel,
	}
	res.store = signals.NewStore(r,
		signals.WithEncrypter(cfg.Encrypter),
		signals.WithLocks(cfg.Locks),
		signals.WithParam(cfg.SignalsParam),
		signals.WithMaxBodyBytes(cfg.MaxBodyBytes),
		signals.WithLogger(cfg.Logger),
	)
	res.guard = urlguard.New(r,
		urlguard.WithBaseURL(cfg.BaseURL),
		urlguard.WithRoutes(cfg.Routes),
		urlguard.WithAllowedHosts(cfg.AllowedHosts...),
		urlguard.WithLogger(cfg.Logger),
	)
	return res
}

// Request returns the request being answered.
func (r *Responder) Request() *http.Request { return r.req }

// IsReactive reports whether the request came from the Datastar client.
func (r *Responder) IsReactive() bool { return r.reactive }

// Store returns the request's signal store.
func (r *Responder) Store() *signals.Store { return r.store }

// Guard returns the response's URL guard.
func (r *Responder) Guard() *urlguard.Guard { return r.guard }

// Session returns the request's session, or nil.
func (r *Responder) Session() *session.Session { return r.store.Session() }

// Context is cancelled when the request ends, the client goes away or a
// stream is ended.
func (r *Responder) Context() context.Context { return r.ctx }

// Done is Context().Done().
func (r *Responder) Done() <-chan struct{} { return r.ctx.Done() }

// Err reports why the response stopped accepting events: ErrClientGone,
// ErrStreamEnded, or nil while it is live.
func (r *Responder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended == nil && r.state == stateStreaming && r.ctx.Err() != nil {
		return ErrClientGone
	}
	return r.ended
}

// Fallback sets the handler serving plain (non-Datastar) requests.
func (r *Responder) Fallback(h http.Handler) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// FallbackFunc is Fallback for a function.
func (r *Responder) FallbackFunc(fn http.HandlerFunc) {
	r.Fallback(fn)
}

// Output returns a writer whose text replaces the browser document when
// the response finishes successfully.
func (r *Responder) Output() io.Writer {
	return outputWriter{r}
}

type outputWriter struct{ r *Responder }

func (o outputWriter) Write(p []byte) (int, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	return o.r.output.Write(p)
}

// emit queues ev in accumulate mode and writes it in stream mode.
func (r *Responder) emit(ev protocol.Event) error {
	if !r.reactive {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateFlushed:
		return ErrAlreadySent
	case stateStreaming:
		return r.writeLocked(ev)
	default:
		if r.ended != nil {
			return nil
		}
		r.events = append(r.events, ev)
		r.state = stateAccumulating
		return nil
	}
}

// writeLocked writes ev to the live stream. A failed write ends the
// stream silently.
func (r *Responder) writeLocked(ev protocol.Event) error {
	if r.ended != nil {
		return nil
	}
	if r.ctx.Err() != nil {
		r.goneLocked(r.ctx.Err())
		return nil
	}
	if err := r.writer.Send(ev); err != nil {
		r.goneLocked(err)
		return nil
	}
	metrics.RecordEvent(string(ev.Type))
	return nil
}

func (r *Responder) goneLocked(cause error) {
	if r.ended != nil {
		return
	}
	r.ended = ErrClientGone
	r.cancel()
	metrics.RecordDisconnect()
	r.logger.Debug("client disconnected", "path", r.req.URL.Path, "error", cause)
}

// endLocked stops accepting events after a redirect, dump or error page.
func (r *Responder) endLocked() {
	if r.ended == nil {
		r.ended = ErrStreamEnded
		r.cancel()
	}
}

// Send writes the response. Plain requests are served by the fallback.
// The signal store's session lock is released before Send returns, and
// before the callback runs for a stream.
func (r *Responder) Send(w http.ResponseWriter) error {
	defer r.store.Release()
	defer r.cancel()

	if !r.reactive {
		r.mu.Lock()
		fb := r.fallback
		r.mu.Unlock()
		if fb == nil {
			return ErrNoFallback
		}
		metrics.RecordResponse("fallback")
		fb.ServeHTTP(w, r.req)
		return nil
	}

	r.mu.Lock()
	if r.state == stateFlushed || r.state == stateStreaming {
		r.mu.Unlock()
		return ErrAlreadySent
	}
	fn := r.streamFn
	r.writer = protocol.NewWriter(w)
	r.mu.Unlock()

	protocol.SetResponseHeaders(w.Header(), r.req)
	w.WriteHeader(http.StatusOK)

	if fn == nil {
		return r.flush()
	}
	return r.runStream(fn)
}

// flush writes the accumulated queue once.
func (r *Responder) flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics.RecordResponse("accumulate")
	events := r.events
	if r.output.Len() > 0 && r.ended == nil {
		events = append(events, replaceDocument(r.output.String()))
		r.output.Reset()
	}
	r.events = nil
	r.state = stateFlushed

	if len(events) == 0 {
		return nil
	}
	if err := r.writer.Send(events...); err != nil {
		r.goneLocked(err)
		return nil
	}
	for _, ev := range events {
		metrics.RecordEvent(string(ev.Type))
	}
	return nil
}
