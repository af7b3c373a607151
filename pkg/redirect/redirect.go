// Package redirect performs a full browser navigation from inside an event
// stream while carrying flash data to the next page.
//
// The script that navigates runs after a short timer so the session write
// lands before the client drops the connection. Flash data is persisted by
// a forced save during Finalize; because that save already ages the data
// once, the keys are re-marked as new so the session middleware's own save
// at the end of the request leaves exactly one aging step before the next
// page reads them.
package redirect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-dev/datastar/internal/metrics"
	"github.com/vango-dev/datastar/pkg/session"
	"github.com/vango-dev/datastar/pkg/urlguard"
)

// DefaultDelay is how long the client waits before navigating.
const DefaultDelay = 100 * time.Millisecond

// Flash keys written by WithInput and WithErrors.
const (
	OldInputKey = "_old_input"
	ErrorsKey   = "errors"
)

var (
	// ErrNoTarget is returned when no destination was chosen.
	ErrNoTarget = errors.New("redirect: no target url")

	// ErrNoSession is returned when flash data is queued without a session.
	ErrNoSession = errors.New("redirect: flash data requires a session")

	// ErrNoEmitter is returned by Send when nothing can deliver the script.
	ErrNoEmitter = errors.New("redirect: no emitter")
)

// Emitter delivers the navigation script to the client.
type Emitter func(script string) error

// Builder accumulates a redirect. Methods chain; the last destination set
// wins, and its resolution error is returned by URL and Finalize.
type Builder struct {
	req    *http.Request
	sess   *session.Session
	guard  *urlguard.Guard
	emit   Emitter
	delay  time.Duration
	logger *slog.Logger

	target string
	err    error
	keys   []string
	flash  map[string]any
}

// Option configures a Builder.
type Option func(*Builder)

// WithDelay sets the client-side delay. Values below one millisecond fall
// back to DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(b *Builder) {
		if d >= time.Millisecond {
			b.delay = d
		}
	}
}

// WithEmitter sets the function Send delivers the script through.
func WithEmitter(e Emitter) Option {
	return func(b *Builder) { b.emit = e }
}

// WithSession sets the session flash data is written to. By default it is
// taken from the request context.
func WithSession(sess *session.Session) Option {
	return func(b *Builder) { b.sess = sess }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a redirect for r. guard resolves and validates targets.
func New(r *http.Request, guard *urlguard.Guard, opts ...Option) *Builder {
	b := &Builder{
		req:    r,
		guard:  guard,
		delay:  DefaultDelay,
		logger: slog.Default(),
		flash:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sess == nil && r != nil {
		b.sess = session.FromContext(r.Context())
	}
	if b.guard == nil {
		b.guard = urlguard.New(r)
	}
	return b
}

// To sets the destination.
func (b *Builder) To(target string) *Builder {
	return b.setTarget(b.guard.Build(target))
}

// Route sets the destination to a named route.
func (b *Builder) Route(name string, params map[string]string) *Builder {
	return b.setTarget(b.guard.BuildFromRoute(name, params))
}

// Refresh sets the destination to the current page.
func (b *Builder) Refresh() *Builder {
	return b.setTarget(b.guard.Build(nil))
}

// Back sets the destination to the previous page: the Referer header, or
// the last page recorded in the session, when it is same-origin and not
// the request itself. Otherwise fallback is used.
func (b *Builder) Back(fallback string) *Builder {
	current := b.guard.RequestURL()
	candidates := []string{b.req.Referer()}
	if b.sess != nil {
		candidates = append(candidates, b.sess.PreviousURL())
	}
	for _, c := range candidates {
		if c == "" || c == current {
			continue
		}
		if b.guard.Validate(c) == nil {
			b.target, b.err = c, nil
			return b
		}
	}
	return b.To(fallback)
}

// Intended sets the destination to the URL stashed with
// session.SetIntended, clearing it. A missing or foreign URL falls back to
// def.
func (b *Builder) Intended(def string) *Builder {
	if b.sess != nil {
		if v, ok := b.sess.Pull(session.IntendedURLKey); ok {
			if u, ok := v.(string); ok && u != "" && b.guard.Validate(u) == nil {
				b.target, b.err = u, nil
				return b
			}
		}
	}
	return b.To(def)
}

// With flashes key for the next request.
func (b *Builder) With(key string, value any) *Builder {
	if _, ok := b.flash[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.flash[key] = value
	return b
}

// WithInput flashes submitted input so the next page can refill a form.
func (b *Builder) WithInput(input map[string]any) *Builder {
	return b.With(OldInputKey, input)
}

// WithErrors flashes per-field error messages.
func (b *Builder) WithErrors(errs map[string][]string) *Builder {
	return b.With(ErrorsKey, errs)
}

// URL returns the chosen destination.
func (b *Builder) URL() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if b.target == "" {
		return "", ErrNoTarget
	}
	return b.target, nil
}

// Delay returns the client-side delay.
func (b *Builder) Delay() time.Duration {
	return b.delay
}

// Finalize persists queued flash data and returns the navigation script.
func (b *Builder) Finalize(ctx context.Context) (string, error) {
	target, err := b.URL()
	if err != nil {
		return "", err
	}
	if err := b.persistFlash(ctx); err != nil {
		return "", err
	}
	metrics.RecordRedirect()
	b.logger.Debug("redirect finalized", "url", target, "flash_keys", len(b.keys))
	return Script(target, b.delay), nil
}

// Send finalizes the redirect and emits its script.
func (b *Builder) Send(ctx context.Context) error {
	if b.emit == nil {
		return ErrNoEmitter
	}
	script, err := b.Finalize(ctx)
	if err != nil {
		return err
	}
	return b.emit(script)
}

// WriteHTTP answers a plain (non-Datastar) request with a 303 redirect.
// Flash data is handled exactly as in Finalize.
func (b *Builder) WriteHTTP(w http.ResponseWriter) error {
	target, err := b.URL()
	if err != nil {
		return err
	}
	if err := b.persistFlash(b.req.Context()); err != nil {
		return err
	}
	metrics.RecordRedirect()
	http.Redirect(w, b.req, target, http.StatusSeeOther)
	return nil
}

func (b *Builder) persistFlash(ctx context.Context) error {
	if len(b.keys) == 0 {
		return nil
	}
	if b.sess == nil {
		return ErrNoSession
	}
	if err := b.sess.Start(ctx); err != nil {
		return fmt.Errorf("redirect: %w", err)
	}
	for _, k := range b.keys {
		b.sess.Flash(k, b.flash[k])
	}
	// Everything flashed for the next request, including keys set or
	// reflashed earlier in this one.
	fresh, _ := b.sess.FlashKeys()
	if err := b.sess.Save(ctx); err != nil {
		return fmt.Errorf("redirect: persist flash: %w", err)
	}
	// The save above aged the keys; the end-of-request save will age them
	// again.
	b.sess.Keep(fresh...)
	return nil
}

func (b *Builder) setTarget(u string, err error) *Builder {
	b.target, b.err = u, err
	return b
}

// Script returns the client script navigating to u after delay.
func Script(u string, delay time.Duration) string {
	target, _ := json.Marshal(u)
	return fmt.Sprintf("setTimeout(() => window.location.href = %s, %d)", target, delay.Milliseconds())
}
