package signals

import (
	"log/slog"
	"net/http"

	"github.com/vango-dev/datastar/pkg/encrypt"
	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/session"
)

// RecordKey is the session key holding the encrypted locked-signal record.
const RecordKey = "datastar_locked_signals"

// DefaultMaxBodyBytes bounds the JSON body read from a request.
const DefaultMaxBodyBytes int64 = 1 << 20

// Interaction says whether this request starts or continues a reactive
// session. It decides whether storing locked signals replaces or merges the
// stored record.
type Interaction uint8

const (
	// InteractionFresh is a page load, or the first request of a session
	// that has no locked record yet. The record is replaced.
	InteractionFresh Interaction = iota

	// InteractionContinuing is a Datastar request against an existing
	// record. New locked signals are merged in.
	InteractionContinuing
)

func (i Interaction) String() string {
	if i == InteractionContinuing {
		return "continuing"
	}
	return "fresh"
}

// Store reads and protects the signals of one request. It is request
// scoped and not safe for concurrent use.
type Store struct {
	req     *http.Request
	sess    *session.Session
	enc     *encrypt.Encrypter
	locks   *Locks
	param   string
	maxBody int64
	logger  *slog.Logger

	interaction Interaction
	replaced    bool

	read    bool
	values  map[string]any
	readErr error

	unlock func()
	scoped bool
}

// Option configures a Store.
type Option func(*Store)

// WithEncrypter sets the encrypter for the locked record.
func WithEncrypter(e *encrypt.Encrypter) Option {
	return func(s *Store) { s.enc = e }
}

// WithSession sets the session explicitly instead of reading it from the
// request context.
func WithSession(sess *session.Session) Option {
	return func(s *Store) { s.sess = sess }
}

// WithLocks serialises locked-signal access per session.
func WithLocks(l *Locks) Option {
	return func(s *Store) { s.locks = l }
}

// WithParam sets the query parameter carrying GET signals.
func WithParam(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.param = name
		}
	}
}

// WithMaxBodyBytes bounds the request body that is parsed.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates the signal store of r. The interaction kind is decided
// here, once, from the session and the request headers.
func NewStore(r *http.Request, opts ...Option) *Store {
	s := &Store{
		req:     r,
		param:   protocol.SignalsParam,
		maxBody: DefaultMaxBodyBytes,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sess == nil && r != nil {
		s.sess = session.FromContext(r.Context())
	}
	s.logger = s.logger.With("component", "signals")
	s.interaction = s.detectInteraction()
	return s
}

func (s *Store) detectInteraction() Interaction {
	if s.sess == nil || !s.sess.Has(RecordKey) || !protocol.IsDatastarRequest(s.req) {
		return InteractionFresh
	}
	return InteractionContinuing
}

// Interaction returns the interaction kind computed at construction.
func (s *Store) Interaction() Interaction {
	return s.interaction
}

// Session returns the session the store persists into, or nil.
func (s *Store) Session() *session.Session {
	return s.sess
}

// All returns every submitted signal. The payload is parsed once; missing
// or malformed JSON yields an empty map. The first call also verifies
// locked signals and a failure is returned on every later call.
func (s *Store) All() (map[string]any, error) {
	if !s.read {
		s.read = true
		values := s.parse()
		if err := s.verify(values); err != nil {
			s.readErr = err
		} else {
			s.values = values
		}
	}
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.values, nil
}

// Verify reads the payload and reports a locked-signal violation.
func (s *Store) Verify() error {
	_, err := s.All()
	return err
}

// Get returns the signal at a dot-separated path, or def when it is
// missing or the read failed. Use Verify to observe read failures.
func (s *Store) Get(path string, def any) any {
	values, err := s.All()
	if err != nil {
		return def
	}
	if v, ok := lookup(values, path); ok {
		return v
	}
	return def
}

// Has reports whether a signal exists at path.
func (s *Store) Has(path string) bool {
	values, err := s.All()
	if err != nil {
		return false
	}
	_, ok := lookup(values, path)
	return ok
}

// String returns the signal at path as a string.
func (s *Store) String(path, def string) string {
	if v, ok := s.Get(path, nil).(string); ok {
		return v
	}
	return def
}

// Int returns the signal at path as an int.
func (s *Store) Int(path string, def int) int {
	if n, ok := toFloat(s.Get(path, nil)); ok {
		return int(n)
	}
	return def
}

// Float returns the signal at path as a float64.
func (s *Store) Float(path string, def float64) float64 {
	if n, ok := toFloat(s.Get(path, nil)); ok {
		return n
	}
	return def
}

// Bool returns the signal at path as a bool.
func (s *Store) Bool(path string, def bool) bool {
	if v, ok := s.Get(path, nil).(bool); ok {
		return v
	}
	return def
}

// Only returns the named signals that are present.
func (s *Store) Only(paths ...string) map[string]any {
	out := make(map[string]any, len(paths))
	values, err := s.All()
	if err != nil {
		return out
	}
	for _, p := range paths {
		if v, ok := lookup(values, p); ok {
			out[p] = v
		}
	}
	return out
}

// Except returns every top-level signal not named.
func (s *Store) Except(names ...string) map[string]any {
	out := make(map[string]any)
	values, err := s.All()
	if err != nil {
		return out
	}
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	for k, v := range values {
		if _, ok := skip[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Release frees the per-session lock taken by locked-signal operations.
// It is safe to call more than once.
func (s *Store) Release() {
	if s.unlock != nil {
		s.unlock()
		s.unlock = nil
	}
}

// Unpin releases the session lock and switches the Store to per-operation
// locking: each later locked read or write takes the lock and drops it
// when done. Long-lived responses call it so other requests of the
// session are not held up.
func (s *Store) Unpin() {
	s.scoped = true
	s.Release()
}

// acquire takes the session lock if it is not held yet. The returned
// function ends the operation; it releases the lock only in scoped mode.
func (s *Store) acquire() func() {
	if s.locks == nil || s.sess == nil || s.unlock != nil {
		return func() {}
	}
	s.unlock = s.locks.Lock(s.sess.ID())
	if s.scoped {
		return s.Release
	}
	return func() {}
}
