package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vango-dev/datastar/pkg/protocol"
)

// ManagerConfig configures cookies and lifetimes.
type ManagerConfig struct {
	// CookieName is the session cookie name. Default: "datastar_session".
	CookieName string

	// CookiePath is the cookie path. Default: "/".
	CookiePath string

	// CookieDomain is the cookie domain. Default: host-only.
	CookieDomain string

	// Secure sets the Secure cookie attribute.
	Secure bool

	// SameSite is the SameSite cookie mode. Default: Lax.
	SameSite http.SameSite

	// TTL is how long an idle session is kept. Default: 2 hours.
	TTL time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CookieName: "datastar_session",
		CookiePath: "/",
		SameSite:   http.SameSiteLaxMode,
		TTL:        2 * time.Hour,
	}
}

// Manager creates sessions and binds them to HTTP requests.
type Manager struct {
	store  SessionStore
	config ManagerConfig
	logger *slog.Logger
	newID  func() string
}

// NewManager creates a session manager. Zero config fields take defaults.
func NewManager(store SessionStore, config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if config.CookieName == "" {
		config.CookieName = def.CookieName
	}
	if config.CookiePath == "" {
		config.CookiePath = def.CookiePath
	}
	if config.SameSite == 0 {
		config.SameSite = def.SameSite
	}
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	return &Manager{
		store:  store,
		config: config,
		logger: logger.With("component", "session_manager"),
		newID:  uuid.NewString,
	}
}

// Store returns the backing store.
func (m *Manager) Store() SessionStore {
	return m.store
}

// Open returns an unstarted session for id. An empty or malformed id gets
// a fresh identifier so clients cannot choose their own.
func (m *Manager) Open(id string) *Session {
	if _, err := uuid.Parse(id); err != nil {
		id = m.newID()
	}
	return &Session{
		id:    id,
		store: m.store,
		ttl:   m.config.TTL,
		newID: m.newID,
		attrs: make(map[string]any),
	}
}

// Middleware starts the request's session, exposes it through the request
// context and saves it once the handler returns. The cookie carries the
// session's ID at the moment headers are committed, so a Regenerate before
// the first write reaches the client.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookieID string
		if c, err := r.Cookie(m.config.CookieName); err == nil {
			cookieID = c.Value
		}

		sess := m.Open(cookieID)
		if err := sess.Start(r.Context()); err != nil {
			m.logger.Error("session start failed", "session_id", sess.ID(), "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		cw := &cookieWriter{ResponseWriter: w, m: m, sess: sess, clientID: cookieID}
		next.ServeHTTP(cw, r.WithContext(WithSession(r.Context(), sess)))
		cw.commit()
		if id := sess.ID(); cw.sentID != id {
			m.logger.Warn("session id changed after headers were sent", "session_id", id)
		}

		if r.Method == http.MethodGet && !protocol.IsDatastarRequest(r) {
			sess.SetPreviousURL(requestURL(r))
		}

		// The client may be gone after a long stream; persistence must not
		// depend on the request context.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()
		if err := sess.Save(ctx); err != nil {
			m.logger.Error("session save failed", "session_id", sess.ID(), "error", err)
		}
	})
}

func (m *Manager) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     m.config.CookieName,
		Value:    id,
		Path:     m.config.CookiePath,
		Domain:   m.config.CookieDomain,
		MaxAge:   int(m.config.TTL / time.Second),
		HttpOnly: true,
		Secure:   m.config.Secure,
		SameSite: m.config.SameSite,
	}
}

// cookieWriter sets the session cookie when the handler commits headers.
type cookieWriter struct {
	http.ResponseWriter
	m        *Manager
	sess     *Session
	clientID string

	committed bool
	sentID    string
}

func (w *cookieWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	w.sentID = w.sess.ID()
	if w.sentID != w.clientID {
		http.SetCookie(w.ResponseWriter, w.m.cookie(w.sentID))
	}
}

func (w *cookieWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) Write(p []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(p)
}

func (w *cookieWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

type contextKey struct{}

// WithSession returns a context carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session bound by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}
