package responder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vango-dev/datastar/pkg/encrypt"
	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/session"
	"github.com/vango-dev/datastar/pkg/signals"
)

type env struct {
	cfg     Config
	manager *session.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	key, err := encrypt.GenerateKey()
	require.NoError(t, err)
	enc, err := encrypt.NewFromString(key)
	require.NoError(t, err)

	return &env{
		cfg:     Config{Encrypter: enc, Locks: signals.NewLocks()},
		manager: session.NewManager(store, session.DefaultManagerConfig(), nil),
	}
}

func (e *env) session(t *testing.T, id string) *session.Session {
	t.Helper()
	sess := e.manager.Open(id)
	require.NoError(t, sess.Start(context.Background()))
	return sess
}

func (e *env) save(t *testing.T, sess *session.Session) {
	t.Helper()
	require.NoError(t, sess.Save(context.Background()))
}

// datastar builds a Datastar POST carrying body as its signals.
func datastar(body string, sess *session.Session) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(body))
	r.Host = "app.test"
	r.Header.Set(protocol.RequestHeader, "true")
	if sess != nil {
		r = r.WithContext(session.WithSession(r.Context(), sess))
	}
	return r
}

func plain(target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Host = "app.test"
	return r
}

func send(t *testing.T, res *Responder) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, res.Send(rec))
	return rec
}

// failingWriter accepts the first write and fails afterwards.
type failingWriter struct {
	header http.Header
	writes int
	body   strings.Builder
}

func (w *failingWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *failingWriter) WriteHeader(int) {}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("broken pipe")
	}
	return w.body.Write(p)
}

func (w *failingWriter) Flush() {}
