package signals

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-dev/datastar/pkg/encrypt"
	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/session"
)

type fixture struct {
	store   *session.MemoryStore
	manager *session.Manager
	enc     *encrypt.Encrypter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	key, err := encrypt.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	enc, err := encrypt.NewFromString(key)
	if err != nil {
		t.Fatalf("NewFromString() error: %v", err)
	}
	return &fixture{
		store:   store,
		manager: session.NewManager(store, session.ManagerConfig{}, nil),
		enc:     enc,
	}
}

// open starts the session id, as the session middleware would.
func (f *fixture) open(t *testing.T, id string) *session.Session {
	t.Helper()
	sess := f.manager.Open(id)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return sess
}

func (f *fixture) save(t *testing.T, sess *session.Session) {
	t.Helper()
	if err := sess.Save(context.Background()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
}

func (f *fixture) newStore(r *http.Request, sess *session.Session) *Store {
	return NewStore(r, WithSession(sess), WithEncrypter(f.enc))
}

func datastarPost(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(body))
	r.Header.Set(protocol.RequestHeader, "true")
	r.Header.Set("Content-Type", "application/json")
	return r
}

func pageGet() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/page", nil)
}
