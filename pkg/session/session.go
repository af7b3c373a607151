package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Reserved attribute keys.
const (
	PreviousURLKey = "_previous.url"
	IntendedURLKey = "url.intended"
)

// ErrNotStarted is returned by Save when the session was never started.
var ErrNotStarted = errors.New("session: not started")

// Session is the state of one browser session during one request.
// It is safe for concurrent use, though a request normally touches it from
// a single goroutine.
type Session struct {
	mu       sync.Mutex
	id       string
	store    SessionStore
	ttl      time.Duration
	newID    func() string
	attrs    map[string]any
	flashNew []string
	flashOld []string
	started  bool
	existed  bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// IsStarted reports whether Start has loaded the session.
func (s *Session) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Existed reports whether Start found stored data for this session.
func (s *Session) Existed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existed
}

// Start loads the session from the store. It is idempotent.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	data, err := s.store.Load(ctx, s.id)
	if err != nil {
		return fmt.Errorf("session: load %s: %w", s.id, err)
	}
	if data != nil {
		attrs, flashNew, flashOld, err := decode(data)
		if err != nil {
			return err
		}
		for k, v := range s.attrs {
			attrs[k] = v
		}
		s.attrs = attrs
		s.flashNew = mergeKeys(flashNew, s.flashNew)
		s.flashOld = mergeKeys(flashOld, s.flashOld)
		s.existed = true
	}
	s.started = true
	return nil
}

// Save ages flash data and writes the session to the store.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	s.ageFlashData()

	data, err := encode(s.attrs, s.flashNew, s.flashOld)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, s.id, data, time.Now().Add(s.ttl)); err != nil {
		return fmt.Errorf("session: save %s: %w", s.id, err)
	}
	s.existed = true
	return nil
}

// ageFlashData drops keys that were already old and turns new keys old.
func (s *Session) ageFlashData() {
	for _, k := range s.flashOld {
		delete(s.attrs, k)
	}
	s.flashOld = s.flashNew
	s.flashNew = nil
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// String returns the value under key when it is a string, else "".
func (s *Session) String(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Has reports whether key is set.
func (s *Session) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// All returns a copy of every attribute.
func (s *Session) All() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// Put stores value under key.
func (s *Session) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Forget removes keys.
func (s *Session) Forget(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.attrs, k)
	}
}

// Pull returns the value under key and removes it.
func (s *Session) Pull(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	delete(s.attrs, key)
	return v, ok
}

// Flash stores value for the next request.
func (s *Session) Flash(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
	s.flashNew = mergeKeys(s.flashNew, []string{key})
	s.flashOld = removeKeys(s.flashOld, key)
}

// Now stores value for the current request only.
func (s *Session) Now(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
	s.flashOld = mergeKeys(s.flashOld, []string{key})
}

// Keep marks keys as newly flashed again so they survive the next Save.
func (s *Session) Keep(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashNew = mergeKeys(s.flashNew, keys)
	s.flashOld = removeKeys(s.flashOld, keys...)
}

// Reflash keeps every flash value for another request.
func (s *Session) Reflash() {
	s.mu.Lock()
	old := slices.Clone(s.flashOld)
	s.mu.Unlock()
	s.Keep(old...)
}

// FlashKeys returns the keys flashed in this request and the keys readable
// as flash data from the previous one.
func (s *Session) FlashKeys() (fresh, old []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.flashNew), slices.Clone(s.flashOld)
}

// Regenerate moves the session to a new ID. With destroy set the old entry
// is deleted from the store.
func (s *Session) Regenerate(ctx context.Context, destroy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.id
	s.id = s.newID()
	if destroy {
		if err := s.store.Delete(ctx, old); err != nil {
			return fmt.Errorf("session: delete %s: %w", old, err)
		}
	}
	return nil
}

// Invalidate clears all data and regenerates the ID.
func (s *Session) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.attrs = make(map[string]any)
	s.flashNew, s.flashOld = nil, nil
	s.mu.Unlock()
	return s.Regenerate(ctx, true)
}

// PreviousURL returns the last full page URL recorded for this session.
func (s *Session) PreviousURL() string {
	return s.String(PreviousURLKey)
}

// SetPreviousURL records the current full page URL.
func (s *Session) SetPreviousURL(u string) {
	s.Put(PreviousURLKey, u)
}

// SetIntended stashes the URL a visitor wanted before being sent elsewhere
// (for example to a login page).
func (s *Session) SetIntended(u string) {
	s.Put(IntendedURLKey, u)
}

func mergeKeys(dst, keys []string) []string {
	for _, k := range keys {
		if !slices.Contains(dst, k) {
			dst = append(dst, k)
		}
	}
	return dst
}

func removeKeys(src []string, keys ...string) []string {
	return slices.DeleteFunc(src, func(k string) bool {
		return slices.Contains(keys, k)
	})
}
