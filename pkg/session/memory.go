package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
// It is the default store and suits single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  bool
	done    chan struct{}
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
}

// WithCleanupInterval sets how often expired sessions are swept.
// Non-positive values keep the default of 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{cleanupInterval: time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &MemoryStore{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go m.sweepLoop(time.NewTicker(cfg.cleanupInterval))
	return m
}

// Save stores a copy of data.
func (m *MemoryStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}
	m.entries[sessionID] = memoryEntry{data: append([]byte(nil), data...), expiresAt: expiresAt}
	return nil
}

// Load returns a copy of the stored data, or nil when missing or expired.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed{}
	}
	e, ok := m.entries[sessionID]
	if !ok || m.now().After(e.expiresAt) {
		return nil, nil
	}
	return append([]byte(nil), e.data...), nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}
	delete(m.entries, sessionID)
	return nil
}

// Touch moves the expiry of an existing session.
func (m *MemoryStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}
	if e, ok := m.entries[sessionID]; ok {
		e.expiresAt = expiresAt
		m.entries[sessionID] = e
	}
	return nil
}

// Close stops the sweeper and drops all sessions.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.entries = nil
	return nil
}

// Count returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) sweepLoop(ticker *time.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryStore) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	now := m.now()
	for id, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, id)
		}
	}
}
