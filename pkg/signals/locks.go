package signals

import "sync"

// Locks hands out one mutex per session ID. Entries are dropped once no
// request holds or waits for them.
type Locks struct {
	mu   sync.Mutex
	held map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{held: make(map[string]*sessionLock)}
}

// Lock blocks until the session's mutex is held and returns its release
// function. Calling the release function twice is harmless.
func (l *Locks) Lock(id string) func() {
	l.mu.Lock()
	e := l.held[id]
	if e == nil {
		e = &sessionLock{}
		l.held[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.held, id)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of sessions with a held or awaited lock.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
