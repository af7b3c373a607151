package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore persists sessions in an embedded Badger database. Expiry uses
// Badger entry TTLs, so expired sessions vanish on read and during value
// log compaction.
type BadgerStore struct {
	db     *badger.DB
	prefix []byte
	closed atomic.Bool
}

// NewBadgerStore creates a store on an open database. The database is
// shared and not closed by Close.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, prefix: []byte("session:")}
}

func (b *BadgerStore) key(sessionID string) []byte {
	return append(append([]byte(nil), b.prefix...), sessionID...)
}

// Save writes the session with a TTL derived from expiresAt.
func (b *BadgerStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if b.closed.Load() {
		return ErrStoreClosed{}
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return b.Delete(ctx, sessionID)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(b.key(sessionID), data).WithTTL(ttl))
	})
}

// Load returns the stored data, or nil when missing or expired.
func (b *BadgerStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrStoreClosed{}
	}
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(sessionID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the session.
func (b *BadgerStore) Delete(ctx context.Context, sessionID string) error {
	if b.closed.Load() {
		return ErrStoreClosed{}
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(sessionID))
	})
}

// Touch rewrites the session with a new TTL. Badger has no TTL-only update.
func (b *BadgerStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if b.closed.Load() {
		return ErrStoreClosed{}
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return b.Delete(ctx, sessionID)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(b.key(sessionID), data).WithTTL(ttl))
	})
}

// Close marks the store as closed.
func (b *BadgerStore) Close() error {
	b.closed.Store(true)
	return nil
}
