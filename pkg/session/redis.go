package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed session store for multi-instance
// deployments. Expiry is delegated to Redis key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	closed atomic.Bool
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*RedisStore)

// WithRedisPrefix sets the key prefix for session keys.
// Default: "datastar:session:".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// NewRedisStore creates a session store on top of an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	r := &RedisStore{client: client, prefix: "datastar:session:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

// Save stores session data; an already expired entry is deleted instead.
func (r *RedisStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if r.closed.Load() {
		return ErrStoreClosed{}
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return r.Delete(ctx, sessionID)
	}
	return r.client.Set(ctx, r.key(sessionID), data, ttl).Err()
}

// Load retrieves session data, or nil when the key does not exist.
func (r *RedisStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed{}
	}
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes a session key.
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if r.closed.Load() {
		return ErrStoreClosed{}
	}
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

// Touch resets the key TTL.
func (r *RedisStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if r.closed.Load() {
		return ErrStoreClosed{}
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return r.Delete(ctx, sessionID)
	}
	return r.client.Expire(ctx, r.key(sessionID), ttl).Err()
}

// Close marks the store as closed. The client is shared and left open.
func (r *RedisStore) Close() error {
	r.closed.Store(true)
	return nil
}

// Prefix returns the key prefix.
func (r *RedisStore) Prefix() string {
	return r.prefix
}
