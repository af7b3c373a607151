package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxQuerier is the subset of *pgxpool.Pool and *pgx.Conn used by
// PostgresStore.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL-backed session store.
// It expects a table with schema (see EnsureSchema):
//
//	CREATE TABLE datastar_sessions (
//	    id         TEXT PRIMARY KEY,
//	    data       BYTEA NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresStore struct {
	db        PgxQuerier
	table     string
	interval  time.Duration
	logger    *slog.Logger
	mu        sync.Mutex
	closed    bool
	done      chan struct{}
}

// PostgresStoreOption configures PostgresStore behavior.
type PostgresStoreOption func(*PostgresStore)

// WithTableName sets the session table. Default: "datastar_sessions".
func WithTableName(name string) PostgresStoreOption {
	return func(s *PostgresStore) {
		s.table = name
	}
}

// WithSweepInterval sets how often expired rows are deleted.
// Zero disables the sweeper. Default: 5 minutes.
func WithSweepInterval(d time.Duration) PostgresStoreOption {
	return func(s *PostgresStore) {
		s.interval = d
	}
}

// WithPostgresLogger sets the logger used by the sweeper.
func WithPostgresLogger(logger *slog.Logger) PostgresStoreOption {
	return func(s *PostgresStore) {
		s.logger = logger
	}
}

// NewPostgresStore creates a store on top of a pgx pool or connection.
func NewPostgresStore(db PgxQuerier, opts ...PostgresStoreOption) *PostgresStore {
	s := &PostgresStore{
		db:       db,
		table:    "datastar_sessions",
		interval: 5 * time.Minute,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session_postgres")
	if s.interval > 0 {
		go s.sweepLoop()
	}
	return s
}

// EnsureSchema creates the session table and its expiry index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_expires_idx ON %s (expires_at)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("session: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Save upserts the session row.
func (s *PostgresStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.isClosed() {
		return ErrStoreClosed{}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, data, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, s.table)
	_, err := s.db.Exec(ctx, query, sessionID, data, expiresAt)
	return err
}

// Load returns the row data when it exists and has not expired.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed{}
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1 AND expires_at > NOW()`, s.table)

	var data []byte
	if err := s.db.QueryRow(ctx, query, sessionID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Delete removes the session row.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if s.isClosed() {
		return ErrStoreClosed{}
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), sessionID)
	return err
}

// Touch moves the expiry of the session row.
func (s *PostgresStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if s.isClosed() {
		return ErrStoreClosed{}
	}
	query := fmt.Sprintf(`UPDATE %s SET expires_at = $1, updated_at = NOW() WHERE id = $2`, s.table)
	_, err := s.db.Exec(ctx, query, expiresAt, sessionID)
	return err
}

// Close stops the sweeper. The pool is shared and left open.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

func (s *PostgresStore) sweepLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *PostgresStore) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= NOW()`, s.table))
	if err != nil {
		s.logger.Warn("sweep expired sessions failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("swept expired sessions", "count", n)
	}
}
