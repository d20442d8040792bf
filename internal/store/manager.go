package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	// ErrTxOpen reports Begin on a manager that already holds an open
	// transaction. There is exactly one transactional scope per manager;
	// hitting this is a programmer error, not a retryable condition.
	ErrTxOpen = errors.New("store: transaction already open")

	// ErrNoTx reports Commit or Rollback with no open transaction.
	ErrNoTx = errors.New("store: no open transaction")
)

// Querier is the query surface shared by the connection pool and an open
// transaction. Both *sql.DB and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Manager hands out a query-executing handle and owns at most one
// exclusive transaction scope for the lifetime of a logical unit of work
// (a request, or a test case wrapped in a rollback-only transaction).
//
// Concurrent transactional units of work must each construct their own
// Manager over the shared *sql.DB; a single instance serializes them.
type Manager struct {
	db           *sql.DB
	queryTimeout time.Duration

	mu     sync.Mutex
	tx     *sql.Tx
	closed bool
}

// Option configures Manager.
type Option func(*Manager)

// WithQueryTimeout bounds every statement issued through the manager so a
// stalled connection fails the caller instead of hanging it.
func WithQueryTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.queryTimeout = d
		}
	}
}

// Open dials PostgreSQL and returns a manager owning the pool.
func Open(dsn string, opts ...Option) (*Manager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	m := &Manager{db: db}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewManager wraps an existing pool. Use one manager per unit of work
// that needs its own transaction scope.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StatementContext derives the context a single statement runs under,
// applying the configured query timeout. The returned cancel must be
// called once the statement's rows are fully consumed. Transactions are
// not bounded this way: a transaction context outlives its statements.
func (m *Manager) StatementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.queryTimeout)
}

// DB exposes the underlying pool, e.g. for readiness pings.
func (m *Manager) DB() *sql.DB { return m.db }

// Acquire returns the transactional client when a transaction is open,
// otherwise the pool.
func (m *Manager) Acquire() Querier {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tx != nil {
		return m.tx
	}
	return m.db
}

// Begin opens the manager's single exclusive transaction. No savepoints:
// Begin while a transaction is open fails with ErrTxOpen.
func (m *Manager) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tx != nil {
		return ErrTxOpen
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	m.tx = tx
	return nil
}

// InTransaction reports whether the exclusive scope is open.
func (m *Manager) InTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx != nil
}

// Commit closes the open transaction and releases its connection back to
// the pool. Acquire reverts to the pool afterwards.
func (m *Manager) Commit() error {
	m.mu.Lock()
	tx := m.tx
	m.tx = nil
	m.mu.Unlock()
	if tx == nil {
		return ErrNoTx
	}
	return tx.Commit()
}

// Rollback discards the open transaction. Acquire reverts to the pool
// afterwards.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	tx := m.tx
	m.tx = nil
	m.mu.Unlock()
	if tx == nil {
		return ErrNoTx
	}
	return tx.Rollback()
}

// Shutdown rolls back any open transaction and drains the pool. Safe to
// call repeatedly and with no active transaction.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	tx := m.tx
	m.tx = nil
	alreadyClosed := m.closed
	m.closed = true
	m.mu.Unlock()

	if tx != nil {
		_ = tx.Rollback()
	}
	if alreadyClosed {
		return nil
	}
	return m.db.Close()
}
