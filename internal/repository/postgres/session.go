// Package postgres implements the Strata store on PostgreSQL/PostGIS
// using pgx. A Session owns one connection and its transaction state; an
// Executor runs store operations through a session with psycopg-style
// commit semantics.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session is closed")

// Conn is the subset of pgx connection behavior a Session needs. Both
// *pgx.Conn and the pool adapter satisfy it, as do test fakes.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Session wraps a single connection and tracks at most one open
// transaction. Statements route through the transaction when one is
// open and run directly on the connection otherwise.
type Session struct {
	conn   Conn
	tx     pgx.Tx
	closed bool
}

// Connect opens a dedicated connection and wraps it in a session.
func Connect(ctx context.Context, dsn string) (*Session, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return Wrap(conn), nil
}

// Wrap builds a session over an existing connection. The session owns
// the connection: Close closes it.
func Wrap(conn Conn) *Session {
	return &Session{conn: conn}
}

// FromPool wraps a pooled connection; closing the session releases the
// connection back to its pool.
func FromPool(conn *pgxpool.Conn) *Session {
	return Wrap(poolConn{conn: conn})
}

// EnsureTx opens a transaction if none is open.
func (s *Session) EnsureTx(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx != nil {
		return nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// InTx reports whether a transaction is open.
func (s *Session) InTx() bool {
	return s.tx != nil
}

// Exec runs a statement through the open transaction, or directly on
// the connection when none is open.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if s.closed {
		return pgconn.CommandTag{}, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx.Exec(ctx, sql, args...)
	}
	return s.conn.Exec(ctx, sql, args...)
}

// Query runs a query through the open transaction, or directly on the
// connection when none is open.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx.Query(ctx, sql, args...)
	}
	return s.conn.Query(ctx, sql, args...)
}

// QueryRow runs a single-row query through the open transaction, or
// directly on the connection when none is open.
func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.closed {
		return errRow{err: ErrSessionClosed}
	}
	if s.tx != nil {
		return s.tx.QueryRow(ctx, sql, args...)
	}
	return s.conn.QueryRow(ctx, sql, args...)
}

// Commit commits the open transaction. Without one it is a no-op, so
// callers can commit unconditionally the way autocommit code does.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}

	err := s.tx.Commit(ctx)
	s.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction. Without one it is a no-op.
func (s *Session) Rollback(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}

	err := s.tx.Rollback(ctx)
	s.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}

// Close rolls back any open transaction and closes the underlying
// connection. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.tx != nil {
		if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			firstErr = fmt.Errorf("failed to rollback: %w", err)
		}
		s.tx = nil
	}
	if err := s.conn.Close(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close connection: %w", err)
	}
	return firstErr
}

// errRow satisfies pgx.Row for calls made on a closed session.
type errRow struct {
	err error
}

func (r errRow) Scan(dest ...any) error {
	return r.err
}

// poolConn adapts a pooled connection to the Conn interface. Close
// releases the connection instead of terminating it.
type poolConn struct {
	conn *pgxpool.Conn
}

func (p poolConn) Begin(ctx context.Context) (pgx.Tx, error) {
	return p.conn.Begin(ctx)
}

func (p poolConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.conn.Exec(ctx, sql, args...)
}

func (p poolConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.conn.Query(ctx, sql, args...)
}

func (p poolConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.conn.QueryRow(ctx, sql, args...)
}

func (p poolConn) Close(ctx context.Context) error {
	p.conn.Release()
	return nil
}

// SessionSource hands out sessions. The pool-backed source acquires a
// connection per session; test doubles hand out sessions over fakes.
type SessionSource interface {
	Session(ctx context.Context) (*Session, error)
}

// PoolSource is a SessionSource backed by a pgx connection pool.
type PoolSource struct {
	pool *pgxpool.Pool
}

// NewPoolSource creates a pool-backed session source.
func NewPoolSource(pool *pgxpool.Pool) *PoolSource {
	return &PoolSource{pool: pool}
}

// Session acquires a pooled connection and wraps it.
func (s *PoolSource) Session(ctx context.Context) (*Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return FromPool(conn), nil
}
