package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// call records one statement issued to the fake connection.
type call struct {
	sql  string
	args []any
}

// reply scripts the outcome of one statement, consumed in issue order.
// The zero reply is an empty success.
type reply struct {
	tag  pgconn.CommandTag
	rows *fakeRows
	row  *fakeRow
	err  error
}

func tag(s string) pgconn.CommandTag {
	return pgconn.NewCommandTag(s)
}

// fakeConn scripts statement outcomes and records everything issued,
// whether directly or through a transaction.
type fakeConn struct {
	calls   []call
	replies []reply
	begun   int
	closed  bool
	txs     []*fakeTx
}

func (c *fakeConn) record(sql string, args []any) {
	c.calls = append(c.calls, call{sql: sql, args: args})
}

func (c *fakeConn) next() reply {
	if len(c.replies) == 0 {
		return reply{}
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r
}

func (c *fakeConn) lastSQL() string {
	if len(c.calls) == 0 {
		return ""
	}
	return c.calls[len(c.calls)-1].sql
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	c.begun++
	tx := &fakeTx{conn: c}
	c.txs = append(c.txs, tx)
	return tx, nil
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.record(sql, args)
	r := c.next()
	return r.tag, r.err
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.record(sql, args)
	r := c.next()
	if r.err != nil {
		return nil, r.err
	}
	if r.rows == nil {
		return &fakeRows{}, nil
	}
	return r.rows, nil
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c.record(sql, args)
	r := c.next()
	if r.row != nil {
		return r.row
	}
	return &fakeRow{err: r.err}
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

// fakeTx satisfies pgx.Tx, routing statements back to its fakeConn so
// scripted replies apply either way.
type fakeTx struct {
	conn       *fakeConn
	committed  bool
	rolledBack bool
}

func (t *fakeTx) done() bool {
	return t.committed || t.rolledBack
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported by fake")
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.done() {
		return pgx.ErrTxClosed
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done() {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, fmt.Errorf("CopyFrom not supported by fake")
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (t *fakeTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, fmt.Errorf("Prepare not supported by fake")
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.conn.Exec(ctx, sql, args...)
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.conn.Query(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.conn.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Conn() *pgx.Conn {
	return nil
}

// fakeRows satisfies pgx.Rows over an in-memory table.
type fakeRows struct {
	fields []string
	rows   [][]any
	idx    int
	err    error
	closed bool
}

func (r *fakeRows) Close() {
	r.closed = true
}

func (r *fakeRows) Err() error {
	return r.err
}

func (r *fakeRows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag{}
}

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.fields))
	for i, name := range r.fields {
		fds[i] = pgconn.FieldDescription{Name: name}
	}
	return fds
}

func (r *fakeRows) Next() bool {
	if r.err != nil || r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	current := r.rows[r.idx-1]
	if len(dest) != len(current) {
		return fmt.Errorf("scan wants %d values, row has %d", len(dest), len(current))
	}
	for i, d := range dest {
		if err := assign(d, current[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

func (r *fakeRows) RawValues() [][]byte {
	return nil
}

func (r *fakeRows) Conn() *pgx.Conn {
	return nil
}

// fakeRow satisfies pgx.Row for single-row queries.
type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan wants %d values, row has %d", len(dest), len(r.values))
	}
	for i, d := range dest {
		if err := assign(d, r.values[i]); err != nil {
			return err
		}
	}
	return nil
}

// assign copies a fake value into a scan destination, covering the
// types these tests scan into.
func assign(dest, src any) error {
	switch d := dest.(type) {
	case *any:
		*d = src
		return nil
	case *string:
		if s, ok := src.(string); ok {
			*d = s
			return nil
		}
	case *bool:
		if b, ok := src.(bool); ok {
			*d = b
			return nil
		}
	case *int64:
		switch v := src.(type) {
		case int64:
			*d = v
			return nil
		case int:
			*d = int64(v)
			return nil
		}
	case *int:
		if v, ok := src.(int); ok {
			*d = v
			return nil
		}
	case *float64:
		if v, ok := src.(float64); ok {
			*d = v
			return nil
		}
	case *[]byte:
		if v, ok := src.([]byte); ok {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T into %T", src, dest)
}
