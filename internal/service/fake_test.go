package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"strata/internal/repository/postgres"
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

// fakeConn scripts statement outcomes for one session. The services run
// autocommit executors, so Begin is never reached.
type fakeConn struct {
	calls   []call
	replies []reply
	closed  bool
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

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not supported by fake")
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

// fakeSource hands each service call the next scripted connection.
type fakeSource struct {
	conns []*fakeConn
	idx   int
}

func sourceOf(conns ...*fakeConn) *fakeSource {
	return &fakeSource{conns: conns}
}

func (s *fakeSource) Session(ctx context.Context) (*postgres.Session, error) {
	if s.idx >= len(s.conns) {
		return nil, errors.New("no scripted connection left")
	}
	conn := s.conns[s.idx]
	s.idx++
	return postgres.Wrap(conn), nil
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
	case *float64:
		if v, ok := src.(float64); ok {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T into %T", src, dest)
}
