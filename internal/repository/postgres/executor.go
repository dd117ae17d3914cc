package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"strata/internal/domain"
	"strata/internal/filestore"
	"strata/internal/pgquery"
)

// ErrTableNotFound is returned when a table has no columns in
// information_schema, i.e. it does not exist.
var ErrTableNotFound = errors.New("table not found")

// Row-count limits for Select and SelectRows.
const (
	// DefaultLimit caps result sets when the caller does not choose one.
	DefaultLimit = 100
	// NoLimit disables the limit clause entirely.
	NoLimit = -1
)

// FileRemover deletes one attachment file, reporting whether it removed
// anything.
type FileRemover interface {
	Remove(path string) (bool, error)
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// AutoCommit commits after every write, matching driver-level
	// autocommit. Disable it to batch writes into one transaction that
	// the caller commits through the session.
	AutoCommit bool
	// LogQueries logs every statement with its bound values.
	LogQueries bool
	// Files removes attachment files for DeleteWithFiles. Defaults to
	// the local filesystem.
	Files FileRemover
}

// DefaultExecutorOptions returns the standard executor setup:
// autocommit on, query logging off, local file removal.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{AutoCommit: true, Files: filestore.NewLocal()}
}

// Executor runs store operations through a session.
//
// In autocommit mode every write ends with a commit of whatever
// transaction is open. With autocommit off, the first statement opens a
// transaction on the session and nothing commits until the caller does;
// reads issued through the same executor see the uncommitted writes.
type Executor struct {
	sess       *Session
	autoCommit bool
	logQueries bool
	files      FileRemover
}

// NewExecutor creates an executor over sess.
func NewExecutor(sess *Session, opts ExecutorOptions) *Executor {
	files := opts.Files
	if files == nil {
		files = filestore.NewLocal()
	}
	return &Executor{
		sess:       sess,
		autoCommit: opts.AutoCommit,
		logQueries: opts.LogQueries,
		files:      files,
	}
}

// Session returns the underlying session, for explicit transaction
// control when autocommit is off.
func (e *Executor) Session() *Session {
	return e.sess
}

// Insert adds one row built from fvs. When returning names columns, the
// inserted rows come back decoded; otherwise the result is nil.
func (e *Executor) Insert(ctx context.Context, table pgquery.TableName, fvs *pgquery.FieldValueSet, returning []string) ([]pgquery.Row, error) {
	if err := e.begin(ctx); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("insert into %s (%s) values (%s)",
		quoteTable(table), fvs.Names(), fvs.Placeholders())

	if len(returning) == 0 {
		if _, err := e.exec(ctx, sql, fvs.Values()); err != nil {
			return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		return nil, e.finish(ctx)
	}

	for _, col := range returning {
		if !pgquery.ValidIdentifier(col) {
			return nil, fmt.Errorf("invalid returning column %q", col)
		}
	}
	sql += " returning " + strings.Join(returning, ",")

	rows, err := e.query(ctx, sql, fvs.Values())
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	out, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read returning rows: %w", err)
	}
	return out, e.finish(ctx)
}

// Update rewrites the fvs columns on every row matching where. A nil
// predicate updates the whole table. Returns the affected row count.
func (e *Executor) Update(ctx context.Context, table pgquery.TableName, fvs *pgquery.FieldValueSet, where *pgquery.Predicate) (int64, error) {
	if err := e.begin(ctx); err != nil {
		return 0, err
	}

	sql := fmt.Sprintf("update %s set (%s) = row(%s)",
		quoteTable(table), fvs.Names(), fvs.Placeholders())
	args := fvs.Values()
	if where != nil {
		sql += " where " + where.Clause(fvs.Len())
		args = append(args, where.Values()...)
	}

	tag, err := e.exec(ctx, sql, args)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return tag.RowsAffected(), e.finish(ctx)
}

// Delete removes every row matching where. A nil predicate empties the
// table. Returns the affected row count.
func (e *Executor) Delete(ctx context.Context, table pgquery.TableName, where *pgquery.Predicate) (int64, error) {
	if err := e.begin(ctx); err != nil {
		return 0, err
	}

	sql := "delete from " + quoteTable(table)
	var args []any
	if where != nil {
		sql += " where " + where.Clause(0)
		args = where.Values()
	}

	tag, err := e.exec(ctx, sql, args)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), e.finish(ctx)
}

// DeleteByValue removes every row whose column equals value.
func (e *Executor) DeleteByValue(ctx context.Context, table pgquery.TableName, column string, value any) (int64, error) {
	if !pgquery.ValidIdentifier(column) {
		return 0, fmt.Errorf("invalid column name %q", column)
	}
	if err := e.begin(ctx); err != nil {
		return 0, err
	}

	sql := fmt.Sprintf("delete from %s where %s = $1", quoteTable(table), column)
	tag, err := e.exec(ctx, sql, []any{value})
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), e.finish(ctx)
}

// DeleteWithFiles removes matching rows and the attachment files they
// name in fileColumn, resolved against basePath. File names are read
// before the rows go away; a file that is missing, not a regular file,
// or fails to delete lands in NotDeleted and never blocks the row
// delete.
func (e *Executor) DeleteWithFiles(ctx context.Context, table pgquery.TableName, where *pgquery.Predicate, fileColumn, basePath string) (*domain.FileDeleteReport, error) {
	if !pgquery.ValidIdentifier(fileColumn) {
		return nil, fmt.Errorf("invalid file column %q", fileColumn)
	}

	rows, err := e.SelectRows(ctx, table, where, SelectOptions{
		Fields: []string{fileColumn},
		Limit:  NoLimit,
	})
	if err != nil {
		return nil, err
	}

	report := &domain.FileDeleteReport{
		Deleted:    []string{},
		NotDeleted: []string{},
		BasePath:   filestore.NormalizeBase(basePath),
	}

	for _, row := range rows {
		name, ok := row[0].(string)
		if !ok || name == "" {
			continue
		}

		removed, err := e.files.Remove(report.BasePath + name)
		if err != nil {
			log.Printf("Failed to remove attachment %s: %v", name, err)
		}
		if removed {
			report.Deleted = append(report.Deleted, name)
		} else {
			report.NotDeleted = append(report.NotDeleted, name)
		}
	}

	count, err := e.Delete(ctx, table, where)
	if err != nil {
		return nil, err
	}
	report.RowsDeleted = count
	return report, nil
}

// SelectOptions shapes a Select or SelectRows query. Fields are
// verbatim SELECT-list expressions (bare column names or rendered
// geometry expressions); empty means *. Limit zero applies
// DefaultLimit; NoLimit removes the clause.
type SelectOptions struct {
	Fields  []string
	GroupBy string
	OrderBy string
	Limit   int
}

// Select runs the aggregated query shape and decodes the JSON result:
// the matched rows are folded into a single array_to_json cell server
// side, so one scan yields the whole result set. No matches decode to
// an empty slice.
func (e *Executor) Select(ctx context.Context, table pgquery.TableName, where *pgquery.Predicate, opts SelectOptions) ([]pgquery.Row, error) {
	if err := e.begin(ctx); err != nil {
		return nil, err
	}

	inner, args := e.buildSelect(table, where, opts)
	sql := fmt.Sprintf("SELECT array_to_json(array_agg(records)) FROM (%s) as records", inner)

	e.logQuery(sql, args)
	var cell any
	if err := e.sess.QueryRow(ctx, sql, args...).Scan(&cell); err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	return pgquery.DecodeAggregatedRows(cell)
}

// SelectRows runs a plain query and returns raw value tuples in field
// order, bypassing the JSON round trip.
func (e *Executor) SelectRows(ctx context.Context, table pgquery.TableName, where *pgquery.Predicate, opts SelectOptions) ([][]any, error) {
	if err := e.begin(ctx); err != nil {
		return nil, err
	}

	sql, args := e.buildSelect(table, where, opts)
	rows, err := e.query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	out, err := collectValues(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from %s: %w", table, err)
	}
	return out, nil
}

// TableExists reports whether the table exists.
func (e *Executor) TableExists(ctx context.Context, table pgquery.TableName) (bool, error) {
	if err := e.begin(ctx); err != nil {
		return false, err
	}

	const sql = "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)"
	args := []any{table.Schema, table.Name}

	e.logQuery(sql, args)
	var exists bool
	if err := e.sess.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

// CreateTable creates the table with the given column definition. When
// the table already exists it is only replaced if drop is set;
// otherwise nothing happens and the result is false. Returns true when
// the table was (re)created.
func (e *Executor) CreateTable(ctx context.Context, table pgquery.TableName, definition string, drop bool) (bool, error) {
	exists, err := e.TableExists(ctx, table)
	if err != nil {
		return false, err
	}
	if exists && !drop {
		return false, nil
	}

	if exists {
		if _, err := e.exec(ctx, "drop table "+quoteTable(table), nil); err != nil {
			return false, fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	sql := fmt.Sprintf("create table %s (%s)", quoteTable(table), definition)
	if _, err := e.exec(ctx, sql, nil); err != nil {
		return false, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return true, e.finish(ctx)
}

// ListColumns returns the table's column names in ordinal order, minus
// exclusions. When geo is given, its column must exist and is replaced
// by the rendered geometry expression; a missing geometry column is an
// error on the read path. A table with no columns at all resolves to
// ErrTableNotFound.
func (e *Executor) ListColumns(ctx context.Context, table pgquery.TableName, exclude []string, geo *pgquery.GeometryReadOptions) ([]string, error) {
	if err := e.begin(ctx); err != nil {
		return nil, err
	}

	const sql = "select column_name from information_schema.columns where table_schema = $1 and table_name = $2 order by ordinal_position"
	args := []any{table.Schema, table.Name}

	rows, err := e.query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	tuples, err := collectValues(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	if len(tuples) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	names := make([]string, 0, len(tuples))
	for _, tuple := range tuples {
		name, ok := tuple[0].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected column name type %T for %s", tuple[0], table)
		}
		names = append(names, name)
	}

	// The geometry column must exist in the table itself; exclusions
	// only shape the output.
	if geo != nil {
		found := false
		for _, name := range names {
			if name == geo.Column() {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("geometry column %q not present in %s", geo.Column(), table)
		}
	}

	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[name] = true
	}

	columns := make([]string, 0, len(names))
	for _, name := range names {
		if excluded[name] {
			continue
		}
		if geo != nil && name == geo.Column() {
			columns = append(columns, geo.Render())
			continue
		}
		columns = append(columns, name)
	}
	return columns, nil
}

// ValueExists reports whether any row has column equal to value.
func (e *Executor) ValueExists(ctx context.Context, table pgquery.TableName, column string, value any) (bool, error) {
	if !pgquery.ValidIdentifier(column) {
		return false, fmt.Errorf("invalid column name %q", column)
	}
	if err := e.begin(ctx); err != nil {
		return false, err
	}

	sql := fmt.Sprintf("SELECT exists (SELECT %s FROM %s WHERE %s = $1 LIMIT 1)",
		column, quoteTable(table), column)
	args := []any{value}

	e.logQuery(sql, args)
	var exists bool
	if err := e.sess.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check value in %s: %w", table, err)
	}
	return exists, nil
}

// begin opens a session transaction unless running in autocommit mode,
// where statements commit on their own.
func (e *Executor) begin(ctx context.Context) error {
	if e.autoCommit {
		return nil
	}
	return e.sess.EnsureTx(ctx)
}

// finish commits after a write in autocommit mode. It also flushes any
// transaction a caller left open on the session, which is what
// driver-level autocommit would have done.
func (e *Executor) finish(ctx context.Context) error {
	if !e.autoCommit {
		return nil
	}
	return e.sess.Commit(ctx)
}

func (e *Executor) buildSelect(table pgquery.TableName, where *pgquery.Predicate, opts SelectOptions) (string, []any) {
	fields := "*"
	if len(opts.Fields) > 0 {
		fields = strings.Join(opts.Fields, ",")
	}

	sql := fmt.Sprintf("select %s from %s", fields, quoteTable(table))
	var args []any
	if where != nil {
		sql += " where " + where.Clause(0)
		args = where.Values()
	}
	if opts.GroupBy != "" {
		sql += " group by " + opts.GroupBy
	}
	if opts.OrderBy != "" {
		sql += " order by " + opts.OrderBy
	}

	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > 0 {
		sql += fmt.Sprintf(" limit %d", limit)
	}
	return sql, args
}

func (e *Executor) exec(ctx context.Context, sql string, args []any) (pgconn.CommandTag, error) {
	e.logQuery(sql, args)
	return e.sess.Exec(ctx, sql, args...)
}

func (e *Executor) query(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
	e.logQuery(sql, args)
	return e.sess.Query(ctx, sql, args...)
}

func (e *Executor) logQuery(sql string, args []any) {
	if !e.logQueries {
		return
	}
	if len(args) == 0 {
		log.Printf("query: %s", sql)
		return
	}
	log.Printf("query: %s args=%v", sql, args)
}

func quoteTable(t pgquery.TableName) string {
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// collectRows drains rows into name-keyed records.
func collectRows(rows pgx.Rows) ([]pgquery.Row, error) {
	defer rows.Close()

	var out []pgquery.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(pgquery.Row, len(values))
		for i, fd := range rows.FieldDescriptions() {
			record[fd.Name] = values[i]
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// collectValues drains rows into positional tuples.
func collectValues(rows pgx.Rows) ([][]any, error) {
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
