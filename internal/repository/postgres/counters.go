package postgres

import (
	"context"
	"fmt"

	"strata/internal/domain"
	"strata/internal/pgquery"
)

// CounterSchema hosts every counter sequence and the counter catalog.
const CounterSchema = "counters"

// counterCatalog records name and description for each counter; the
// value itself lives in the sequence.
var counterCatalog = pgquery.TableName{Schema: CounterSchema, Name: "counters"}

const counterCatalogDefinition = "gid serial primary key, counter_name varchar unique, counter_description varchar"

// Counters manages named counters backed by PostgreSQL sequences. Each
// counter is one sequence in the counters schema plus a catalog row.
type Counters struct {
	exec *Executor
}

// NewCounters creates a counter store over an executor.
func NewCounters(exec *Executor) *Counters {
	return &Counters{exec: exec}
}

// Add creates a counter: the counters schema and catalog on first use,
// then the sequence and its catalog row. The first Increment returns
// start; step may be negative but not zero.
func (c *Counters) Add(ctx context.Context, name, description string, start, step int64) error {
	if !pgquery.ValidIdentifier(name) {
		return fmt.Errorf("invalid counter name %q", name)
	}
	if start < 1 {
		return fmt.Errorf("counter start must be at least 1, got %d", start)
	}
	if step == 0 {
		return fmt.Errorf("counter step must not be zero")
	}

	if err := c.exec.begin(ctx); err != nil {
		return err
	}
	if _, err := c.exec.exec(ctx, "create schema if not exists "+CounterSchema, nil); err != nil {
		return fmt.Errorf("failed to create counter schema: %w", err)
	}
	if _, err := c.exec.CreateTable(ctx, counterCatalog, counterCatalogDefinition, false); err != nil {
		return err
	}

	// Sequence DDL cannot bind parameters; the name is validated above
	// and the bounds render as plain integers.
	sql := fmt.Sprintf("create sequence %s as integer start with %d increment by %d",
		c.sequenceIdent(name), start, step)
	if _, err := c.exec.exec(ctx, sql, nil); err != nil {
		return fmt.Errorf("failed to create counter %s: %w", name, err)
	}

	fvs, err := pgquery.NewFieldValueSet(pgquery.Fields(
		pgquery.Field{Name: "counter_name", Value: name},
		pgquery.Field{Name: "counter_description", Value: description},
	), nil, nil)
	if err != nil {
		return err
	}
	if _, err := c.exec.Insert(ctx, counterCatalog, fvs, nil); err != nil {
		return err
	}
	return nil
}

// Increment advances the counter and returns the new value.
func (c *Counters) Increment(ctx context.Context, name string) (int64, error) {
	if !pgquery.ValidIdentifier(name) {
		return 0, fmt.Errorf("invalid counter name %q", name)
	}
	if err := c.exec.begin(ctx); err != nil {
		return 0, err
	}

	const sql = "select nextval($1)"
	args := []any{c.sequenceRef(name)}

	c.exec.logQuery(sql, args)
	var value int64
	if err := c.exec.sess.QueryRow(ctx, sql, args...).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return value, c.exec.finish(ctx)
}

// Value reads the counter's current value without advancing it.
func (c *Counters) Value(ctx context.Context, name string) (int64, error) {
	if !pgquery.ValidIdentifier(name) {
		return 0, fmt.Errorf("invalid counter name %q", name)
	}
	if err := c.exec.begin(ctx); err != nil {
		return 0, err
	}

	sql := "select last_value from " + c.sequenceIdent(name)
	c.exec.logQuery(sql, nil)
	var value int64
	if err := c.exec.sess.QueryRow(ctx, sql).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}
	return value, nil
}

// Delete drops the counter's sequence and removes its catalog row,
// returning how many catalog rows went away (zero for an unknown
// counter).
func (c *Counters) Delete(ctx context.Context, name string) (int64, error) {
	if !pgquery.ValidIdentifier(name) {
		return 0, fmt.Errorf("invalid counter name %q", name)
	}
	if err := c.exec.begin(ctx); err != nil {
		return 0, err
	}

	if _, err := c.exec.exec(ctx, "drop sequence if exists "+c.sequenceIdent(name), nil); err != nil {
		return 0, fmt.Errorf("failed to drop counter %s: %w", name, err)
	}
	return c.exec.DeleteByValue(ctx, counterCatalog, "counter_name", name)
}

// List returns every cataloged counter with its current value. Before
// the first Add there is no catalog, which is an empty list rather
// than an error. Values are read one query per counter.
func (c *Counters) List(ctx context.Context) ([]domain.Counter, error) {
	exists, err := c.exec.TableExists(ctx, counterCatalog)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []domain.Counter{}, nil
	}

	rows, err := c.exec.Select(ctx, counterCatalog, nil, SelectOptions{
		Fields:  []string{"counter_name", "counter_description"},
		OrderBy: "counter_name",
		Limit:   NoLimit,
	})
	if err != nil {
		return nil, err
	}

	counters := make([]domain.Counter, 0, len(rows))
	for _, row := range rows {
		name, ok := row["counter_name"].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected counter name %v in catalog", row["counter_name"])
		}
		counter := domain.Counter{Name: name}
		if desc, ok := row["counter_description"].(string); ok {
			counter.Description = desc
		}
		if counter.Value, err = c.Value(ctx, name); err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	return counters, nil
}

// sequenceIdent returns the quoted schema-qualified sequence name for
// DDL statements.
func (c *Counters) sequenceIdent(name string) string {
	return quoteTable(pgquery.TableName{Schema: CounterSchema, Name: name})
}

// sequenceRef returns the unquoted regclass text bound to nextval.
func (c *Counters) sequenceRef(name string) string {
	return CounterSchema + "." + name
}
