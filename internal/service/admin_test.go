package service

import (
	"context"
	"errors"
	"testing"

	"strata/internal/core/probe"
	"strata/internal/repository/postgres"
)

func newAdminService(opts Options, connect postgres.ConnectFunc, conns ...*fakeConn) (*AdminService, chan Event) {
	bus := NewEventBus()
	events := make(chan Event, 16)
	bus.Subscribe(events)
	return NewAdminService(sourceOf(conns...), connect, bus, opts), events
}

func TestCreateDatabase(t *testing.T) {
	t.Run("plain database", func(t *testing.T) {
		conn := &fakeConn{}
		svc, events := newAdminService(Options{}, nil, conn)

		err := svc.CreateDatabase(context.Background(), "atlas", false)
		assertNoError(t, err)

		assertSQL(t, conn, 0, `create database "atlas"`)
		if !conn.closed {
			t.Error("session not closed")
		}

		ev := assertEvent(t, events, EventDatabaseCreated)
		if ev.Subject != "atlas" {
			t.Errorf("event subject = %q", ev.Subject)
		}
	})

	t.Run("with postgis", func(t *testing.T) {
		conn := &fakeConn{}
		target := &fakeConn{}
		var dialed string
		connect := func(ctx context.Context, dbname string) (*postgres.Session, error) {
			dialed = dbname
			return postgres.Wrap(target), nil
		}
		svc, _ := newAdminService(Options{}, connect, conn)

		err := svc.CreateDatabase(context.Background(), "atlas", true)
		assertNoError(t, err)

		if dialed != "atlas" {
			t.Errorf("dialed %q, want atlas", dialed)
		}
		assertSQL(t, target, 0, "create extension postgis")
		if !target.closed {
			t.Error("target session not closed")
		}
	})

	t.Run("invalid name", func(t *testing.T) {
		conn := &fakeConn{}
		svc, events := newAdminService(Options{}, nil, conn)

		if err := svc.CreateDatabase(context.Background(), "bad name", false); err == nil {
			t.Fatal("expected error for invalid database name")
		}
		if len(conn.calls) != 0 {
			t.Errorf("issued %d statements, want 0", len(conn.calls))
		}
		assertNoEvent(t, events)
	})

	t.Run("read-only mode", func(t *testing.T) {
		svc, events := newAdminService(Options{Mode: probe.ModeReadOnly}, nil)
		if err := svc.CreateDatabase(context.Background(), "atlas", false); !errors.Is(err, ErrReadOnly) {
			t.Errorf("err = %v, want ErrReadOnly", err)
		}
		assertNoEvent(t, events)
	})
}

func TestDropDatabase(t *testing.T) {
	conn := &fakeConn{}
	svc, events := newAdminService(Options{}, nil, conn)

	err := svc.DropDatabase(context.Background(), "atlas")
	assertNoError(t, err)

	assertSQL(t, conn, 0, `drop database "atlas"`)
	ev := assertEvent(t, events, EventDatabaseDropped)
	if ev.Subject != "atlas" {
		t.Errorf("event subject = %q", ev.Subject)
	}
}

func TestDropDatabaseReadOnlyMode(t *testing.T) {
	svc, events := newAdminService(Options{Mode: probe.ModeReadOnly}, nil)
	if err := svc.DropDatabase(context.Background(), "atlas"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("err = %v, want ErrReadOnly", err)
	}
	assertNoEvent(t, events)
}

func TestProbe(t *testing.T) {
	conn := &fakeConn{replies: []reply{
		{row: &fakeRow{values: []any{"16.2"}}},  // server version
		{row: &fakeRow{values: []any{true}}},    // postgis installed
		{row: &fakeRow{values: []any{"3.4.2"}}}, // postgis version
		{row: &fakeRow{values: []any{"off"}}},   // transaction_read_only
		{row: &fakeRow{values: []any{true}}},    // create privilege
		{row: &fakeRow{values: []any{true}}},    // rolcreatedb
		{row: &fakeRow{values: []any{true}}},    // counters schema
	}}
	svc, _ := newAdminService(Options{}, nil, conn)

	result, err := svc.Probe(context.Background())
	assertNoError(t, err)

	if result.Mode != probe.ModeSpatial {
		t.Errorf("mode = %s, want %s", result.Mode, probe.ModeSpatial)
	}
	if result.Confidence <= 0.5 {
		t.Errorf("confidence = %v, want > 0.5", result.Confidence)
	}
	if len(result.Evidence) < 5 {
		t.Errorf("gathered %d evidence items, want at least 5", len(result.Evidence))
	}
	if result.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if !conn.closed {
		t.Error("session not closed")
	}
}
