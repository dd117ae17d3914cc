package postgres

import (
	"context"
	"errors"
	"testing"
)

func TestSession_ExecWithoutTx(t *testing.T) {
	conn := &fakeConn{}
	sess := Wrap(conn)
	defer sess.Close(context.Background())

	if _, err := sess.Exec(context.Background(), "select 1"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if conn.begun != 0 {
		t.Errorf("begun = %d, want 0 for direct exec", conn.begun)
	}
	if conn.lastSQL() != "select 1" {
		t.Errorf("lastSQL = %q", conn.lastSQL())
	}
}

func TestSession_EnsureTx(t *testing.T) {
	conn := &fakeConn{}
	sess := Wrap(conn)
	defer sess.Close(context.Background())

	ctx := context.Background()
	if err := sess.EnsureTx(ctx); err != nil {
		t.Fatalf("EnsureTx failed: %v", err)
	}
	if !sess.InTx() {
		t.Error("InTx = false after EnsureTx")
	}

	// A second EnsureTx reuses the open transaction
	if err := sess.EnsureTx(ctx); err != nil {
		t.Fatalf("EnsureTx failed: %v", err)
	}
	if conn.begun != 1 {
		t.Errorf("begun = %d, want 1", conn.begun)
	}

	// Statements route through the transaction (recorded on the conn)
	if _, err := sess.Exec(ctx, "insert something"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if conn.lastSQL() != "insert something" {
		t.Errorf("lastSQL = %q", conn.lastSQL())
	}
}

func TestSession_CommitClearsTx(t *testing.T) {
	conn := &fakeConn{}
	sess := Wrap(conn)
	defer sess.Close(context.Background())

	ctx := context.Background()
	if err := sess.EnsureTx(ctx); err != nil {
		t.Fatalf("EnsureTx failed: %v", err)
	}
	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if sess.InTx() {
		t.Error("InTx = true after Commit")
	}
	if !conn.txs[0].committed {
		t.Error("transaction was not committed")
	}
}

func TestSession_CommitWithoutTxIsNoOp(t *testing.T) {
	sess := Wrap(&fakeConn{})
	defer sess.Close(context.Background())

	if err := sess.Commit(context.Background()); err != nil {
		t.Errorf("Commit without tx failed: %v", err)
	}
	if err := sess.Rollback(context.Background()); err != nil {
		t.Errorf("Rollback without tx failed: %v", err)
	}
}

func TestSession_RollbackClearsTx(t *testing.T) {
	conn := &fakeConn{}
	sess := Wrap(conn)
	defer sess.Close(context.Background())

	ctx := context.Background()
	if err := sess.EnsureTx(ctx); err != nil {
		t.Fatalf("EnsureTx failed: %v", err)
	}
	if err := sess.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if sess.InTx() {
		t.Error("InTx = true after Rollback")
	}
	if !conn.txs[0].rolledBack {
		t.Error("transaction was not rolled back")
	}
}

func TestSession_CloseRollsBackOpenTx(t *testing.T) {
	conn := &fakeConn{}
	sess := Wrap(conn)

	ctx := context.Background()
	if err := sess.EnsureTx(ctx); err != nil {
		t.Fatalf("EnsureTx failed: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !conn.txs[0].rolledBack {
		t.Error("open transaction should roll back on Close")
	}
	if !conn.closed {
		t.Error("connection should be closed")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	conn := &fakeConn{}
	sess := Wrap(conn)

	ctx := context.Background()
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestSession_ClosedErrors(t *testing.T) {
	sess := Wrap(&fakeConn{})
	ctx := context.Background()
	sess.Close(ctx)

	if _, err := sess.Exec(ctx, "select 1"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Exec error = %v, want ErrSessionClosed", err)
	}
	if _, err := sess.Query(ctx, "select 1"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Query error = %v, want ErrSessionClosed", err)
	}
	if err := sess.QueryRow(ctx, "select 1").Scan(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("QueryRow Scan error = %v, want ErrSessionClosed", err)
	}
	if err := sess.EnsureTx(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("EnsureTx error = %v, want ErrSessionClosed", err)
	}
	if err := sess.Commit(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Commit error = %v, want ErrSessionClosed", err)
	}
}
