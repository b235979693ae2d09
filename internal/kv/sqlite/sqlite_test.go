package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "expenseflow_expenses", []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "expenseflow_expenses")
	if err != nil || !ok || string(v) != `[]` {
		t.Fatalf("get: got (%q, %v, %v)", v, ok, err)
	}

	if err := s.Set(ctx, "expenseflow_expenses", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	v, _, _ = s.Get(ctx, "expenseflow_expenses")
	if string(v) != `[{"id":"1"}]` {
		t.Fatalf("expected upsert, got %q", v)
	}

	if err := s.Delete(ctx, "expenseflow_expenses"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "expenseflow_expenses"); ok {
		t.Fatalf("expected key gone after delete")
	}
	if err := s.Delete(ctx, "expenseflow_expenses"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()

	// Reopening runs migrations again; ErrNoChange must be tolerated.
	s2, err := New(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s2.Close()
}

func TestAppendLedgerEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.CountLedgerEvents(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected empty journal, got (%d, %v)", n, err)
	}

	occurred := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	if err := s.AppendLedgerEvent(ctx, "expense.added", "abc", 450, "Food & Dining", occurred); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendLedgerEvent(ctx, "expense.deleted", "abc", 450, "Food & Dining", occurred); err != nil {
		t.Fatalf("append second: %v", err)
	}

	n, err = s.CountLedgerEvents(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 events, got (%d, %v)", n, err)
	}
}
