package db

import (
	"context"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return d
}

func TestRecordAndListExecutions(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	records := []Execution{
		{ID: "a", AccountID: "acct-1", Kind: "place", Symbol: "EURUSD", Side: "BUY", Volume: 0.1, Price: 1.085, OrderID: 1, DealID: 1, Filling: "FOK"},
		{ID: "b", AccountID: "acct-1", Kind: "close", Symbol: "EURUSD", Side: "SELL", Volume: 0.1, Price: 1.086, DealID: 2, Filling: "IOC"},
		{ID: "c", AccountID: "acct-2", Kind: "place", Symbol: "XAUUSD", Side: "SELL", Volume: 1, Price: 2350, OrderID: 3, DealID: 3, Filling: "RETURN"},
	}
	for _, e := range records {
		if err := d.RecordExecution(ctx, e); err != nil {
			t.Fatalf("record %s: %v", e.ID, err)
		}
	}

	got, err := d.ListExecutions(ctx, "acct-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d executions for acct-1, want 2", len(got))
	}
	for _, e := range got {
		if e.AccountID != "acct-1" {
			t.Fatalf("foreign account record in listing: %+v", e)
		}
		if e.CreatedAt.IsZero() {
			t.Fatalf("created_at not set on %s", e.ID)
		}
	}
}

func TestListExecutionsLimit(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		err := d.RecordExecution(ctx, Execution{
			ID: id, AccountID: "acct-1", Kind: "place", Symbol: "EURUSD", Side: "BUY",
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := d.ListExecutions(ctx, "acct-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d executions, want limit of 2", len(got))
	}
}
