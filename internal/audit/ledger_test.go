package audit

import (
	"path/filepath"
	"testing"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppendAndReadRecent(t *testing.T) {
	l := openTestLedger(t)

	for i := 0; i < 5; i++ {
		if err := l.Append("tick", "run_command", i); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := l.ReadRecent(0)
	if err != nil {
		t.Fatalf("ReadRecent: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Step != i {
			t.Fatalf("expected entries in append order, entry %d has step %d", i, e.Step)
		}
	}
}

func TestReadRecentLimitsToTail(t *testing.T) {
	l := openTestLedger(t)
	for i := 0; i < 10; i++ {
		if err := l.Append("tick", "notify", i); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := l.ReadRecent(3)
	if err != nil {
		t.Fatalf("ReadRecent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Step != 7 || entries[2].Step != 9 {
		t.Fatalf("expected last 3 entries (7,8,9), got steps %d..%d", entries[0].Step, entries[2].Step)
	}
}

func TestPruneOldRemovesNothingWhenAllFresh(t *testing.T) {
	l := openTestLedger(t)
	if err := l.Append("tick", "suspend", 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	deleted, err := l.PruneOld()
	if err != nil {
		t.Fatalf("PruneOld: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deleted for a fresh entry, got %d", deleted)
	}
}
