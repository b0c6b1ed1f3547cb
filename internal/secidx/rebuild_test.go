package secidx

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/core"
)

func TestRebuildRepopulatesIndexFromEntities(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	// Write entities before the index exists, simulating a schema change.
	if err := e.Put(ctx, "person", personEntity("p1", "ada", 30)); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "person", personEntity("p2", "grace", 40)); err != nil {
		t.Fatal(err)
	}

	if err := e.CreateEqualityIndex(ctx, "person", "name", false); err != nil {
		t.Fatal(err)
	}
	// CreateEqualityIndex only registers the descriptor; no entries exist yet.
	matches, err := e.ScanKeysEqual(ctx, "person", "name", core.Str("ada"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no entries before rebuild, got %d", len(matches))
	}

	var progressCalls []int
	err = e.Rebuild(ctx, "person", "name", core.IndexEquality, false, func(done, total int) bool {
		progressCalls = append(progressCalls, done)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(progressCalls) != 2 {
		t.Fatalf("expected 2 progress callbacks, got %d", len(progressCalls))
	}

	matches, err = e.ScanKeysEqual(ctx, "person", "name", core.Str("ada"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match for ada after rebuild, got %d", len(matches))
	}
}

func TestRebuildAbortsWhenProgressReturnsFalse(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	for i, pk := range []string{"p1", "p2", "p3"} {
		if err := e.Put(ctx, "person", personEntity(pk, "same", int64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.CreateEqualityIndex(ctx, "person", "name", false); err != nil {
		t.Fatal(err)
	}

	calls := 0
	err := e.Rebuild(ctx, "person", "name", core.IndexEquality, false, func(done, total int) bool {
		calls++
		return calls < 2
	})
	if err == nil {
		t.Fatalf("expected rebuild to report abort")
	}
}

func TestRebuildUnknownIndexErrors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	err := e.Rebuild(ctx, "person", "name", core.IndexEquality, false, nil)
	if err == nil {
		t.Fatalf("expected error rebuilding unregistered index")
	}
}

func TestRebuildDryRunLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.Put(ctx, "person", personEntity("p1", "ada", 30)); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateEqualityIndex(ctx, "person", "name", false); err != nil {
		t.Fatal(err)
	}

	var reportedDone, reportedTotal int
	err := e.Rebuild(ctx, "person", "name", core.IndexEquality, true, func(done, total int) bool {
		reportedDone, reportedTotal = done, total
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if reportedDone != 1 || reportedTotal != 1 {
		t.Fatalf("expected dry-run to report (1, 1), got (%d, %d)", reportedDone, reportedTotal)
	}

	matches, err := e.ScanKeysEqual(ctx, "person", "name", core.Str("ada"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected dry-run to leave index empty (no entries written), got %d", len(matches))
	}
}
