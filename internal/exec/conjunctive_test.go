package exec

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/core"
)

func seedUsers(t *testing.T, ctx context.Context, h *harness) {
	t.Helper()
	if err := h.secidx.CreateEqualityIndex(ctx, "users", "country", false); err != nil {
		t.Fatal(err)
	}
	if err := h.secidx.CreateRangeIndex(ctx, "users", "age"); err != nil {
		t.Fatal(err)
	}
	rows := []struct {
		pk      string
		name    string
		country string
		age     int64
	}{
		{"u1", "ada", "US", 30},
		{"u2", "bob", "US", 17},
		{"u3", "cleo", "FR", 40},
		{"u4", "dee", "US", 25},
	}
	for _, r := range rows {
		ent := entity("users", r.pk, map[string]core.Value{
			"name":    core.Str(r.name),
			"country": core.Str(r.country),
			"age":     core.I64(r.age),
		})
		if err := h.secidx.Put(ctx, "users", ent); err != nil {
			t.Fatal(err)
		}
	}
}

func TestConjunctiveEqualityPathIntersectsPredicates(t *testing.T) {
	h, ctx := newHarness(t)
	seedUsers(t, ctx, h)

	res := h.run(t, ctx, `FOR doc IN users FILTER doc.country == "US" AND doc.age >= 18 RETURN doc`)
	names := rowFieldStrings(t, res.Rows, "name")
	if len(names) != 2 {
		t.Fatalf("expected 2 rows, got %d (%v)", len(names), names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["ada"] || !seen["dee"] {
		t.Fatalf("expected ada and dee, got %v", names)
	}
}

func TestConjunctiveMissingIndexFallsBackToFullScan(t *testing.T) {
	h, ctx := newHarness(t)
	// No indexes created at all: every predicate misses its index.
	ent := entity("widgets", "w1", map[string]core.Value{
		"sku": core.Str("abc"),
	})
	if err := h.secidx.Put(ctx, "widgets", ent); err != nil {
		t.Fatal(err)
	}
	res := h.run(t, ctx, `FOR doc IN widgets FILTER doc.sku == "abc" RETURN doc`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row via full-scan fallback, got %d", len(res.Rows))
	}
}

func TestConjunctiveOrderByDrivesOutputOrder(t *testing.T) {
	h, ctx := newHarness(t)
	seedUsers(t, ctx, h)

	res := h.run(t, ctx, `FOR doc IN users FILTER doc.country == "US" SORT doc.age ASC RETURN doc`)
	ages := make([]int64, 0, len(res.Rows))
	for _, r := range res.Rows {
		m := r.Value.JSON.(map[string]any)
		ages = append(ages, m["age"].(int64))
	}
	for i := 1; i < len(ages); i++ {
		if ages[i] < ages[i-1] {
			t.Fatalf("expected ascending ages, got %v", ages)
		}
	}
}

func TestConjunctiveLimitTruncates(t *testing.T) {
	h, ctx := newHarness(t)
	seedUsers(t, ctx, h)

	res := h.run(t, ctx, `FOR doc IN users FILTER doc.country == "US" LIMIT 1 RETURN doc`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected LIMIT 1 to cap output, got %d rows", len(res.Rows))
	}
}
