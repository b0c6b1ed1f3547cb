package exec

import (
	"testing"
)

func TestDisjunctiveUnionsBlocksWithoutDuplicates(t *testing.T) {
	h, ctx := newHarness(t)
	seedUsers(t, ctx, h)

	res := h.run(t, ctx, `FOR doc IN users FILTER doc.country == "FR" OR doc.age < 18 RETURN doc`)
	names := rowFieldStrings(t, res.Rows, "name")
	if len(names) != 2 {
		t.Fatalf("expected 2 rows (cleo via FR, bob via age<18), got %d (%v)", len(names), names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Fatalf("duplicate row for %q in union result: %v", n, names)
		}
		seen[n] = true
	}
	if !seen["cleo"] || !seen["bob"] {
		t.Fatalf("expected cleo and bob, got %v", names)
	}
}
