package exec

import (
	"testing"

	"github.com/makr-code/themis/internal/core"
)

func TestJoinCartesianProductWithFilterAndLet(t *testing.T) {
	h, ctx := newHarness(t)
	for _, u := range []struct{ pk, userID, name, country string }{
		{"u1", "U1", "ada", "US"},
		{"u2", "U2", "bob", "FR"},
	} {
		ent := entity("users", u.pk, map[string]core.Value{
			"userID":  core.Str(u.userID),
			"name":    core.Str(u.name),
			"country": core.Str(u.country),
		})
		if err := h.secidx.Put(ctx, "users", ent); err != nil {
			t.Fatal(err)
		}
	}
	for _, o := range []struct {
		pk, userID string
		amount     int64
	}{
		{"o1", "U1", 100},
		{"o2", "U1", 50},
		{"o3", "U2", 20},
	} {
		ent := entity("orders", o.pk, map[string]core.Value{
			"userID": core.Str(o.userID),
			"amount": core.I64(o.amount),
		})
		if err := h.secidx.Put(ctx, "orders", ent); err != nil {
			t.Fatal(err)
		}
	}

	res := h.run(t, ctx, `FOR u IN users FOR o IN orders FILTER o.userID == u.userID AND u.country == "US" LET total = o.amount RETURN {name: u.name, total: total}`)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 joined rows for ada's two orders, got %d", len(res.Rows))
	}
	for _, r := range res.Rows {
		m := r.Value.JSON.(map[string]any)
		if m["name"].(string) != "ada" {
			t.Fatalf("expected only ada's orders to join, got %v", m)
		}
	}
}

func TestJoinCollectGroupsAndAggregates(t *testing.T) {
	h, ctx := newHarness(t)
	for _, o := range []struct {
		pk, country string
		amount      int64
	}{
		{"o1", "US", 100},
		{"o2", "US", 50},
		{"o3", "FR", 20},
	} {
		ent := entity("orders", o.pk, map[string]core.Value{
			"country": core.Str(o.country),
			"amount":  core.I64(o.amount),
		})
		if err := h.secidx.Put(ctx, "orders", ent); err != nil {
			t.Fatal(err)
		}
	}

	res := h.run(t, ctx, `FOR o IN orders COLLECT country = o.country AGGREGATE total = SUM(o.amount) RETURN {country: country, total: total}`)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(res.Rows))
	}
	totals := map[string]float64{}
	for _, r := range res.Rows {
		m := r.Value.JSON.(map[string]any)
		totals[m["country"].(string)] = m["total"].(float64)
	}
	if totals["US"] != 150 {
		t.Fatalf("expected US total 150, got %v", totals["US"])
	}
	if totals["FR"] != 20 {
		t.Fatalf("expected FR total 20, got %v", totals["FR"])
	}
}
