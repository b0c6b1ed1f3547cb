package spatial

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/geometry"
	"github.com/makr-code/themis/internal/kv/memkv"
)

func newTestEngine(t *testing.T) (*Engine, context.Context) {
	t.Helper()
	store := memkv.New()
	cat := catalog.New(store)
	ctx := context.Background()
	e := New(store, cat)
	if err := e.CreateIndex(ctx, "poi", "geom", core.SpatialParams{
		MinX: -10, MinY: -10, MaxX: 10, MaxY: 10,
	}); err != nil {
		t.Fatal(err)
	}
	return e, ctx
}

func sidecarAt(t *testing.T, x, y float64) geometry.Sidecar {
	t.Helper()
	sc, err := geometry.ComputeSidecar(geometry.NewPoint(x, y, 0, false))
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func TestInsertThenSearchIntersects(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Insert(ctx, "poi", "geom", []byte("a"), sidecarAt(t, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := e.Insert(ctx, "poi", "geom", []byte("b"), sidecarAt(t, 5, 5)); err != nil {
		t.Fatal(err)
	}
	matches, err := e.SearchIntersects(ctx, "poi", "geom", geometry.MBR{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || string(matches[0]) != "a" {
		t.Fatalf("expected only 'a' to intersect, got %v", strPKs(matches))
	}
}

func TestRemoveDeletesEntryAndEmptiesBucket(t *testing.T) {
	e, ctx := newTestEngine(t)
	sc := sidecarAt(t, 3, 3)
	if err := e.Insert(ctx, "poi", "geom", []byte("a"), sc); err != nil {
		t.Fatal(err)
	}
	if err := e.Remove(ctx, "poi", "geom", []byte("a"), sc); err != nil {
		t.Fatal(err)
	}
	matches, err := e.SearchIntersects(ctx, "poi", "geom", geometry.MBR{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches after remove, got %v", strPKs(matches))
	}
}

func TestUpdateMovesEntryBetweenBuckets(t *testing.T) {
	e, ctx := newTestEngine(t)
	oldSC := sidecarAt(t, -8, -8)
	newSC := sidecarAt(t, 8, 8)
	if err := e.Insert(ctx, "poi", "geom", []byte("a"), oldSC); err != nil {
		t.Fatal(err)
	}
	if err := e.Update(ctx, "poi", "geom", []byte("a"), oldSC, newSC); err != nil {
		t.Fatal(err)
	}
	oldMatches, err := e.SearchIntersects(ctx, "poi", "geom", geometry.MBR{MinX: -10, MinY: -10, MaxX: -6, MaxY: -6}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(oldMatches) != 0 {
		t.Fatalf("expected old bucket empty after update, got %v", strPKs(oldMatches))
	}
	newMatches, err := e.SearchIntersects(ctx, "poi", "geom", geometry.MBR{MinX: 6, MinY: 6, MaxX: 10, MaxY: 10}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(newMatches) != 1 || string(newMatches[0]) != "a" {
		t.Fatalf("expected 'a' in new bucket, got %v", strPKs(newMatches))
	}
}

func TestSearchWithinRequiresStrictContainment(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Insert(ctx, "poi", "geom", []byte("inside"), sidecarAt(t, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := e.Insert(ctx, "poi", "geom", []byte("outside"), sidecarAt(t, 9, 9)); err != nil {
		t.Fatal(err)
	}
	matches, err := e.SearchWithin(ctx, "poi", "geom", geometry.MBR{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2}, 0, 0, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || string(matches[0]) != "inside" {
		t.Fatalf("expected only 'inside', got %v", strPKs(matches))
	}
}

func TestSearchContainsFindsPointHit(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Insert(ctx, "poi", "geom", []byte("a"), sidecarAt(t, 2, 2)); err != nil {
		t.Fatal(err)
	}
	matches, err := e.SearchContains(ctx, "poi", "geom", 2, 2, 0, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || string(matches[0]) != "a" {
		t.Fatalf("expected 'a' to contain the point, got %v", strPKs(matches))
	}
}

func TestSearchNearbyFiltersByDistanceAndSorts(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Insert(ctx, "poi", "geom", []byte("near"), sidecarAt(t, 0.001, 0.001)); err != nil {
		t.Fatal(err)
	}
	if err := e.Insert(ctx, "poi", "geom", []byte("far"), sidecarAt(t, 9, 9)); err != nil {
		t.Fatal(err)
	}
	matches, err := e.SearchNearby(ctx, "poi", "geom", 0, 0, 5000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || string(matches[0]) != "near" {
		t.Fatalf("expected only 'near' within 5km, got %v", strPKs(matches))
	}
}

func TestSearchKNNReturnsClosestFirst(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Insert(ctx, "poi", "geom", []byte("p1"), sidecarAt(t, 0.01, 0.01)); err != nil {
		t.Fatal(err)
	}
	if err := e.Insert(ctx, "poi", "geom", []byte("p2"), sidecarAt(t, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := e.Insert(ctx, "poi", "geom", []byte("p3"), sidecarAt(t, 5, 5)); err != nil {
		t.Fatal(err)
	}
	matches, err := e.SearchKNN(ctx, "poi", "geom", 0, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || string(matches[0]) != "p1" || string(matches[1]) != "p2" {
		t.Fatalf("expected [p1 p2] nearest, got %v", strPKs(matches))
	}
}

func TestDropIndexRemovesBucketsAndDescriptor(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Insert(ctx, "poi", "geom", []byte("a"), sidecarAt(t, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := e.DropIndex(ctx, "poi", "geom"); err != nil {
		t.Fatal(err)
	}
	if e.HasIndex("poi", "geom") {
		t.Fatalf("expected index dropped")
	}
	if _, err := e.SearchIntersects(ctx, "poi", "geom", geometry.MBR{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10}, 0); err == nil {
		t.Fatalf("expected error searching a dropped index")
	}
}

func strPKs(pks [][]byte) []string {
	out := make([]string, len(pks))
	for i, p := range pks {
		out[i] = string(p)
	}
	return out
}
