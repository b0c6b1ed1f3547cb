package vector

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/kv/memkv"
)

func newTestEngine(t *testing.T, dim int) (*Engine, context.Context) {
	t.Helper()
	store := memkv.New()
	cat := catalog.New(store)
	ctx := context.Background()
	e := New(store, cat)
	params := core.DefaultVectorParams(dim, core.MetricL2)
	params.FlatThreshold = 2 // force graph search in most of these tests
	if err := e.Init(ctx, "doc", "embedding", params); err != nil {
		t.Fatal(err)
	}
	return e, ctx
}

func TestAddVectorThenSearchKNNReturnsClosestFirst(t *testing.T) {
	e, ctx := newTestEngine(t, 2)
	vectors := map[string][]float32{
		"a": {0, 0},
		"b": {1, 1},
		"c": {10, 10},
		"d": {11, 11},
	}
	for pk, v := range vectors {
		if err := e.AddVector(ctx, "doc", "embedding", []byte(pk), v); err != nil {
			t.Fatal(err)
		}
	}
	results, err := e.SearchKNN(ctx, "doc", "embedding", []float32{0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if string(results[0].PK) != "a" {
		t.Fatalf("expected 'a' nearest to (0,0), got %q", results[0].PK)
	}
}

func TestRemoveEntityExcludesFromSearch(t *testing.T) {
	e, ctx := newTestEngine(t, 2)
	for pk, v := range map[string][]float32{"a": {0, 0}, "b": {1, 1}, "c": {2, 2}} {
		if err := e.AddVector(ctx, "doc", "embedding", []byte(pk), v); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.RemoveEntity(ctx, "doc", "embedding", []byte("a")); err != nil {
		t.Fatal(err)
	}
	results, err := e.SearchKNN(ctx, "doc", "embedding", []float32{0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if string(r.PK) == "a" {
			t.Fatalf("expected tombstoned 'a' excluded from results, got %v", results)
		}
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 live results, got %d", len(results))
	}
}

func TestAddVectorRejectsWrongDimension(t *testing.T) {
	e, ctx := newTestEngine(t, 3)
	err := e.AddVector(ctx, "doc", "embedding", []byte("a"), []float32{1, 2})
	if err == nil {
		t.Fatalf("expected a dimension-mismatch error")
	}
}

func TestAddEntityReadsVectorField(t *testing.T) {
	e, ctx := newTestEngine(t, 2)
	entity := core.NewEntity("doc", []byte("a"))
	entity.Set("embedding", core.Vector([]float32{1, 2}))
	if err := e.AddEntity(ctx, "doc", "embedding", entity); err != nil {
		t.Fatal(err)
	}
	results, err := e.SearchKNN(ctx, "doc", "embedding", []float32{1, 2}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || string(results[0].PK) != "a" {
		t.Fatalf("expected entity 'a' found, got %v", results)
	}
}

func TestSearchKNNPreFilteredRestrictsToCandidates(t *testing.T) {
	e, ctx := newTestEngine(t, 2)
	for pk, v := range map[string][]float32{"a": {0, 0}, "b": {1, 1}, "c": {2, 2}} {
		if err := e.AddVector(ctx, "doc", "embedding", []byte(pk), v); err != nil {
			t.Fatal(err)
		}
	}
	results, err := e.SearchKNNPreFiltered(ctx, "doc", "embedding", []float32{0, 0}, 3, [][]byte{[]byte("c")})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || string(results[0].PK) != "c" {
		t.Fatalf("expected only candidate 'c', got %v", results)
	}
}

func TestRebuildFromStorageRepopulatesGraph(t *testing.T) {
	e, ctx := newTestEngine(t, 2)
	if err := e.AddVector(ctx, "doc", "embedding", []byte("stale"), []float32{9, 9}); err != nil {
		t.Fatal(err)
	}
	source := map[string][]float32{"a": {0, 0}, "b": {1, 1}}
	err := e.RebuildFromStorage(ctx, "doc", "embedding", func(yield func(pk []byte, vec []float32) bool) error {
		for pk, v := range source {
			if !yield([]byte(pk), v) {
				break
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	results, err := e.SearchKNN(ctx, "doc", "embedding", []float32{0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected exactly the 2 rebuilt vectors, got %d: %v", len(results), results)
	}
	for _, r := range results {
		if string(r.PK) == "stale" {
			t.Fatalf("expected stale pre-rebuild entry gone, got %v", results)
		}
	}
}

func TestRebuildFromStorageSurvivesReload(t *testing.T) {
	store := memkv.New()
	cat := catalog.New(store)
	ctx := context.Background()
	e1 := New(store, cat)
	params := core.DefaultVectorParams(2, core.MetricL2)
	if err := e1.Init(ctx, "doc", "embedding", params); err != nil {
		t.Fatal(err)
	}
	if err := e1.AddVector(ctx, "doc", "embedding", []byte("a"), []float32{0, 0}); err != nil {
		t.Fatal(err)
	}

	// Fresh Engine over the same store+catalog: nothing is cached in memory.
	e2 := New(store, cat)
	results, err := e2.SearchKNN(ctx, "doc", "embedding", []float32{0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || string(results[0].PK) != "a" {
		t.Fatalf("expected persisted node 'a' to survive reload, got %v", results)
	}
}
