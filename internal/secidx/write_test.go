package secidx

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/entitystore"
	"github.com/makr-code/themis/internal/kv/memkv"
	"github.com/makr-code/themis/internal/themiserr"
)

func newTestEngine() *Engine {
	store := memkv.New()
	cat := catalog.New(store)
	return New(store, cat, entitystore.JSONCodec{})
}

func personEntity(pk, name string, age int64) *core.Entity {
	e := core.NewEntity("person", []byte(pk))
	e.Set("name", core.Str(name))
	e.Set("age", core.I64(age))
	return e
}

func TestPutIndexesThenScanEquals(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateEqualityIndex(ctx, "person", "name", false); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "person", personEntity("p1", "ada", 30)); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "person", personEntity("p2", "ada", 31)); err != nil {
		t.Fatal(err)
	}
	pks, err := e.ScanKeysEqual(ctx, "person", "name", core.Str("ada"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(pks))
	}
}

func TestPutUniqueViolationRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateEqualityIndex(ctx, "person", "name", true); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "person", personEntity("p1", "ada", 30)); err != nil {
		t.Fatal(err)
	}
	err := e.Put(ctx, "person", personEntity("p2", "ada", 31))
	if themiserr.KindOf(err) != themiserr.KindUnique {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestPutReplacingValueMovesIndexEntry(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateEqualityIndex(ctx, "person", "name", false); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "person", personEntity("p1", "ada", 30)); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "person", personEntity("p1", "grace", 30)); err != nil {
		t.Fatal(err)
	}
	adaMatches, _ := e.ScanKeysEqual(ctx, "person", "name", core.Str("ada"), 0)
	graceMatches, _ := e.ScanKeysEqual(ctx, "person", "name", core.Str("grace"), 0)
	if len(adaMatches) != 0 {
		t.Fatalf("expected stale index entry removed, found %d", len(adaMatches))
	}
	if len(graceMatches) != 1 {
		t.Fatalf("expected new index entry, found %d", len(graceMatches))
	}
}

func TestSparseIndexSkipsEmptyValues(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateSparseIndex(ctx, "person", "nickname"); err != nil {
		t.Fatal(err)
	}
	entity := core.NewEntity("person", []byte("p1"))
	entity.Set("nickname", core.Str(""))
	if err := e.Put(ctx, "person", entity); err != nil {
		t.Fatal(err)
	}
	matches, err := e.ScanKeysEqual(ctx, "person", "nickname", core.Str(""), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no sparse entry for empty value, got %d", len(matches))
	}
}

func TestEraseRemovesEntityAndIndexEntries(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateEqualityIndex(ctx, "person", "name", false); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "person", personEntity("p1", "ada", 30)); err != nil {
		t.Fatal(err)
	}
	if err := e.Erase(ctx, "person", []byte("p1")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := e.Get(ctx, "person", []byte("p1")); ok {
		t.Fatalf("expected entity gone after erase")
	}
	matches, _ := e.ScanKeysEqual(ctx, "person", "name", core.Str("ada"), 0)
	if len(matches) != 0 {
		t.Fatalf("expected index entry gone after erase, got %d", len(matches))
	}
}

func TestEraseMissingEntityIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.Erase(ctx, "person", []byte("ghost")); err != nil {
		t.Fatalf("expected no error erasing missing entity, got %v", err)
	}
}

func TestFulltextPutMaintainsAggregateAndPostings(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateFulltextIndex(ctx, "doc", "body", core.DefaultFulltextParams()); err != nil {
		t.Fatal(err)
	}
	d1 := core.NewEntity("doc", []byte("d1"))
	d1.Set("body", core.Str("the quick brown fox"))
	if err := e.Put(ctx, "doc", d1); err != nil {
		t.Fatal(err)
	}
	d2 := core.NewEntity("doc", []byte("d2"))
	d2.Set("body", core.Str("the lazy dog"))
	if err := e.Put(ctx, "doc", d2); err != nil {
		t.Fatal(err)
	}
	agg, err := e.readAggregate(ctx, "doc", "body")
	if err != nil {
		t.Fatal(err)
	}
	if agg.DocCount != 2 {
		t.Fatalf("expected DocCount 2, got %d", agg.DocCount)
	}

	if err := e.Erase(ctx, "doc", []byte("d1")); err != nil {
		t.Fatal(err)
	}
	agg, err = e.readAggregate(ctx, "doc", "body")
	if err != nil {
		t.Fatal(err)
	}
	if agg.DocCount != 1 {
		t.Fatalf("expected DocCount 1 after erase, got %d", agg.DocCount)
	}
}

func TestFulltextPutReplacesPostingsOnUpdate(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateFulltextIndex(ctx, "doc", "body", core.DefaultFulltextParams()); err != nil {
		t.Fatal(err)
	}
	d1 := core.NewEntity("doc", []byte("d1"))
	d1.Set("body", core.Str("alpha beta"))
	if err := e.Put(ctx, "doc", d1); err != nil {
		t.Fatal(err)
	}
	d1b := core.NewEntity("doc", []byte("d1"))
	d1b.Set("body", core.Str("gamma delta"))
	if err := e.Put(ctx, "doc", d1b); err != nil {
		t.Fatal(err)
	}

	alphaHits, err := e.ScanFulltext(ctx, "doc", "body", "alpha", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(alphaHits) != 0 {
		t.Fatalf("expected stale token removed, found %d hits", len(alphaHits))
	}
	gammaHits, err := e.ScanFulltext(ctx, "doc", "body", "gamma", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(gammaHits) != 1 {
		t.Fatalf("expected new token indexed, found %d hits", len(gammaHits))
	}
}
