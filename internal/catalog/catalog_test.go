package catalog

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/kv/memkv"
	"github.com/makr-code/themis/internal/themiserr"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	c := New(memkv.New())

	desc := core.IndexDescriptor{Table: "users", Column: "email", Kind: core.IndexEquality, Unique: true}
	if err := c.Create(ctx, desc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok := c.Get("users", "email", core.IndexEquality)
	if !ok {
		t.Fatalf("expected descriptor to be found")
	}
	if !got.Unique {
		t.Fatalf("expected unique flag to persist")
	}
}

func TestCreateDuplicateErrorsUnique(t *testing.T) {
	ctx := context.Background()
	c := New(memkv.New())
	desc := core.IndexDescriptor{Table: "users", Column: "email", Kind: core.IndexEquality}
	if err := c.Create(ctx, desc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := c.Create(ctx, desc)
	if err == nil {
		t.Fatalf("expected duplicate create to error")
	}
	if themiserr.KindOf(err) != themiserr.KindUnique {
		t.Fatalf("expected KindUnique, got %v", themiserr.KindOf(err))
	}
}

func TestDropRemovesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	c := New(memkv.New())
	desc := core.IndexDescriptor{Table: "users", Column: "email", Kind: core.IndexEquality}
	if err := c.Create(ctx, desc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Drop(ctx, "users", "email", core.IndexEquality); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if c.Has("users", "email", core.IndexEquality) {
		t.Fatalf("expected index to be gone after Drop")
	}
}

func TestDropUnknownErrorsNotFound(t *testing.T) {
	ctx := context.Background()
	c := New(memkv.New())
	err := c.Drop(ctx, "users", "email", core.IndexEquality)
	if err == nil {
		t.Fatalf("expected error dropping nonexistent index")
	}
	if themiserr.KindOf(err) != themiserr.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", themiserr.KindOf(err))
	}
}

func TestListSortedByColumnThenKind(t *testing.T) {
	ctx := context.Background()
	c := New(memkv.New())
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	must(c.Create(ctx, core.IndexDescriptor{Table: "users", Column: "name", Kind: core.IndexEquality}))
	must(c.Create(ctx, core.IndexDescriptor{Table: "users", Column: "bio", Kind: core.IndexFulltext, Analyzer: core.DefaultFulltextParams()}))
	must(c.Create(ctx, core.IndexDescriptor{Table: "users", Column: "name", Kind: core.IndexFulltext, Analyzer: core.DefaultFulltextParams()}))

	list := c.List("users")
	if len(list) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(list))
	}
	if list[0].Column != "bio" {
		t.Fatalf("expected bio first alphabetically, got %s", list[0].Column)
	}
	if list[1].Column != "name" || list[1].Kind != core.IndexEquality {
		t.Fatalf("expected name/equality before name/fulltext, got %+v", list[1])
	}
}

func TestLoadRebuildsFromPersistedState(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	c1 := New(store)
	if err := c1.Create(ctx, core.IndexDescriptor{Table: "users", Column: "email", Kind: core.IndexEquality}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	c2 := New(store)
	if err := c2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c2.Has("users", "email", core.IndexEquality) {
		t.Fatalf("expected reloaded catalog to contain persisted index")
	}
}

func TestCreateValidatesVectorDimension(t *testing.T) {
	ctx := context.Background()
	c := New(memkv.New())
	err := c.Create(ctx, core.IndexDescriptor{Table: "docs", Column: "embedding", Kind: core.IndexVectorANN})
	if err == nil {
		t.Fatalf("expected error for missing vector dimension")
	}
	if themiserr.KindOf(err) != themiserr.KindValidation {
		t.Fatalf("expected KindValidation, got %v", themiserr.KindOf(err))
	}
}

func TestCreateValidatesCompositeColumnCount(t *testing.T) {
	ctx := context.Background()
	c := New(memkv.New())
	err := c.Create(ctx, core.IndexDescriptor{Table: "orders", Column: "customer_id", Columns: []string{"customer_id"}, Kind: core.IndexComposite})
	if err == nil {
		t.Fatalf("expected error for single-column composite index")
	}
}
