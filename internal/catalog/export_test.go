package catalog

import (
	"bytes"
	"context"
	"testing"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/kv/memkv"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := New(memkv.New())
	if err := src.Create(ctx, core.IndexDescriptor{Table: "users", Column: "email", Kind: core.IndexEquality, Unique: true}); err != nil {
		t.Fatal(err)
	}
	if err := src.Create(ctx, core.IndexDescriptor{Table: "users", Column: "age", Kind: core.IndexRange}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := New(memkv.New())
	n, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported descriptors, got %d", n)
	}
	if !dst.Has("users", "email", core.IndexEquality) || !dst.Has("users", "age", core.IndexRange) {
		t.Fatalf("expected both descriptors present after import")
	}
}

func TestImportSkipsExistingDescriptors(t *testing.T) {
	ctx := context.Background()
	src := New(memkv.New())
	if err := src.Create(ctx, core.IndexDescriptor{Table: "users", Column: "email", Kind: core.IndexEquality}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatal(err)
	}

	dst := New(memkv.New())
	if err := dst.Create(ctx, core.IndexDescriptor{Table: "users", Column: "email", Kind: core.IndexEquality, Unique: true}); err != nil {
		t.Fatal(err)
	}
	n, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 newly-created descriptors (already present), got %d", n)
	}
	got, _ := dst.Get("users", "email", core.IndexEquality)
	if !got.Unique {
		t.Fatalf("expected pre-existing descriptor untouched by import, got %+v", got)
	}
}
