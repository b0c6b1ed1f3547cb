package secidx

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/core"
)

func sessionEntity(pk string, expire int64) *core.Entity {
	e := core.NewEntity("session", []byte(pk))
	e.Set("expire_at", core.I64(expire))
	return e
}

func TestRunTTLCleanupErasesExpiredRows(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateTTLIndex(ctx, "session", "expire_at", 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "session", sessionEntity("s1", 100)); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "session", sessionEntity("s2", 200)); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "session", sessionEntity("s3", 300)); err != nil {
		t.Fatal(err)
	}

	erased, err := e.RunTTLCleanup(ctx, 250, 0)
	if err != nil {
		t.Fatal(err)
	}
	if erased != 2 {
		t.Fatalf("expected 2 rows erased, got %d", erased)
	}
	if _, ok, _ := e.Get(ctx, "session", []byte("s1")); ok {
		t.Fatalf("expected s1 erased")
	}
	if _, ok, _ := e.Get(ctx, "session", []byte("s2")); ok {
		t.Fatalf("expected s2 erased")
	}
	if _, ok, _ := e.Get(ctx, "session", []byte("s3")); !ok {
		t.Fatalf("expected s3 to survive (not yet expired)")
	}
}

func TestRunTTLCleanupRespectsBudget(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateTTLIndex(ctx, "session", "expire_at", 0); err != nil {
		t.Fatal(err)
	}
	for i, pk := range []string{"s1", "s2", "s3"} {
		if err := e.Put(ctx, "session", sessionEntity(pk, int64(100+i))); err != nil {
			t.Fatal(err)
		}
	}
	erased, err := e.RunTTLCleanup(ctx, 1000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if erased != 2 {
		t.Fatalf("expected budget-capped 2 rows erased, got %d", erased)
	}
}

func TestRunTTLCleanupNoExpiredRowsIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	if err := e.CreateTTLIndex(ctx, "session", "expire_at", 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Put(ctx, "session", sessionEntity("s1", 500)); err != nil {
		t.Fatal(err)
	}
	erased, err := e.RunTTLCleanup(ctx, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if erased != 0 {
		t.Fatalf("expected 0 rows erased, got %d", erased)
	}
}
