package exec

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/entitystore"
	"github.com/makr-code/themis/internal/graph"
	"github.com/makr-code/themis/internal/kv/memkv"
	"github.com/makr-code/themis/internal/secidx"
	"github.com/makr-code/themis/internal/spatial"
	"github.com/makr-code/themis/internal/vector"
)

// harness wires every index engine over one in-memory store, the same way
// the write path and the CLI's query command do, for realistic end-to-end
// exec tests driven through the real parser and translator.
type harness struct {
	secidx  *secidx.Engine
	spatial *spatial.Engine
	vector  *vector.Engine
	graph   *graph.Engine
	catalog *catalog.Catalog
	engine  *Engine
}

func newHarness(t *testing.T) (*harness, context.Context) {
	t.Helper()
	store := memkv.New()
	cat := catalog.New(store)
	h := &harness{
		secidx:  secidx.New(store, cat, entitystore.JSONCodec{}),
		spatial: spatial.New(store, cat),
		vector:  vector.New(store, cat),
		graph:   graph.New(store),
		catalog: cat,
	}
	h.engine = NewEngine(h.secidx, h.spatial, h.vector, h.graph, cat)
	return h, context.Background()
}

// run parses, translates, and executes src against h, failing the test on
// any stage error.
func (h *harness) run(t *testing.T, ctx context.Context, src string) *Result {
	t.Helper()
	q, err := aql.Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	plan, err := translate.Translate(q)
	if err != nil {
		t.Fatalf("translate %q: %v", src, err)
	}
	res, err := h.engine.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("execute %q: %v", src, err)
	}
	return res
}

func entity(table, pk string, fields map[string]core.Value) *core.Entity {
	e := core.NewEntity(table, []byte(pk))
	for k, v := range fields {
		e.Set(k, v)
	}
	return e
}

func rowFieldStrings(t *testing.T, rows []Row, field string) []string {
	t.Helper()
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		m, ok := r.Value.JSON.(map[string]any)
		if !ok {
			t.Fatalf("row value is not an object: %#v", r.Value)
		}
		s, _ := m[field].(string)
		out = append(out, s)
	}
	return out
}
