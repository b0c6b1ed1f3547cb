package graph

import (
	"context"
	"reflect"
	"testing"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/kv/memkv"
)

func newTestEngine() *Engine {
	return New(memkv.New())
}

func vertexPath(vs ...string) [][]byte {
	out := make([][]byte, len(vs))
	for i, v := range vs {
		out[i] = []byte(v)
	}
	return out
}

func windowedEdge(id, from, to string, validFrom, validTo int64) Edge {
	return Edge{
		ID: id, From: from, To: to,
		Properties: map[string]core.Value{
			"valid_from": core.I64(validFrom),
			"valid_to":   core.I64(validTo),
		},
	}
}

func TestAddEdgeThenBFSVisitsReachableVertices(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	must(t, e.AddEdge(ctx, Edge{ID: "e1", From: "a", To: "b"}))
	must(t, e.AddEdge(ctx, Edge{ID: "e2", From: "b", To: "c"}))
	must(t, e.AddEdge(ctx, Edge{ID: "e3", From: "a", To: "d"}))

	order, err := e.BFS(ctx, []byte("a"), 0)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, v := range order {
		got[string(v)] = true
	}
	for _, want := range []string{"a", "b", "c", "d"} {
		if !got[want] {
			t.Fatalf("expected %q reachable, got %v", want, order)
		}
	}
}

func TestBFSRespectsMaxDepth(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	must(t, e.AddEdge(ctx, Edge{ID: "e1", From: "a", To: "b"}))
	must(t, e.AddEdge(ctx, Edge{ID: "e2", From: "b", To: "c"}))

	order, err := e.BFS(ctx, []byte("a"), 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range order {
		if string(v) == "c" {
			t.Fatalf("expected 'c' excluded at max_depth=1, got %v", order)
		}
	}
}

func TestRemoveEdgeBreaksAdjacency(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	must(t, e.AddEdge(ctx, Edge{ID: "e1", From: "a", To: "b"}))
	must(t, e.RemoveEdge(ctx, "e1"))

	order, err := e.BFS(ctx, []byte("a"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 1 {
		t.Fatalf("expected only 'a' reachable after edge removal, got %v", order)
	}
	if _, ok, err := e.GetEdge(ctx, "e1"); err != nil || ok {
		t.Fatalf("expected edge record gone, ok=%v err=%v", ok, err)
	}
}

func TestShortestPathReturnsFewestEdgesRoute(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	must(t, e.AddEdge(ctx, Edge{ID: "e1", From: "a", To: "b"}))
	must(t, e.AddEdge(ctx, Edge{ID: "e2", From: "b", To: "c"}))
	must(t, e.AddEdge(ctx, Edge{ID: "e3", From: "a", To: "c"}))

	path, found, err := e.ShortestPath(ctx, []byte("a"), []byte("c"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatalf("expected a path to be found")
	}
	if !reflect.DeepEqual(path, vertexPath("a", "c")) {
		t.Fatalf("expected direct a->c edge as shortest path, got %v", path)
	}
}

func TestShortestPathUnreachableReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	must(t, e.AddEdge(ctx, Edge{ID: "e1", From: "a", To: "b"}))

	_, found, err := e.ShortestPath(ctx, []byte("a"), []byte("z"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatalf("expected no path to an unreachable vertex")
	}
}

// TestRecursivePathQueryTemporalWindow exercises the temporal recursive
// path scenario: A->B valid [1000,2000], B->C valid [1500,3000],
// A->C valid [2500,4000]. At valid_from=1600 only A->B and B->C are
// active, so the only path from A to C is [A,B,C]; at valid_from=500
// nothing is active yet, so no path exists.
func TestRecursivePathQueryTemporalWindow(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	must(t, e.AddEdge(ctx, windowedEdge("ab", "A", "B", 1000, 2000)))
	must(t, e.AddEdge(ctx, windowedEdge("bc", "B", "C", 1500, 3000)))
	must(t, e.AddEdge(ctx, windowedEdge("ac", "A", "C", 2500, 4000)))

	active := int64(1600)
	paths, err := e.RecursivePathQuery(ctx, PathQuery{
		Start: []byte("A"), End: []byte("C"), MaxDepth: 5, ValidFrom: &active,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || !reflect.DeepEqual(paths[0], vertexPath("A", "B", "C")) {
		t.Fatalf("expected [[A B C]] at t=1600, got %v", paths)
	}

	inactive := int64(500)
	paths, err = e.RecursivePathQuery(ctx, PathQuery{
		Start: []byte("A"), End: []byte("C"), MaxDepth: 5, ValidFrom: &inactive,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 0 {
		t.Fatalf("expected no paths at t=500, got %v", paths)
	}
}

func TestRecursivePathQueryFiltersByEdgeType(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	must(t, e.AddEdge(ctx, Edge{ID: "e1", From: "a", To: "b", Type: "follows"}))
	must(t, e.AddEdge(ctx, Edge{ID: "e2", From: "a", To: "c", Type: "blocks"}))

	paths, err := e.RecursivePathQuery(ctx, PathQuery{Start: []byte("a"), EdgeType: "follows", MaxDepth: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || string(paths[0][len(paths[0])-1]) != "b" {
		t.Fatalf("expected only the 'follows' edge's path, got %v", paths)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
