// Package vector implements the Vector Index (spec §4.6): one
// single-layer navigable-small-world graph per (table, field), with a
// brute-force flat fallback below the population threshold, distance
// computation delegated to the pluggable DistanceKernel capability.
// Grounded on amanmcp/internal/store's VectorStore interface shape and
// alfred-ai's HNSW-over-map adapter (both `other_examples`), reduced from
// multi-layer HNSW to a single navigable-small-world layer — documented in
// DESIGN.md as a deliberate scope reduction, since the recall-floor
// property (spec §8 property 10) only requires approximate nearest
// neighbors, not HNSW's specific layer structure.
package vector

import (
	"context"
	"sync"

	"github.com/makr-code/themis/internal/capability"
	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// node is one persisted/in-memory vector-index entry.
type node struct {
	pk        []byte
	vector    []float32
	neighbors []string // pks, by string form, for map-keying convenience
	deleted   bool
}

// graphState is the in-memory NSW graph for one (table, column) index.
type graphState struct {
	params core.VectorParams
	nodes  map[string]*node // keyed by string(pk)
	entry  string
}

func (g *graphState) liveEntry() string {
	if g.entry != "" {
		if n, ok := g.nodes[g.entry]; ok && !n.deleted {
			return g.entry
		}
	}
	for pk, n := range g.nodes {
		if !n.deleted {
			return pk
		}
	}
	return ""
}

func (g *graphState) liveCount() int {
	n := 0
	for _, nd := range g.nodes {
		if !nd.deleted {
			n++
		}
	}
	return n
}

// Engine is the Vector Index. One Engine instance serves every (table,
// column) vector index in a Themis store; each index's graph is loaded
// into memory lazily and guarded by its own RWMutex per spec §5's HNSW
// concurrency discipline.
type Engine struct {
	store       kv.Store
	catalog     *catalog.Catalog
	kernelName  string
	mu          sync.RWMutex
	graphs      map[string]*graphState // keyed by table + "\x00" + column
	graphLocks  map[string]*sync.RWMutex
}

// New returns an Engine over store using cat as the shared index catalog
// and the reference CPU DistanceKernel.
func New(store kv.Store, cat *catalog.Catalog) *Engine {
	return &Engine{
		store: store, catalog: cat, kernelName: capability.KernelCPU,
		graphs: map[string]*graphState{}, graphLocks: map[string]*sync.RWMutex{},
	}
}

// WithDistanceKernel returns a copy of e that delegates distance
// computation to the named registered DistanceKernel instead of the
// default.
func (e *Engine) WithDistanceKernel(name string) *Engine {
	out := *e
	out.kernelName = name
	return &out
}

func (e *Engine) kernel() (capability.DistanceKernel, error) {
	return capability.GetDistanceKernel(e.kernelName)
}

func graphKey(table, column string) string { return table + "\x00" + column }

func (e *Engine) lockFor(table, column string) *sync.RWMutex {
	key := graphKey(table, column)
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.graphLocks[key]
	if !ok {
		l = &sync.RWMutex{}
		e.graphLocks[key] = l
	}
	return l
}

// Init registers a vector index on (table, column) and persists its
// configuration, per spec §4.6 "init".
func (e *Engine) Init(ctx context.Context, table, column string, params core.VectorParams) error {
	if params.Dim <= 0 {
		return themiserr.New(themiserr.KindValidation, "vector index requires a positive dimension")
	}
	if err := e.catalog.Create(ctx, core.IndexDescriptor{Table: table, Column: column, Kind: core.IndexVectorANN, Vector: params}); err != nil {
		return err
	}
	e.mu.Lock()
	e.graphs[graphKey(table, column)] = &graphState{params: params, nodes: map[string]*node{}}
	e.mu.Unlock()
	return nil
}

// HasIndex reports whether a vector index is registered on (table, column).
func (e *Engine) HasIndex(table, column string) bool {
	return e.catalog.Has(table, column, core.IndexVectorANN)
}

// ensureLoaded returns the in-memory graph for (table, column), hydrating
// it from persisted node records on first use.
func (e *Engine) ensureLoaded(ctx context.Context, table, column string) (*graphState, error) {
	key := graphKey(table, column)
	e.mu.RLock()
	g, ok := e.graphs[key]
	e.mu.RUnlock()
	if ok {
		return g, nil
	}

	desc, ok := e.catalog.Get(table, column, core.IndexVectorANN)
	if !ok {
		return nil, themiserr.New(themiserr.KindNotFound, "no vector index on %s.%s", table, column)
	}
	loaded, err := e.loadFromStore(ctx, table, column, desc.Vector)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.graphs[key]; ok {
		return existing, nil // lost the race with a concurrent loader
	}
	e.graphs[key] = loaded
	return loaded, nil
}
