// Package spatial implements the spatial index (spec §4.4): an R-tree
// emulated as a flat Morton-bucket map over internal/morton, with exact
// pairwise predicates delegated to the ExactGeometryBackend capability
// after a coarse Morton-range / MBR filter. Grounded on internal/geometry
// (MBR/Sidecar, haversine) and internal/morton (Z-order encode/decode,
// bbox-to-ranges); no spatial index library appears anywhere in the
// example pack, so bucket management is hand-written, matching spec §4.4's
// "flat Morton-bucket map" description directly.
package spatial

import (
	"context"

	"github.com/makr-code/themis/internal/capability"
	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/geometry"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/morton"
	"github.com/makr-code/themis/internal/themiserr"
)

// maxMortonRanges bounds how many Morton-code ranges a single query
// decomposes into; spec §4.2 allows the decomposition to over-cover
// (false positives, never false negatives) when a budget is hit.
const maxMortonRanges = 64

// Engine is the spatial index. One Engine instance serves an entire
// Themis store, mirroring internal/secidx.Engine's shape.
type Engine struct {
	store       kv.Store
	catalog     *catalog.Catalog
	backendName string
}

// New returns an Engine over store using cat as the shared index catalog
// and the reference CPU ExactGeometryBackend.
func New(store kv.Store, cat *catalog.Catalog) *Engine {
	return &Engine{store: store, catalog: cat, backendName: capability.GeometryBackendCPU}
}

// WithGeometryBackend returns a copy of e that delegates exact predicates
// to the named registered ExactGeometryBackend instead of the default.
func (e *Engine) WithGeometryBackend(name string) *Engine {
	out := *e
	out.backendName = name
	return &out
}

func (e *Engine) backend() (geometry.ExactGeometryBackend, error) {
	return capability.GetGeometryBackend(e.backendName)
}

// CreateIndex registers a spatial index on (table, column) with the given
// global bounds/dimensionality/fanout, per spec §4.4 "create".
func (e *Engine) CreateIndex(ctx context.Context, table, column string, params core.SpatialParams) error {
	if params.Fanout <= 0 {
		params.Fanout = 64
	}
	return e.catalog.Create(ctx, core.IndexDescriptor{
		Table: table, Column: column, Kind: core.IndexSpatial, Spatial: params,
	})
}

// DropIndex deletes every bucket plus the descriptor for (table, column).
// Succeeds (no-op) if nothing is registered.
func (e *Engine) DropIndex(ctx context.Context, table, column string) error {
	if !e.catalog.Has(table, column, core.IndexSpatial) {
		return nil
	}
	var keys [][]byte
	prefix := keyschema.SpatialTablePrefix(table)
	if err := e.store.ScanPrefix(ctx, prefix, func(key, _ []byte) bool {
		k := make([]byte, len(key))
		copy(k, key)
		keys = append(keys, k)
		return true
	}); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "spatial dropIndex: scan %s.%s", table, column)
	}
	batch := e.store.OpenWriteBatch()
	for _, k := range keys {
		batch.Delete(k)
	}
	if batch.Len() > 0 {
		if err := batch.Commit(ctx); err != nil {
			return themiserr.Wrap(themiserr.KindStore, err, "spatial dropIndex: commit %s.%s", table, column)
		}
	} else {
		batch.Discard()
	}
	return e.catalog.Drop(ctx, table, column, core.IndexSpatial)
}

// HasIndex reports whether a spatial index is registered on (table, column).
func (e *Engine) HasIndex(table, column string) bool {
	return e.catalog.Has(table, column, core.IndexSpatial)
}

func (e *Engine) bounds(desc core.IndexDescriptor) morton.Bounds {
	return morton.Bounds{
		MinX: desc.Spatial.MinX, MinY: desc.Spatial.MinY,
		MaxX: desc.Spatial.MaxX, MaxY: desc.Spatial.MaxY,
		MinZ: desc.Spatial.MinZ, MaxZ: desc.Spatial.MaxZ,
	}
}

func (e *Engine) codeFor(desc core.IndexDescriptor, sc geometry.Sidecar) uint64 {
	b := e.bounds(desc)
	if desc.Spatial.ThreeD {
		return morton.Encode3D(sc.CentroidX, sc.CentroidY, sc.CentroidZ, b)
	}
	return morton.Encode2D(sc.CentroidX, sc.CentroidY, b)
}
