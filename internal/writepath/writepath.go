// Package writepath implements the atomic write path (spec §4.8): one
// entity put or delete, fanned out into the secondary-index engine, the
// spatial sidecar, the graph adjacency (when the entity carries edges is
// out of scope here; edges are written through internal/graph directly),
// and the vector index. Grounded on the teacher's internal/apply package's
// "open scope, mutate, commit-or-discard" shape (internal/apply/apply.go's
// applyWithTransaction), generalized from a live SQL transaction to a
// single internal/kv.Batch.
package writepath

import (
	"context"

	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/geometry"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/secidx"
	"github.com/makr-code/themis/internal/spatial"
	"github.com/makr-code/themis/internal/themiserr"
	"github.com/makr-code/themis/internal/vector"
)

// Mode selects how the spatial sidecar update is enlisted relative to the
// primary entity put, per spec §9's "spatial hook batch sharing" open
// question.
type Mode int

const (
	// ModeAtomic stages the spatial sidecar mutation into the same
	// write-batch as the primary entity put and the secondary indexes, so
	// a crash between the two is impossible; this is the default and the
	// spec's recommended resolution.
	ModeAtomic Mode = iota
	// ModeBestEffort commits the primary put first, then applies the
	// spatial/vector hooks as separate, unbatched operations, for stores
	// whose kv.Store implementation cannot compose an arbitrarily large
	// batch (e.g. a remote KV service with a batch size ceiling).
	ModeBestEffort
)

// Path fans a single entity mutation out to every index that has opted in
// via the catalog, per spec §4.8.
type Path struct {
	store   kv.Store
	catalog *catalog.Catalog
	secidx  *secidx.Engine
	spatial *spatial.Engine
	vector  *vector.Engine
	mode    Mode
}

// New returns a Path wiring secidx/spatial/vector engines that already
// share store and catalog. mode selects ModeAtomic or ModeBestEffort.
func New(store kv.Store, cat *catalog.Catalog, si *secidx.Engine, sp *spatial.Engine, ve *vector.Engine, mode Mode) *Path {
	return &Path{store: store, catalog: cat, secidx: si, spatial: sp, vector: ve, mode: mode}
}

// Put writes entity, updating every secondary index, spatial sidecar and
// vector-index entry registered for its table, per spec §4.8's put
// protocol. The vector hook always runs after commit: spec §4.6 documents
// AddEntity as idempotent re-insertion, so there is no atomicity
// requirement forcing it into the same batch as the scalar indexes, and
// its update cost (NSW neighbor relinking) is too heavy to hold a
// write-batch open for.
func (p *Path) Put(ctx context.Context, table string, entity *core.Entity) error {
	switch p.mode {
	case ModeBestEffort:
		return p.putBestEffort(ctx, table, entity)
	default:
		return p.putAtomic(ctx, table, entity)
	}
}

func (p *Path) putAtomic(ctx context.Context, table string, entity *core.Entity) error {
	old, oldExists, err := p.secidx.Get(ctx, table, entity.PK)
	if err != nil {
		return err
	}

	batch := p.store.OpenWriteBatch()
	if err := p.secidx.PutWithBatch(ctx, table, entity, batch); err != nil {
		batch.Discard()
		return err
	}
	if err := p.stageSpatialHooks(ctx, table, entity, old, oldExists, batch); err != nil {
		batch.Discard()
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "writepath put %s/%s: commit", table, string(entity.PK))
	}

	return p.runVectorHooks(ctx, table, entity)
}

func (p *Path) putBestEffort(ctx context.Context, table string, entity *core.Entity) error {
	old, oldExists, err := p.secidx.Get(ctx, table, entity.PK)
	if err != nil {
		return err
	}
	if err := p.secidx.Put(ctx, table, entity); err != nil {
		return err
	}
	if oldExists {
		p.removeSpatialEntries(ctx, table, old)
	}
	if err := p.runSpatialHooksUnbatched(ctx, table, entity); err != nil {
		return err
	}
	return p.runVectorHooks(ctx, table, entity)
}

// Delete erases entity (table, pk) plus every index entry it carried. A
// no-op (success) if the row does not exist.
func (p *Path) Delete(ctx context.Context, table string, pk []byte) error {
	old, oldExists, err := p.secidx.Get(ctx, table, pk)
	if err != nil {
		return err
	}
	if !oldExists {
		return nil
	}

	switch p.mode {
	case ModeBestEffort:
		if err := p.secidx.Erase(ctx, table, pk); err != nil {
			return err
		}
		p.removeSpatialEntries(ctx, table, old)
	default:
		batch := p.store.OpenWriteBatch()
		if _, err := p.secidx.EraseWithBatch(ctx, table, pk, batch); err != nil {
			batch.Discard()
			return err
		}
		p.stageSpatialRemovals(ctx, table, old, batch)
		if err := batch.Commit(ctx); err != nil {
			return themiserr.Wrap(themiserr.KindStore, err, "writepath delete %s/%s: commit", table, string(pk))
		}
	}

	return p.removeVectorEntries(ctx, table, pk)
}

// stageSpatialHooks stages an insert/update/no-op into batch for every
// spatial column registered on table, comparing old and new sidecars so an
// update that didn't move buckets still replaces the entry in place.
func (p *Path) stageSpatialHooks(ctx context.Context, table string, entity, old *core.Entity, oldExists bool, batch kv.Batch) error {
	for _, desc := range p.catalog.List(table) {
		if desc.Kind != core.IndexSpatial {
			continue
		}
		newSC, hasNew, err := sidecarFor(entity, desc.Column)
		if err != nil {
			return err
		}
		oldSC, hasOld := sidecarOf(old, oldExists, desc.Column)

		switch {
		case hasNew && hasOld:
			if err := p.spatial.UpdateWithBatch(ctx, table, desc.Column, entity.PK, oldSC, newSC, batch); err != nil {
				return err
			}
		case hasNew:
			if err := p.spatial.InsertWithBatch(ctx, table, desc.Column, entity.PK, newSC, batch); err != nil {
				return err
			}
		case hasOld:
			if err := p.spatial.RemoveWithBatch(ctx, table, desc.Column, entity.PK, oldSC, batch); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Path) stageSpatialRemovals(ctx context.Context, table string, old *core.Entity, batch kv.Batch) {
	for _, desc := range p.catalog.List(table) {
		if desc.Kind != core.IndexSpatial {
			continue
		}
		sc, ok := sidecarOf(old, true, desc.Column)
		if !ok {
			continue
		}
		_ = p.spatial.RemoveWithBatch(ctx, table, desc.Column, old.PK, sc, batch)
	}
}

func (p *Path) removeSpatialEntries(ctx context.Context, table string, old *core.Entity) {
	for _, desc := range p.catalog.List(table) {
		if desc.Kind != core.IndexSpatial {
			continue
		}
		sc, ok := sidecarOf(old, true, desc.Column)
		if !ok {
			continue
		}
		_ = p.spatial.Remove(ctx, table, desc.Column, old.PK, sc)
	}
}

func (p *Path) runSpatialHooksUnbatched(ctx context.Context, table string, entity *core.Entity) error {
	for _, desc := range p.catalog.List(table) {
		if desc.Kind != core.IndexSpatial {
			continue
		}
		sc, ok, err := sidecarFor(entity, desc.Column)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := p.spatial.Insert(ctx, table, desc.Column, entity.PK, sc); err != nil {
			return err
		}
	}
	return nil
}

// runVectorHooks re-indexes every vector column registered on table.
func (p *Path) runVectorHooks(ctx context.Context, table string, entity *core.Entity) error {
	for _, desc := range p.catalog.List(table) {
		if desc.Kind != core.IndexVectorANN {
			continue
		}
		v, ok := entity.Get(desc.Column)
		if !ok || v.Kind != core.KindVector {
			continue
		}
		if err := p.vector.AddEntity(ctx, table, desc.Column, entity); err != nil {
			return err
		}
	}
	return nil
}

func (p *Path) removeVectorEntries(ctx context.Context, table string, pk []byte) error {
	for _, desc := range p.catalog.List(table) {
		if desc.Kind != core.IndexVectorANN {
			continue
		}
		if err := p.vector.RemoveEntity(ctx, table, desc.Column, pk); err != nil {
			return err
		}
	}
	return nil
}

// sidecarFor extracts and decodes column's geometry field from entity, if
// present, returning its MBR/centroid sidecar.
func sidecarFor(entity *core.Entity, column string) (geometry.Sidecar, bool, error) {
	v, ok := entity.Get(column)
	if !ok || v.Kind != core.KindBytes {
		return geometry.Sidecar{}, false, nil
	}
	g, err := geometry.ParseEWKB(v.Bytes)
	if err != nil {
		return geometry.Sidecar{}, false, themiserr.Wrap(themiserr.KindValidation, err, "decode geometry field %q", column)
	}
	sc, err := geometry.ComputeSidecar(g)
	if err != nil {
		return geometry.Sidecar{}, false, themiserr.Wrap(themiserr.KindValidation, err, "compute sidecar for %q", column)
	}
	return sc, true, nil
}

func sidecarOf(entity *core.Entity, exists bool, column string) (geometry.Sidecar, bool) {
	if !exists || entity == nil {
		return geometry.Sidecar{}, false
	}
	sc, ok, err := sidecarFor(entity, column)
	if err != nil || !ok {
		return geometry.Sidecar{}, false
	}
	return sc, true
}
