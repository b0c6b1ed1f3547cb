package secidx

import (
	"context"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// Erase deletes entity (table, pk) plus every index entry it carried, in
// one atomic write-batch. A no-op (success) if the row does not exist.
func (e *Engine) Erase(ctx context.Context, table string, pk []byte) error {
	batch := e.store.OpenWriteBatch()
	did, err := e.EraseWithBatch(ctx, table, pk, batch)
	if err != nil {
		batch.Discard()
		return err
	}
	if !did {
		batch.Discard()
		return nil
	}
	if err := batch.Commit(ctx); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "erase %s/%s: commit", table, string(pk))
	}
	return nil
}

// EraseWithBatch stages entity (table, pk)'s deletion into batch. The
// returned bool reports whether the row existed (and thus whether the
// batch received any mutations).
func (e *Engine) EraseWithBatch(ctx context.Context, table string, pk []byte, batch kv.Batch) (bool, error) {
	old, oldExists, err := e.readEntity(ctx, table, pk)
	if err != nil {
		return false, err
	}
	if !oldExists {
		return false, nil
	}

	for _, desc := range e.catalog.List(table) {
		switch desc.Kind {
		case core.IndexEquality, core.IndexSparse:
			e.eraseScalarIndex(batch, table, desc, old)
		case core.IndexRange:
			e.eraseRangeIndex(batch, table, desc, old)
		case core.IndexComposite:
			e.eraseCompositeIndex(batch, table, desc, old)
		case core.IndexTTL:
			e.eraseTTLIndex(batch, table, desc, old)
		case core.IndexFulltext:
			if err := e.eraseFulltextIndex(ctx, batch, table, desc, old); err != nil {
				return false, err
			}
		}
	}

	batch.Delete(keyschema.EntityKey(table, pk))
	return true, nil
}

func (e *Engine) eraseScalarIndex(batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity) {
	v, _ := old.Get(desc.Column)
	if desc.Kind == core.IndexSparse && v.IsEmpty() {
		return
	}
	if desc.Kind == core.IndexSparse {
		batch.Delete(keyschema.SparseKey(table, desc.Column, v, old.PK))
		return
	}
	batch.Delete(keyschema.EqualityKey(table, desc.Column, v, old.PK))
}

func (e *Engine) eraseRangeIndex(batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity) {
	v, _ := old.Get(desc.Column)
	batch.Delete(keyschema.RangeKey(table, desc.Column, v, old.PK))
}

func (e *Engine) eraseCompositeIndex(batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity) {
	values := compositeValues(old, desc.Columns)
	batch.Delete(keyschema.CompositeKey(table, desc.Columns, values, old.PK))
}

func (e *Engine) eraseTTLIndex(batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity) {
	v, _ := old.Get(desc.Column)
	if v.IsNull() {
		return
	}
	if expire, ok := v.AsFloat64(); ok {
		batch.Delete(keyschema.TTLKey(table, desc.Column, int64(expire), old.PK))
	}
}

func (e *Engine) eraseFulltextIndex(ctx context.Context, batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity) error {
	v, _ := old.Get(desc.Column)
	stats, docLen := tokenizeField(v, desc.Analyzer)
	for token := range stats {
		batch.Delete(keyschema.FulltextKey(table, desc.Column, token, old.PK))
	}
	if docLen == 0 {
		return nil
	}
	agg, err := e.readAggregate(ctx, table, desc.Column)
	if err != nil {
		return err
	}
	agg.DocCount--
	agg.TotalLen -= int64(docLen)
	if agg.DocCount < 0 {
		agg.DocCount = 0
	}
	if agg.TotalLen < 0 {
		agg.TotalLen = 0
	}
	e.writeAggregate(batch, table, desc.Column, agg)
	return nil
}
