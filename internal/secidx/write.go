package secidx

import (
	"bytes"
	"context"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/fulltext"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// Put writes entity and every registered index entry for table in one
// atomic write-batch, per spec §4.3's put protocol.
func (e *Engine) Put(ctx context.Context, table string, entity *core.Entity) error {
	batch := e.store.OpenWriteBatch()
	if err := e.PutWithBatch(ctx, table, entity, batch); err != nil {
		batch.Discard()
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "put %s/%s: commit", table, string(entity.PK))
	}
	return nil
}

// PutWithBatch performs the same read-modify-write protocol as Put but
// stages its mutations into a caller-supplied batch rather than
// committing, so callers orchestrating multi-subsystem atomicity (spec
// §4.8's write path) can enlist spatial/graph/vector writes in the same
// batch.
func (e *Engine) PutWithBatch(ctx context.Context, table string, entity *core.Entity, batch kv.Batch) error {
	old, oldExists, err := e.readEntity(ctx, table, entity.PK)
	if err != nil {
		return err
	}

	descriptors := e.catalog.List(table)
	if err := e.checkUniqueness(ctx, table, entity, old, oldExists, descriptors); err != nil {
		return err
	}

	for _, desc := range descriptors {
		switch desc.Kind {
		case core.IndexEquality, core.IndexSparse:
			e.diffScalarIndex(batch, table, desc, old, oldExists, entity)
		case core.IndexRange:
			e.diffRangeIndex(batch, table, desc, old, oldExists, entity)
		case core.IndexComposite:
			e.diffCompositeIndex(batch, table, desc, old, oldExists, entity)
		case core.IndexTTL:
			e.diffTTLIndex(batch, table, desc, old, oldExists, entity)
		case core.IndexFulltext:
			if err := e.diffFulltextIndex(ctx, batch, table, desc, old, oldExists, entity); err != nil {
				return err
			}
		}
	}

	payload, err := e.codec.Encode(entity)
	if err != nil {
		return err
	}
	batch.Put(keyschema.EntityKey(table, entity.PK), payload)
	return nil
}

// checkUniqueness verifies every unique equality/composite index would not
// be violated by writing entity, before any mutation is staged.
func (e *Engine) checkUniqueness(ctx context.Context, table string, entity, old *core.Entity, oldExists bool, descriptors []core.IndexDescriptor) error {
	for _, desc := range descriptors {
		if !desc.Unique {
			continue
		}
		switch desc.Kind {
		case core.IndexEquality:
			newVal, _ := entity.Get(desc.Column)
			if oldExists {
				oldVal, _ := old.Get(desc.Column)
				if oldVal.Equal(newVal) {
					continue // unchanged value can't introduce a new violation
				}
			}
			if newVal.IsNull() {
				continue
			}
			conflict, err := e.equalityHasOtherPK(ctx, table, desc.Column, newVal, entity.PK)
			if err != nil {
				return err
			}
			if conflict {
				return themiserr.New(themiserr.KindUnique, "unique violation on %s.%s", table, desc.Column)
			}
		case core.IndexComposite:
			values := compositeValues(entity, desc.Columns)
			ownKey := keyschema.CompositeKey(table, desc.Columns, values, entity.PK)
			prefix := keyschema.CompositeValuePrefix(table, desc.Columns, values)
			conflict, err := e.prefixHasOtherKey(ctx, prefix, ownKey)
			if err != nil {
				return err
			}
			if conflict {
				return themiserr.New(themiserr.KindUnique, "unique violation on composite index %s(%v)", table, desc.Columns)
			}
		}
	}
	return nil
}

func (e *Engine) equalityHasOtherPK(ctx context.Context, table, column string, v core.Value, pk []byte) (bool, error) {
	ownKey := keyschema.EqualityKey(table, column, v, pk)
	return e.prefixHasOtherKey(ctx, keyschema.EqualityPrefix(table, column, v), ownKey)
}

// prefixHasOtherKey reports whether any key under prefix differs from
// ownKey, i.e. whether a *different* row already holds this index value.
func (e *Engine) prefixHasOtherKey(ctx context.Context, prefix, ownKey []byte) (bool, error) {
	found := false
	err := e.store.ScanPrefix(ctx, prefix, func(key, _ []byte) bool {
		if !bytes.Equal(key, ownKey) {
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return false, themiserr.Wrap(themiserr.KindStore, err, "uniqueness scan")
	}
	return found, nil
}

func compositeValues(entity *core.Entity, columns []string) []core.Value {
	out := make([]core.Value, len(columns))
	for i, c := range columns {
		v, _ := entity.Get(c)
		out[i] = v
	}
	return out
}

// diffScalarIndex handles both Equality and Sparse indexes, which share
// one-key-per-value shape; Sparse additionally skips null/empty values.
func (e *Engine) diffScalarIndex(batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity, oldExists bool, entity *core.Entity) {
	newVal, _ := entity.Get(desc.Column)
	var oldVal core.Value
	if oldExists {
		oldVal, _ = old.Get(desc.Column)
	}
	if oldExists && oldVal.Equal(newVal) {
		return
	}
	keyFor := func(v core.Value) []byte {
		if desc.Kind == core.IndexSparse {
			return keyschema.SparseKey(table, desc.Column, v, entity.PK)
		}
		return keyschema.EqualityKey(table, desc.Column, v, entity.PK)
	}
	if oldExists && !(desc.Kind == core.IndexSparse && oldVal.IsEmpty()) {
		batch.Delete(keyFor(oldVal))
	}
	if !(desc.Kind == core.IndexSparse && newVal.IsEmpty()) {
		batch.Put(keyFor(newVal), []byte{})
	}
}

func (e *Engine) diffRangeIndex(batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity, oldExists bool, entity *core.Entity) {
	newVal, _ := entity.Get(desc.Column)
	var oldVal core.Value
	if oldExists {
		oldVal, _ = old.Get(desc.Column)
	}
	if oldExists && oldVal.Equal(newVal) {
		return
	}
	if oldExists {
		batch.Delete(keyschema.RangeKey(table, desc.Column, oldVal, entity.PK))
	}
	batch.Put(keyschema.RangeKey(table, desc.Column, newVal, entity.PK), []byte{})
}

func (e *Engine) diffTTLIndex(batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity, oldExists bool, entity *core.Entity) {
	newVal, _ := entity.Get(desc.Column)
	var oldVal core.Value
	if oldExists {
		oldVal, _ = old.Get(desc.Column)
	}
	if oldExists && oldVal.Equal(newVal) {
		return
	}
	if oldExists && !oldVal.IsNull() {
		if expire, ok := oldVal.AsFloat64(); ok {
			batch.Delete(keyschema.TTLKey(table, desc.Column, int64(expire), entity.PK))
		}
	}
	if !newVal.IsNull() {
		if expire, ok := newVal.AsFloat64(); ok {
			batch.Put(keyschema.TTLKey(table, desc.Column, int64(expire), entity.PK), []byte{})
		}
	}
}

func (e *Engine) diffCompositeIndex(batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity, oldExists bool, entity *core.Entity) {
	newValues := compositeValues(entity, desc.Columns)
	if oldExists {
		oldValues := compositeValues(old, desc.Columns)
		if sameValues(oldValues, newValues) {
			return
		}
		batch.Delete(keyschema.CompositeKey(table, desc.Columns, oldValues, entity.PK))
	}
	batch.Put(keyschema.CompositeKey(table, desc.Columns, newValues, entity.PK), []byte{})
}

func sameValues(a, b []core.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (e *Engine) diffFulltextIndex(ctx context.Context, batch kv.Batch, table string, desc core.IndexDescriptor, old *core.Entity, oldExists bool, entity *core.Entity) error {
	newVal, _ := entity.Get(desc.Column)
	newStats, newLen := tokenizeField(newVal, desc.Analyzer)

	var oldStats map[string]tokenStats
	oldLen := 0
	if oldExists {
		oldVal, _ := old.Get(desc.Column)
		oldStats, oldLen = tokenizeField(oldVal, desc.Analyzer)
	}

	for token, oldTok := range oldStats {
		newTok, stillPresent := newStats[token]
		if stillPresent && oldTok.TF == newTok.TF && oldLen == newLen {
			continue // unchanged posting
		}
		batch.Delete(keyschema.FulltextKey(table, desc.Column, token, entity.PK))
	}
	for token, newTok := range newStats {
		oldTok, hadBefore := oldStats[token]
		if hadBefore && oldTok.TF == newTok.TF && oldLen == newLen {
			continue
		}
		batch.Put(keyschema.FulltextKey(table, desc.Column, token, entity.PK),
			encodePosting(fulltext.Posting{TF: newTok.TF, DocLen: newLen}))
	}

	oldCounted := oldExists && oldLen > 0
	newCounted := newLen > 0
	if oldCounted == newCounted && oldLen == newLen {
		return nil
	}
	agg, err := e.readAggregate(ctx, table, desc.Column)
	if err != nil {
		return err
	}
	if oldCounted {
		agg.DocCount--
		agg.TotalLen -= int64(oldLen)
	}
	if newCounted {
		agg.DocCount++
		agg.TotalLen += int64(newLen)
	}
	if agg.DocCount < 0 {
		agg.DocCount = 0
	}
	if agg.TotalLen < 0 {
		agg.TotalLen = 0
	}
	e.writeAggregate(batch, table, desc.Column, agg)
	return nil
}
