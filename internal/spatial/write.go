package spatial

import (
	"context"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/geometry"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

func (e *Engine) descriptor(table, column string) (core.IndexDescriptor, error) {
	desc, ok := e.catalog.Get(table, column, core.IndexSpatial)
	if !ok {
		return core.IndexDescriptor{}, themiserr.New(themiserr.KindNotFound, "no spatial index on %s.%s", table, column)
	}
	return desc, nil
}

// Insert adds pk's sidecar to the bucket its centroid falls in, opening and
// committing its own write-batch.
func (e *Engine) Insert(ctx context.Context, table, column string, pk []byte, sc geometry.Sidecar) error {
	batch := e.store.OpenWriteBatch()
	if err := e.InsertWithBatch(ctx, table, column, pk, sc, batch); err != nil {
		batch.Discard()
		return err
	}
	return batch.Commit(ctx)
}

// InsertWithBatch stages the insert into batch, letting the caller enlist
// it alongside the primary entity put for atomicity (spec §9 Open
// Question "spatial hook batch sharing").
func (e *Engine) InsertWithBatch(ctx context.Context, table, column string, pk []byte, sc geometry.Sidecar, batch kv.Batch) error {
	desc, err := e.descriptor(table, column)
	if err != nil {
		return err
	}
	code := e.codeFor(desc, sc)
	entries, err := getBucket(ctx, e.store, table, code)
	if err != nil {
		return err
	}
	entries, _ = removeFromEntries(entries, pk) // replace-in-place if already present
	entries = append(entries, sidecarToEntry(pk, sc))
	return putBucket(batch, table, code, entries)
}

// Remove deletes pk's entry from the bucket sc's centroid maps to, opening
// and committing its own write-batch.
func (e *Engine) Remove(ctx context.Context, table, column string, pk []byte, sc geometry.Sidecar) error {
	batch := e.store.OpenWriteBatch()
	if err := e.RemoveWithBatch(ctx, table, column, pk, sc, batch); err != nil {
		batch.Discard()
		return err
	}
	if batch.Len() == 0 {
		batch.Discard()
		return nil
	}
	return batch.Commit(ctx)
}

// RemoveWithBatch stages the removal into batch.
func (e *Engine) RemoveWithBatch(ctx context.Context, table, column string, pk []byte, sc geometry.Sidecar, batch kv.Batch) error {
	desc, err := e.descriptor(table, column)
	if err != nil {
		return err
	}
	code := e.codeFor(desc, sc)
	entries, err := getBucket(ctx, e.store, table, code)
	if err != nil {
		return err
	}
	entries, removed := removeFromEntries(entries, pk)
	if !removed {
		return nil
	}
	return putBucket(batch, table, code, entries)
}

// Update moves pk from its old bucket to its new one, opening and
// committing its own write-batch.
func (e *Engine) Update(ctx context.Context, table, column string, pk []byte, oldSC, newSC geometry.Sidecar) error {
	batch := e.store.OpenWriteBatch()
	if err := e.UpdateWithBatch(ctx, table, column, pk, oldSC, newSC, batch); err != nil {
		batch.Discard()
		return err
	}
	return batch.Commit(ctx)
}

// UpdateWithBatch stages the move into batch.
func (e *Engine) UpdateWithBatch(ctx context.Context, table, column string, pk []byte, oldSC, newSC geometry.Sidecar, batch kv.Batch) error {
	desc, err := e.descriptor(table, column)
	if err != nil {
		return err
	}
	oldCode := e.codeFor(desc, oldSC)
	newCode := e.codeFor(desc, newSC)
	if oldCode == newCode {
		entries, err := getBucket(ctx, e.store, table, oldCode)
		if err != nil {
			return err
		}
		entries, _ = removeFromEntries(entries, pk)
		entries = append(entries, sidecarToEntry(pk, newSC))
		return putBucket(batch, table, oldCode, entries)
	}
	if err := e.RemoveWithBatch(ctx, table, column, pk, oldSC, batch); err != nil {
		return err
	}
	return e.InsertWithBatch(ctx, table, column, pk, newSC, batch)
}
