package secidx

import (
	"context"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// rebuildBatchSize bounds how many entities are staged into one write-batch
// during Rebuild, so a large table doesn't hold one unbounded batch in
// memory.
const rebuildBatchSize = 500

// Rebuild regenerates every persisted entry for one (table, column, kind)
// index from the current entity rows, dropping stale entries first.
// progress is called after every processed entity with (done, total); if it
// returns false, Rebuild stops and returns early, leaving the index
// partially rebuilt (the caller is expected to retry Rebuild to completion).
// When dryRun is true, Rebuild counts the rows it would process and calls
// progress with the final (total, total) tally without dropping or writing
// any entry, grounded on the teacher apply package's DryRun option.
func (e *Engine) Rebuild(ctx context.Context, table, column string, kind core.IndexKind, dryRun bool, progress func(done, total int) bool) error {
	_, ok := e.catalog.Get(table, column, kind)
	if !ok {
		return themiserr.New(themiserr.KindNotFound, "no %s index on %s.%s", kind, table, column)
	}

	tablePrefix := keyschema.EntityTablePrefix(table)
	total := 0
	if err := e.store.ScanPrefix(ctx, tablePrefix, func(_, _ []byte) bool {
		total++
		return true
	}); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "rebuild: count %s", table)
	}

	if dryRun {
		if progress != nil {
			progress(total, total)
		}
		return nil
	}

	desc, ok := e.catalog.Get(table, column, kind)
	if !ok {
		return themiserr.New(themiserr.KindNotFound, "no %s index on %s.%s", kind, table, column)
	}

	if err := e.dropEntries(ctx, table, column, kind); err != nil {
		return err
	}

	batch := e.store.OpenWriteBatch()
	done := 0
	aborted := false
	scanErr := e.store.ScanPrefix(ctx, tablePrefix, func(key, raw []byte) bool {
		pk, pkOK := lastKeyComponent(key, tablePrefix)
		if pkOK {
			if entity, decErr := e.codec.Decode(table, pk, raw); decErr == nil {
				e.applyRebuildEntry(ctx, batch, table, desc, entity)
			}
		}
		done++
		if progress != nil && !progress(done, total) {
			aborted = true
			return false
		}
		if batch.Len() >= rebuildBatchSize {
			if commitErr := batch.Commit(ctx); commitErr != nil {
				aborted = true
				return false
			}
			batch = e.store.OpenWriteBatch()
		}
		return true
	})
	if scanErr != nil {
		batch.Discard()
		return themiserr.Wrap(themiserr.KindStore, scanErr, "rebuild: scan %s", table)
	}
	if batch.Len() > 0 {
		if commitErr := batch.Commit(ctx); commitErr != nil {
			return themiserr.Wrap(themiserr.KindStore, commitErr, "rebuild: final commit %s.%s", table, column)
		}
	} else {
		batch.Discard()
	}
	if aborted {
		return themiserr.New(themiserr.KindCancelled, "rebuild of %s.%s (%s) aborted after %d/%d rows", table, column, kind, done, total)
	}
	return nil
}

// applyRebuildEntry stages entity's single (table, column, kind) index
// entry. Unlike PutWithBatch, it treats every entity as brand new (no
// prior value to diff against) since dropEntries already cleared the old
// generation.
func (e *Engine) applyRebuildEntry(ctx context.Context, batch kv.Batch, table string, desc core.IndexDescriptor, entity *core.Entity) {
	switch desc.Kind {
	case core.IndexEquality, core.IndexSparse:
		e.diffScalarIndex(batch, table, desc, nil, false, entity)
	case core.IndexRange:
		e.diffRangeIndex(batch, table, desc, nil, false, entity)
	case core.IndexComposite:
		e.diffCompositeIndex(batch, table, desc, nil, false, entity)
	case core.IndexTTL:
		e.diffTTLIndex(batch, table, desc, nil, false, entity)
	case core.IndexFulltext:
		// A per-entity store failure here (e.g. a transient read of the
		// aggregate record) drops that entity's contribution rather than
		// aborting the whole rebuild; Rebuild can simply be re-run.
		_ = e.diffFulltextIndex(ctx, batch, table, desc, nil, false, entity)
	}
}
