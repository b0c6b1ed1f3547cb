package vector

import (
	"context"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/themiserr"
)

// RebuildFromStorage discards the current graph for (table, column) and
// reinserts every vector yielded by scan, per spec §4.6
// "rebuild_from_storage". scan is called once with a yield callback and
// feeds it from whatever rows the caller owns (such as the primary entity
// rows), keeping this package decoupled from entitystore.
// A fresh graph trivially satisfies the recall floor (spec §8 property
// 10) regardless of prior tombstone churn, per the DESIGN.md Open
// Question decision.
func (e *Engine) RebuildFromStorage(ctx context.Context, table, column string, scan func(yield func(pk []byte, vec []float32) bool) error) error {
	desc, ok := e.catalog.Get(table, column, core.IndexVectorANN)
	if !ok {
		return themiserr.New(themiserr.KindNotFound, "no vector index on %s.%s", table, column)
	}

	lock := e.lockFor(table, column)
	lock.Lock()
	defer lock.Unlock()

	if err := e.clearPersisted(ctx, table, column); err != nil {
		return err
	}

	kernel, err := e.kernel()
	if err != nil {
		return themiserr.Wrap(themiserr.KindInternal, err, "vector distance kernel")
	}
	g := &graphState{params: desc.Vector, nodes: map[string]*node{}}

	yieldErr := scan(func(pk []byte, vec []float32) bool {
		if len(vec) != g.params.Dim {
			return true // skip malformed rows rather than aborting the whole rebuild
		}
		n := &node{pk: append([]byte(nil), pk...), vector: append([]float32(nil), vec...)}
		insertIntoGraph(g, n, kernel, g.params.Metric)
		return true
	})
	if yieldErr != nil {
		return themiserr.Wrap(themiserr.KindStore, yieldErr, "rebuild vector index %s.%s: scan", table, column)
	}

	batch := e.store.OpenWriteBatch()
	for _, n := range g.nodes {
		if err := e.persistNode(batch, table, column, n); err != nil {
			batch.Discard()
			return err
		}
	}
	if err := e.persistMeta(batch, table, column, g); err != nil {
		batch.Discard()
		return err
	}
	if batch.Len() > 0 {
		if err := batch.Commit(ctx); err != nil {
			return themiserr.Wrap(themiserr.KindStore, err, "rebuild vector index %s.%s: commit", table, column)
		}
	} else {
		batch.Discard()
	}

	e.mu.Lock()
	e.graphs[graphKey(table, column)] = g
	e.mu.Unlock()
	return nil
}

func (e *Engine) clearPersisted(ctx context.Context, table, column string) error {
	prefix := keyschema.HNSWColumnPrefix(table, column)
	var keys [][]byte
	if err := e.store.ScanPrefix(ctx, prefix, func(key, _ []byte) bool {
		k := make([]byte, len(key))
		copy(k, key)
		keys = append(keys, k)
		return true
	}); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "rebuild vector index %s.%s: clear", table, column)
	}
	batch := e.store.OpenWriteBatch()
	for _, k := range keys {
		batch.Delete(k)
	}
	batch.Delete(keyschema.HNSWMetaKey(table, column))
	if batch.Len() == 0 {
		batch.Discard()
		return nil
	}
	return batch.Commit(ctx)
}
