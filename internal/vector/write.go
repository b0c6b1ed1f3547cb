package vector

import (
	"context"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/themiserr"
)

// AddEntity reads entity's vector field, validates its dimension against
// the index's configured Dim, and inserts it into the graph, per spec
// §4.6 "add_entity". Re-inserting an existing pk is treated as a removal
// followed by a fresh insert (update-in-place isn't a distinct NSW
// operation — the node's neighbor links have to be recomputed anyway).
func (e *Engine) AddEntity(ctx context.Context, table, column string, entity *core.Entity) error {
	v, ok := entity.Get(column)
	if !ok || v.Kind != core.KindVector {
		return themiserr.New(themiserr.KindValidation, "entity %s.%s: field %q is not a vector", table, entity.PK, column)
	}
	return e.AddVector(ctx, table, column, entity.PK, v.Vector)
}

// AddVector is the vector-valued core of AddEntity, usable when the
// caller already has the vector in hand.
func (e *Engine) AddVector(ctx context.Context, table, column string, pk []byte, vec []float32) error {
	g, err := e.ensureLoaded(ctx, table, column)
	if err != nil {
		return err
	}
	if len(vec) != g.params.Dim {
		return themiserr.New(themiserr.KindValidation, "vector dimension %d does not match index dimension %d", len(vec), g.params.Dim)
	}
	kernel, err := e.kernel()
	if err != nil {
		return themiserr.Wrap(themiserr.KindInternal, err, "vector distance kernel")
	}

	lock := e.lockFor(table, column)
	lock.Lock()
	defer lock.Unlock()

	if existing, ok := g.nodes[string(pk)]; ok && !existing.deleted {
		removeFromGraph(g, pk)
	}

	n := &node{pk: append([]byte(nil), pk...), vector: append([]float32(nil), vec...)}
	touched := insertIntoGraph(g, n, kernel, g.params.Metric)

	batch := e.store.OpenWriteBatch()
	for _, t := range touched {
		if err := e.persistNode(batch, table, column, t); err != nil {
			batch.Discard()
			return err
		}
	}
	if err := e.persistMeta(batch, table, column, g); err != nil {
		batch.Discard()
		return err
	}
	return batch.Commit(ctx)
}

// RemoveEntity tombstones pk: the node stays in the graph (so other
// nodes' neighbor lists remain valid to traverse through) but is excluded
// from search results and future expansion, per spec §4.6 "remove_entity"
// and the DESIGN.md Open Question decision not to rewire incrementally.
func (e *Engine) RemoveEntity(ctx context.Context, table, column string, pk []byte) error {
	g, err := e.ensureLoaded(ctx, table, column)
	if err != nil {
		return err
	}

	lock := e.lockFor(table, column)
	lock.Lock()
	defer lock.Unlock()

	n, ok := g.nodes[string(pk)]
	if !ok || n.deleted {
		return nil
	}
	n.deleted = true
	if g.entry == string(pk) {
		g.entry = g.liveEntry()
	}

	batch := e.store.OpenWriteBatch()
	if err := e.persistNode(batch, table, column, n); err != nil {
		batch.Discard()
		return err
	}
	if err := e.persistMeta(batch, table, column, g); err != nil {
		batch.Discard()
		return err
	}
	return batch.Commit(ctx)
}

// removeFromGraph fully unlinks pk (used only when re-inserting an
// existing, still-live pk, so its stale edges don't pollute the rebuilt
// neighborhood).
func removeFromGraph(g *graphState, pk []byte) {
	key := string(pk)
	n, ok := g.nodes[key]
	if !ok {
		return
	}
	for _, nbPK := range n.neighbors {
		nb, ok := g.nodes[nbPK]
		if !ok {
			continue
		}
		filtered := nb.neighbors[:0:0]
		for _, p := range nb.neighbors {
			if p != key {
				filtered = append(filtered, p)
			}
		}
		nb.neighbors = filtered
	}
	delete(g.nodes, key)
	if g.entry == key {
		g.entry = g.liveEntry()
	}
}
