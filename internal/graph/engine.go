// Package graph implements the Graph Index (spec §4.5): per-vertex
// adjacency over the reserved `eout:`/`ein:`/`edge:` key prefixes, BFS,
// shortest-path and time-windowed recursive path queries. Grounded on
// vthunder-bud2/internal-graph-db's adjacency-over-storage shape
// (`other_examples`), re-expressed over internal/kv instead of SQLite
// since Themis's storage layer is already the embedded KV store.
package graph

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// Edge is the persisted record for one directed graph edge, per spec §4.5
// "add_edge({id, from, to, properties})".
type Edge struct {
	ID         string                 `json:"id"`
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	Type       string                 `json:"type,omitempty"`
	Properties map[string]core.Value  `json:"properties,omitempty"`
}

// NewEdgeID returns a fresh random edge id, for callers that don't supply
// their own.
func NewEdgeID() string {
	return uuid.NewString()
}

// Engine is the Graph Index. One Engine instance serves an entire Themis
// store.
type Engine struct {
	store kv.Store
}

// New returns an Engine over store.
func New(store kv.Store) *Engine {
	return &Engine{store: store}
}

// AddEdge writes the edge record and both adjacency entries, opening and
// committing its own write-batch.
func (e *Engine) AddEdge(ctx context.Context, edge Edge) error {
	batch := e.store.OpenWriteBatch()
	if err := e.AddEdgeWithBatch(ctx, edge, batch); err != nil {
		batch.Discard()
		return err
	}
	return batch.Commit(ctx)
}

// AddEdgeWithBatch stages the edge into batch, so callers (the write path)
// can enlist it alongside the primary entity put.
func (e *Engine) AddEdgeWithBatch(ctx context.Context, edge Edge, batch kv.Batch) error {
	if edge.ID == "" {
		return themiserr.New(themiserr.KindValidation, "edge missing id")
	}
	if edge.From == "" || edge.To == "" {
		return themiserr.New(themiserr.KindValidation, "edge %q missing from/to", edge.ID)
	}
	payload, err := json.Marshal(edge)
	if err != nil {
		return themiserr.Wrap(themiserr.KindInternal, err, "marshal edge %q", edge.ID)
	}
	batch.Put(keyschema.EdgeRecordKey(edge.ID), payload)
	batch.Put(keyschema.EdgeOutKey(edge.From, edge.ID), []byte(edge.To))
	batch.Put(keyschema.EdgeInKey(edge.To, edge.ID), []byte(edge.From))
	return nil
}

// RemoveEdge deletes the edge record and both adjacency entries, opening
// and committing its own write-batch. No-op if the edge doesn't exist.
func (e *Engine) RemoveEdge(ctx context.Context, edgeID string) error {
	batch := e.store.OpenWriteBatch()
	removed, err := e.RemoveEdgeWithBatch(ctx, edgeID, batch)
	if err != nil {
		batch.Discard()
		return err
	}
	if !removed {
		batch.Discard()
		return nil
	}
	return batch.Commit(ctx)
}

// RemoveEdgeWithBatch stages the removal into batch, returning whether the
// edge existed.
func (e *Engine) RemoveEdgeWithBatch(ctx context.Context, edgeID string, batch kv.Batch) (bool, error) {
	edge, ok, err := e.GetEdge(ctx, edgeID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	batch.Delete(keyschema.EdgeRecordKey(edgeID))
	batch.Delete(keyschema.EdgeOutKey(edge.From, edgeID))
	batch.Delete(keyschema.EdgeInKey(edge.To, edgeID))
	return true, nil
}

// GetEdge reads and decodes one edge record.
func (e *Engine) GetEdge(ctx context.Context, edgeID string) (Edge, bool, error) {
	raw, ok, err := e.store.Get(ctx, keyschema.EdgeRecordKey(edgeID))
	if err != nil {
		return Edge{}, false, themiserr.Wrap(themiserr.KindStore, err, "read edge %q", edgeID)
	}
	if !ok {
		return Edge{}, false, nil
	}
	var edge Edge
	if err := json.Unmarshal(raw, &edge); err != nil {
		return Edge{}, false, themiserr.Wrap(themiserr.KindInternal, err, "decode edge %q", edgeID)
	}
	return edge, true, nil
}

// Direction selects which adjacency a traversal follows, per the AQL
// `{OUTBOUND|INBOUND|ANY}` clause (spec §4.7).
type Direction int

const (
	Outbound Direction = iota
	Inbound
	Any
)

// neighbor is one adjacency entry discovered while scanning eout:/ein:.
type neighbor struct {
	EdgeID string
	Other  string
}

// outNeighbors scans eout:<vertex>:* for every outgoing edge.
func (e *Engine) outNeighbors(ctx context.Context, vertex string) ([]neighbor, error) {
	prefix := keyschema.EdgeOutPrefix(vertex)
	var out []neighbor
	err := e.store.ScanPrefix(ctx, prefix, func(key, value []byte) bool {
		if edgeID, ok := trailingComponent(key, prefix); ok {
			out = append(out, neighbor{EdgeID: edgeID, Other: string(value)})
		}
		return true
	})
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, err, "scan out-edges of %q", vertex)
	}
	return out, nil
}

// inNeighbors scans ein:<vertex>:* for every incoming edge.
func (e *Engine) inNeighbors(ctx context.Context, vertex string) ([]neighbor, error) {
	prefix := keyschema.EdgeInPrefix(vertex)
	var out []neighbor
	err := e.store.ScanPrefix(ctx, prefix, func(key, value []byte) bool {
		if edgeID, ok := trailingComponent(key, prefix); ok {
			out = append(out, neighbor{EdgeID: edgeID, Other: string(value)})
		}
		return true
	})
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, err, "scan in-edges of %q", vertex)
	}
	return out, nil
}

// neighborsForDirection dispatches to outNeighbors, inNeighbors, or both
// (deduplicated by edge id) depending on dir.
func (e *Engine) neighborsForDirection(ctx context.Context, vertex string, dir Direction) ([]neighbor, error) {
	switch dir {
	case Inbound:
		return e.inNeighbors(ctx, vertex)
	case Any:
		out, err := e.outNeighbors(ctx, vertex)
		if err != nil {
			return nil, err
		}
		in, err := e.inNeighbors(ctx, vertex)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(out))
		for _, n := range out {
			seen[n.EdgeID] = true
		}
		for _, n := range in {
			if !seen[n.EdgeID] {
				out = append(out, n)
			}
		}
		return out, nil
	default:
		return e.outNeighbors(ctx, vertex)
	}
}

// EdgesBetween returns every edge connecting from to to in direction dir,
// for callers (the execution engine's traversal plan) that need to bind an
// edge variable for a path already resolved by vertex id alone.
func (e *Engine) EdgesBetween(ctx context.Context, from, to []byte, dir Direction) ([]Edge, error) {
	neighbors, err := e.neighborsForDirection(ctx, string(from), dir)
	if err != nil {
		return nil, err
	}
	toStr := string(to)
	var out []Edge
	for _, n := range neighbors {
		if n.Other != toStr {
			continue
		}
		edge, ok, err := e.GetEdge(ctx, n.EdgeID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, edge)
		}
	}
	return out, nil
}

func trailingComponent(key, prefix []byte) (string, bool) {
	if len(key) < len(prefix) {
		return "", false
	}
	parts, err := keyschema.SplitKey(string(key[len(prefix):]))
	if err != nil || len(parts) == 0 {
		return "", false
	}
	return parts[0], true
}
