package vector

import (
	"context"
	"encoding/json"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

type wireNode struct {
	Vector    []float32 `json:"vector"`
	Neighbors []string  `json:"neighbors,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
}

type wireMeta struct {
	Entry string `json:"entry,omitempty"`
}

func (e *Engine) persistNode(batch kv.Batch, table, column string, n *node) error {
	payload, err := json.Marshal(wireNode{Vector: n.vector, Neighbors: n.neighbors, Deleted: n.deleted})
	if err != nil {
		return themiserr.Wrap(themiserr.KindInternal, err, "marshal vector node")
	}
	batch.Put(keyschema.HNSWNodeKey(table, column, n.pk), payload)
	return nil
}

func (e *Engine) persistMeta(batch kv.Batch, table, column string, g *graphState) error {
	payload, err := json.Marshal(wireMeta{Entry: g.entry})
	if err != nil {
		return themiserr.Wrap(themiserr.KindInternal, err, "marshal vector meta")
	}
	batch.Put(keyschema.HNSWMetaKey(table, column), payload)
	return nil
}

// loadFromStore rebuilds a graphState by scanning every persisted node
// record plus the meta entry pointer.
func (e *Engine) loadFromStore(ctx context.Context, table, column string, params core.VectorParams) (*graphState, error) {
	g := &graphState{params: params, nodes: map[string]*node{}}
	prefix := keyschema.HNSWColumnPrefix(table, column)
	err := e.store.ScanPrefix(ctx, prefix, func(key, raw []byte) bool {
		pk, ok := trailingComponent(key, prefix)
		if !ok {
			return true
		}
		var wn wireNode
		if jsonErr := json.Unmarshal(raw, &wn); jsonErr != nil {
			return true
		}
		g.nodes[pk] = &node{pk: []byte(pk), vector: wn.Vector, neighbors: wn.Neighbors, deleted: wn.Deleted}
		return true
	})
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, err, "load vector graph %s.%s", table, column)
	}

	raw, ok, err := e.store.Get(ctx, keyschema.HNSWMetaKey(table, column))
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, err, "load vector graph meta %s.%s", table, column)
	}
	if ok {
		var meta wireMeta
		if jsonErr := json.Unmarshal(raw, &meta); jsonErr == nil {
			g.entry = meta.Entry
		}
	}
	return g, nil
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
