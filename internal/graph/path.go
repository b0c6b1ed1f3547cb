package graph

import (
	"context"

	"github.com/makr-code/themis/internal/core"
)

// PathQuery parameters, per spec §4.5
// "recursive_path_query({start, end?, edge_type?, max_depth, valid_from?,
// valid_to?})".
type PathQuery struct {
	Start     []byte
	End       []byte // nil means "any end vertex"
	EdgeType  string // "" means no type filter
	MaxDepth  int
	ValidFrom *int64 // time-window filter against edge properties valid_from/valid_to
	ValidTo   *int64
	Direction Direction // zero value (Outbound) preserves prior behavior
}

// RecursivePathQuery returns every simple (cycle-free) path from q.Start,
// bounded by q.MaxDepth hops, optionally restricted to paths ending at
// q.End, filtered by q.EdgeType, and filtered by a [q.ValidFrom, q.ValidTo]
// time window tested for overlap against each edge's valid_from/valid_to
// properties.
func (e *Engine) RecursivePathQuery(ctx context.Context, q PathQuery) ([][][]byte, error) {
	maxDepth := q.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}
	var endStr string
	hasEnd := q.End != nil
	if hasEnd {
		endStr = string(q.End)
	}

	var results [][][]byte
	onPath := map[string]bool{string(q.Start): true}
	path := [][]byte{append([]byte(nil), q.Start...)}

	var walk func(vertex string, depth int) error
	walk = func(vertex string, depth int) error {
		if hasEnd && vertex == endStr && len(path) > 1 {
			results = append(results, clonePath(path))
		}
		if depth >= maxDepth {
			return nil
		}
		neighbors, err := e.neighborsForDirection(ctx, vertex, q.Direction)
		if err != nil {
			return err
		}
		for _, n := range neighbors {
			if onPath[n.Other] {
				continue // cycle-free: never revisit a vertex already on this path
			}
			edge, ok, err := e.GetEdge(ctx, n.EdgeID)
			if err != nil {
				return err
			}
			if !ok || !edgeMatches(edge, q) {
				continue
			}
			onPath[n.Other] = true
			path = append(path, []byte(n.Other))

			if !hasEnd {
				results = append(results, clonePath(path))
			}
			if err := walk(n.Other, depth+1); err != nil {
				return err
			}

			path = path[:len(path)-1]
			delete(onPath, n.Other)
		}
		return nil
	}

	if err := walk(string(q.Start), 0); err != nil {
		return nil, err
	}
	return results, nil
}

func clonePath(path [][]byte) [][]byte {
	out := make([][]byte, len(path))
	for i, v := range path {
		out[i] = append([]byte(nil), v...)
	}
	return out
}

func edgeMatches(edge Edge, q PathQuery) bool {
	if q.EdgeType != "" && edge.Type != q.EdgeType {
		return false
	}
	if q.ValidFrom == nil && q.ValidTo == nil {
		return true
	}
	edgeFrom, hasFrom := propertyInt64(edge.Properties, "valid_from")
	edgeTo, hasTo := propertyInt64(edge.Properties, "valid_to")
	if !hasFrom || !hasTo {
		return false // a windowed query excludes edges carrying no window at all
	}

	// A single valid_from (no valid_to) asks "which edges are active at this
	// instant"; both bounds ask "which edges overlap this window".
	var queryFrom, queryTo int64
	switch {
	case q.ValidFrom != nil && q.ValidTo != nil:
		queryFrom, queryTo = *q.ValidFrom, *q.ValidTo
	case q.ValidFrom != nil:
		queryFrom, queryTo = *q.ValidFrom, *q.ValidFrom
	default:
		queryFrom, queryTo = *q.ValidTo, *q.ValidTo
	}
	return edgeFrom <= queryTo && edgeTo >= queryFrom
}

func propertyInt64(props map[string]core.Value, key string) (int64, bool) {
	if props == nil {
		return 0, false
	}
	v, ok := props[key]
	if !ok || v.IsNull() {
		return 0, false
	}
	if v.Kind == core.KindI64 {
		return v.I64, true
	}
	if f, ok := v.AsFloat64(); ok {
		return int64(f), true
	}
	return 0, false
}
