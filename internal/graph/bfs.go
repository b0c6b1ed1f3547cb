package graph

import "context"

// BFS visits every vertex reachable from start by following out-edges, up
// to maxDepth hops, and returns them in visit order (start first). maxDepth
// <= 0 means unbounded.
func (e *Engine) BFS(ctx context.Context, start []byte, maxDepth int) ([][]byte, error) {
	return e.BFSDirected(ctx, start, maxDepth, Outbound)
}

// BFSDirected is BFS generalized to follow out-edges, in-edges, or both,
// per the AQL traversal direction clause.
func (e *Engine) BFSDirected(ctx context.Context, start []byte, maxDepth int, dir Direction) ([][]byte, error) {
	startStr := string(start)
	visited := map[string]bool{startStr: true}
	order := [][]byte{append([]byte(nil), start...)}
	type frontierEntry struct {
		vertex string
		depth  int
	}
	queue := []frontierEntry{{vertex: startStr, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		neighbors, err := e.neighborsForDirection(ctx, cur.vertex, dir)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if visited[n.Other] {
				continue
			}
			visited[n.Other] = true
			order = append(order, []byte(n.Other))
			queue = append(queue, frontierEntry{vertex: n.Other, depth: cur.depth + 1})
		}
	}
	return order, nil
}

// ShortestPath returns one shortest path (fewest edges) from start to end,
// bounded to maxDepth hops, or (nil, false) if no such path exists within
// that bound.
func (e *Engine) ShortestPath(ctx context.Context, start, end []byte, maxDepth int) ([][]byte, bool, error) {
	return e.ShortestPathDirected(ctx, start, end, maxDepth, Outbound)
}

// ShortestPathDirected is ShortestPath generalized to a traversal direction.
func (e *Engine) ShortestPathDirected(ctx context.Context, start, end []byte, maxDepth int, dir Direction) ([][]byte, bool, error) {
	startStr, endStr := string(start), string(end)
	if startStr == endStr {
		return [][]byte{append([]byte(nil), start...)}, true, nil
	}
	parent := map[string]string{startStr: ""}
	type frontierEntry struct {
		vertex string
		depth  int
	}
	queue := []frontierEntry{{vertex: startStr, depth: 0}}
	found := false
	for len(queue) > 0 && !found {
		cur := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		neighbors, err := e.neighborsForDirection(ctx, cur.vertex, dir)
		if err != nil {
			return nil, false, err
		}
		for _, n := range neighbors {
			if _, seen := parent[n.Other]; seen {
				continue
			}
			parent[n.Other] = cur.vertex
			if n.Other == endStr {
				found = true
				break
			}
			queue = append(queue, frontierEntry{vertex: n.Other, depth: cur.depth + 1})
		}
	}
	if !found {
		return nil, false, nil
	}
	var path [][]byte
	for v := endStr; v != ""; v = parent[v] {
		path = append([][]byte{[]byte(v)}, path...)
		if v == startStr {
			break
		}
	}
	return path, true, nil
}
