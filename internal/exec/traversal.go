package exec

import (
	"context"
	"strings"

	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/graph"
	"github.com/makr-code/themis/internal/themiserr"
)

// runTraversal executes plan shape 4: a graph traversal, optionally bounded
// to one SHORTEST_PATH route, per spec §4.10/§4.5.
func (e *Engine) runTraversal(ctx context.Context, q *translate.TraversalQuery) (*Result, error) {
	startVal, err := e.Eval(ctx, q.Start, Env{})
	if err != nil {
		return nil, err
	}
	start := valueToBytes(startVal)
	dir := parseDirection(q.Direction)

	var vertexPaths [][][]byte
	if q.ShortestPath {
		if q.EndVertex == nil {
			return nil, themiserr.New(themiserr.KindTranslate, "SHORTEST_PATH requires an end vertex")
		}
		endVal, err := e.Eval(ctx, q.EndVertex, Env{})
		if err != nil {
			return nil, err
		}
		end := valueToBytes(endVal)
		path, found, err := e.graph.ShortestPathDirected(ctx, start, end, q.MaxDepth, dir)
		if err != nil {
			return nil, err
		}
		if found {
			vertexPaths = [][][]byte{path}
		}
	} else {
		pq := graph.PathQuery{Start: start, EdgeType: q.EdgeTypeFilter, MaxDepth: q.MaxDepth, Direction: dir}
		if q.EndVertex != nil {
			endVal, err := e.Eval(ctx, q.EndVertex, Env{})
			if err != nil {
				return nil, err
			}
			pq.End = valueToBytes(endVal)
		}
		paths, err := e.graph.RecursivePathQuery(ctx, pq)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if q.MinDepth > 0 && len(p)-1 < q.MinDepth {
				continue
			}
			vertexPaths = append(vertexPaths, p)
		}
	}

	rows := make([]Row, 0, len(vertexPaths))
	for _, path := range vertexPaths {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		env, err := e.bindTraversalEnv(ctx, q, path, dir)
		if err != nil {
			return nil, err
		}
		matched := true
		for _, f := range q.Filters {
			v, err := e.Eval(ctx, f, env)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		v, err := e.Eval(ctx, q.Return, env)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{Value: v})
	}
	return &Result{Rows: rows}, nil
}

// bindTraversalEnv binds the VertexVar (last vertex reached), EdgeVar (the
// edge closing the path, if any matches), and PathVar (the full vertex/edge
// sequence) into an evaluation environment.
func (e *Engine) bindTraversalEnv(ctx context.Context, q *translate.TraversalQuery, path [][]byte, dir graph.Direction) (Env, error) {
	env := Env{}
	if q.VertexVar != "" && len(path) > 0 {
		env[q.VertexVar] = core.Str(string(path[len(path)-1]))
	}

	var edges []graph.Edge
	for i := 1; i < len(path); i++ {
		candidates, err := e.graph.EdgesBetween(ctx, path[i-1], path[i], dir)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if q.EdgeTypeFilter == "" || c.Type == q.EdgeTypeFilter {
				edges = append(edges, c)
				break
			}
		}
	}
	if q.EdgeVar != "" && len(edges) > 0 {
		env[q.EdgeVar] = edgeValue(edges[len(edges)-1])
	}
	if q.PathVar != "" {
		vertices := make([]any, len(path))
		for i, v := range path {
			vertices[i] = string(v)
		}
		edgeVals := make([]any, len(edges))
		for i, ed := range edges {
			edgeVals[i] = edgeValueGo(ed)
		}
		env[q.PathVar] = core.JSONValue(map[string]any{"vertices": vertices, "edges": edgeVals})
	}
	return env, nil
}

func edgeValueGo(ed graph.Edge) map[string]any {
	return map[string]any{"id": ed.ID, "from": ed.From, "to": ed.To, "type": ed.Type}
}

func edgeValue(ed graph.Edge) core.Value {
	return core.JSONValue(edgeValueGo(ed))
}

func valueToBytes(v core.Value) []byte {
	switch v.Kind {
	case core.KindBytes:
		return v.Bytes
	default:
		return []byte(v.String())
	}
}

func parseDirection(d string) graph.Direction {
	switch strings.ToUpper(d) {
	case "INBOUND":
		return graph.Inbound
	case "ANY":
		return graph.Any
	default:
		return graph.Outbound
	}
}
