package translate

import (
	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/themiserr"
)

// Translate lowers a parsed Query into one of the six plan shapes, per
// spec §4.8.
func Translate(q *aql.Query) (*Plan, error) {
	clauses := q.Clause.Clauses

	var fors []*aql.ForClause
	var filters []aql.Expr
	var lets []aql.LetClause
	var sort *aql.SortClause
	var limit *aql.LimitClause
	var collect *aql.CollectClause
	var ret *aql.ReturnClause

	for _, c := range clauses {
		switch n := c.(type) {
		case *aql.ForClause:
			fors = append(fors, n)
		case *aql.FilterClause:
			filters = append(filters, n.Expr)
		case *aql.LetClause:
			lets = append(lets, *n)
		case *aql.SortClause:
			sort = n
		case *aql.LimitClause:
			limit = n
		case *aql.CollectClause:
			collect = n
		case *aql.ReturnClause:
			ret = n
		}
	}
	if ret == nil {
		return nil, themiserr.New(themiserr.KindTranslate, "query has no RETURN clause")
	}

	for _, f := range fors {
		if f.Graph != nil {
			return translateTraversal(f, filters, ret), nil
		}
	}

	if len(fors) == 0 {
		return nil, themiserr.New(themiserr.KindTranslate, "query has no FOR clause")
	}

	if len(fors) > 1 || collect != nil {
		return &Plan{Kind: PlanJoin, Join: &JoinQuery{
			Fors:     derefFors(fors),
			Lets:     lets,
			Filters:  filters,
			Collect:  collect,
			Distinct: ret.Distinct,
			Return:   ret.Expr,
		}}, nil
	}

	table, err := sourceTableName(fors[0].Source)
	if err != nil {
		return nil, err
	}
	forVar := fors[0].Var

	if vg, ok := tryVectorGeo(table, forVar, lets, sort, limit, filters, ret); ok {
		return &Plan{Kind: PlanVectorGeo, VectorGeo: vg}, nil
	}
	if cg, ok := tryContentGeo(table, forVar, filters, sort, limit, ret); ok {
		return &Plan{Kind: PlanContentGeo, ContentGeo: cg}, nil
	}

	combined := combineAnd(filters)
	blocks, err := toDNF(combined)
	if err != nil {
		return nil, err
	}

	conjuncts := make([]ConjunctiveQuery, 0, len(blocks))
	for _, block := range blocks {
		cq, err := lowerBlock(table, forVar, block)
		if err != nil {
			return nil, err
		}
		cq.ForVar = forVar
		if sort != nil {
			if ob, ok := lowerOrderBy(forVar, sort); ok {
				cq.OrderBy = ob
			}
		}
		applyLimit(&cq, limit)
		cq.Distinct = ret.Distinct
		cq.Return = ret.Expr
		conjuncts = append(conjuncts, cq)
	}

	if len(conjuncts) == 1 {
		c := conjuncts[0]
		return &Plan{Kind: PlanConjunctive, Conjunctive: &c}, nil
	}
	return &Plan{Kind: PlanDisjunctive, Disjunctive: &DisjunctiveQuery{
		Table:    table,
		ForVar:   forVar,
		Blocks:   conjuncts,
		Distinct: ret.Distinct,
		Return:   ret.Expr,
	}}, nil
}

func derefFors(fs []*aql.ForClause) []aql.ForClause {
	out := make([]aql.ForClause, len(fs))
	for i, f := range fs {
		out[i] = *f
	}
	return out
}

func sourceTableName(e aql.Expr) (string, error) {
	switch n := e.(type) {
	case *aql.Ident:
		return n.Name, nil
	case *aql.Literal:
		if n.Kind == aql.LitString {
			return n.Str, nil
		}
	}
	return "", themiserr.New(themiserr.KindTranslate, "FOR source must be a collection name")
}

// translateTraversal lowers a graph-traversal FOR clause into plan shape 4.
func translateTraversal(f *aql.ForClause, filters []aql.Expr, ret *aql.ReturnClause) *Plan {
	g := f.Graph
	tq := &TraversalQuery{
		VertexVar:    g.VertexVar,
		EdgeVar:      g.EdgeVar,
		PathVar:      g.PathVar,
		MinDepth:     g.MinDepth,
		MaxDepth:     g.MaxDepth,
		Direction:    g.Direction,
		Start:        g.Start,
		GraphName:    g.GraphName,
		ShortestPath: g.ShortestPath,
		EndVertex:    g.EndVertex,
		Filters:      filters,
		Return:       ret.Expr,
	}
	if g.EdgeVar != "" {
		for _, filt := range filters {
			if col, lit, ok := edgeTypeComparison(g.EdgeVar, filt); ok {
				tq.EdgeTypeFilter = lit
				_ = col
			}
		}
	}
	return &Plan{Kind: PlanTraversal, Traversal: tq}
}

// edgeTypeComparison recognizes `edgeVar.type == "literal"` filters so the
// traversal executor can push the edge-type filter into adjacency
// iteration instead of post-filtering every edge.
func edgeTypeComparison(edgeVar string, e aql.Expr) (column, value string, ok bool) {
	bin, isBin := e.(*aql.BinaryExpr)
	if !isBin || bin.Op != string(OpEq) {
		return "", "", false
	}
	v, path, fieldOK := aql.FieldPath(bin.Left)
	lit, litOK := bin.Right.(*aql.Literal)
	if fieldOK && v == edgeVar && path == "type" && litOK && lit.Kind == aql.LitString {
		return path, lit.Str, true
	}
	return "", "", false
}

// combineAnd folds a list of independent FILTER clauses into one
// expression tree (AQL semantics: consecutive FILTERs are implicitly
// ANDed).
func combineAnd(filters []aql.Expr) aql.Expr {
	if len(filters) == 0 {
		return nil
	}
	combined := filters[0]
	for _, f := range filters[1:] {
		combined = &aql.BinaryExpr{Op: "AND", Left: combined, Right: f}
	}
	return combined
}

func applyLimit(cq *ConjunctiveQuery, limit *aql.LimitClause) {
	if limit == nil {
		return
	}
	if limit.Offset != nil {
		if n, ok := literalInt(limit.Offset); ok {
			cq.Offset = n
		}
	}
	if n, ok := literalInt(limit.Count); ok {
		cq.Limit = n
	}
}

func literalInt(e aql.Expr) (int, bool) {
	lit, ok := e.(*aql.Literal)
	if !ok || lit.Kind != aql.LitNumber {
		return 0, false
	}
	if lit.IsInt {
		return int(lit.Int), true
	}
	return int(lit.Num), true
}

func lowerOrderBy(forVar string, sort *aql.SortClause) (*OrderBy, bool) {
	if len(sort.Keys) == 0 {
		return nil, false
	}
	key := sort.Keys[0]
	v, path, ok := aql.FieldPath(key.Expr)
	if !ok || v != forVar || path == "" {
		return nil, false
	}
	return &OrderBy{Column: path, Descending: key.Descending}, true
}

func literalToValue(lit *aql.Literal) core.Value {
	switch lit.Kind {
	case aql.LitString:
		return core.Str(lit.Str)
	case aql.LitBool:
		return core.Bool(lit.Bool)
	case aql.LitNumber:
		if lit.IsInt {
			return core.I64(lit.Int)
		}
		return core.F64(lit.Num)
	default:
		return core.Null()
	}
}
