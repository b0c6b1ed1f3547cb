package translate

import "github.com/makr-code/themis/internal/aql"

// tryVectorGeo recognizes plan shape 5: `SORT SIMILARITY(vecField, query[,
// k]) [ASC|DESC] LIMIT n`, where the SIMILARITY call may appear directly
// in the SORT key or be aliased through a LET binding (`LET x =
// SIMILARITY(...) ... SORT x`), per spec §4.8's "aliases are resolved by
// scanning LETs" rule. Any ST_Within/ST_DWithin FILTER becomes the
// spatial prefilter; remaining predicates are lowered into Extra via the
// ordinary conjunctive path.
func tryVectorGeo(table, forVar string, lets []aql.LetClause, sort *aql.SortClause, limit *aql.LimitClause, filters []aql.Expr, ret *aql.ReturnClause) (*VectorGeoQuery, bool) {
	if sort == nil || len(sort.Keys) != 1 {
		return nil, false
	}
	call := resolveSimilarityCall(sort.Keys[0].Expr, lets)
	if call == nil || len(call.Args) < 2 {
		return nil, false
	}
	_, vecPath, ok := aql.FieldPath(call.Args[0])
	if !ok {
		return nil, false
	}

	k := 10
	if limit != nil {
		if n, ok := literalInt(limit.Count); ok {
			k = n
		}
	}

	var spatial *SpatialPredicate
	var remaining []aql.Expr
	for _, f := range filters {
		if sp, ok := asSpatialFilter(f, []string{"ST_Within", "ST_DWithin"}); ok {
			spatial = sp
			continue
		}
		remaining = append(remaining, f)
	}

	combined := combineAnd(remaining)
	blocks, err := toDNF(combined)
	var extra ConjunctiveQuery
	if err == nil && len(blocks) > 0 {
		if cq, err2 := lowerBlock(table, forVar, blocks[0]); err2 == nil {
			extra = cq
		}
	}

	return &VectorGeoQuery{
		Table:         table,
		ForVar:        forVar,
		VectorColumn:  vecPath,
		QueryVector:   call.Args[1],
		K:             k,
		Ascending:     len(sort.Keys) == 0 || !sort.Keys[0].Descending,
		SpatialFilter: spatial,
		Extra:         extra,
		Return:        ret.Expr,
	}, true
}

func resolveSimilarityCall(e aql.Expr, lets []aql.LetClause) *aql.CallExpr {
	switch n := e.(type) {
	case *aql.CallExpr:
		if n.Name == "SIMILARITY" {
			return n
		}
		return nil
	case *aql.Ident:
		for _, l := range lets {
			if l.Var == n.Name {
				if call, ok := l.Expr.(*aql.CallExpr); ok && call.Name == "SIMILARITY" {
					return call
				}
			}
		}
	}
	return nil
}

// tryContentGeo recognizes plan shape 6: a FULLTEXT FILTER accompanied by
// `SORT PROXIMITY(geoField, center) ASC LIMIT n`, optionally with a
// spatial FILTER, per spec §4.8/§4.10.
func tryContentGeo(table, forVar string, filters []aql.Expr, sort *aql.SortClause, limit *aql.LimitClause, ret *aql.ReturnClause) (*ContentGeoQuery, bool) {
	if sort == nil || len(sort.Keys) != 1 {
		return nil, false
	}
	call, ok := sort.Keys[0].Expr.(*aql.CallExpr)
	if !ok || call.Name != "PROXIMITY" || len(call.Args) < 2 {
		return nil, false
	}
	_, geoPath, ok := aql.FieldPath(call.Args[0])
	if !ok {
		return nil, false
	}

	var fulltext *FulltextPredicate
	var spatial *SpatialPredicate
	for _, f := range filters {
		if ftCall, ok := f.(*aql.CallExpr); ok && ftCall.Name == "FULLTEXT" {
			if parsed, err := asFulltext(ftCall); err == nil {
				fulltext = parsed
			}
			continue
		}
		if sp, ok := asSpatialFilter(f, []string{"ST_Within", "ST_Intersects"}); ok {
			spatial = sp
		}
	}
	if fulltext == nil {
		return nil, false
	}

	limitN := 10
	if limit != nil {
		if n, ok := literalInt(limit.Count); ok {
			limitN = n
		}
	}

	return &ContentGeoQuery{
		Table:           table,
		ForVar:          forVar,
		Fulltext:        *fulltext,
		ProximityColumn: geoPath,
		Center:          call.Args[1],
		SpatialFilter:   spatial,
		Limit:           limitN,
		Return:          ret.Expr,
	}, true
}

var spatialKindByName = map[string]SpatialPredicateKind{
	"ST_Within":     SpatialWithin,
	"ST_DWithin":    SpatialDWithin,
	"ST_Intersects": SpatialIntersects,
	"ST_Contains":   SpatialContains,
}

func asSpatialFilter(e aql.Expr, allowed []string) (*SpatialPredicate, bool) {
	call, ok := e.(*aql.CallExpr)
	if !ok {
		return nil, false
	}
	found := false
	for _, a := range allowed {
		if a == call.Name {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}
	if len(call.Args) == 0 {
		return nil, false
	}
	_, col, ok := aql.FieldPath(call.Args[0])
	if !ok {
		return nil, false
	}
	return &SpatialPredicate{Kind: spatialKindByName[call.Name], Column: col, Args: call.Args[1:]}, true
}
