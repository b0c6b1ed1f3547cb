package translate

import (
	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/themiserr"
)

// lowerBlock turns one conjunctive DNF block (a list of AND'd atomic
// expressions) into a ConjunctiveQuery: comparisons on the FOR variable's
// fields become equality/range predicates, FULLTEXT calls become the
// fulltext predicate, and anything else (including an un-negatable NOT)
// falls through to PostFilter, per spec §4.8's NOT-negation/post-filter
// fallback rule.
func lowerBlock(table, forVar string, block []aql.Expr) (ConjunctiveQuery, error) {
	cq := ConjunctiveQuery{Table: table}
	var post aql.Expr

	for _, atom := range block {
		switch n := atom.(type) {
		case *aql.BinaryExpr:
			if eq, ok := asEquality(forVar, n); ok {
				cq.Eq = append(cq.Eq, eq)
				continue
			}
			if rng, ok := asRange(forVar, n); ok {
				cq.Range = append(cq.Range, rng)
				continue
			}
			post = andExpr(post, atom)
		case *aql.CallExpr:
			if n.Name == "FULLTEXT" {
				ft, err := asFulltext(n)
				if err != nil {
					return cq, err
				}
				if cq.Fulltext != nil {
					return cq, themiserr.New(themiserr.KindTranslate, "combining two FULLTEXT predicates with AND within one disjunct is not supported")
				}
				cq.Fulltext = ft
				continue
			}
			post = andExpr(post, atom)
		default:
			post = andExpr(post, atom)
		}
	}

	cq.PostFilter = post
	return cq, nil
}

func andExpr(existing, add aql.Expr) aql.Expr {
	if existing == nil {
		return add
	}
	return &aql.BinaryExpr{Op: "AND", Left: existing, Right: add}
}

// asEquality recognizes `forVar.path == literal` (or the literal-first
// form), yielding an EqPredicate.
func asEquality(forVar string, n *aql.BinaryExpr) (EqPredicate, bool) {
	if n.Op != "==" {
		return EqPredicate{}, false
	}
	path, lit, ok := fieldAndLiteral(forVar, n.Left, n.Right)
	if !ok {
		return EqPredicate{}, false
	}
	return EqPredicate{Column: path, Value: literalToValue(lit)}, true
}

// asRange recognizes `forVar.path {<, <=, >, >=} literal`, yielding a
// one-sided RangePredicate.
func asRange(forVar string, n *aql.BinaryExpr) (RangePredicate, bool) {
	switch n.Op {
	case "<", "<=", ">", ">=":
	default:
		return RangePredicate{}, false
	}
	path, lit, leftIsField, ok := fieldAndLiteralDirectional(forVar, n.Left, n.Right)
	if !ok {
		return RangePredicate{}, false
	}
	op := n.Op
	if !leftIsField {
		// literal OP field: flip the comparison direction.
		switch op {
		case "<":
			op = ">"
		case "<=":
			op = ">="
		case ">":
			op = "<"
		case ">=":
			op = "<="
		}
	}
	v := literalToValue(lit)
	rp := RangePredicate{Column: path}
	switch op {
	case "<":
		rp.HasUpper, rp.Upper, rp.UpperIncl = true, v, false
	case "<=":
		rp.HasUpper, rp.Upper, rp.UpperIncl = true, v, true
	case ">":
		rp.HasLower, rp.Lower, rp.LowerIncl = true, v, false
	case ">=":
		rp.HasLower, rp.Lower, rp.LowerIncl = true, v, true
	}
	return rp, true
}

func fieldAndLiteral(forVar string, left, right aql.Expr) (string, *aql.Literal, bool) {
	path, lit, _, ok := fieldAndLiteralDirectional(forVar, left, right)
	return path, lit, ok
}

func fieldAndLiteralDirectional(forVar string, left, right aql.Expr) (path string, lit *aql.Literal, leftIsField bool, ok bool) {
	if v, p, fOK := aql.FieldPath(left); fOK && v == forVar {
		if l, lOK := right.(*aql.Literal); lOK {
			return p, l, true, true
		}
	}
	if v, p, fOK := aql.FieldPath(right); fOK && v == forVar {
		if l, lOK := left.(*aql.Literal); lOK {
			return p, l, false, true
		}
	}
	return "", nil, false, false
}

func asFulltext(call *aql.CallExpr) (*FulltextPredicate, error) {
	if len(call.Args) < 2 {
		return nil, themiserr.New(themiserr.KindTranslate, "FULLTEXT requires (column, query[, k]) arguments")
	}
	_, path, ok := aql.FieldPath(call.Args[0])
	if !ok {
		return nil, themiserr.New(themiserr.KindTranslate, "FULLTEXT's first argument must be a field access")
	}
	queryLit, ok := call.Args[1].(*aql.Literal)
	if !ok || queryLit.Kind != aql.LitString {
		return nil, themiserr.New(themiserr.KindTranslate, "FULLTEXT's second argument must be a string literal")
	}
	ft := &FulltextPredicate{Column: path, Query: queryLit.Str}
	if len(call.Args) >= 3 {
		if n, ok := literalInt(call.Args[2]); ok {
			ft.Limit = n
		}
	}
	return ft, nil
}
