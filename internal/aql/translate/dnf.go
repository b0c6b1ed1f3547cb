package translate

import (
	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/themiserr"
)

// toDNF converts expr to disjunctive normal form: a list of conjunctive
// blocks, each a list of atomic expressions ANDed together. A single
// resulting block means expr had no OR/XOR anywhere the translator could
// not otherwise negate away — i.e. it's effectively plan shape 1;
// multiple blocks is plan shape 2 (spec §4.8's "containsOr(expr) triggers
// DNF conversion" — here unconditional, since a tree with no OR always
// collapses to exactly one block, so there's no need to gate on
// ContainsOr first).
func toDNF(expr aql.Expr) ([][]aql.Expr, error) {
	if expr == nil {
		return [][]aql.Expr{nil}, nil
	}
	switch n := expr.(type) {
	case *aql.BinaryExpr:
		switch n.Op {
		case "OR":
			left, err := toDNF(n.Left)
			if err != nil {
				return nil, err
			}
			right, err := toDNF(n.Right)
			if err != nil {
				return nil, err
			}
			return append(left, right...), nil
		case "XOR":
			// (A AND NOT B) OR (NOT A AND B), per the Open Question
			// decision recorded in the design ledger.
			rewritten := &aql.BinaryExpr{
				Op: "OR",
				Left: &aql.BinaryExpr{Op: "AND", Left: n.Left, Right: &aql.UnaryExpr{Op: "NOT", Expr: n.Right}},
				Right: &aql.BinaryExpr{Op: "AND", Left: &aql.UnaryExpr{Op: "NOT", Expr: n.Left}, Right: n.Right},
			}
			return toDNF(rewritten)
		case "AND":
			left, err := toDNF(n.Left)
			if err != nil {
				return nil, err
			}
			right, err := toDNF(n.Right)
			if err != nil {
				return nil, err
			}
			var out [][]aql.Expr
			for _, l := range left {
				for _, r := range right {
					merged, err := mergeConjuncts(l, r)
					if err != nil {
						return nil, err
					}
					out = append(out, merged)
				}
			}
			return out, nil
		}
	case *aql.UnaryExpr:
		if n.Op == "NOT" {
			if negated, ok := negate(n.Expr); ok {
				return toDNF(negated)
			}
		}
	}
	return [][]aql.Expr{{expr}}, nil
}

// mergeConjuncts concatenates two conjunctive blocks, rejecting the
// combination if it would carry two FULLTEXT calls ANDed together within
// one disjunct, per spec §4.8.
func mergeConjuncts(a, b []aql.Expr) ([]aql.Expr, error) {
	merged := append(append([]aql.Expr{}, a...), b...)
	fulltextCount := 0
	for _, e := range merged {
		if isFulltextCall(e) {
			fulltextCount++
		}
	}
	if fulltextCount > 1 {
		return nil, themiserr.New(themiserr.KindTranslate, "combining two FULLTEXT predicates with AND within one disjunct is not supported")
	}
	return merged, nil
}

func isFulltextCall(e aql.Expr) bool {
	call, ok := e.(*aql.CallExpr)
	return ok && call.Name == "FULLTEXT"
}

// negate applies De Morgan / comparison-operator negation to expr where
// possible. ok is false when expr is something the translator cannot
// negate (a call expression, a field reference, etc.) — the caller then
// leaves the enclosing NOT in place as a post-filter.
func negate(expr aql.Expr) (aql.Expr, bool) {
	switch n := expr.(type) {
	case *aql.UnaryExpr:
		if n.Op == "NOT" {
			return n.Expr, true
		}
	case *aql.BinaryExpr:
		switch n.Op {
		case "AND":
			return &aql.BinaryExpr{Op: "OR", Left: &aql.UnaryExpr{Op: "NOT", Expr: n.Left}, Right: &aql.UnaryExpr{Op: "NOT", Expr: n.Right}}, true
		case "OR":
			return &aql.BinaryExpr{Op: "AND", Left: &aql.UnaryExpr{Op: "NOT", Expr: n.Left}, Right: &aql.UnaryExpr{Op: "NOT", Expr: n.Right}}, true
		case "==":
			return &aql.BinaryExpr{Op: "!=", Left: n.Left, Right: n.Right}, true
		case "!=":
			return &aql.BinaryExpr{Op: "==", Left: n.Left, Right: n.Right}, true
		case "<":
			return &aql.BinaryExpr{Op: ">=", Left: n.Left, Right: n.Right}, true
		case "<=":
			return &aql.BinaryExpr{Op: ">", Left: n.Left, Right: n.Right}, true
		case ">":
			return &aql.BinaryExpr{Op: "<=", Left: n.Left, Right: n.Right}, true
		case ">=":
			return &aql.BinaryExpr{Op: "<", Left: n.Left, Right: n.Right}, true
		}
	}
	return nil, false
}
