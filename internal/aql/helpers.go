package aql

import "strings"

// FieldPath flattens a chain of FieldAccess nodes rooted at a FOR
// variable into ("var", "a.b.c"), per spec §4.8 "Field access doc.a.b.c
// on the FOR variable yields column path a.b.c". ok is false if base
// isn't a pure Ident/FieldAccess chain (e.g. it passes through a call or
// index expression).
func FieldPath(e Expr) (variable, path string, ok bool) {
	var segments []string
	cur := e
	for {
		switch n := cur.(type) {
		case *FieldAccess:
			segments = append([]string{n.Field}, segments...)
			cur = n.Base
		case *Ident:
			if len(segments) == 0 {
				return n.Name, "", true
			}
			return n.Name, strings.Join(segments, "."), true
		default:
			return "", "", false
		}
	}
}

// ContainsOr reports whether expr contains a top-level-reachable OR/XOR
// node not already inside a NOT that the translator would have to defer
// anyway — used to decide whether a FILTER tree needs DNF conversion, per
// spec §4.8 "containsOr(expr) triggers DNF conversion".
func ContainsOr(e Expr) bool {
	switch n := e.(type) {
	case *BinaryExpr:
		if n.Op == "OR" || n.Op == "XOR" {
			return true
		}
		return ContainsOr(n.Left) || ContainsOr(n.Right)
	case *UnaryExpr:
		return ContainsOr(n.Expr)
	default:
		return false
	}
}
