// Package translate lowers an AQL AST (internal/aql) into one of the six
// plan shapes spec §4.8 describes. It is the AST-shaped-to-structured
// transform the rest of the engine consumes, generalized from teacher's
// internal/diff (which walks two core.Database ASTs and produces a
// structured diff) into a single-AST-to-structured-plan lowering.
package translate

import (
	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/core"
)

// PlanKind discriminates the six plan shapes.
type PlanKind int

const (
	PlanConjunctive PlanKind = iota
	PlanDisjunctive
	PlanJoin
	PlanTraversal
	PlanVectorGeo
	PlanContentGeo
)

func (k PlanKind) String() string {
	switch k {
	case PlanConjunctive:
		return "conjunctive"
	case PlanDisjunctive:
		return "disjunctive"
	case PlanJoin:
		return "join"
	case PlanTraversal:
		return "traversal"
	case PlanVectorGeo:
		return "vector_geo"
	case PlanContentGeo:
		return "content_geo"
	default:
		return "unknown"
	}
}

// CmpOp is a normalized comparison operator.
type CmpOp string

const (
	OpEq  CmpOp = "=="
	OpNeq CmpOp = "!="
	OpLt  CmpOp = "<"
	OpLte CmpOp = "<="
	OpGt  CmpOp = ">"
	OpGte CmpOp = ">="
	OpIn  CmpOp = "IN"
)

// EqPredicate is an equality predicate on an indexed column.
type EqPredicate struct {
	Column string
	Value  core.Value
}

// RangePredicate is a bound (lower and/or upper) on an indexed column.
// Either bound may be absent (Has* false), for one-sided ranges.
type RangePredicate struct {
	Column       string
	HasLower     bool
	Lower        core.Value
	LowerIncl    bool
	HasUpper     bool
	Upper        core.Value
	UpperIncl    bool
}

// FulltextPredicate is a `FULLTEXT(column, query[, k])` filter.
type FulltextPredicate struct {
	Column string
	Query  string
	Limit  int // 0 means unset
}

// OrderBy is a single SORT key lowered onto an indexed column, when the
// sort expression is a plain field access the range-aware path can drive.
type OrderBy struct {
	Column     string
	Descending bool
}

// ConjunctiveQuery is plan shape 1, per spec §4.8.
type ConjunctiveQuery struct {
	Table    string
	// ForVar is the FOR-bound variable name Return/PostFilter/OrderBy
	// expressions reference, carried through so the executor can bind
	// each materialized entity into the evaluation environment.
	ForVar   string
	Eq       []EqPredicate
	Range    []RangePredicate
	Fulltext *FulltextPredicate
	OrderBy  *OrderBy
	Limit    int
	Offset   int
	// PostFilter holds any FILTER subtree the translator could not lower
	// to an index predicate (e.g. a NOT it could not negate), evaluated
	// by the executor after the index-driven candidate set is produced.
	PostFilter aql.Expr
	Distinct   bool
	Return     aql.Expr
}

// DisjunctiveQuery is plan shape 2: a list of conjunctive blocks unioned
// together, per spec §4.8's DNF conversion.
type DisjunctiveQuery struct {
	Table    string
	ForVar   string
	Blocks   []ConjunctiveQuery
	Distinct bool
	Return   aql.Expr
}

// JoinQuery is plan shape 3: multiple FOR bindings, LET, COLLECT,
// DISTINCT, and a nested RETURN expression.
type JoinQuery struct {
	Fors     []aql.ForClause
	Lets     []aql.LetClause
	Filters  []aql.Expr
	Collect  *aql.CollectClause
	Distinct bool
	Return   aql.Expr
}

// TraversalQuery is plan shape 4: a graph traversal, optionally with
// SHORTEST_PATH.
type TraversalQuery struct {
	VertexVar    string
	EdgeVar      string
	PathVar      string
	MinDepth     int
	MaxDepth     int
	Direction    string
	Start        aql.Expr
	GraphName    string
	ShortestPath bool
	EndVertex    aql.Expr
	EdgeTypeFilter string // "" means unfiltered; lowered from a FILTER on the edge var's "type" field
	Filters      []aql.Expr
	Return       aql.Expr
}

// VectorGeoQuery is plan shape 5: a SIMILARITY-ordered KNN sort hybridized
// with an optional spatial prefilter and ordinary predicates.
type VectorGeoQuery struct {
	Table        string
	ForVar       string
	VectorColumn string
	QueryVector  aql.Expr
	K            int
	Ascending    bool
	SpatialFilter *SpatialPredicate // nil if absent
	Extra        ConjunctiveQuery  // ordinary predicates the spatial prefilter/index can consume
	Return       aql.Expr
}

// SpatialPredicateKind discriminates an ST_* spatial filter function.
type SpatialPredicateKind int

const (
	SpatialWithin SpatialPredicateKind = iota
	SpatialDWithin
	SpatialIntersects
	SpatialContains
)

// SpatialPredicate is a lowered ST_Within/ST_DWithin/ST_Intersects/
// ST_Contains filter call.
type SpatialPredicate struct {
	Kind   SpatialPredicateKind
	Column string
	Args   []aql.Expr
}

// ContentGeoQuery is plan shape 6: a FULLTEXT filter plus a PROXIMITY sort.
type ContentGeoQuery struct {
	Table         string
	ForVar        string
	Fulltext      FulltextPredicate
	ProximityColumn string
	Center        aql.Expr
	SpatialFilter *SpatialPredicate
	Limit         int
	Return        aql.Expr
}

// Plan is the tagged-union result of Translate: exactly one of the six
// pointer fields is non-nil, selected by Kind.
type Plan struct {
	Kind       PlanKind
	Conjunctive *ConjunctiveQuery
	Disjunctive *DisjunctiveQuery
	Join        *JoinQuery
	Traversal   *TraversalQuery
	VectorGeo   *VectorGeoQuery
	ContentGeo  *ContentGeoQuery
}
