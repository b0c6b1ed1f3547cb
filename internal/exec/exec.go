// Package exec is the execution engine (spec §4.10): it takes a lowered
// translate.Plan and drives the secondary index, spatial, vector, and graph
// engines to produce a result stream, materializing entities, evaluating
// RETURN/FILTER/SORT expressions, and applying LIMIT/DISTINCT along the
// way. Grounded on the teacher's internal/apply.Applier orchestration shape
// (one entry point dispatching to per-operation-kind handlers, structured
// warnings collected rather than aborting), generalized from "apply a SQL
// migration" to "execute one of six AQL plan shapes".
package exec

import (
	"context"
	"sort"

	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/capability"
	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/graph"
	"github.com/makr-code/themis/internal/secidx"
	"github.com/makr-code/themis/internal/spatial"
	"github.com/makr-code/themis/internal/themiserr"
	"github.com/makr-code/themis/internal/vector"
	"go.uber.org/zap"
)

// Defaults mirror the spec's config tunables (§6), overridable per-Engine.
const (
	DefaultOverfetch            = 3
	DefaultBBoxRatioThreshold   = 0.1
	DefaultMaterializeThreshold = 100
	DefaultMaterializeBatch     = 50
	DefaultMaxProbePerPredicate = 10000
)

// Row is one output tuple: the evaluated RETURN value.
type Row struct {
	Value core.Value
}

// Result is the full output of one Execute call.
type Result struct {
	Rows []Row
}

// Engine is the execution engine. One instance is shared across requests;
// every field it touches (catalog, index engines) is independently safe
// for concurrent use per spec §5.
type Engine struct {
	secidx  *secidx.Engine
	spatial *spatial.Engine
	vector  *vector.Engine
	graph   *graph.Engine
	catalog *catalog.Catalog
	log     *zap.Logger

	overfetch            int
	bboxRatioThreshold   float64
	materializeThreshold int
	materializeBatch     int
	maxProbePerPredicate int
	geometryBackend      string
}

// NewEngine wires the four index engines plus the catalog into an
// execution engine with spec-default tunables.
func NewEngine(secidxEngine *secidx.Engine, spatialEngine *spatial.Engine, vectorEngine *vector.Engine, graphEngine *graph.Engine, cat *catalog.Catalog) *Engine {
	return &Engine{
		secidx:               secidxEngine,
		spatial:              spatialEngine,
		vector:               vectorEngine,
		graph:                graphEngine,
		catalog:              cat,
		log:                  zap.NewNop(),
		overfetch:            DefaultOverfetch,
		bboxRatioThreshold:   DefaultBBoxRatioThreshold,
		materializeThreshold: DefaultMaterializeThreshold,
		materializeBatch:     DefaultMaterializeBatch,
		maxProbePerPredicate: DefaultMaxProbePerPredicate,
		geometryBackend:      capability.GeometryBackendCPU,
	}
}

// WithLogger attaches a structured logger for skipped-entity and
// recoverable-evaluation warnings; the default is a no-op logger.
func (e *Engine) WithLogger(log *zap.Logger) *Engine {
	e.log = log
	return e
}

// WithOverfetch sets the oversampling factor for vector-first hybrid
// plans (config key `vector_first_overfetch`).
func (e *Engine) WithOverfetch(n int) *Engine {
	e.overfetch = n
	return e
}

// WithBBoxRatioThreshold sets the config key `bbox_ratio_threshold`.
func (e *Engine) WithBBoxRatioThreshold(r float64) *Engine {
	e.bboxRatioThreshold = r
	return e
}

// WithMaterializeThresholds overrides the entity-materialization batching
// constants (spec §4.10 "~100"/"~50").
func (e *Engine) WithMaterializeThresholds(threshold, batch int) *Engine {
	e.materializeThreshold = threshold
	e.materializeBatch = batch
	return e
}

// WithGeometryBackend selects the registered capability.ExactGeometryBackend
// used for hybrid vector-geo/content-geo exact checks.
func (e *Engine) WithGeometryBackend(name string) *Engine {
	e.geometryBackend = name
	return e
}

// Execute dispatches plan to the handler for its Kind.
func (e *Engine) Execute(ctx context.Context, plan *translate.Plan) (*Result, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	switch plan.Kind {
	case translate.PlanConjunctive:
		return e.runConjunctive(ctx, plan.Conjunctive)
	case translate.PlanDisjunctive:
		return e.runDisjunctive(ctx, plan.Disjunctive)
	case translate.PlanJoin:
		return e.runJoin(ctx, plan.Join)
	case translate.PlanTraversal:
		return e.runTraversal(ctx, plan.Traversal)
	case translate.PlanVectorGeo:
		return e.runVectorGeo(ctx, plan.VectorGeo)
	case translate.PlanContentGeo:
		return e.runContentGeo(ctx, plan.ContentGeo)
	default:
		return nil, themiserr.New(themiserr.KindInternal, "unknown plan kind %v", plan.Kind)
	}
}

// checkCancel reports a themiserr.KindCancelled error once ctx is done,
// per spec §5's every-suspension-point cancellation check.
func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return themiserr.Wrap(themiserr.KindCancelled, ctx.Err(), "execution cancelled")
	default:
		return nil
	}
}

// sortPKs sorts a pk list lexicographically in place and returns it.
func sortPKs(pks [][]byte) [][]byte {
	sort.Slice(pks, func(i, j int) bool { return string(pks[i]) < string(pks[j]) })
	return pks
}

// intersectSortedPKs intersects any number of already-sorted pk lists,
// smallest list first for fewer comparisons, per spec §4.10's "intersected
// smallest-first" rule.
func intersectSortedPKs(lists [][][]byte) [][]byte {
	if len(lists) == 0 {
		return nil
	}
	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })
	result := lists[0]
	for _, next := range lists[1:] {
		if len(result) == 0 {
			return nil
		}
		result = intersectTwoSorted(result, next)
	}
	return result
}

func intersectTwoSorted(a, b [][]byte) [][]byte {
	var out [][]byte
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		sa, sb := string(a[i]), string(b[j])
		switch {
		case sa == sb:
			out = append(out, a[i])
			i++
			j++
		case sa < sb:
			i++
		default:
			j++
		}
	}
	return out
}

// unionSortedPKs merges and deduplicates any number of pk lists (need not
// be pre-sorted), per spec §4.10's disjunctive "sorted set_union".
func unionSortedPKs(lists [][][]byte) [][]byte {
	seen := map[string][]byte{}
	for _, list := range lists {
		for _, pk := range list {
			seen[string(pk)] = pk
		}
	}
	out := make([][]byte, 0, len(seen))
	for _, pk := range seen {
		out = append(out, pk)
	}
	return sortPKs(out)
}
