package exec

import (
	"context"
	"math"
	"strings"

	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/capability"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/geometry"
	"github.com/makr-code/themis/internal/optimizer"
	"github.com/makr-code/themis/internal/themiserr"
	"github.com/makr-code/themis/internal/vector"
)

// runVectorGeo executes plan shape 5: a SIMILARITY-ordered KNN search
// hybridized with an optional spatial prefilter, choosing among
// VectorThenSpatial/SpatialThenVector/BruteForce per
// optimizer.ChooseVectorGeoPlan (spec §4.9).
func (e *Engine) runVectorGeo(ctx context.Context, q *translate.VectorGeoQuery) (*Result, error) {
	queryVal, err := e.Eval(ctx, q.QueryVector, Env{})
	if err != nil {
		return nil, err
	}
	if queryVal.Kind != core.KindVector {
		return nil, themiserr.New(themiserr.KindTranslate, "SIMILARITY query argument is not a vector")
	}
	vec := queryVal.Vector

	var extraCandidates [][]byte
	havePrefilter := len(q.Extra.Eq) > 0 || len(q.Extra.Range) > 0 || q.Extra.Fulltext != nil
	if havePrefilter {
		extraCandidates, err = e.executeAndKeys(ctx, &q.Extra)
		if err != nil {
			return nil, err
		}
	}

	hasVectorIdx := e.catalog.Has(q.Table, q.VectorColumn, core.IndexVectorANN)
	var hasSpatialIdx bool
	var filterGeom geometry.Geometry
	var filterRadius float64
	var bboxRatio float64
	if q.SpatialFilter != nil {
		hasSpatialIdx = e.catalog.Has(q.Table, q.SpatialFilter.Column, core.IndexSpatial)
		filterGeom, filterRadius, err = e.evalSpatialFilterGeometry(ctx, q.SpatialFilter)
		if err != nil {
			return nil, err
		}
		if hasSpatialIdx {
			bboxRatio = e.bboxRatioAgainstDomain(q.Table, q.SpatialFilter.Column, filterGeom, filterRadius)
		}
	}

	decision := optimizer.ChooseVectorGeoPlan(optimizer.VectorGeoInputs{
		HasVectorIndex:      hasVectorIdx,
		HasSpatialIndex:     hasSpatialIdx,
		BBoxRatio:           bboxRatio,
		PrefilterSize:       len(extraCandidates),
		SpatialIndexEntries: len(extraCandidates),
		K:                   q.K,
		VectorDim:           len(vec),
		Overfetch:           e.overfetch,
	})

	var ranked [][]byte
	switch decision.Plan {
	case optimizer.PlanSpatialThenVector:
		spatialCandidates, err := e.spatialCandidates(ctx, q.Table, q.SpatialFilter, filterGeom, filterRadius)
		if err != nil {
			return nil, err
		}
		if havePrefilter {
			spatialCandidates = intersectSortedPKs([][][]byte{sortPKs(spatialCandidates), sortPKs(extraCandidates)})
		}
		results, err := e.vector.SearchKNNPreFiltered(ctx, q.Table, q.VectorColumn, vec, q.K, spatialCandidates)
		if err != nil {
			return nil, err
		}
		ranked = vectorPKs(results)
	case optimizer.PlanBruteForce:
		ranked, err = e.bruteForceVectorGeo(ctx, q, vec, extraCandidates, filterGeom, filterRadius)
		if err != nil {
			return nil, err
		}
	default: // PlanVectorThenSpatial
		overfetchK := e.overfetch * q.K
		if overfetchK < q.K {
			overfetchK = q.K
		}
		var results []vector.Result
		if havePrefilter {
			results, err = e.vector.SearchKNNPreFiltered(ctx, q.Table, q.VectorColumn, vec, overfetchK, extraCandidates)
		} else {
			results, err = e.vector.SearchKNN(ctx, q.Table, q.VectorColumn, vec, overfetchK)
		}
		if err != nil {
			return nil, err
		}
		ranked, err = e.postFilterSpatialExact(ctx, q.Table, q.SpatialFilter, filterGeom, vectorPKs(results), q.K)
		if err != nil {
			return nil, err
		}
	}

	if !q.Ascending {
		for i, j := 0, len(ranked)-1; i < j; i, j = i+1, j-1 {
			ranked[i], ranked[j] = ranked[j], ranked[i]
		}
	}

	return e.materializeAndProject(ctx, q.Table, q.ForVar, ranked, nil, q.Extra.PostFilter, 0, 0, false, q.Return)
}

func vectorPKs(rs []vector.Result) [][]byte {
	out := make([][]byte, len(rs))
	for i, r := range rs {
		out[i] = r.PK
	}
	return out
}

// evalSpatialFilterGeometry evaluates a lowered SpatialPredicate's
// arguments: for ST_DWithin, (geometry, radius meters); otherwise just the
// geometry argument.
func (e *Engine) evalSpatialFilterGeometry(ctx context.Context, sp *translate.SpatialPredicate) (geometry.Geometry, float64, error) {
	if len(sp.Args) == 0 {
		return geometry.Geometry{}, 0, themiserr.New(themiserr.KindTranslate, "spatial filter on %s missing geometry argument", sp.Column)
	}
	v, err := e.Eval(ctx, sp.Args[0], Env{})
	if err != nil {
		return geometry.Geometry{}, 0, err
	}
	g, ok := asGeometry(v)
	if !ok {
		return geometry.Geometry{}, 0, themiserr.New(themiserr.KindTranslate, "spatial filter on %s: argument is not a geometry", sp.Column)
	}
	if sp.Kind == translate.SpatialDWithin && len(sp.Args) >= 2 {
		rv, err := e.Eval(ctx, sp.Args[1], Env{})
		if err != nil {
			return geometry.Geometry{}, 0, err
		}
		radius, _ := rv.AsFloat64()
		return g, radius, nil
	}
	return g, 0, nil
}

// bboxRatioAgainstDomain estimates the fraction of the registered spatial
// index's domain the filter geometry's bbox covers, per the optimizer's
// cost model input (spec §4.9).
func (e *Engine) bboxRatioAgainstDomain(table, column string, g geometry.Geometry, radius float64) float64 {
	desc, ok := e.catalog.Get(table, column, core.IndexSpatial)
	if !ok {
		return 0
	}
	domain := geometry.MBR{MinX: desc.Spatial.MinX, MinY: desc.Spatial.MinY, MaxX: desc.Spatial.MaxX, MaxY: desc.Spatial.MaxY}
	domainArea := (domain.MaxX - domain.MinX) * (domain.MaxY - domain.MinY)
	if domainArea <= 0 {
		return 0
	}
	queryMBR := e.filterBBox(g, radius)
	queryArea := (queryMBR.MaxX - queryMBR.MinX) * (queryMBR.MaxY - queryMBR.MinY)
	ratio := queryArea / domainArea
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// filterBBox returns the query bbox for a spatial filter: the geometry's
// own MBR, expanded by radius meters for ST_DWithin.
func (e *Engine) filterBBox(g geometry.Geometry, radius float64) geometry.MBR {
	mbr, err := geometry.ComputeMBR(g)
	if err != nil {
		return geometry.MBR{}
	}
	if radius <= 0 {
		return mbr
	}
	cy := (mbr.MinY + mbr.MaxY) / 2
	dLon, dLat := geometry.DegreeDeltaForMeters(radius, cy)
	return geometry.MBR{MinX: mbr.MinX - dLon, MaxX: mbr.MaxX + dLon, MinY: mbr.MinY - dLat, MaxY: mbr.MaxY + dLat}
}

// spatialCandidates runs the bbox-approximate spatial search corresponding
// to sp.Kind, used by the SpatialThenVector plan to cheaply shrink the
// candidate set before the (expensive) vector distance computation.
func (e *Engine) spatialCandidates(ctx context.Context, table string, sp *translate.SpatialPredicate, g geometry.Geometry, radius float64) ([][]byte, error) {
	if sp == nil {
		return nil, nil
	}
	if sp.Kind == translate.SpatialDWithin {
		sc, err := geometry.ComputeSidecar(g)
		if err != nil {
			return nil, nil
		}
		return e.spatial.SearchNearby(ctx, table, sp.Column, sc.CentroidX, sc.CentroidY, radius, 0)
	}
	box := e.filterBBox(g, 0)
	if sp.Kind == translate.SpatialWithin {
		return e.spatial.SearchWithin(ctx, table, sp.Column, box, 0, 0, false, 0)
	}
	return e.spatial.SearchIntersects(ctx, table, sp.Column, box, 0)
}

// postFilterSpatialExact narrows a ranked pk list to the first limit
// entries that exactly satisfy the spatial predicate (or all of them, if
// sp is nil), preserving rank order — the VectorThenSpatial plan's
// post-filter step (spec §4.9).
func (e *Engine) postFilterSpatialExact(ctx context.Context, table string, sp *translate.SpatialPredicate, g geometry.Geometry, ranked [][]byte, limit int) ([][]byte, error) {
	if sp == nil {
		if limit > 0 && len(ranked) > limit {
			ranked = ranked[:limit]
		}
		return ranked, nil
	}
	backend, err := capability.GetGeometryBackend(e.geometryBackend)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, limit)
	for _, pk := range ranked {
		if limit > 0 && len(out) >= limit {
			break
		}
		ent, ok, err := e.secidx.Get(ctx, table, pk)
		if err != nil || !ok {
			continue
		}
		fg, ok := asGeometry(entityFieldValue(ent, sp.Column))
		if !ok {
			continue
		}
		if spatialPredicateHolds(backend, sp.Kind, fg, g) {
			out = append(out, pk)
		}
	}
	return out, nil
}

func spatialPredicateHolds(backend geometry.ExactGeometryBackend, kind translate.SpatialPredicateKind, fieldGeom, filterGeom geometry.Geometry) bool {
	switch kind {
	case translate.SpatialContains:
		return backend.Contains(fieldGeom, filterGeom)
	case translate.SpatialWithin, translate.SpatialDWithin:
		return backend.Within(fieldGeom, filterGeom) || backend.Intersects(fieldGeom, filterGeom)
	default:
		return backend.Intersects(fieldGeom, filterGeom)
	}
}

func entityFieldValue(ent *core.Entity, column string) core.Value {
	v, ok := ent.GetPath(strings.Split(column, "."))
	if !ok {
		return core.Null()
	}
	return v
}

// bruteForceVectorGeo scans the whole table, computing vector distance and
// an exact spatial check in memory — the fallback when neither a vector
// nor a spatial index is registered (spec §4.9).
func (e *Engine) bruteForceVectorGeo(ctx context.Context, q *translate.VectorGeoQuery, vec []float32, restrictTo [][]byte, filterGeom geometry.Geometry, filterRadius float64) ([][]byte, error) {
	kernel, err := capability.GetDistanceKernel(capability.KernelCPU)
	if err != nil {
		return nil, err
	}
	restrict := toPKSet(restrictTo)
	hasRestrict := len(restrictTo) > 0

	var backend geometry.ExactGeometryBackend
	if q.SpatialFilter != nil {
		backend, err = capability.GetGeometryBackend(e.geometryBackend)
		if err != nil {
			return nil, err
		}
	}

	var candidates []scoredCandidate
	err = e.secidx.ScanTableEntities(ctx, q.Table, func(ent *core.Entity) bool {
		if checkCancel(ctx) != nil {
			return false
		}
		if hasRestrict && !restrict[string(ent.PK)] {
			return true
		}
		vecVal := entityFieldValue(ent, q.VectorColumn)
		if vecVal.Kind != core.KindVector || len(vecVal.Vector) != len(vec) {
			return true
		}
		if q.SpatialFilter != nil {
			fg, ok := asGeometry(entityFieldValue(ent, q.SpatialFilter.Column))
			if !ok || !spatialPredicateHolds(backend, q.SpatialFilter.Kind, fg, filterGeom) {
				return true
			}
		}
		dist := float64(kernel.L2(vec, vecVal.Vector))
		candidates = append(candidates, scoredCandidate{pk: append([]byte(nil), ent.PK...), dist: dist})
		return true
	})
	if err != nil {
		return nil, err
	}
	insertionSortScored(candidates)
	if q.K > 0 && len(candidates) > q.K {
		candidates = candidates[:q.K]
	}
	out := make([][]byte, len(candidates))
	for i, c := range candidates {
		out[i] = c.pk
	}
	return out, nil
}

// scoredCandidate pairs a primary key with a computed vector distance, for
// in-memory brute-force ranking.
type scoredCandidate struct {
	pk   []byte
	dist float64
}

func insertionSortScored(xs []scoredCandidate) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j].dist < xs[j-1].dist; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// runContentGeo executes plan shape 6: a FULLTEXT-filtered, PROXIMITY-sorted
// query, per spec §4.10: fulltext scan with scores, ranked by distance to
// the center point ascending with BM25 descending as a tiebreak, optionally
// narrowed by a spatial filter, truncated to Limit.
func (e *Engine) runContentGeo(ctx context.Context, q *translate.ContentGeoQuery) (*Result, error) {
	scored, err := e.secidx.ScanFulltextWithScores(ctx, q.Table, q.Fulltext.Column, q.Fulltext.Query, 0)
	if err != nil {
		return nil, err
	}
	centerVal, err := e.Eval(ctx, q.Center, Env{})
	if err != nil {
		return nil, err
	}
	centerGeom, ok := asGeometry(centerVal)
	if !ok {
		return nil, themiserr.New(themiserr.KindTranslate, "PROXIMITY center argument is not a geometry")
	}
	centerSC, err := geometry.ComputeSidecar(centerGeom)
	if err != nil {
		return nil, err
	}

	var backend geometry.ExactGeometryBackend
	var filterGeom geometry.Geometry
	if q.SpatialFilter != nil {
		backend, err = capability.GetGeometryBackend(e.geometryBackend)
		if err != nil {
			return nil, err
		}
		filterGeom, _, err = e.evalSpatialFilterGeometry(ctx, q.SpatialFilter)
		if err != nil {
			return nil, err
		}
	}

	hits := make([]contentHit, 0, len(scored))
	for _, s := range scored {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		ent, ok, err := e.secidx.Get(ctx, q.Table, s.PK)
		if err != nil || !ok {
			continue
		}
		fg, ok := asGeometry(entityFieldValue(ent, q.ProximityColumn))
		if !ok {
			continue
		}
		if q.SpatialFilter != nil && !spatialPredicateHolds(backend, q.SpatialFilter.Kind, fg, filterGeom) {
			continue
		}
		fsc, err := geometry.ComputeSidecar(fg)
		if err != nil {
			continue
		}
		dist := geometry.HaversineMeters(centerSC.CentroidX, centerSC.CentroidY, fsc.CentroidX, fsc.CentroidY)
		hits = append(hits, contentHit{pk: s.PK, distance: dist, score: s.Score})
	}

	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hitLess(hits[j], hits[j-1]); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	pks := make([][]byte, len(hits))
	for i, h := range hits {
		pks[i] = h.pk
	}
	return e.materializeAndProject(ctx, q.Table, q.ForVar, pks, nil, nil, 0, 0, false, q.Return)
}

// contentHit is one fulltext match carried through the PROXIMITY sort.
type contentHit struct {
	pk       []byte
	distance float64
	score    float64
}

func hitLess(a, b contentHit) bool {
	if math.Abs(a.distance-b.distance) > 1e-9 {
		return a.distance < b.distance
	}
	return a.score > b.score
}
