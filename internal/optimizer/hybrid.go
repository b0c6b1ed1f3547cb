package optimizer

// VectorGeoPlan names one of the three hybrid execution strategies, per
// spec §4.9.
type VectorGeoPlan string

const (
	PlanVectorThenSpatial VectorGeoPlan = "VectorThenSpatial"
	PlanSpatialThenVector VectorGeoPlan = "SpatialThenVector"
	PlanBruteForce        VectorGeoPlan = "BruteForce"
)

// VectorGeoInputs is the cost model's input record, per spec §4.9.
type VectorGeoInputs struct {
	HasVectorIndex     bool
	HasSpatialIndex    bool
	BBoxRatio          float64 // fraction of the spatial domain the query bbox covers, in [0,1]
	PrefilterSize      int     // size of any non-spatial prefilter already applied; 0 means none
	SpatialIndexEntries int
	K                  int
	VectorDim          int
	Overfetch          int // oversampling factor for vector-first KNN
}

// VectorGeoDecision is ChooseVectorGeoPlan's result, carrying both
// candidate costs for diagnostics even though only Plan is acted on.
type VectorGeoDecision struct {
	Plan            VectorGeoPlan
	CostVectorFirst float64
	CostSpatialFirst float64
}

// prefilterDiscount bounds how much a non-spatial prefilter can shrink
// either cost estimate — a very small prefilter shouldn't let either plan
// look artificially free.
func prefilterDiscount(prefilterSize int) float64 {
	if prefilterSize <= 0 {
		return 1.0
	}
	discount := 1.0 / float64(1+prefilterSize)
	if discount < 0.1 {
		discount = 0.1
	}
	return discount
}

// ChooseVectorGeoPlan implements the design-level cost model of spec
// §4.9: `cost_vector_first ∝ overfetch·k·vector_dim + post-filter(bbox_
// ratio)`, cheap when the bbox filter is selective against many ANN
// candidates or a prefilter is strong; `cost_spatial_first ∝ bbox_ratio·
// spatial_index_entries + k·vector_dim·candidate_count`, cheap for small
// bboxes. Missing indexes fall back to the remaining viable plan, or
// BruteForce if neither is available.
func ChooseVectorGeoPlan(in VectorGeoInputs) VectorGeoDecision {
	if !in.HasVectorIndex && !in.HasSpatialIndex {
		return VectorGeoDecision{Plan: PlanBruteForce}
	}
	if !in.HasSpatialIndex {
		return VectorGeoDecision{Plan: PlanVectorThenSpatial}
	}
	if !in.HasVectorIndex {
		return VectorGeoDecision{Plan: PlanSpatialThenVector}
	}

	overfetch := in.Overfetch
	if overfetch <= 0 {
		overfetch = 3
	}
	discount := prefilterDiscount(in.PrefilterSize)

	// Vector-first runs one ANN search (sublinear in index size, so its
	// cost is dominated by the overfetch·k·dim graph-traversal term, not
	// by total dataset size) then post-filters the overfetch·k candidates
	// against the bbox — a cheap per-candidate geometry check.
	candidatesPostFiltered := float64(overfetch * in.K)
	costVectorFirst := discount * (float64(overfetch*in.K*in.VectorDim) + in.BBoxRatio*candidatesPostFiltered)

	// Spatial-first scans the Morton buckets the bbox touches (cheap,
	// proportional to bbox_ratio·entries) then brute-force computes
	// distances for every surviving candidate — expensive per candidate
	// because it's a full vector_dim comparison, not an index probe.
	candidateCount := in.BBoxRatio * float64(in.SpatialIndexEntries)
	costSpatialFirst := discount * (in.BBoxRatio*float64(in.SpatialIndexEntries) + float64(in.K*in.VectorDim)*candidateCount)

	plan := PlanVectorThenSpatial
	if costSpatialFirst < costVectorFirst {
		plan = PlanSpatialThenVector
	}
	return VectorGeoDecision{Plan: plan, CostVectorFirst: costVectorFirst, CostSpatialFirst: costSpatialFirst}
}
