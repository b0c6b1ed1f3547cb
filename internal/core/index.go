package core

// IndexKind enumerates the secondary index kinds Themis maintains, per
// spec §3 "Index metadata".
type IndexKind string

const (
	IndexEquality    IndexKind = "equality"
	IndexRange       IndexKind = "range"
	IndexSparse      IndexKind = "sparse"
	IndexTTL         IndexKind = "ttl"
	IndexFulltext    IndexKind = "fulltext"
	IndexSpatial     IndexKind = "spatial"
	IndexGraph       IndexKind = "graph"
	IndexVectorANN   IndexKind = "vector_ann"
	IndexComposite   IndexKind = "composite"
)

// Metric identifies a vector distance function.
type Metric string

const (
	MetricL2          Metric = "l2"
	MetricCosine      Metric = "cosine"
	MetricInnerProd   Metric = "inner_product"
)

// IndexDescriptor is the persistent metadata record for one (table, column,
// kind) index, per spec §3.
type IndexDescriptor struct {
	Table  string
	Column string
	// Columns holds the full column list for Composite indexes; Column
	// holds the first for backward lookup convenience.
	Columns []string
	Kind    IndexKind
	Unique  bool

	// TTL parameters.
	TTLSeconds int64

	// Fulltext parameters.
	Analyzer FulltextParams

	// Spatial parameters.
	Spatial SpatialParams

	// Vector parameters.
	Vector VectorParams
}

// FulltextParams configures the analyzer pipeline for a Fulltext index.
type FulltextParams struct {
	Lowercase      bool
	StopwordsLang  string // "" disables stopword filtering
	Stemmer        string // "" disables stemming; e.g. "en"
	BM25K1         float64
	BM25B          float64
}

// DefaultFulltextParams returns the spec's default BM25 constants.
func DefaultFulltextParams() FulltextParams {
	return FulltextParams{Lowercase: true, BM25K1: 1.2, BM25B: 0.75}
}

// SpatialParams configures an R-tree-over-Morton spatial index.
type SpatialParams struct {
	MinX, MinY, MaxX, MaxY float64
	ThreeD                 bool
	MinZ, MaxZ             float64
	Fanout                 int
}

// VectorParams configures an HNSW vector index.
type VectorParams struct {
	Dim           int
	Metric        Metric
	M             int
	EfConstruction int
	EfSearch      int
	FlatThreshold int // below this population, use brute-force flat search
}

// DefaultVectorParams returns the spec's recall-floor defaults.
func DefaultVectorParams(dim int, metric Metric) VectorParams {
	return VectorParams{
		Dim: dim, Metric: metric,
		M: 16, EfConstruction: 200, EfSearch: 64,
		FlatThreshold: 256,
	}
}

// Key returns the (table, column, kind) identity tuple as a single string.
func (d *IndexDescriptor) Key() string {
	return d.Table + "\x00" + d.Column + "\x00" + string(d.Kind)
}
