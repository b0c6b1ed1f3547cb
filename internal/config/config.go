// Package config loads the tunable constants that steer the optimizer and
// index engines (spec §7): vector/spatial hybrid-plan overfetch and bbox
// thresholds, BM25 constants, and HNSW search width. Grounded on the
// teacher's internal/parser/toml package (BurntSushi/toml decode into a
// tomlXxx staging struct, then convert into the canonical type).
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Tunables holds every runtime-adjustable constant consumed outside the
// catalog's per-index descriptors. Unlike IndexDescriptor fields (set once
// at index-creation time), these govern query-time behavior and can be
// retuned without rebuilding any index.
type Tunables struct {
	// VectorFirstOverfetch is the multiplier applied to K when the
	// optimizer chooses PlanVectorThenSpatial, so the post-filter step has
	// enough candidates left after the exact spatial predicate discards
	// some, per spec §4.10.
	VectorFirstOverfetch int
	// BBoxRatioThreshold is the query-bbox-area / domain-area ratio
	// threshold for hybrid vector+geo queries. The execution engine stores
	// it, but the vector-geo plan choice (optimizer.ChooseVectorGeoPlan)
	// does not read it; that choice comes from the cost model alone.
	BBoxRatioThreshold float64
	// FulltextBM25K1 and FulltextBM25B are the default BM25 constants
	// applied to a fulltext index when the CREATE INDEX statement doesn't
	// override them.
	FulltextBM25K1 float64
	FulltextBM25B  float64
	// HNSWEfSearchDefault is the default search-width parameter for a
	// vector index when VectorParams.EfSearch is left unset.
	HNSWEfSearchDefault int
}

// Default returns the spec's documented defaults.
func Default() Tunables {
	return Tunables{
		VectorFirstOverfetch: 3,
		BBoxRatioThreshold:   0.1,
		FulltextBM25K1:       1.2,
		FulltextBM25B:        0.75,
		HNSWEfSearchDefault:  64,
	}
}

// tomlTunables is the TOML staging shape; fields are pointers so an absent
// key in the file leaves the corresponding Default() value untouched.
type tomlTunables struct {
	Optimizer *struct {
		VectorFirstOverfetch *int     `toml:"vector_first_overfetch"`
		BBoxRatioThreshold   *float64 `toml:"bbox_ratio_threshold"`
	} `toml:"optimizer"`
	Fulltext *struct {
		BM25K1 *float64 `toml:"bm25_k1"`
		BM25B  *float64 `toml:"bm25_b"`
	} `toml:"fulltext"`
	Vector *struct {
		HNSWEfSearchDefault *int `toml:"hnsw_ef_search_default"`
	} `toml:"vector"`
}

// Load reads TOML tunables from r, starting from Default() and overriding
// only the keys present in the document.
func Load(r io.Reader) (Tunables, error) {
	t := Default()
	var staged tomlTunables
	if _, err := toml.NewDecoder(r).Decode(&staged); err != nil {
		return Tunables{}, fmt.Errorf("config: decode error: %w", err)
	}
	applyOverrides(&t, &staged)
	return t, nil
}

// LoadFile opens path and loads Tunables from it. A missing file is not an
// error: Default() tunables are returned as-is, since a store that has
// never had a config file written is expected to run on defaults.
func LoadFile(path string) (Tunables, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Tunables{}, fmt.Errorf("config: open file %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

func applyOverrides(t *Tunables, staged *tomlTunables) {
	if staged.Optimizer != nil {
		if staged.Optimizer.VectorFirstOverfetch != nil {
			t.VectorFirstOverfetch = *staged.Optimizer.VectorFirstOverfetch
		}
		if staged.Optimizer.BBoxRatioThreshold != nil {
			t.BBoxRatioThreshold = *staged.Optimizer.BBoxRatioThreshold
		}
	}
	if staged.Fulltext != nil {
		if staged.Fulltext.BM25K1 != nil {
			t.FulltextBM25K1 = *staged.Fulltext.BM25K1
		}
		if staged.Fulltext.BM25B != nil {
			t.FulltextBM25B = *staged.Fulltext.BM25B
		}
	}
	if staged.Vector != nil && staged.Vector.HNSWEfSearchDefault != nil {
		t.HNSWEfSearchDefault = *staged.Vector.HNSWEfSearchDefault
	}
}
