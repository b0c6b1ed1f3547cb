package vector

import (
	"context"

	"github.com/makr-code/themis/internal/themiserr"
)

// Result is one scored nearest-neighbor match, per spec §4.6
// "search_knn(query, k) -> Vec<{pk, distance}>".
type Result struct {
	PK       []byte
	Distance float64
}

func toResults(scored []scored, k int) []Result {
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	out := make([]Result, len(scored))
	for i, s := range scored {
		out[i] = Result{PK: []byte(s.pk), Distance: s.dist}
	}
	return out
}

// SearchKNN returns the k nearest entries to query, ascending by distance.
// Populations at or below the index's FlatThreshold are searched by brute
// force instead of the graph, per spec §4.6.
func (e *Engine) SearchKNN(ctx context.Context, table, column string, query []float32, k int) ([]Result, error) {
	g, err := e.ensureLoaded(ctx, table, column)
	if err != nil {
		return nil, err
	}
	if len(query) != g.params.Dim {
		return nil, themiserr.New(themiserr.KindValidation, "query dimension %d does not match index dimension %d", len(query), g.params.Dim)
	}
	kernel, err := e.kernel()
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindInternal, err, "vector distance kernel")
	}

	lock := e.lockFor(table, column)
	lock.RLock()
	defer lock.RUnlock()

	ef := g.params.EfSearch
	if ef < k {
		ef = k
	}
	var scoredOut []scored
	if g.liveCount() <= g.params.FlatThreshold {
		scoredOut = bruteForce(g, query, kernel, g.params.Metric)
	} else {
		scoredOut = beamSearch(g, query, ef, kernel, g.params.Metric, nil)
	}
	return toResults(scoredOut, k), nil
}

// SearchKNNPreFiltered restricts the search to candidatePKs (typically the
// result of running filters against the secondary index engine first),
// per spec §4.6 "search_knn_pre_filtered": brute force over the candidate
// subset when it's small, graph-restricted beam search otherwise.
func (e *Engine) SearchKNNPreFiltered(ctx context.Context, table, column string, query []float32, k int, candidatePKs [][]byte) ([]Result, error) {
	g, err := e.ensureLoaded(ctx, table, column)
	if err != nil {
		return nil, err
	}
	if len(query) != g.params.Dim {
		return nil, themiserr.New(themiserr.KindValidation, "query dimension %d does not match index dimension %d", len(query), g.params.Dim)
	}
	kernel, err := e.kernel()
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindInternal, err, "vector distance kernel")
	}

	lock := e.lockFor(table, column)
	lock.RLock()
	defer lock.RUnlock()

	allowed := make(map[string]bool, len(candidatePKs))
	for _, pk := range candidatePKs {
		allowed[string(pk)] = true
	}

	ef := g.params.EfSearch
	if ef < k {
		ef = k
	}
	var scoredOut []scored
	if len(allowed) <= g.params.FlatThreshold {
		scoredOut = bruteForceAllowed(g, query, kernel, g.params.Metric, allowed)
	} else {
		scoredOut = beamSearch(g, query, ef, kernel, g.params.Metric, allowed)
	}
	return toResults(scoredOut, k), nil
}
