package exec

import (
	"context"

	"github.com/makr-code/themis/internal/aql/translate"
)

// runDisjunctive executes plan shape 2: resolve each OR-block's candidate
// pks independently, union them, then materialize/project as one pipeline
// over the combined set (spec §4.10's DNF-union path).
func (e *Engine) runDisjunctive(ctx context.Context, q *translate.DisjunctiveQuery) (*Result, error) {
	lists := make([][][]byte, len(q.Blocks))
	for i := range q.Blocks {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		block := q.Blocks[i]
		pks, err := e.executeAndKeys(ctx, &block)
		if err != nil {
			return nil, err
		}
		lists[i] = sortPKs(pks)
	}
	union := unionSortedPKs(lists)

	// The union carries no single block's OrderBy/PostFilter/pagination;
	// those apply once over the combined set, matching plain OR semantics
	// (no per-block ORDER BY is meaningful once results are merged).
	return e.materializeAndProject(ctx, q.Table, q.ForVar, union, nil, nil, 0, 0, q.Distinct, q.Return)
}
