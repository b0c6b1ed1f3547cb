// Package optimizer chooses execution order for conjunctive queries and
// picks between vector-first, spatial-first, and brute-force plans for
// hybrid vector-geo queries, per spec §4.9. Grounded on the normalized-
// predicate/cost-estimate shape of the Lychee-Technology `queryoptimizer`
// example, generalized from its EAV-vs-main-table storage targeting to
// Themis's index-estimate-driven ordering.
package optimizer

import (
	"context"
	"sort"

	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/core"
)

// estimator is the subset of *secidx.Engine the optimizer depends on —
// kept as an interface so tests can supply a fake without touching the
// KV store.
type estimator interface {
	EstimateCountEqual(ctx context.Context, table, column string, v core.Value, maxProbe int) (int, bool, error)
}

// OrderedPredicate pairs one equality predicate with its estimated
// selectivity, for diagnostics and deterministic ties.
type OrderedPredicate struct {
	Predicate translate.EqPredicate
	Count     int
	Capped    bool
}

// ChooseOrderForAndQuery orders q's equality predicates ascending by
// effective selectivity count (capped estimates are treated as
// maxProbePerPredicate), breaking ties by column name, per spec §4.9.
func ChooseOrderForAndQuery(ctx context.Context, est estimator, q translate.ConjunctiveQuery, maxProbePerPredicate int) ([]OrderedPredicate, error) {
	ordered := make([]OrderedPredicate, 0, len(q.Eq))
	for _, eq := range q.Eq {
		count, capped, err := est.EstimateCountEqual(ctx, q.Table, eq.Column, eq.Value, maxProbePerPredicate)
		if err != nil {
			return nil, err
		}
		effective := count
		if capped {
			effective = maxProbePerPredicate
		}
		ordered = append(ordered, OrderedPredicate{Predicate: eq, Count: effective, Capped: capped})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Count != ordered[j].Count {
			return ordered[i].Count < ordered[j].Count
		}
		return ordered[i].Predicate.Column < ordered[j].Predicate.Column
	})
	return ordered, nil
}
