package optimizer

import (
	"context"
	"testing"

	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/core"
)

type fakeEstimator struct {
	counts map[string]int
	capped map[string]bool
}

func (f *fakeEstimator) EstimateCountEqual(ctx context.Context, table, column string, v core.Value, maxProbe int) (int, bool, error) {
	return f.counts[column], f.capped[column], nil
}

func TestChooseOrderForAndQueryOrdersAscendingBySelectivity(t *testing.T) {
	est := &fakeEstimator{counts: map[string]int{"country": 500, "tier": 5, "city": 50}}
	q := translate.ConjunctiveQuery{
		Table: "users",
		Eq: []translate.EqPredicate{
			{Column: "country", Value: core.Str("US")},
			{Column: "tier", Value: core.Str("gold")},
			{Column: "city", Value: core.Str("SF")},
		},
	}
	ordered, err := ChooseOrderForAndQuery(context.Background(), est, q, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(ordered) != 3 {
		t.Fatalf("expected 3 ordered predicates, got %d", len(ordered))
	}
	got := []string{ordered[0].Predicate.Column, ordered[1].Predicate.Column, ordered[2].Predicate.Column}
	want := []string{"tier", "city", "country"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestChooseOrderForAndQueryBreaksTiesByColumnName(t *testing.T) {
	est := &fakeEstimator{counts: map[string]int{"b": 10, "a": 10}}
	q := translate.ConjunctiveQuery{
		Table: "t",
		Eq: []translate.EqPredicate{
			{Column: "b", Value: core.I64(1)},
			{Column: "a", Value: core.I64(1)},
		},
	}
	ordered, err := ChooseOrderForAndQuery(context.Background(), est, q, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if ordered[0].Predicate.Column != "a" || ordered[1].Predicate.Column != "b" {
		t.Fatalf("expected tie broken alphabetically, got %+v", ordered)
	}
}

func TestChooseOrderForAndQueryCapsAtMaxProbe(t *testing.T) {
	est := &fakeEstimator{counts: map[string]int{"huge": 1000}, capped: map[string]bool{"huge": true}}
	q := translate.ConjunctiveQuery{
		Table: "t",
		Eq:    []translate.EqPredicate{{Column: "huge", Value: core.I64(1)}},
	}
	ordered, err := ChooseOrderForAndQuery(context.Background(), est, q, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !ordered[0].Capped || ordered[0].Count != 1000 {
		t.Fatalf("expected capped count of 1000, got %+v", ordered[0])
	}
}

func TestChooseVectorGeoPlanFallsBackWhenIndexMissing(t *testing.T) {
	d := ChooseVectorGeoPlan(VectorGeoInputs{HasVectorIndex: true, HasSpatialIndex: false, K: 10, VectorDim: 128})
	if d.Plan != PlanVectorThenSpatial {
		t.Fatalf("expected VectorThenSpatial fallback with no spatial index, got %v", d.Plan)
	}

	d2 := ChooseVectorGeoPlan(VectorGeoInputs{HasVectorIndex: false, HasSpatialIndex: true, K: 10, VectorDim: 128})
	if d2.Plan != PlanSpatialThenVector {
		t.Fatalf("expected SpatialThenVector fallback with no vector index, got %v", d2.Plan)
	}

	d3 := ChooseVectorGeoPlan(VectorGeoInputs{K: 10, VectorDim: 128})
	if d3.Plan != PlanBruteForce {
		t.Fatalf("expected BruteForce with neither index, got %v", d3.Plan)
	}
}

func TestChooseVectorGeoPlanPrefersSpatialFirstForSmallBBox(t *testing.T) {
	d := ChooseVectorGeoPlan(VectorGeoInputs{
		HasVectorIndex: true, HasSpatialIndex: true,
		BBoxRatio: 0.001, SpatialIndexEntries: 2_000,
		K: 10, VectorDim: 768, Overfetch: 3,
	})
	if d.Plan != PlanSpatialThenVector {
		t.Fatalf("expected SpatialThenVector for a tiny bbox, got %v (costs v=%f s=%f)", d.Plan, d.CostVectorFirst, d.CostSpatialFirst)
	}
}

func TestChooseVectorGeoPlanPrefersVectorFirstForLargeBBox(t *testing.T) {
	d := ChooseVectorGeoPlan(VectorGeoInputs{
		HasVectorIndex: true, HasSpatialIndex: true,
		BBoxRatio: 0.9, SpatialIndexEntries: 1_000_000,
		K: 10, VectorDim: 768, Overfetch: 3,
	})
	if d.Plan != PlanVectorThenSpatial {
		t.Fatalf("expected VectorThenSpatial for a huge bbox, got %v (costs v=%f s=%f)", d.Plan, d.CostVectorFirst, d.CostSpatialFirst)
	}
}
