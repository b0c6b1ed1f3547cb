package translate

import (
	"testing"

	"github.com/makr-code/themis/internal/aql"
)

func mustParse(t *testing.T, src string) *aql.Query {
	t.Helper()
	q, err := aql.Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return q
}

func TestTranslateConjunctiveQuery(t *testing.T) {
	q := mustParse(t, `FOR doc IN users FILTER doc.age >= 18 AND doc.country == "US" RETURN doc`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanConjunctive {
		t.Fatalf("expected conjunctive plan, got %v", plan.Kind)
	}
	cq := plan.Conjunctive
	if cq.Table != "users" {
		t.Fatalf("expected table users, got %q", cq.Table)
	}
	if len(cq.Eq) != 1 || cq.Eq[0].Column != "country" {
		t.Fatalf("expected one eq predicate on country, got %+v", cq.Eq)
	}
	if len(cq.Range) != 1 || cq.Range[0].Column != "age" || !cq.Range[0].HasLower || !cq.Range[0].LowerIncl {
		t.Fatalf("expected one inclusive lower range predicate on age, got %+v", cq.Range)
	}
}

func TestTranslateDisjunctiveQueryDNF(t *testing.T) {
	q := mustParse(t, `FOR doc IN users FILTER doc.tier == "gold" OR doc.tier == "platinum" RETURN doc`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanDisjunctive {
		t.Fatalf("expected disjunctive plan, got %v", plan.Kind)
	}
	if len(plan.Disjunctive.Blocks) != 2 {
		t.Fatalf("expected 2 DNF blocks, got %d", len(plan.Disjunctive.Blocks))
	}
}

func TestTranslateDoubleFulltextAndIsAnError(t *testing.T) {
	q := mustParse(t, `FOR doc IN articles FILTER FULLTEXT(doc.title, "a") AND FULLTEXT(doc.body, "b") RETURN doc`)
	_, err := Translate(q)
	if err == nil {
		t.Fatalf("expected an error combining two FULLTEXT predicates with AND")
	}
}

func TestTranslateOrWithFulltextInEachDisjunctIsFine(t *testing.T) {
	q := mustParse(t, `FOR doc IN articles FILTER FULLTEXT(doc.title, "a") OR FULLTEXT(doc.body, "b") RETURN doc`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanDisjunctive || len(plan.Disjunctive.Blocks) != 2 {
		t.Fatalf("expected a 2-block disjunctive plan, got %+v", plan)
	}
	for _, b := range plan.Disjunctive.Blocks {
		if b.Fulltext == nil {
			t.Fatalf("expected each disjunct to carry its own FULLTEXT predicate, got %+v", b)
		}
	}
}

func TestTranslateNegatableNotBecomesRangePredicate(t *testing.T) {
	q := mustParse(t, `FOR doc IN users FILTER NOT (doc.age < 18) RETURN doc`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanConjunctive {
		t.Fatalf("expected conjunctive plan after De Morgan negation, got %v", plan.Kind)
	}
	cq := plan.Conjunctive
	if len(cq.Range) != 1 || !cq.Range[0].HasLower || !cq.Range[0].LowerIncl {
		t.Fatalf("expected NOT(age < 18) to negate into age >= 18, got %+v", cq.Range)
	}
}

func TestTranslateUnnegatableNotFallsToPostFilter(t *testing.T) {
	q := mustParse(t, `FOR doc IN users FILTER NOT FULLTEXT(doc.body, "spam") RETURN doc`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	cq := plan.Conjunctive
	if cq.PostFilter == nil {
		t.Fatalf("expected the un-negatable NOT FULLTEXT(...) to fall through as a post-filter")
	}
}

func TestTranslateJoinQueryMultipleFors(t *testing.T) {
	q := mustParse(t, `FOR u IN users FOR o IN orders FILTER o.userId == u.id RETURN {u: u, o: o}`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanJoin {
		t.Fatalf("expected join plan, got %v", plan.Kind)
	}
	if len(plan.Join.Fors) != 2 {
		t.Fatalf("expected 2 FOR bindings, got %d", len(plan.Join.Fors))
	}
}

func TestTranslateGraphTraversalWithShortestPath(t *testing.T) {
	q := mustParse(t, `FOR v, e IN 1..3 OUTBOUND "users/1" GRAPH friendships SHORTEST_PATH TO "users/9" FILTER e.type == "follows" RETURN v`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanTraversal {
		t.Fatalf("expected traversal plan, got %v", plan.Kind)
	}
	tq := plan.Traversal
	if !tq.ShortestPath || tq.GraphName != "friendships" {
		t.Fatalf("unexpected traversal plan %+v", tq)
	}
	if tq.EdgeTypeFilter != "follows" {
		t.Fatalf("expected edge-type filter 'follows', got %q", tq.EdgeTypeFilter)
	}
}

func TestTranslateVectorGeoHybridDirectSimilarity(t *testing.T) {
	q := mustParse(t, `FOR doc IN images FILTER ST_Within(doc.location, "bbox") SORT SIMILARITY(doc.embedding, [0.1, 0.2]) ASC LIMIT 5 RETURN doc`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanVectorGeo {
		t.Fatalf("expected vector-geo plan, got %v", plan.Kind)
	}
	vg := plan.VectorGeo
	if vg.VectorColumn != "embedding" || vg.K != 5 || vg.SpatialFilter == nil {
		t.Fatalf("unexpected vector-geo plan %+v", vg)
	}
	if vg.SpatialFilter.Column != "location" {
		t.Fatalf("expected spatial filter on location, got %+v", vg.SpatialFilter)
	}
}

func TestTranslateVectorGeoHybridAliasedSimilarity(t *testing.T) {
	q := mustParse(t, `FOR doc IN images LET score = SIMILARITY(doc.embedding, [0.1, 0.2]) SORT score ASC LIMIT 3 RETURN doc`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanVectorGeo {
		t.Fatalf("expected vector-geo plan via LET alias resolution, got %v", plan.Kind)
	}
	if plan.VectorGeo.K != 3 {
		t.Fatalf("expected k=3, got %d", plan.VectorGeo.K)
	}
}

func TestTranslateContentGeoHybrid(t *testing.T) {
	q := mustParse(t, `FOR doc IN places FILTER FULLTEXT(doc.description, "coffee") SORT PROXIMITY(doc.location, doc.center) ASC LIMIT 20 RETURN doc`)
	plan, err := Translate(q)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != PlanContentGeo {
		t.Fatalf("expected content-geo plan, got %v", plan.Kind)
	}
	cg := plan.ContentGeo
	if cg.Fulltext.Query != "coffee" || cg.ProximityColumn != "location" || cg.Limit != 20 {
		t.Fatalf("unexpected content-geo plan %+v", cg)
	}
}
