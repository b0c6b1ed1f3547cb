package secidx

import (
	"reflect"
	"testing"
)

func pk(s string) []byte { return []byte(s) }

func TestIntersectPKSetsCommonElementsOnly(t *testing.T) {
	a := [][]byte{pk("u1"), pk("u2"), pk("u3")}
	b := [][]byte{pk("u2"), pk("u3"), pk("u4")}
	got := IntersectPKSets([][][]byte{a, b})
	want := [][]byte{pk("u2"), pk("u3")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", strs(want), strs(got))
	}
}

func TestIntersectPKSetsEmptyWhenNoOverlap(t *testing.T) {
	a := [][]byte{pk("u1")}
	b := [][]byte{pk("u2")}
	got := IntersectPKSets([][][]byte{a, b})
	if len(got) != 0 {
		t.Fatalf("expected empty intersection, got %v", strs(got))
	}
}

func TestIntersectPKSetsSingleSetPassesThrough(t *testing.T) {
	a := [][]byte{pk("u3"), pk("u1"), pk("u2")}
	got := IntersectPKSets([][][]byte{a})
	want := [][]byte{pk("u1"), pk("u2"), pk("u3")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected sorted %v, got %v", strs(want), strs(got))
	}
}

func TestUnionPKSetsDeduplicatesAndSorts(t *testing.T) {
	a := [][]byte{pk("u2"), pk("u1")}
	b := [][]byte{pk("u1"), pk("u3")}
	got := UnionPKSets([][][]byte{a, b})
	want := [][]byte{pk("u1"), pk("u2"), pk("u3")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", strs(want), strs(got))
	}
}

func strs(pks [][]byte) []string {
	out := make([]string, len(pks))
	for i, p := range pks {
		out[i] = string(p)
	}
	return out
}
