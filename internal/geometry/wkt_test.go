package geometry

import "testing"

func TestWKTPointRoundTrip(t *testing.T) {
	g, err := ParseWKT("POINT(1.5 2.5)")
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if g.Kind != KindPoint || g.Coords[0].X != 1.5 || g.Coords[0].Y != 2.5 {
		t.Fatalf("unexpected point: %+v", g)
	}
	out, err := AsWKT(g)
	if err != nil {
		t.Fatalf("AsWKT: %v", err)
	}
	if out != "POINT(1.5 2.5)" {
		t.Fatalf("unexpected emitted wkt: %q", out)
	}
}

func TestWKTPointZRoundTrip(t *testing.T) {
	g, err := ParseWKT("POINT Z(1 2 3)")
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if !g.Coords[0].HasZ || g.Coords[0].Z != 3 {
		t.Fatalf("expected z=3, got %+v", g.Coords[0])
	}
	out, err := AsWKT(g)
	if err != nil {
		t.Fatalf("AsWKT: %v", err)
	}
	if out != "POINT Z(1 2 3)" {
		t.Fatalf("unexpected emitted wkt: %q", out)
	}
}

func TestWKTLineStringRoundTrip(t *testing.T) {
	g, err := ParseWKT("LINESTRING(0 0, 1 1, 2 2)")
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if len(g.Coords) != 3 {
		t.Fatalf("expected 3 coords, got %d", len(g.Coords))
	}
	out, err := AsWKT(g)
	if err != nil {
		t.Fatalf("AsWKT: %v", err)
	}
	if out != "LINESTRING(0 0, 1 1, 2 2)" {
		t.Fatalf("unexpected emitted wkt: %q", out)
	}
}

func TestWKTPolygonRoundTrip(t *testing.T) {
	g, err := ParseWKT("POLYGON((0 0, 0 10, 10 10, 10 0, 0 0))")
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if len(g.Polygons) != 1 || len(g.Polygons[0]) != 5 {
		t.Fatalf("unexpected polygon: %+v", g)
	}
	out, err := AsWKT(g)
	if err != nil {
		t.Fatalf("AsWKT: %v", err)
	}
	if out != "POLYGON((0 0, 0 10, 10 10, 10 0, 0 0))" {
		t.Fatalf("unexpected emitted wkt: %q", out)
	}
}

func TestWKTPolygonWithHoleRoundTrip(t *testing.T) {
	wkt := "POLYGON((0 0, 0 10, 10 10, 10 0, 0 0), (2 2, 2 4, 4 4, 4 2, 2 2))"
	g, err := ParseWKT(wkt)
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if len(g.Polygons) != 2 {
		t.Fatalf("expected outer ring + 1 hole, got %d rings", len(g.Polygons))
	}
	out, err := AsWKT(g)
	if err != nil {
		t.Fatalf("AsWKT: %v", err)
	}
	if out != wkt {
		t.Fatalf("expected %q, got %q", wkt, out)
	}
}

func TestWKTUnbalancedParensErrors(t *testing.T) {
	_, err := ParseWKT("POLYGON((0 0, 0 10, 10 10)")
	if err == nil {
		t.Fatalf("expected error for unbalanced parentheses")
	}
}

func TestWKTUnsupportedKindErrors(t *testing.T) {
	_, err := ParseWKT("MULTIPOINT(0 0, 1 1)")
	if err == nil {
		t.Fatalf("expected error for unsupported WKT kind")
	}
}

func TestWKTLineStringTooFewPointsErrors(t *testing.T) {
	_, err := ParseWKT("LINESTRING(0 0)")
	if err == nil {
		t.Fatalf("expected error for single-point linestring")
	}
}
