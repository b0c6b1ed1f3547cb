package geometry

import "testing"

func TestGeoJSONPointRoundTrip(t *testing.T) {
	g, err := ParseGeoJSON([]byte(`{"type":"Point","coordinates":[1.5,2.5]}`))
	if err != nil {
		t.Fatalf("ParseGeoJSON: %v", err)
	}
	if g.Coords[0].X != 1.5 || g.Coords[0].Y != 2.5 || g.Coords[0].HasZ {
		t.Fatalf("unexpected point: %+v", g.Coords[0])
	}
	out, err := AsGeoJSON(g)
	if err != nil {
		t.Fatalf("AsGeoJSON: %v", err)
	}
	if string(out) != `{"coordinates":[1.5,2.5],"type":"Point"}` {
		t.Fatalf("unexpected json: %s", out)
	}
}

func TestGeoJSONPointZRoundTrip(t *testing.T) {
	g, err := ParseGeoJSON([]byte(`{"type":"Point","coordinates":[1,2,3]}`))
	if err != nil {
		t.Fatalf("ParseGeoJSON: %v", err)
	}
	if !g.Coords[0].HasZ || g.Coords[0].Z != 3 {
		t.Fatalf("expected z=3, got %+v", g.Coords[0])
	}
}

func TestGeoJSONLineStringRoundTrip(t *testing.T) {
	g, err := ParseGeoJSON([]byte(`{"type":"LineString","coordinates":[[0,0],[1,1],[2,0]]}`))
	if err != nil {
		t.Fatalf("ParseGeoJSON: %v", err)
	}
	if len(g.Coords) != 3 {
		t.Fatalf("expected 3 coords, got %d", len(g.Coords))
	}
	out, err := AsGeoJSON(g)
	if err != nil {
		t.Fatalf("AsGeoJSON: %v", err)
	}
	got, err := ParseGeoJSON(out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if len(got.Coords) != 3 {
		t.Fatalf("round trip lost coords: %+v", got)
	}
}

func TestGeoJSONPolygonRoundTrip(t *testing.T) {
	raw := []byte(`{"type":"Polygon","coordinates":[[[0,0],[0,10],[10,10],[10,0],[0,0]]]}`)
	g, err := ParseGeoJSON(raw)
	if err != nil {
		t.Fatalf("ParseGeoJSON: %v", err)
	}
	if len(g.Polygons) != 1 || len(g.Polygons[0]) != 5 {
		t.Fatalf("unexpected polygon: %+v", g)
	}
	out, err := AsGeoJSON(g)
	if err != nil {
		t.Fatalf("AsGeoJSON: %v", err)
	}
	got, err := ParseGeoJSON(out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if len(got.Polygons) != 1 || len(got.Polygons[0]) != 5 {
		t.Fatalf("round trip lost ring data: %+v", got)
	}
}

func TestGeoJSONUnsupportedTypeErrors(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`{"type":"MultiPoint","coordinates":[[0,0]]}`))
	if err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestGeoJSONMalformedCoordinatesErrors(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`{"type":"Point","coordinates":[1]}`))
	if err == nil {
		t.Fatalf("expected error for incomplete point coordinates")
	}
}

func TestGeoJSONInvalidJSONErrors(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`not json`))
	if err == nil {
		t.Fatalf("expected error for invalid json")
	}
}
