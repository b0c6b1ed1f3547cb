package geometry

import (
	"encoding/json"
	"fmt"
)

type geojsonDoc struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates,omitempty"`
	Geometries  []json.RawMessage `json:"geometries,omitempty"`
}

// ParseGeoJSON parses a GeoJSON Point/LineString/Polygon object, per spec
// §4.1. GeoJSON coordinates have no Z flag; a third array element, if
// present, is treated as Z.
func ParseGeoJSON(b []byte) (Geometry, error) {
	var doc geojsonDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return Geometry{}, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	switch doc.Type {
	case "Point":
		var xyz []float64
		if err := json.Unmarshal(doc.Coordinates, &xyz); err != nil {
			return Geometry{}, fmt.Errorf("invalid Point coordinates: %w", err)
		}
		c, err := coordFromSlice(xyz)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Kind: KindPoint, SRID: WGS84, Coords: []Coord{c}}, nil
	case "LineString":
		var raw [][]float64
		if err := json.Unmarshal(doc.Coordinates, &raw); err != nil {
			return Geometry{}, fmt.Errorf("invalid LineString coordinates: %w", err)
		}
		coords, err := coordsFromSlices(raw)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Kind: KindLineString, SRID: WGS84, Coords: coords}, nil
	case "Polygon":
		var raw [][][]float64
		if err := json.Unmarshal(doc.Coordinates, &raw); err != nil {
			return Geometry{}, fmt.Errorf("invalid Polygon coordinates: %w", err)
		}
		polys := make([][]Coord, 0, len(raw))
		for _, ring := range raw {
			coords, err := coordsFromSlices(ring)
			if err != nil {
				return Geometry{}, err
			}
			polys = append(polys, coords)
		}
		return Geometry{Kind: KindPolygon, SRID: WGS84, Polygons: polys}, nil
	default:
		return Geometry{}, fmt.Errorf("unsupported GeoJSON type %q", doc.Type)
	}
}

func coordFromSlice(xyz []float64) (Coord, error) {
	if len(xyz) < 2 {
		return Coord{}, fmt.Errorf("GeoJSON coordinate needs at least [x, y]")
	}
	c := Coord{X: xyz[0], Y: xyz[1]}
	if len(xyz) >= 3 {
		c.Z, c.HasZ = xyz[2], true
	}
	return c, nil
}

func coordsFromSlices(raw [][]float64) ([]Coord, error) {
	out := make([]Coord, 0, len(raw))
	for _, xyz := range raw {
		c, err := coordFromSlice(xyz)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AsGeoJSON emits g as a GeoJSON geometry object.
func AsGeoJSON(g Geometry) ([]byte, error) {
	switch g.Kind {
	case KindPoint:
		return json.Marshal(map[string]any{"type": "Point", "coordinates": coordToSlice(g.Coords[0])})
	case KindLineString:
		return json.Marshal(map[string]any{"type": "LineString", "coordinates": coordsToSlices(g.Coords)})
	case KindPolygon:
		rings := make([][][]float64, len(g.Polygons))
		for i, r := range g.Polygons {
			rings[i] = coordsToSlices(r)
		}
		return json.Marshal(map[string]any{"type": "Polygon", "coordinates": rings})
	default:
		return nil, fmt.Errorf("AsGeoJSON: unsupported geometry kind %d", g.Kind)
	}
}

func coordToSlice(c Coord) []float64 {
	if c.HasZ {
		return []float64{c.X, c.Y, c.Z}
	}
	return []float64{c.X, c.Y}
}

func coordsToSlices(coords []Coord) [][]float64 {
	out := make([][]float64, len(coords))
	for i, c := range coords {
		out[i] = coordToSlice(c)
	}
	return out
}
