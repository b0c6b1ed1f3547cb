// Package geometry implements the EWKB/WKT/GeoJSON codec and the MBR/
// Sidecar computations described in spec §4.1. No geometry library appears
// anywhere in the retrieved example pack (go.mod manifests included), so
// this package is hand-written on the standard library, as documented in
// DESIGN.md.
package geometry

import "fmt"

// Kind discriminates the geometry variant, per spec §3 "Geometry variant".
type Kind int

const (
	KindPoint Kind = iota
	KindLineString
	KindPolygon
	KindMultiPoint
	KindMultiLineString
	KindMultiPolygon
	KindCollection
)

// Coord is a 2D or 3D vertex; HasZ distinguishes the two.
type Coord struct {
	X, Y, Z float64
	HasZ    bool
}

// Geometry is the common representation every codec parses into and emits
// from. Rings/lines live in Coords (flat) for Point/LineString, and in
// Polygons (ring-of-rings) for Polygon; Multi* and Collection nest
// Geometries.
type Geometry struct {
	Kind     Kind
	SRID     int32 // default WGS84 (4326)
	Coords   []Coord   // Point (len 1) / LineString (len N)
	Polygons [][]Coord // Polygon: outer ring first, then holes
	Items    []Geometry // Multi*/Collection children
}

const WGS84 int32 = 4326

// NewPoint builds a 2D or 3D point geometry.
func NewPoint(x, y float64, z float64, hasZ bool) Geometry {
	return Geometry{Kind: KindPoint, SRID: WGS84, Coords: []Coord{{X: x, Y: y, Z: z, HasZ: hasZ}}}
}

// MBR is the minimum bounding rectangle of a geometry, optionally with a
// z-range for 3D geometries.
type MBR struct {
	MinX, MinY, MaxX, MaxY float64
	HasZ                   bool
	MinZ, MaxZ             float64
}

// Intersects reports whether two MBRs overlap (touching counts as overlap).
func (m MBR) Intersects(o MBR) bool {
	return m.MinX <= o.MaxX && m.MaxX >= o.MinX && m.MinY <= o.MaxY && m.MaxY >= o.MinY
}

// Contains reports whether m fully contains o.
func (m MBR) Contains(o MBR) bool {
	return m.MinX <= o.MinX && m.MaxX >= o.MaxX && m.MinY <= o.MinY && m.MaxY >= o.MaxY
}

// ContainsPoint reports whether (x, y) falls within m.
func (m MBR) ContainsPoint(x, y float64) bool {
	return x >= m.MinX && x <= m.MaxX && y >= m.MinY && y <= m.MaxY
}

// Union returns the smallest MBR containing both m and o (used by ST_Union).
func (m MBR) Union(o MBR) MBR {
	out := MBR{
		MinX: min(m.MinX, o.MinX), MinY: min(m.MinY, o.MinY),
		MaxX: max(m.MaxX, o.MaxX), MaxY: max(m.MaxY, o.MaxY),
	}
	switch {
	case m.HasZ && o.HasZ:
		out.HasZ = true
		out.MinZ, out.MaxZ = min(m.MinZ, o.MinZ), max(m.MaxZ, o.MaxZ)
	case m.HasZ:
		out.HasZ, out.MinZ, out.MaxZ = true, m.MinZ, m.MaxZ
	case o.HasZ:
		out.HasZ, out.MinZ, out.MaxZ = true, o.MinZ, o.MaxZ
	}
	return out
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Sidecar is the compact spatial summary stored alongside an entity at
// write time: MBR, centroid, and z-range.
type Sidecar struct {
	MBR              MBR
	CentroidX, CentroidY, CentroidZ float64
}

// ComputeMBR walks every coordinate in g and returns its bounding rectangle.
func ComputeMBR(g Geometry) (MBR, error) {
	var (
		first                  = true
		minX, minY, maxX, maxY float64
		hasZ                   bool
		minZ, maxZ             float64
	)
	visit := func(c Coord) {
		if first {
			minX, maxX, minY, maxY = c.X, c.X, c.Y, c.Y
			if c.HasZ {
				hasZ = true
				minZ, maxZ = c.Z, c.Z
			}
			first = false
			return
		}
		minX, maxX = min(minX, c.X), max(maxX, c.X)
		minY, maxY = min(minY, c.Y), max(maxY, c.Y)
		if c.HasZ {
			if !hasZ {
				hasZ = true
				minZ, maxZ = c.Z, c.Z
			} else {
				minZ, maxZ = min(minZ, c.Z), max(maxZ, c.Z)
			}
		}
	}
	if err := walk(g, visit); err != nil {
		return MBR{}, err
	}
	if first {
		return MBR{}, fmt.Errorf("geometry has no coordinates")
	}
	return MBR{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, HasZ: hasZ, MinZ: minZ, MaxZ: maxZ}, nil
}

func walk(g Geometry, visit func(Coord)) error {
	switch g.Kind {
	case KindPoint, KindLineString, KindMultiPoint:
		for _, c := range g.Coords {
			visit(c)
		}
	case KindPolygon:
		for _, ring := range g.Polygons {
			for _, c := range ring {
				visit(c)
			}
		}
	case KindMultiLineString:
		for _, item := range g.Items {
			for _, c := range item.Coords {
				visit(c)
			}
		}
	case KindMultiPolygon, KindCollection:
		for _, item := range g.Items {
			if err := walk(item, visit); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown geometry kind %d", g.Kind)
	}
	return nil
}

// ComputeSidecar derives the full Sidecar (MBR + centroid + z-range) for g.
func ComputeSidecar(g Geometry) (Sidecar, error) {
	mbr, err := ComputeMBR(g)
	if err != nil {
		return Sidecar{}, err
	}
	sc := Sidecar{MBR: mbr, CentroidX: (mbr.MinX + mbr.MaxX) / 2, CentroidY: (mbr.MinY + mbr.MaxY) / 2}
	if mbr.HasZ {
		sc.CentroidZ = (mbr.MinZ + mbr.MaxZ) / 2
	}
	return sc, nil
}
