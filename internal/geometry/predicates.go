package geometry

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine
// distance helper.
const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance in meters between two
// WGS84 (lon, lat) points, used by spatial "nearby" search and the
// content-geo PROXIMITY hybrid.
func HaversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	toRad := math.Pi / 180
	phi1, phi2 := lat1*toRad, lat2*toRad
	dPhi := (lat2 - lat1) * toRad
	dLambda := (lon2 - lon1) * toRad
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// DegreeDeltaForMeters returns an approximate lat/lon degree delta that
// bounds a given meter radius at latitude lat, used to turn search_nearby's
// max_distance_m into a query MBR before the exact haversine filter.
func DegreeDeltaForMeters(meters, lat float64) (dLon, dLat float64) {
	dLat = meters / 111320.0
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	dLon = meters / (111320.0 * cosLat)
	return dLon, dLat
}

// ExactGeometryBackend is the pluggable capability interface for pairwise
// exact geometry predicates, consumed by the spatial index after its
// coarse MBR filter, per spec §4.4 and §6.
type ExactGeometryBackend interface {
	Intersects(a, b Geometry) bool
	Within(a, b Geometry) bool
	Contains(a, b Geometry) bool
}

// CPUBackend is the mandatory reference ExactGeometryBackend implementation.
// It handles Point/LineString/Polygon combinations using bounding-box and
// ray-casting primitives. A point is tested exactly against a polygon's
// outer ring; every other pair is decided by bounding boxes alone
// (Intersects on MBR overlap, Within/Contains on MBR containment), so such
// pairs can report a match their exact shapes do not have.
type CPUBackend struct{}

var _ ExactGeometryBackend = CPUBackend{}

func (CPUBackend) Intersects(a, b Geometry) bool {
	am, err1 := ComputeMBR(a)
	bm, err2 := ComputeMBR(b)
	if err1 != nil || err2 != nil {
		return false
	}
	if !am.Intersects(bm) {
		return false
	}
	if a.Kind == KindPoint {
		return pointInOrOnPolygonOrBox(a.Coords[0], b)
	}
	if b.Kind == KindPoint {
		return pointInOrOnPolygonOrBox(b.Coords[0], a)
	}
	return true // bbox-level approximation for line/polygon pairs
}

func (CPUBackend) Within(a, b Geometry) bool {
	if a.Kind == KindPoint {
		return pointInOrOnPolygonOrBox(a.Coords[0], b)
	}
	am, err1 := ComputeMBR(a)
	bm, err2 := ComputeMBR(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return bm.Contains(am)
}

func (CPUBackend) Contains(a, b Geometry) bool {
	return CPUBackend{}.Within(b, a)
}

// pointInOrOnPolygonOrBox reports whether pt falls inside g: for a Polygon
// it uses the ray-casting algorithm against the outer ring (holes are
// ignored, a reasonable approximation absent a need for donut geometries
// elsewhere in this engine); otherwise it falls back to bbox containment.
func pointInOrOnPolygonOrBox(pt Coord, g Geometry) bool {
	if g.Kind == KindPolygon && len(g.Polygons) > 0 {
		return pointInRing(pt.X, pt.Y, g.Polygons[0])
	}
	mbr, err := ComputeMBR(g)
	if err != nil {
		return false
	}
	return mbr.ContainsPoint(pt.X, pt.Y)
}

// pointInRing implements the standard even-odd ray-casting point-in-polygon
// test.
func pointInRing(x, y float64, ring []Coord) bool {
	inside := false
	n := len(ring)
	if n < 3 {
		return false
	}
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		intersects := (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi
		if intersects {
			inside = !inside
		}
	}
	return inside
}
