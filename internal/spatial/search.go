package spatial

import (
	"context"
	"sort"

	"github.com/makr-code/themis/internal/geometry"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/morton"
	"github.com/makr-code/themis/internal/themiserr"
)

// candidatesInBox scans every bucket whose Morton range overlaps
// [minX,minY]-[maxX,maxY], returning the raw (possibly over-covering, per
// spec §4.2) set of entries found there.
func (e *Engine) candidatesInBox(ctx context.Context, table string, b morton.Bounds, minX, minY, maxX, maxY float64) ([]entry, error) {
	ranges := morton.Ranges2D(minX, minY, maxX, maxY, b, maxMortonRanges)
	var out []entry
	for _, r := range ranges {
		lo := keyschema.SpatialBucketKey(table, r.Lo)
		var hi []byte
		if r.Hi == ^uint64(0) {
			hi = exclusiveUpperBound(keyschema.SpatialTablePrefix(table))
		} else {
			hi = keyschema.SpatialBucketKey(table, r.Hi+1)
		}
		scanErr := e.store.ScanRange(ctx, lo, hi, false, func(_, raw []byte) bool {
			var bucket []entry
			if err := decodeBucket(raw, &bucket); err == nil {
				out = append(out, bucket...)
			}
			return true
		})
		if scanErr != nil {
			return nil, themiserr.Wrap(themiserr.KindStore, scanErr, "spatial: scan %s", table)
		}
	}
	return out, nil
}

// exclusiveUpperBound returns the smallest byte string greater than every
// string having prefix as a prefix. Mirrors internal/secidx's scan helper
// of the same name (duplicated rather than exported across packages for a
// single small function).
func exclusiveUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return append(upper, 0xFF)
}

func inZRange(e entry, zMin, zMax float64, hasZRange bool) bool {
	if !hasZRange {
		return true
	}
	if !e.MBR.HasZ {
		return false
	}
	return e.MBR.MinZ <= zMax && e.MBR.MaxZ >= zMin
}

// SearchIntersects returns every pk whose persisted MBR overlaps query,
// per spec §4.4 "search_intersects".
func (e *Engine) SearchIntersects(ctx context.Context, table, column string, query geometry.MBR, limit int) ([][]byte, error) {
	desc, err := e.descriptor(table, column)
	if err != nil {
		return nil, err
	}
	b := e.bounds(desc)
	candidates, err := e.candidatesInBox(ctx, table, b, query.MinX, query.MinY, query.MaxX, query.MaxY)
	if err != nil {
		return nil, err
	}
	backend, err := e.backend()
	if err != nil {
		return nil, err
	}
	queryGeom := asBoxGeometry(query)
	var out [][]byte
	for _, c := range candidates {
		if !c.MBR.Intersects(query) {
			continue
		}
		if query.HasZ && c.MBR.HasZ && !(c.MBR.MinZ <= query.MaxZ && c.MBR.MaxZ >= query.MinZ) {
			continue
		}
		if !backend.Intersects(asBoxGeometry(c.MBR), queryGeom) {
			continue
		}
		out = append(out, c.PK)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return dedupeSortPKs(out), nil
}

// SearchWithin returns every pk whose persisted MBR is fully contained in
// query (and, if hasZRange, whose z-range falls inside [zMin, zMax]), per
// spec §4.4 "search_within".
func (e *Engine) SearchWithin(ctx context.Context, table, column string, query geometry.MBR, zMin, zMax float64, hasZRange bool, limit int) ([][]byte, error) {
	desc, err := e.descriptor(table, column)
	if err != nil {
		return nil, err
	}
	b := e.bounds(desc)
	candidates, err := e.candidatesInBox(ctx, table, b, query.MinX, query.MinY, query.MaxX, query.MaxY)
	if err != nil {
		return nil, err
	}
	backend, err := e.backend()
	if err != nil {
		return nil, err
	}
	queryGeom := asBoxGeometry(query)
	var out [][]byte
	for _, c := range candidates {
		if !query.Contains(c.MBR) {
			continue
		}
		if !inZRange(c, zMin, zMax, hasZRange) {
			continue
		}
		if !backend.Within(asBoxGeometry(c.MBR), queryGeom) {
			continue
		}
		out = append(out, c.PK)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return dedupeSortPKs(out), nil
}

// SearchContains returns every pk whose persisted MBR contains the point
// (x, y[, z]), per spec §4.4 "search_contains".
func (e *Engine) SearchContains(ctx context.Context, table, column string, x, y float64, z float64, hasZ bool, limit int) ([][]byte, error) {
	desc, err := e.descriptor(table, column)
	if err != nil {
		return nil, err
	}
	b := e.bounds(desc)
	candidates, err := e.candidatesInBox(ctx, table, b, x, y, x, y)
	if err != nil {
		return nil, err
	}
	backend, err := e.backend()
	if err != nil {
		return nil, err
	}
	pt := pointGeometry(x, y)
	var out [][]byte
	for _, c := range candidates {
		if !c.MBR.ContainsPoint(x, y) {
			continue
		}
		if hasZ && c.MBR.HasZ && !(z >= c.MBR.MinZ && z <= c.MBR.MaxZ) {
			continue
		}
		if !backend.Contains(asBoxGeometry(c.MBR), pt) {
			continue
		}
		out = append(out, c.PK)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return dedupeSortPKs(out), nil
}

type distanced struct {
	pk       []byte
	distance float64
}

// SearchNearby returns every pk within maxDistanceM meters of (x, y),
// ascending by distance, truncated to limit, per spec §4.4 "search_nearby".
func (e *Engine) SearchNearby(ctx context.Context, table, column string, x, y, maxDistanceM float64, limit int) ([][]byte, error) {
	desc, err := e.descriptor(table, column)
	if err != nil {
		return nil, err
	}
	b := e.bounds(desc)
	dLon, dLat := geometry.DegreeDeltaForMeters(maxDistanceM, y)
	candidates, err := e.candidatesInBox(ctx, table, b, x-dLon, y-dLat, x+dLon, y+dLat)
	if err != nil {
		return nil, err
	}
	var scored []distanced
	for _, c := range candidates {
		dist := geometry.HaversineMeters(x, y, c.CentroidX, c.CentroidY)
		if dist <= maxDistanceM {
			scored = append(scored, distanced{pk: c.PK, distance: dist})
		}
	}
	return truncateByDistance(scored, limit), nil
}

// knnRadiusSteps bounds how many times SearchKNN doubles its search radius
// before falling back to the index's full bounds.
const knnRadiusSteps = 12

// SearchKNN returns the k nearest pks to (x, y) by haversine distance,
// ascending, per spec §4.4 "search_knn". It expands an initial search
// radius geometrically (a standard best-first emulation over a flat
// Morton-bucket map, absent a true R-tree's branch-and-bound) until at
// least k candidates are found or the index's full bounds are covered.
func (e *Engine) SearchKNN(ctx context.Context, table, column string, x, y float64, k int) ([][]byte, error) {
	if k <= 0 {
		return nil, nil
	}
	desc, err := e.descriptor(table, column)
	if err != nil {
		return nil, err
	}
	b := e.bounds(desc)
	fullDiagonalM := geometry.HaversineMeters(b.MinX, b.MinY, b.MaxX, b.MaxY)
	radius := fullDiagonalM / 1000
	if radius <= 0 {
		radius = 1000
	}
	var scored []distanced
	for step := 0; step < knnRadiusSteps; step++ {
		dLon, dLat := geometry.DegreeDeltaForMeters(radius, y)
		candidates, err := e.candidatesInBox(ctx, table, b, x-dLon, y-dLat, x+dLon, y+dLat)
		if err != nil {
			return nil, err
		}
		scored = scored[:0]
		seen := map[string]bool{}
		for _, c := range candidates {
			key := string(c.PK)
			if seen[key] {
				continue
			}
			seen[key] = true
			scored = append(scored, distanced{pk: c.PK, distance: geometry.HaversineMeters(x, y, c.CentroidX, c.CentroidY)})
		}
		if len(scored) >= k || radius >= fullDiagonalM*2 {
			break
		}
		radius *= 2
	}
	return truncateByDistance(scored, k), nil
}

func truncateByDistance(scored []distanced, limit int) [][]byte {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].distance != scored[j].distance {
			return scored[i].distance < scored[j].distance
		}
		return string(scored[i].pk) < string(scored[j].pk)
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([][]byte, len(scored))
	for i, s := range scored {
		out[i] = s.pk
	}
	return out
}

func dedupeSortPKs(pks [][]byte) [][]byte {
	seen := map[string]bool{}
	var out [][]byte
	for _, pk := range pks {
		key := string(pk)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, pk)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i]) < string(out[j]) })
	return out
}
