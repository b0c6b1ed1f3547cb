package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseWKT parses POINT, LINESTRING and POLYGON text, with optional Z
// ("POINT Z(1 2 3)"), per spec §4.1.
func ParseWKT(s string) (Geometry, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "POINT"):
		return parseWKTPoint(s)
	case strings.HasPrefix(upper, "LINESTRING"):
		return parseWKTLineString(s)
	case strings.HasPrefix(upper, "POLYGON"):
		return parseWKTPolygon(s)
	default:
		return Geometry{}, fmt.Errorf("unsupported or malformed WKT: %q", s)
	}
}

func hasZFlag(rest string) (bool, string) {
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(strings.ToUpper(rest), "Z") {
		return true, strings.TrimSpace(rest[1:])
	}
	return false, rest
}

func parseWKTPoint(s string) (Geometry, error) {
	rest := strings.TrimSpace(s[len("POINT"):])
	hasZ, rest := hasZFlag(rest)
	rest = strings.TrimPrefix(strings.TrimSpace(rest), "(")
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ")")
	nums := strings.Fields(rest)
	if len(nums) < 2 {
		return Geometry{}, fmt.Errorf("POINT requires at least x y: %q", s)
	}
	c, err := parseCoord(nums, hasZ)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{Kind: KindPoint, SRID: WGS84, Coords: []Coord{c}}, nil
}

func parseCoord(fields []string, hasZ bool) (Coord, error) {
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Coord{}, fmt.Errorf("bad x coordinate %q: %w", fields[0], err)
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Coord{}, fmt.Errorf("bad y coordinate %q: %w", fields[1], err)
	}
	c := Coord{X: x, Y: y}
	if hasZ {
		if len(fields) < 3 {
			return Coord{}, fmt.Errorf("Z geometry missing z coordinate")
		}
		z, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Coord{}, fmt.Errorf("bad z coordinate %q: %w", fields[2], err)
		}
		c.Z, c.HasZ = z, true
	}
	return c, nil
}

func parseCoordList(s string, hasZ bool) ([]Coord, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]Coord, 0, len(parts))
	for _, p := range parts {
		c, err := parseCoord(strings.Fields(strings.TrimSpace(p)), hasZ)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseWKTLineString(s string) (Geometry, error) {
	rest := strings.TrimSpace(s[len("LINESTRING"):])
	hasZ, rest := hasZFlag(rest)
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return Geometry{}, fmt.Errorf("malformed LINESTRING: %q", s)
	}
	coords, err := parseCoordList(rest[1:len(rest)-1], hasZ)
	if err != nil {
		return Geometry{}, err
	}
	if len(coords) < 2 {
		return Geometry{}, fmt.Errorf("LINESTRING requires at least 2 points")
	}
	return Geometry{Kind: KindLineString, SRID: WGS84, Coords: coords}, nil
}

func parseWKTPolygon(s string) (Geometry, error) {
	rest := strings.TrimSpace(s[len("POLYGON"):])
	hasZ, rest := hasZFlag(rest)
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return Geometry{}, fmt.Errorf("malformed POLYGON: %q", s)
	}
	inner := rest[1 : len(rest)-1]
	rings, err := splitRings(inner)
	if err != nil {
		return Geometry{}, err
	}
	var polys [][]Coord
	for _, ring := range rings {
		coords, err := parseCoordList(ring, hasZ)
		if err != nil {
			return Geometry{}, err
		}
		if len(coords) < 3 {
			return Geometry{}, fmt.Errorf("polygon ring requires at least 3 points")
		}
		polys = append(polys, coords)
	}
	return Geometry{Kind: KindPolygon, SRID: WGS84, Polygons: polys}, nil
}

// splitRings splits "(1 2, 3 4), (5 6, 7 8)" into ["1 2, 3 4", "5 6, 7 8"],
// respecting parenthesis nesting.
func splitRings(s string) ([]string, error) {
	var out []string
	depth := 0
	start := -1
	for i, c := range s {
		switch c {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				if start < 0 {
					return nil, fmt.Errorf("unbalanced parentheses in polygon")
				}
				out = append(out, s[start:i])
				start = -1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses in polygon")
	}
	return out, nil
}

// AsWKT emits g as WKT, with a "Z" flag for 3D geometries.
func AsWKT(g Geometry) (string, error) {
	switch g.Kind {
	case KindPoint:
		c := g.Coords[0]
		if c.HasZ {
			return fmt.Sprintf("POINT Z(%s %s %s)", fmtF(c.X), fmtF(c.Y), fmtF(c.Z)), nil
		}
		return fmt.Sprintf("POINT(%s %s)", fmtF(c.X), fmtF(c.Y)), nil
	case KindLineString:
		return fmt.Sprintf("LINESTRING(%s)", coordsToWKT(g.Coords)), nil
	case KindPolygon:
		rings := make([]string, len(g.Polygons))
		for i, r := range g.Polygons {
			rings[i] = "(" + coordsToWKT(r) + ")"
		}
		return fmt.Sprintf("POLYGON(%s)", strings.Join(rings, ", ")), nil
	default:
		return "", fmt.Errorf("AsWKT: unsupported geometry kind %d", g.Kind)
	}
}

func coordsToWKT(coords []Coord) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		if c.HasZ {
			parts[i] = fmt.Sprintf("%s %s %s", fmtF(c.X), fmtF(c.Y), fmtF(c.Z))
		} else {
			parts[i] = fmt.Sprintf("%s %s", fmtF(c.X), fmtF(c.Y))
		}
	}
	return strings.Join(parts, ", ")
}

func fmtF(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
