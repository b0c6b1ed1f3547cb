package geometry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EWKB geometry type codes (base type; Z and SRID flags are OR'd in).
const (
	ewkbPoint      = 1
	ewkbLineString = 2
	ewkbPolygon    = 3

	ewkbZFlag    = 0x80000000
	ewkbSRIDFlag = 0x20000000
)

// ParseEWKB decodes little- or big-endian EWKB, with optional Z and SRID
// flags, per spec §4.1.
func ParseEWKB(b []byte) (Geometry, error) {
	if len(b) < 5 {
		return Geometry{}, fmt.Errorf("EWKB too short: %d bytes", len(b))
	}
	var order binary.ByteOrder
	switch b[0] {
	case 0:
		order = binary.BigEndian
	case 1:
		order = binary.LittleEndian
	default:
		return Geometry{}, fmt.Errorf("invalid EWKB byte order marker %d", b[0])
	}
	typeWord := order.Uint32(b[1:5])
	hasZ := typeWord&ewkbZFlag != 0
	hasSRID := typeWord&ewkbSRIDFlag != 0
	baseType := typeWord &^ (ewkbZFlag | ewkbSRIDFlag)

	off := 5
	srid := int32(WGS84)
	if hasSRID {
		if len(b) < off+4 {
			return Geometry{}, fmt.Errorf("EWKB truncated at SRID")
		}
		srid = int32(order.Uint32(b[off : off+4]))
		off += 4
	}

	switch baseType {
	case ewkbPoint:
		c, n, err := decodeEWKBCoord(b[off:], order, hasZ)
		if err != nil {
			return Geometry{}, err
		}
		_ = n
		return Geometry{Kind: KindPoint, SRID: srid, Coords: []Coord{c}}, nil
	case ewkbLineString:
		coords, err := decodeEWKBCoordList(b[off:], order, hasZ)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Kind: KindLineString, SRID: srid, Coords: coords}, nil
	case ewkbPolygon:
		rings, err := decodeEWKBRings(b[off:], order, hasZ)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Kind: KindPolygon, SRID: srid, Polygons: rings}, nil
	default:
		return Geometry{}, fmt.Errorf("unsupported EWKB geometry type %d", baseType)
	}
}

func decodeEWKBCoord(b []byte, order binary.ByteOrder, hasZ bool) (Coord, int, error) {
	need := 16
	if hasZ {
		need = 24
	}
	if len(b) < need {
		return Coord{}, 0, fmt.Errorf("EWKB truncated coordinate")
	}
	x := math.Float64frombits(order.Uint64(b[0:8]))
	y := math.Float64frombits(order.Uint64(b[8:16]))
	c := Coord{X: x, Y: y}
	if hasZ {
		c.Z = math.Float64frombits(order.Uint64(b[16:24]))
		c.HasZ = true
	}
	return c, need, nil
}

func decodeEWKBCoordList(b []byte, order binary.ByteOrder, hasZ bool) ([]Coord, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("EWKB truncated coord count")
	}
	n := int(order.Uint32(b[0:4]))
	off := 4
	out := make([]Coord, 0, n)
	for i := 0; i < n; i++ {
		c, adv, err := decodeEWKBCoord(b[off:], order, hasZ)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		off += adv
	}
	return out, nil
}

func decodeEWKBRings(b []byte, order binary.ByteOrder, hasZ bool) ([][]Coord, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("EWKB truncated ring count")
	}
	n := int(order.Uint32(b[0:4]))
	off := 4
	out := make([][]Coord, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < off+4 {
			return nil, fmt.Errorf("EWKB truncated ring")
		}
		count := int(order.Uint32(b[off : off+4]))
		off += 4
		coords := make([]Coord, 0, count)
		for j := 0; j < count; j++ {
			c, adv, err := decodeEWKBCoord(b[off:], order, hasZ)
			if err != nil {
				return nil, err
			}
			coords = append(coords, c)
			off += adv
		}
		out = append(out, coords)
	}
	return out, nil
}

// AsEWKB emits g as little-endian EWKB with the SRID flag set.
func AsEWKB(g Geometry) ([]byte, error) {
	var buf []byte
	hasZ := geometryHasZ(g)
	buf = append(buf, 1) // little-endian marker

	var baseType uint32
	switch g.Kind {
	case KindPoint:
		baseType = ewkbPoint
	case KindLineString:
		baseType = ewkbLineString
	case KindPolygon:
		baseType = ewkbPolygon
	default:
		return nil, fmt.Errorf("AsEWKB: unsupported geometry kind %d", g.Kind)
	}
	typeWord := baseType | ewkbSRIDFlag
	if hasZ {
		typeWord |= ewkbZFlag
	}
	buf = appendUint32(buf, typeWord)
	buf = appendUint32(buf, uint32(g.SRID))

	switch g.Kind {
	case KindPoint:
		buf = appendCoord(buf, g.Coords[0], hasZ)
	case KindLineString:
		buf = appendUint32(buf, uint32(len(g.Coords)))
		for _, c := range g.Coords {
			buf = appendCoord(buf, c, hasZ)
		}
	case KindPolygon:
		buf = appendUint32(buf, uint32(len(g.Polygons)))
		for _, ring := range g.Polygons {
			buf = appendUint32(buf, uint32(len(ring)))
			for _, c := range ring {
				buf = appendCoord(buf, c, hasZ)
			}
		}
	}
	return buf, nil
}

func geometryHasZ(g Geometry) bool {
	switch g.Kind {
	case KindPoint, KindLineString:
		return len(g.Coords) > 0 && g.Coords[0].HasZ
	case KindPolygon:
		return len(g.Polygons) > 0 && len(g.Polygons[0]) > 0 && g.Polygons[0][0].HasZ
	default:
		return false
	}
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendCoord(buf []byte, c Coord, hasZ bool) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(c.X))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(c.Y))
	buf = append(buf, tmp[:]...)
	if hasZ {
		z := c.Z
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(z))
		buf = append(buf, tmp[:]...)
	}
	return buf
}
