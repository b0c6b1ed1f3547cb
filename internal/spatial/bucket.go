package spatial

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/makr-code/themis/internal/geometry"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// entry is one {pk, mbr, centroid} record inside a Morton bucket, per spec
// §4.1 persisted-layout note "Spatial bucket ... list of {pk, mbr, z_min,
// z_max} entries". The centroid is carried alongside the MBR so nearby/KNN
// distance scoring doesn't need to re-derive it from scratch per probe.
type entry struct {
	PK        []byte  `json:"pk"`
	MBR       geometry.MBR `json:"mbr"`
	CentroidX float64 `json:"cx"`
	CentroidY float64 `json:"cy"`
	CentroidZ float64 `json:"cz"`
}

func decodeBucket(raw []byte, out *[]entry) error {
	return json.Unmarshal(raw, out)
}

func getBucket(ctx context.Context, store kv.Store, table string, code uint64) ([]entry, error) {
	raw, ok, err := store.Get(ctx, keyschema.SpatialBucketKey(table, code))
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, err, "spatial: read bucket")
	}
	if !ok {
		return nil, nil
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, themiserr.Wrap(themiserr.KindInternal, err, "spatial: decode bucket")
	}
	return entries, nil
}

// putBucket stages the bucket's new contents into batch, deleting the key
// entirely once the bucket empties out.
func putBucket(batch kv.Batch, table string, code uint64, entries []entry) error {
	key := keyschema.SpatialBucketKey(table, code)
	if len(entries) == 0 {
		batch.Delete(key)
		return nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return themiserr.Wrap(themiserr.KindInternal, err, "spatial: encode bucket")
	}
	batch.Put(key, raw)
	return nil
}

func removeFromEntries(entries []entry, pk []byte) ([]entry, bool) {
	out := entries[:0:0]
	removed := false
	for _, e := range entries {
		if bytes.Equal(e.PK, pk) {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

func sidecarToEntry(pk []byte, sc geometry.Sidecar) entry {
	return entry{PK: pk, MBR: sc.MBR, CentroidX: sc.CentroidX, CentroidY: sc.CentroidY, CentroidZ: sc.CentroidZ}
}

// asBoxGeometry turns an MBR into a degenerate rectangular polygon so the
// pluggable ExactGeometryBackend can be consulted after the coarse Morton
// filter, per spec §4.4. Buckets only persist the MBR (not the original
// geometry), so "exact" here means box-precision, matching the bucket's own
// persisted precision.
func asBoxGeometry(m geometry.MBR) geometry.Geometry {
	ring := []geometry.Coord{
		{X: m.MinX, Y: m.MinY}, {X: m.MaxX, Y: m.MinY},
		{X: m.MaxX, Y: m.MaxY}, {X: m.MinX, Y: m.MaxY},
		{X: m.MinX, Y: m.MinY},
	}
	return geometry.Geometry{Kind: geometry.KindPolygon, SRID: geometry.WGS84, Polygons: [][]geometry.Coord{ring}}
}

func pointGeometry(x, y float64) geometry.Geometry {
	return geometry.NewPoint(x, y, 0, false)
}
