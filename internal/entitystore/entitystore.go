// Package entitystore layers the typed core.Entity field-map view over an
// opaque byte blob, per spec §4.12. Serialization is pluggable behind the
// Codec interface; JSONCodec is the default, grounded on the spec's
// treatment of entity encoding as an external concern (§1, §6) the same way
// internal/kv treats the physical store as external.
package entitystore

import (
	"encoding/json"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/themiserr"
)

// Codec converts between a core.Entity and its on-disk byte representation.
type Codec interface {
	Encode(e *core.Entity) ([]byte, error)
	Decode(table string, pk []byte, data []byte) (*core.Entity, error)
}

// wireEntity is the JSONCodec's on-disk shape: an ordered field list so
// FieldNames() iteration order survives a round trip.
type wireEntity struct {
	Fields []wireField `json:"fields"`
}

type wireField struct {
	Name  string    `json:"name"`
	Kind  core.Kind `json:"kind"`
	Value any       `json:"value"`
}

// JSONCodec is the default Codec, encoding entities as JSON objects.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Encode(e *core.Entity) ([]byte, error) {
	wire := wireEntity{Fields: make([]wireField, 0, len(e.FieldNames()))}
	for _, name := range e.FieldNames() {
		v, _ := e.Get(name)
		wire.Fields = append(wire.Fields, wireField{Name: name, Kind: v.Kind, Value: valueToWire(v)})
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindInternal, err, "encode entity %s/%s", e.Table, string(e.PK))
	}
	return b, nil
}

func (JSONCodec) Decode(table string, pk []byte, data []byte) (*core.Entity, error) {
	var wire wireEntity
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, err, "decode entity %s/%s", table, string(pk))
	}
	e := core.NewEntity(table, pk)
	for _, f := range wire.Fields {
		v, err := valueFromWire(f.Kind, f.Value)
		if err != nil {
			return nil, themiserr.Wrap(themiserr.KindStore, err, "decode field %q of %s/%s", f.Name, table, string(pk))
		}
		e.Set(f.Name, v)
	}
	return e, nil
}

func valueToWire(v core.Value) any {
	switch v.Kind {
	case core.KindNull:
		return nil
	case core.KindBool:
		return v.Bool
	case core.KindI64:
		return v.I64
	case core.KindF64:
		return v.F64
	case core.KindString:
		return v.Str
	case core.KindBytes:
		return v.Bytes
	case core.KindVector:
		return v.Vector
	case core.KindJSON:
		return v.JSON
	default:
		return nil
	}
}

func valueFromWire(kind core.Kind, raw any) (core.Value, error) {
	switch kind {
	case core.KindNull:
		return core.Null(), nil
	case core.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return core.Value{}, themiserr.New(themiserr.KindStore, "expected bool, got %T", raw)
		}
		return core.Bool(b), nil
	case core.KindI64:
		f, ok := raw.(float64)
		if !ok {
			return core.Value{}, themiserr.New(themiserr.KindStore, "expected number, got %T", raw)
		}
		return core.I64(int64(f)), nil
	case core.KindF64:
		f, ok := raw.(float64)
		if !ok {
			return core.Value{}, themiserr.New(themiserr.KindStore, "expected number, got %T", raw)
		}
		return core.F64(f), nil
	case core.KindString:
		s, ok := raw.(string)
		if !ok {
			return core.Value{}, themiserr.New(themiserr.KindStore, "expected string, got %T", raw)
		}
		return core.Str(s), nil
	case core.KindBytes:
		return decodeBytesValue(raw)
	case core.KindVector:
		return decodeVectorValue(raw)
	case core.KindJSON:
		return core.JSONValue(raw), nil
	default:
		return core.Value{}, themiserr.New(themiserr.KindStore, "unknown field kind %q", kind)
	}
}

func decodeBytesValue(raw any) (core.Value, error) {
	// JSON round-trips []byte as a base64 string; re-marshal/unmarshal
	// through encoding/json's native []byte support rather than hand-rolling
	// base64 here.
	s, ok := raw.(string)
	if !ok {
		return core.Value{}, themiserr.New(themiserr.KindStore, "expected base64 string for bytes field, got %T", raw)
	}
	var b []byte
	if err := json.Unmarshal([]byte(`"`+s+`"`), &b); err != nil {
		return core.Value{}, themiserr.Wrap(themiserr.KindStore, err, "decode bytes field")
	}
	return core.Bytes(b), nil
}

func decodeVectorValue(raw any) (core.Value, error) {
	items, ok := raw.([]any)
	if !ok {
		return core.Value{}, themiserr.New(themiserr.KindStore, "expected array for vector field, got %T", raw)
	}
	out := make([]float32, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return core.Value{}, themiserr.New(themiserr.KindStore, "vector element %d is not a number", i)
		}
		out[i] = float32(f)
	}
	return core.Vector(out), nil
}
