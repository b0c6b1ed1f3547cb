// Package core holds the data-model types shared across the Themis engine:
// the dynamically typed Value, the Entity row/vertex/document, and the
// index-descriptor metadata used by the catalog and secondary index
// engine. It mirrors the source's dynamic-typing and struct-per-concept
// conventions, generalized from SQL tables to the five logical models.
package core

import "fmt"

// Kind enumerates the dynamic types a Value may hold.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindI64
	KindF64
	KindString
	KindBytes
	KindVector
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindI64:
		return "i64"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindVector:
		return "vector"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Value is the dynamically typed field value stored inside an Entity and
// produced by the expression evaluator. Exactly one field is meaningful,
// selected by Kind; coercions between kinds are always explicit.
type Value struct {
	Kind   Kind
	Bool   bool
	I64    int64
	F64    float64
	Str    string
	Bytes  []byte
	Vector []float32
	JSON   any // arbitrary nested map[string]any / []any / scalar tree
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func I64(i int64) Value           { return Value{Kind: KindI64, I64: i} }
func F64(f float64) Value         { return Value{Kind: KindF64, F64: f} }
func Str(s string) Value          { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value        { return Value{Kind: KindBytes, Bytes: b} }
func Vector(v []float32) Value    { return Value{Kind: KindVector, Vector: v} }
func JSONValue(v any) Value       { return Value{Kind: KindJSON, JSON: v} }

// IsNull reports whether v represents SQL-null / AQL-null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsEmpty reports null-or-empty-ness for sparse-index purposes: null,
// empty string, empty bytes and empty vector all count as "absent".
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == ""
	case KindBytes:
		return len(v.Bytes) == 0
	case KindVector:
		return len(v.Vector) == 0
	default:
		return false
	}
}

// AsFloat64 coerces numeric kinds to float64; ok is false for non-numeric
// kinds (used by the range-index encoder and the expression evaluator's
// numeric comparison path).
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindI64:
		return float64(v.I64), true
	case KindF64:
		return v.F64, true
	default:
		return 0, false
	}
}

// String renders a human-readable form, used by diagnostics and by the
// key-schema encoder for the string branch of the encoded-value component.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindI64:
		return fmt.Sprintf("%d", v.I64)
	case KindF64:
		return fmt.Sprintf("%g", v.F64)
	case KindString:
		return v.Str
	case KindBytes:
		return string(v.Bytes)
	case KindVector:
		return fmt.Sprintf("<vector:%d>", len(v.Vector))
	case KindJSON:
		return fmt.Sprintf("%v", v.JSON)
	default:
		return ""
	}
}

// Equal reports value equality used by RETURN DISTINCT and set
// deduplication in the execution engine.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		// Numeric cross-kind equality (1 == 1.0) matches AQL looseness.
		af, aok := v.AsFloat64()
		bf, bok := other.AsFloat64()
		if aok && bok {
			return af == bf
		}
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindI64:
		return v.I64 == other.I64
	case KindF64:
		return v.F64 == other.F64
	case KindString:
		return v.Str == other.Str
	case KindBytes:
		return string(v.Bytes) == string(other.Bytes)
	case KindVector:
		if len(v.Vector) != len(other.Vector) {
			return false
		}
		for i := range v.Vector {
			if v.Vector[i] != other.Vector[i] {
				return false
			}
		}
		return true
	default:
		return fmt.Sprintf("%v", v.JSON) == fmt.Sprintf("%v", other.JSON)
	}
}
