package entitystore

import (
	"testing"

	"github.com/makr-code/themis/internal/core"
)

func TestJSONCodecRoundTripScalarFields(t *testing.T) {
	e := core.NewEntity("users", []byte("u1"))
	e.Set("name", core.Str("ada"))
	e.Set("age", core.I64(36))
	e.Set("score", core.F64(9.5))
	e.Set("active", core.Bool(true))
	e.Set("note", core.Null())

	codec := JSONCodec{}
	data, err := codec.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode("users", []byte("u1"), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	name, _ := got.Get("name")
	if name.Str != "ada" {
		t.Fatalf("expected name=ada, got %+v", name)
	}
	age, _ := got.Get("age")
	if age.I64 != 36 {
		t.Fatalf("expected age=36, got %+v", age)
	}
	score, _ := got.Get("score")
	if score.F64 != 9.5 {
		t.Fatalf("expected score=9.5, got %+v", score)
	}
	active, _ := got.Get("active")
	if !active.Bool {
		t.Fatalf("expected active=true")
	}
	note, _ := got.Get("note")
	if !note.IsNull() {
		t.Fatalf("expected note to decode as null")
	}
}

func TestJSONCodecRoundTripBytesAndVector(t *testing.T) {
	e := core.NewEntity("docs", []byte("d1"))
	e.Set("blob", core.Bytes([]byte{0x00, 0x01, 0xFF}))
	e.Set("embedding", core.Vector([]float32{0.1, 0.2, 0.3}))

	codec := JSONCodec{}
	data, err := codec.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode("docs", []byte("d1"), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	blob, _ := got.Get("blob")
	if len(blob.Bytes) != 3 || blob.Bytes[2] != 0xFF {
		t.Fatalf("unexpected bytes round trip: %+v", blob.Bytes)
	}
	vec, _ := got.Get("embedding")
	if len(vec.Vector) != 3 || vec.Vector[1] != float32(0.2) {
		t.Fatalf("unexpected vector round trip: %+v", vec.Vector)
	}
}

func TestJSONCodecPreservesFieldOrder(t *testing.T) {
	e := core.NewEntity("users", []byte("u1"))
	e.Set("z", core.I64(1))
	e.Set("a", core.I64(2))
	e.Set("m", core.I64(3))

	codec := JSONCodec{}
	data, err := codec.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode("users", []byte("u1"), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	names := got.FieldNames()
	want := []string{"z", "a", "m"}
	if len(names) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(names))
	}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("expected field order %v, got %v", want, names)
		}
	}
}

func TestJSONCodecDecodeMalformedErrors(t *testing.T) {
	codec := JSONCodec{}
	_, err := codec.Decode("users", []byte("u1"), []byte("not json"))
	if err == nil {
		t.Fatalf("expected error decoding malformed payload")
	}
}
