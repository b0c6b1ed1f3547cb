package keyschema

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/makr-code/themis/internal/core"
)

func TestEncodeValueOrderingMatchesSemanticOrderForInts(t *testing.T) {
	ints := []int64{-100, -1, 0, 1, 5, 100, 1 << 40}
	encoded := make([]string, len(ints))
	for i, n := range ints {
		encoded[i] = EncodeValue(core.I64(n))
	}
	shuffled := append([]string(nil), encoded...)
	sort.Strings(shuffled)
	require.Equal(t, encoded, shuffled, "lexicographic order of encoded ints must match numeric order")

	for _, n := range ints {
		enc := EncodeValue(core.I64(n))
		body, err := DecodeOrderedInt(enc)
		require.NoError(t, err)
		require.Equal(t, n, body)
	}
}

func TestEncodeValueOrderingMatchesSemanticOrderForFloats(t *testing.T) {
	floats := []float64{-3.5, -1.0, -0.001, 0, 0.001, 1.0, 3.5, 1e10}
	encoded := make([]string, len(floats))
	for i, f := range floats {
		encoded[i] = EncodeValue(core.F64(f))
	}
	shuffled := append([]string(nil), encoded...)
	sort.Strings(shuffled)
	require.Equal(t, encoded, shuffled)

	for _, f := range floats {
		enc := EncodeValue(core.F64(f))
		got, err := DecodeOrderedFloat(enc)
		require.NoError(t, err)
		require.InDelta(t, f, got, 1e-9)
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{"plain", "has:colon", "has%percent", "has\x01control", ""}
	for _, c := range cases {
		esc := escape(c)
		back, err := unescape(esc)
		require.NoError(t, err)
		require.Equal(t, c, back)
	}
}

func TestEqualityKeyRoundTrip(t *testing.T) {
	key := EqualityKey("users", "city", core.Str("Berlin"), []byte("u1"))
	body, err := TrimPrefix(key, PrefixEquality)
	require.NoError(t, err)
	parts, err := SplitKey(body)
	require.NoError(t, err)
	require.Equal(t, []string{"users", "city", "Berlin", "u1"}, parts)
}

func TestUnescapeMalformedPercent(t *testing.T) {
	_, err := unescape("abc%zz")
	require.Error(t, err)
}
