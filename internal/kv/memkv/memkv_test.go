package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, []byte("a"), []byte("1")))
	v, ok, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))

	require.NoError(t, s.Delete(ctx, []byte("a")))
	_, ok, err = s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScanPrefixOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"idx:t:c:3:pk3", "idx:t:c:1:pk1", "idx:t:c:2:pk2", "other:x"} {
		require.NoError(t, s.Put(ctx, []byte(k), []byte("v")))
	}
	var got []string
	require.NoError(t, s.ScanPrefix(ctx, []byte("idx:t:c:"), func(k, v []byte) bool {
		got = append(got, string(k))
		return true
	}))
	require.Equal(t, []string{"idx:t:c:1:pk1", "idx:t:c:2:pk2", "idx:t:c:3:pk3"}, got)
}

func TestScanRangeReverseMatchesReversedForward(t *testing.T) {
	ctx := context.Background()
	s := New()
	keys := []string{"k1", "k2", "k3", "k4", "k5"}
	for _, k := range keys {
		require.NoError(t, s.Put(ctx, []byte(k), []byte(k)))
	}
	var fwd []string
	require.NoError(t, s.ScanRange(ctx, []byte("k1"), []byte("k5"), false, func(k, v []byte) bool {
		fwd = append(fwd, string(k))
		return true
	}))
	require.Equal(t, []string{"k1", "k2", "k3", "k4"}, fwd)

	var rev []string
	require.NoError(t, s.ScanRange(ctx, []byte("k1"), []byte("k5"), true, func(k, v []byte) bool {
		rev = append(rev, string(k))
		return true
	}))
	require.Equal(t, []string{"k4", "k3", "k2", "k1"}, rev)
}

func TestWriteBatchAtomicity(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := s.OpenWriteBatch()
	b.Put([]byte("x"), []byte("1"))
	b.Put([]byte("y"), []byte("2"))
	require.Equal(t, 2, b.Len())
	require.NoError(t, b.Commit(ctx))

	_, ok, _ := s.Get(ctx, []byte("x"))
	require.True(t, ok)
	_, ok, _ = s.Get(ctx, []byte("y"))
	require.True(t, ok)
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, []byte("a"), []byte("1")))
	snap := s.Snapshot()
	require.NoError(t, s.Put(ctx, []byte("a"), []byte("2")))

	v, _, _ := snap.Get(ctx, []byte("a"))
	require.Equal(t, "1", string(v))
	v, _, _ = s.Get(ctx, []byte("a"))
	require.Equal(t, "2", string(v))
}
