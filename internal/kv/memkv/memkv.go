// Package memkv is the reference in-memory implementation of kv.Store,
// backed by github.com/google/btree for ordered scans. It exists for tests
// and for the CLI's embedded mode; the production LSM store is an external
// collaborator per spec §1.
package memkv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/makr-code/themis/internal/kv"
)

type entry struct {
	key, value []byte
}

func less(a, b entry) bool { return bytes.Compare(a.key, b.key) < 0 }

// Store is a thread-safe in-memory ordered key-value store.
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[entry]
}

// New creates an empty store.
func New() *Store {
	return &Store{tree: btree.NewG(32, less)}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tree.Get(entry{key: key})
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kc := append([]byte(nil), key...)
	vc := append([]byte(nil), value...)
	s.tree.ReplaceOrInsert(entry{key: kc, value: vc})
	return nil
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(entry{key: key})
	return nil
}

func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xFF: no finite upper bound, scan to the end
}

func (s *Store) ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	upper := prefixUpperBound(prefix)
	return s.ScanRange(ctx, prefix, upper, false, fn)
}

func (s *Store) ScanRange(_ context.Context, lo, hi []byte, reverse bool, fn func(key, value []byte) bool) error {
	s.mu.RLock()
	snapshot := s.tree.Clone()
	s.mu.RUnlock()
	return scanRangeOrdered(snapshot, lo, hi, reverse, fn)
}

// scanRangeOrdered collects [lo, hi) ascending (hi == nil means unbounded)
// then replays it in the requested direction. Collecting first avoids
// btree's asymmetric Ascend/Descend boundary semantics and keeps [lo, hi)
// meaning identical regardless of direction.
func scanRangeOrdered(tree *btree.BTreeG[entry], lo, hi []byte, reverse bool, fn func(key, value []byte) bool) error {
	var collected []entry
	iter := func(e entry) bool {
		collected = append(collected, e)
		return true
	}
	if hi == nil {
		tree.AscendGreaterOrEqual(entry{key: lo}, iter)
	} else {
		tree.AscendRange(entry{key: lo}, entry{key: hi}, iter)
	}
	if !reverse {
		for _, e := range collected {
			if !fn(e.key, e.value) {
				break
			}
		}
		return nil
	}
	for i := len(collected) - 1; i >= 0; i-- {
		if !fn(collected[i].key, collected[i].value) {
			break
		}
	}
	return nil
}

func (s *Store) OpenWriteBatch() kv.Batch {
	return &batch{store: s}
}

func (s *Store) Snapshot() kv.ReadView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &snapshot{tree: s.tree.Clone()}
}

func (s *Store) Transaction(_ context.Context) (kv.Txn, error) {
	return &txn{store: s, staged: map[string]*[]byte{}}, nil
}

type op struct {
	key     []byte
	value   []byte
	deleted bool
}

type batch struct {
	store *Store
	ops   []op
}

func (b *batch) Put(key, value []byte) {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *batch) Delete(key []byte) {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), deleted: true})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, o := range b.ops {
		if o.deleted {
			b.store.tree.Delete(entry{key: o.key})
			continue
		}
		b.store.tree.ReplaceOrInsert(entry{key: o.key, value: o.value})
	}
	b.ops = nil
	return nil
}

func (b *batch) Discard() { b.ops = nil }

type snapshot struct {
	tree *btree.BTreeG[entry]
}

func (s *snapshot) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	e, ok := s.tree.Get(entry{key: key})
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *snapshot) ScanPrefix(_ context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	upper := prefixUpperBound(prefix)
	iter := func(e entry) bool { return fn(e.key, e.value) }
	if upper == nil {
		s.tree.AscendGreaterOrEqual(entry{key: prefix}, iter)
	} else {
		s.tree.AscendRange(entry{key: prefix}, entry{key: upper}, iter)
	}
	return nil
}

func (s *snapshot) ScanRange(_ context.Context, lo, hi []byte, reverse bool, fn func(key, value []byte) bool) error {
	return scanRangeOrdered(s.tree, lo, hi, reverse, fn)
}

func (s *snapshot) Close() {}

// txn provides read-then-write atomicity over the store by staging writes
// until Commit, used by MVCC-style callers (spec §6 "transaction()").
type txn struct {
	store  *Store
	staged map[string]*[]byte // nil value pointer means a staged delete
}

func (t *txn) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if v, ok := t.staged[string(key)]; ok {
		if v == nil {
			return nil, false, nil
		}
		return *v, true, nil
	}
	return t.store.Get(ctx, key)
}

func (t *txn) Put(_ context.Context, key, value []byte) error {
	vc := append([]byte(nil), value...)
	t.staged[string(key)] = &vc
	return nil
}

func (t *txn) Delete(_ context.Context, key []byte) error {
	t.staged[string(key)] = nil
	return nil
}

func (t *txn) ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	return t.store.ScanPrefix(ctx, prefix, fn)
}

func (t *txn) Commit(ctx context.Context) error {
	b := t.store.OpenWriteBatch()
	for k, v := range t.staged {
		if v == nil {
			b.Delete([]byte(k))
		} else {
			b.Put([]byte(k), *v)
		}
	}
	return b.Commit(ctx)
}

func (t *txn) Rollback() error {
	t.staged = map[string]*[]byte{}
	return nil
}

var _ kv.Store = (*Store)(nil)
