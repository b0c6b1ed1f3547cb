package secidx

import (
	"bytes"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

func sortPKs(pks [][]byte) {
	sort.Slice(pks, func(i, j int) bool { return bytes.Compare(pks[i], pks[j]) < 0 })
}

// pkInterner assigns a dense uint64 id to each distinct primary key seen
// within the scope of one query, so multiple predicates' pk postings can
// be combined with roaring-bitmap set algebra instead of map-based set
// operations. It is scoped to a single request (never persisted) because
// the reserved on-disk key-prefix set is fixed by spec §6 and does not
// include a doc-id mapping; grounded on erigon-lib's use of
// `roaring64.Bitmap` for address/topic posting lists
// (`state/aggregator_v3.go`).
type pkInterner struct {
	forward map[string]uint64
	reverse [][]byte
}

func newPKInterner() *pkInterner {
	return &pkInterner{forward: map[string]uint64{}}
}

// intern returns pk's id, assigning a new one on first sight.
func (p *pkInterner) intern(pk []byte) uint64 {
	s := string(pk)
	if id, ok := p.forward[s]; ok {
		return id
	}
	id := uint64(len(p.reverse))
	p.forward[s] = id
	p.reverse = append(p.reverse, pk)
	return id
}

// lookup returns a previously interned id's pk, or nil if out of range.
func (p *pkInterner) lookup(id uint64) []byte {
	if id >= uint64(len(p.reverse)) {
		return nil
	}
	return p.reverse[id]
}

// bitmapOf interns every pk in pks and returns the resulting bitmap.
func (p *pkInterner) bitmapOf(pks [][]byte) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, pk := range pks {
		bm.Add(p.intern(pk))
	}
	return bm
}

// pksOf decodes every id set in bm back into primary keys, in ascending
// id order (which is first-seen order across the predicates combined so
// far, not a guarantee of sorted-pk order — callers that need sorted
// output re-sort afterward).
func (p *pkInterner) pksOf(bm *roaring64.Bitmap) [][]byte {
	ids := bm.ToArray()
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		if pk := p.lookup(id); pk != nil {
			out = append(out, pk)
		}
	}
	return out
}

// IntersectPKSets computes the set intersection of N sorted pk lists using
// a shared interner and roaring-bitmap AND, returning the result sorted by
// primary key for deterministic downstream ordering.
func IntersectPKSets(sets [][][]byte) [][]byte {
	if len(sets) == 0 {
		return nil
	}
	interner := newPKInterner()
	acc := interner.bitmapOf(sets[0])
	for _, set := range sets[1:] {
		if acc.IsEmpty() {
			break
		}
		acc.And(interner.bitmapOf(set))
	}
	out := interner.pksOf(acc)
	sortPKs(out)
	return out
}

// UnionPKSets computes the set union of N pk lists, de-duplicating via a
// shared interner and roaring-bitmap OR, sorted by primary key.
func UnionPKSets(sets [][][]byte) [][]byte {
	interner := newPKInterner()
	acc := roaring64.New()
	for _, set := range sets {
		acc.Or(interner.bitmapOf(set))
	}
	out := interner.pksOf(acc)
	sortPKs(out)
	return out
}
