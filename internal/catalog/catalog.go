// Package catalog maintains the registry of IndexDescriptors backing every
// secondary index in the store, persisted to the KV store and served to
// readers through copy-on-read immutable snapshots, per spec §5
// ("catalog reads never block on writer state"). Grounded on the teacher's
// dialect.RegisterDialect registry shape (internal/dialect/dialect.go),
// generalized from dialect Type to index Kind, and on
// internal/core/validate_index.go's duplicate/reference validation.
package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// metaPrefixFor maps an IndexKind to its reserved `*meta:` persistence
// prefix, per spec §6.
func metaPrefixFor(kind core.IndexKind) (string, error) {
	switch kind {
	case core.IndexEquality, core.IndexComposite:
		return keyschema.PrefixIdxMeta, nil
	case core.IndexRange:
		return keyschema.PrefixRIdxMeta, nil
	case core.IndexSparse:
		return keyschema.PrefixSIdxMeta, nil
	case core.IndexSpatial:
		return keyschema.PrefixGIdxMeta, nil
	case core.IndexTTL:
		return keyschema.PrefixTTLIdxMeta, nil
	case core.IndexFulltext:
		return keyschema.PrefixFTIdxMeta, nil
	case core.IndexGraph, core.IndexVectorANN:
		return keyschema.PrefixIdxMeta, nil
	default:
		return "", themiserr.New(themiserr.KindValidation, "unknown index kind %q", kind)
	}
}

// entryKey uniquely identifies one descriptor within the in-memory
// snapshot: (table, column, kind) since the same column may carry more
// than one index kind (e.g. equality + fulltext).
type entryKey struct {
	table, column string
	kind          core.IndexKind
}

// snapshotData is the immutable view swapped atomically on every catalog
// mutation.
type snapshotData struct {
	byKey   map[entryKey]*core.IndexDescriptor
	byTable map[string][]*core.IndexDescriptor
}

func emptySnapshot() *snapshotData {
	return &snapshotData{
		byKey:   map[entryKey]*core.IndexDescriptor{},
		byTable: map[string][]*core.IndexDescriptor{},
	}
}

// Catalog is the source of truth for which indexes exist. All mutations
// take writeMu; readers call current() and never block.
type Catalog struct {
	store   kv.Store
	writeMu sync.Mutex
	current atomic.Pointer[snapshotData]
}

// New returns an empty Catalog backed by store. Call Load to populate it
// from persisted state at startup.
func New(store kv.Store) *Catalog {
	c := &Catalog{store: store}
	c.current.Store(emptySnapshot())
	return c
}

// Load scans every `*meta:` prefix and rebuilds the in-memory snapshot from
// persisted descriptors.
func (c *Catalog) Load(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next := emptySnapshot()
	prefixes := []string{
		keyschema.PrefixIdxMeta, keyschema.PrefixRIdxMeta, keyschema.PrefixSIdxMeta,
		keyschema.PrefixGIdxMeta, keyschema.PrefixTTLIdxMeta, keyschema.PrefixFTIdxMeta,
	}
	for _, prefix := range prefixes {
		err := c.store.ScanPrefix(ctx, []byte(prefix), func(key, value []byte) bool {
			var desc core.IndexDescriptor
			if jsonErr := json.Unmarshal(value, &desc); jsonErr != nil {
				return true // skip corrupt entries rather than aborting the whole load
			}
			insert(next, &desc)
			return true
		})
		if err != nil {
			return themiserr.Wrap(themiserr.KindStore, err, "catalog load: scan %q", prefix)
		}
	}
	c.current.Store(next)
	return nil
}

func insert(s *snapshotData, desc *core.IndexDescriptor) {
	key := entryKey{table: desc.Table, column: desc.Column, kind: desc.Kind}
	s.byKey[key] = desc
	s.byTable[desc.Table] = append(s.byTable[desc.Table], desc)
}

// Create registers and persists a new index descriptor. Returns a
// themiserr.KindUnique error if an index of the same (table, column, kind)
// already exists.
func (c *Catalog) Create(ctx context.Context, desc core.IndexDescriptor) error {
	if err := validateDescriptor(desc); err != nil {
		return err
	}
	prefix, err := metaPrefixFor(desc.Kind)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.current.Load()
	key := entryKey{table: desc.Table, column: desc.Column, kind: desc.Kind}
	if _, exists := cur.byKey[key]; exists {
		return themiserr.New(themiserr.KindUnique, "index already exists on %s.%s (%s)", desc.Table, desc.Column, desc.Kind)
	}

	payload, err := json.Marshal(desc)
	if err != nil {
		return themiserr.Wrap(themiserr.KindInternal, err, "marshal index descriptor")
	}
	storeKey := keyschema.MetaKey(prefix, desc.Table, desc.Column)
	if err := c.store.Put(ctx, storeKey, payload); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "persist index descriptor")
	}

	next := cloneSnapshot(cur)
	d := desc
	insert(next, &d)
	c.current.Store(next)
	return nil
}

// Drop removes a descriptor and its persisted record. Returns a
// themiserr.KindNotFound error if no such index exists.
func (c *Catalog) Drop(ctx context.Context, table, column string, kind core.IndexKind) error {
	prefix, err := metaPrefixFor(kind)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.current.Load()
	key := entryKey{table: table, column: column, kind: kind}
	if _, exists := cur.byKey[key]; !exists {
		return themiserr.New(themiserr.KindNotFound, "no %s index on %s.%s", kind, table, column)
	}

	storeKey := keyschema.MetaKey(prefix, table, column)
	if err := c.store.Delete(ctx, storeKey); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "delete index descriptor")
	}

	next := emptySnapshot()
	for k, v := range cur.byKey {
		if k == key {
			continue
		}
		insert(next, v)
	}
	c.current.Store(next)
	return nil
}

// Has reports whether an index of the given kind exists on (table, column).
func (c *Catalog) Has(table, column string, kind core.IndexKind) bool {
	cur := c.current.Load()
	_, ok := cur.byKey[entryKey{table: table, column: column, kind: kind}]
	return ok
}

// Get returns the descriptor for (table, column, kind), if registered.
func (c *Catalog) Get(table, column string, kind core.IndexKind) (core.IndexDescriptor, bool) {
	cur := c.current.Load()
	d, ok := cur.byKey[entryKey{table: table, column: column, kind: kind}]
	if !ok {
		return core.IndexDescriptor{}, false
	}
	return *d, true
}

// List returns every descriptor registered for table, sorted by column then
// kind for deterministic output.
func (c *Catalog) List(table string) []core.IndexDescriptor {
	cur := c.current.Load()
	src := cur.byTable[table]
	out := make([]core.IndexDescriptor, len(src))
	for i, d := range src {
		out[i] = *d
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Tables returns every table with at least one registered index, sorted.
func (c *Catalog) Tables() []string {
	cur := c.current.Load()
	out := make([]string, 0, len(cur.byTable))
	for t := range cur.byTable {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func cloneSnapshot(s *snapshotData) *snapshotData {
	next := emptySnapshot()
	for _, d := range s.byKey {
		insert(next, d)
	}
	return next
}

func validateDescriptor(desc core.IndexDescriptor) error {
	if desc.Table == "" {
		return themiserr.New(themiserr.KindValidation, "index descriptor missing table name")
	}
	if desc.Kind != core.IndexComposite && desc.Column == "" {
		return themiserr.New(themiserr.KindValidation, "index descriptor missing column name")
	}
	if desc.Kind == core.IndexComposite && len(desc.Columns) < 2 {
		return themiserr.New(themiserr.KindValidation, "composite index requires at least 2 columns")
	}
	if desc.Kind == core.IndexVectorANN && desc.Vector.Dim <= 0 {
		return themiserr.New(themiserr.KindValidation, "vector index requires a positive dimension")
	}
	return nil
}
