// Package secidx implements the Secondary Index Engine (spec §4.3): it
// mediates every entity put/delete so equality, range, sparse, TTL,
// fulltext and composite indexes stay in sync with the primary store, and
// answers the scan/estimate queries the optimizer and execution engine
// depend on. Grounded on the teacher's internal/diff (index diff
// computation) and internal/migration (apply-as-one-operation) packages,
// generalized from DDL diffing to per-write index delta computation.
package secidx

import (
	"context"

	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/entitystore"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// Engine is the Secondary Index Engine. One Engine instance serves an
// entire Themis store; it is safe for concurrent use because every
// mutation routes through the Catalog's own write lock and a single
// write-batch per logical operation (spec §5).
type Engine struct {
	store   kv.Store
	catalog *catalog.Catalog
	codec   entitystore.Codec
}

// New returns an Engine over store, using cat as the index catalog and
// codec to serialize/deserialize entity blobs.
func New(store kv.Store, cat *catalog.Catalog, codec entitystore.Codec) *Engine {
	return &Engine{store: store, catalog: cat, codec: codec}
}

// CreateEqualityIndex registers an equality index on (table, column).
func (e *Engine) CreateEqualityIndex(ctx context.Context, table, column string, unique bool) error {
	return e.catalog.Create(ctx, core.IndexDescriptor{Table: table, Column: column, Kind: core.IndexEquality, Unique: unique})
}

// CreateRangeIndex registers a range (ordered) index on (table, column).
func (e *Engine) CreateRangeIndex(ctx context.Context, table, column string) error {
	return e.catalog.Create(ctx, core.IndexDescriptor{Table: table, Column: column, Kind: core.IndexRange})
}

// CreateSparseIndex registers a sparse index (nulls/empties excluded) on
// (table, column).
func (e *Engine) CreateSparseIndex(ctx context.Context, table, column string) error {
	return e.catalog.Create(ctx, core.IndexDescriptor{Table: table, Column: column, Kind: core.IndexSparse})
}

// CreateTTLIndex registers a TTL index on (table, column), where column
// holds an int64 unix-seconds expiry.
func (e *Engine) CreateTTLIndex(ctx context.Context, table, column string, ttlSeconds int64) error {
	return e.catalog.Create(ctx, core.IndexDescriptor{Table: table, Column: column, Kind: core.IndexTTL, TTLSeconds: ttlSeconds})
}

// CreateFulltextIndex registers a fulltext index on (table, column) with
// the given analyzer/BM25 parameters.
func (e *Engine) CreateFulltextIndex(ctx context.Context, table, column string, params core.FulltextParams) error {
	return e.catalog.Create(ctx, core.IndexDescriptor{Table: table, Column: column, Kind: core.IndexFulltext, Analyzer: params})
}

// CreateCompositeIndex registers a composite equality index spanning
// columns (at least 2).
func (e *Engine) CreateCompositeIndex(ctx context.Context, table string, columns []string, unique bool) error {
	first := ""
	if len(columns) > 0 {
		first = columns[0]
	}
	return e.catalog.Create(ctx, core.IndexDescriptor{Table: table, Column: first, Columns: columns, Kind: core.IndexComposite, Unique: unique})
}

// DropIndex deletes every entry plus the descriptor for (table, column,
// kind). Succeeds (no-op) if nothing is registered, per spec §4.3.
func (e *Engine) DropIndex(ctx context.Context, table, column string, kind core.IndexKind) error {
	had := e.catalog.Has(table, column, kind)
	if !had {
		return nil
	}
	if err := e.dropEntries(ctx, table, column, kind); err != nil {
		return err
	}
	return e.catalog.Drop(ctx, table, column, kind)
}

// HasIndex reports whether an index of the given kind is registered.
func (e *Engine) HasIndex(table, column string, kind core.IndexKind) bool {
	return e.catalog.Has(table, column, kind)
}

// dropEntries deletes every persisted entry for one (table, column, kind)
// index, used by DropIndex and by Rebuild before regenerating entries.
func (e *Engine) dropEntries(ctx context.Context, table, column string, kind core.IndexKind) error {
	var prefix []byte
	switch kind {
	case core.IndexEquality, core.IndexComposite:
		prefix = keyschema.EqualityColumnPrefix(table, column)
	case core.IndexRange:
		prefix = keyschema.RangeColumnPrefix(table, column)
	case core.IndexSparse:
		prefix = keyschema.SparseColumnPrefix(table, column)
	case core.IndexTTL:
		prefix = keyschema.TTLColumnPrefix(table, column)
	case core.IndexFulltext:
		prefix = keyschema.FulltextColumnPrefix(table, column)
	default:
		return themiserr.New(themiserr.KindValidation, "dropEntries: unsupported kind %q", kind)
	}

	var keysToDelete [][]byte
	err := e.store.ScanPrefix(ctx, prefix, func(key, _ []byte) bool {
		k := make([]byte, len(key))
		copy(k, key)
		keysToDelete = append(keysToDelete, k)
		return true
	})
	if err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "dropEntries: scan %s.%s", table, column)
	}
	batch := e.store.OpenWriteBatch()
	for _, k := range keysToDelete {
		batch.Delete(k)
	}
	if batch.Len() == 0 {
		batch.Discard()
		return nil
	}
	if err := batch.Commit(ctx); err != nil {
		return themiserr.Wrap(themiserr.KindStore, err, "dropEntries: commit")
	}
	return nil
}
