// Package kv declares the narrow key-value store interface Themis consumes
// from the underlying embedded LSM engine (out of scope per spec §1). It is
// modeled on the getter/putter/batch/snapshot/transaction shape used by
// embedded KV stores in the wild (grounded on the erigon-lib kv interface),
// reduced to exactly what the index engine and execution engine need.
package kv

import "context"

// Store is the full interface consumed by the Themis core.
type Store interface {
	Getter
	Putter

	// ScanPrefix calls fn for every key sharing prefix, in ascending
	// lexicographic order, until fn returns false or the prefix is
	// exhausted.
	ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// ScanRange calls fn for every key in [lo, hi), ascending, or
	// descending when reverse, until fn returns false.
	ScanRange(ctx context.Context, lo, hi []byte, reverse bool, fn func(key, value []byte) bool) error

	// OpenWriteBatch returns a batch that stages mutations for atomic
	// commit; see Batch.
	OpenWriteBatch() Batch

	// Snapshot returns a point-in-time read view.
	Snapshot() ReadView

	// Transaction opens an MVCC transaction for callers that need
	// read-then-write atomicity beyond a single write-batch.
	Transaction(ctx context.Context) (Txn, error)
}

// Getter reads a single key.
type Getter interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
}

// Putter is the synchronous single-key mutation surface backing Store;
// most callers prefer a Batch for multi-key atomicity.
type Putter interface {
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
}

// Batch stages an all-or-nothing set of mutations. Batches are move-only in
// spirit: once Commit or Discard is called the batch must not be reused.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Commit(ctx context.Context) error
	Discard()
	// Len reports the number of staged operations, used by callers that
	// want to avoid committing empty batches.
	Len() int
}

// ReadView is a point-in-time read snapshot.
type ReadView interface {
	Getter
	ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error
	ScanRange(ctx context.Context, lo, hi []byte, reverse bool, fn func(key, value []byte) bool) error
	Close()
}

// Txn is a read-write transaction for MVCC-style index variants.
type Txn interface {
	Getter
	Putter
	ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error
	Commit(ctx context.Context) error
	Rollback() error
}
