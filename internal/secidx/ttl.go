package secidx

import (
	"context"
	"strconv"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/themiserr"
)

// RunTTLCleanup erases every (table, column) TTL-indexed row whose expiry
// has passed nowUnix, across every registered TTL index, stopping once
// budget rows have been erased (budget <= 0 means unbounded). It returns
// the number of rows erased.
func (e *Engine) RunTTLCleanup(ctx context.Context, nowUnix int64, budget int) (int, error) {
	erased := 0
	for _, desc := range e.ttlDescriptors() {
		remaining := 0 // 0 means unbounded to runTTLCleanupOne
		if budget > 0 {
			remaining = budget - erased
			if remaining <= 0 {
				break
			}
		}
		n, err := e.runTTLCleanupOne(ctx, desc, nowUnix, remaining)
		if err != nil {
			return erased, err
		}
		erased += n
		if budget > 0 && erased >= budget {
			break
		}
	}
	return erased, nil
}

func (e *Engine) ttlDescriptors() []core.IndexDescriptor {
	var out []core.IndexDescriptor
	for _, t := range e.catalog.Tables() {
		for _, d := range e.catalog.List(t) {
			if d.Kind == core.IndexTTL {
				out = append(out, d)
			}
		}
	}
	return out
}

// runTTLCleanupOne cleans up one TTL index; remaining == 0 means unbounded,
// otherwise it caps the number of candidates collected.
func (e *Engine) runTTLCleanupOne(ctx context.Context, desc core.IndexDescriptor, nowUnix int64, remaining int) (int, error) {
	var candidates [][]byte
	prefix := keyschema.TTLColumnPrefix(desc.Table, desc.Column)
	err := e.store.ScanPrefix(ctx, prefix, func(key, _ []byte) bool {
		pk, expire, ok := ttlKeyParts(key, prefix)
		if !ok {
			return true
		}
		if expire > nowUnix {
			return false // expire is zero-padded so entries scan in increasing order
		}
		candidates = append(candidates, pk)
		return remaining == 0 || len(candidates) < remaining
	})
	if err != nil {
		return 0, themiserr.Wrap(themiserr.KindStore, err, "ttl cleanup scan %s.%s", desc.Table, desc.Column)
	}

	erased := 0
	for _, pk := range candidates {
		if err := e.Erase(ctx, desc.Table, pk); err != nil {
			return erased, err
		}
		erased++
	}
	return erased, nil
}

func ttlKeyParts(key, prefix []byte) ([]byte, int64, bool) {
	if len(key) <= len(prefix) {
		return nil, 0, false
	}
	parts, err := keyschema.SplitKey(string(key[len(prefix):]))
	if err != nil || len(parts) != 2 {
		return nil, 0, false
	}
	expire, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, 0, false
	}
	return []byte(parts[1]), expire, true
}
