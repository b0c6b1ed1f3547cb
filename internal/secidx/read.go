package secidx

import (
	"context"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/themiserr"
)

// Get reads and decodes the entity stored under (table, pk), if any.
func (e *Engine) Get(ctx context.Context, table string, pk []byte) (*core.Entity, bool, error) {
	return e.readEntity(ctx, table, pk)
}

// ScanTableEntities decodes every entity row under table, skipping (rather
// than aborting on) rows that fail to deserialize, for the execution
// engine's full-scan fallback path (spec §4.10).
func (e *Engine) ScanTableEntities(ctx context.Context, table string, fn func(*core.Entity) bool) error {
	prefix := keyschema.EntityTablePrefix(table)
	return e.store.ScanPrefix(ctx, prefix, func(key, raw []byte) bool {
		pk, ok := lastKeyComponent(key, prefix)
		if !ok {
			return true
		}
		entity, err := e.codec.Decode(table, pk, raw)
		if err != nil {
			return true // skip corrupt/undecodable rows rather than aborting the scan
		}
		return fn(entity)
	})
}

func (e *Engine) readEntity(ctx context.Context, table string, pk []byte) (*core.Entity, bool, error) {
	raw, ok, err := e.store.Get(ctx, keyschema.EntityKey(table, pk))
	if err != nil {
		return nil, false, themiserr.Wrap(themiserr.KindStore, err, "read entity %s/%s", table, string(pk))
	}
	if !ok {
		return nil, false, nil
	}
	entity, err := e.codec.Decode(table, pk, raw)
	if err != nil {
		return nil, false, err
	}
	return entity, true, nil
}
