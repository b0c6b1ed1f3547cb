package exec

import (
	"context"

	"github.com/makr-code/themis/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// materializeEntities loads every pk in pks from table, per spec §4.10:
// below materializeThreshold entities load sequentially; at or above it,
// they load in parallel batches of materializeBatch. Entities that fail
// to deserialize are skipped with a logged warning rather than aborting
// the whole query.
func (e *Engine) materializeEntities(ctx context.Context, table string, pks [][]byte) ([]*core.Entity, error) {
	if len(pks) < e.materializeThreshold {
		return e.materializeSequential(ctx, table, pks)
	}
	return e.materializeParallel(ctx, table, pks)
}

func (e *Engine) materializeSequential(ctx context.Context, table string, pks [][]byte) ([]*core.Entity, error) {
	out := make([]*core.Entity, 0, len(pks))
	for _, pk := range pks {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		ent, ok, err := e.secidx.Get(ctx, table, pk)
		if err != nil {
			e.log.Warn("skipping entity: deserialize failed", zap.String("table", table), zap.ByteString("pk", pk), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		out = append(out, ent)
	}
	return out, nil
}

func (e *Engine) materializeParallel(ctx context.Context, table string, pks [][]byte) ([]*core.Entity, error) {
	batchSize := e.materializeBatch
	if batchSize <= 0 {
		batchSize = DefaultMaterializeBatch
	}
	var batches [][][]byte
	for i := 0; i < len(pks); i += batchSize {
		end := i + batchSize
		if end > len(pks) {
			end = len(pks)
		}
		batches = append(batches, pks[i:end])
	}

	results := make([][]*core.Entity, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			ents, err := e.materializeSequential(gctx, table, batch)
			if err != nil {
				return err
			}
			results[i] = ents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*core.Entity, 0, len(pks))
	for _, batch := range results {
		out = append(out, batch...)
	}
	return out, nil
}
