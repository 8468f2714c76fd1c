package ingest

import (
	"context"

	"go.uber.org/zap"
)

// filterNew returns the candidates whose identities are not yet present in
// the collection, using batched point lookups so cost stays independent of
// collection size.
//
// The filter is an optimization, not a correctness gate: identities are
// content-addressed, so upserting an already-present point is a harmless
// overwrite. When a lookup round-trip fails, the whole batch is treated as
// new instead of aborting the ingestion.
func (ing *Ingestor) filterNew(ctx context.Context, candidates []candidate) []candidate {
	size := ing.cfg.LookupBatchSize
	if size <= 0 {
		size = 100
	}
	fresh := make([]candidate, 0, len(candidates))
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		ids := make([]uint64, len(batch))
		for i, c := range batch {
			ids[i] = c.id
		}
		present, err := ing.index.RetrieveIDs(ctx, ids)
		if err != nil {
			if ing.logger != nil {
				ing.logger.Warn("dedup lookup failed, treating batch as new",
					zap.Int("batch_size", len(batch)),
					zap.Error(err))
			}
			fresh = append(fresh, batch...)
			continue
		}
		for _, c := range batch {
			if !present[c.id] {
				fresh = append(fresh, c)
			}
		}
	}
	return fresh
}
