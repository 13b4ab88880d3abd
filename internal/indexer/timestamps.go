package indexer

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradeTape/internal/metrics"
)

// BlockTimer returns the timestamp of a block.
type BlockTimer interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// TimestampResolver looks up block timestamps in bounded concurrent batches.
// A block whose lookup fails is stamped with the current wall-clock time.
type TimestampResolver struct {
	chain   BlockTimer
	batch   int
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewTimestampResolver(chain BlockTimer, batch int, logger *zap.Logger) *TimestampResolver {
	if batch <= 0 {
		batch = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimestampResolver{chain: chain, batch: batch, now: time.Now, logger: logger}
}

// Resolve returns a timestamp for every block and the number of fallbacks used.
func (r *TimestampResolver) Resolve(ctx context.Context, blocks []uint64) (map[uint64]uint64, int) {
	unique := make([]uint64, 0, len(blocks))
	seen := make(map[uint64]struct{}, len(blocks))
	for _, b := range blocks {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		unique = append(unique, b)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	out := make(map[uint64]uint64, len(unique))
	fallbacks := 0
	for start := 0; start < len(unique); start += r.batch {
		end := start + r.batch
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]
		stamps := make([]uint64, len(batch))
		errs := make([]error, len(batch))

		var g errgroup.Group
		for i, block := range batch {
			i, block := i, block
			g.Go(func() error {
				stamps[i], errs[i] = r.chain.BlockTimestamp(ctx, block)
				return nil
			})
		}
		_ = g.Wait()

		for i, block := range batch {
			if errs[i] != nil {
				fallbacks++
				stamps[i] = uint64(r.now().Unix())
				r.metrics.TimestampFallback()
				r.logger.Warn("block timestamp unavailable, using wall clock",
					zap.Uint64("block_number", block),
					zap.Error(errs[i]),
				)
			}
			out[block] = stamps[i]
		}
	}
	return out, fallbacks
}
