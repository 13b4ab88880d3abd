package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tradeTape/internal/metrics"
	"tradeTape/internal/model"
)

// LogFetcher returns logs for an inclusive block window.
type LogFetcher interface {
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]model.RawLog, error)
}

// Chunk is one successfully fetched window.
type Chunk struct {
	Window
	Index int
	Logs  []model.RawLog
}

// ChunkFunc handles a chunk; returning stop ends the scan early.
type ChunkFunc func(ctx context.Context, chunk Chunk) (stop bool, err error)

// ScanResult summarises a scan.
type ScanResult struct {
	Windows int
	Chunks  int
	Failed  []model.FailedRange
	Stopped bool
}

// Scanner walks a block range in fixed windows.
type Scanner struct {
	fetcher   LogFetcher
	address   common.Address
	topics    []common.Hash
	chunkSize uint64
	delay     time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewScanner builds a scanner for one contract address and topic0 set.
func NewScanner(fetcher LogFetcher, address common.Address, topics []common.Hash, chunkSize uint64, delay time.Duration, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		fetcher:   fetcher,
		address:   address,
		topics:    topics,
		chunkSize: chunkSize,
		delay:     delay,
		logger:    logger,
	}
}

// WithMetrics attaches a metrics recorder.
func (s *Scanner) WithMetrics(m *metrics.Metrics) *Scanner {
	s.metrics = m
	return s
}

// Scan fetches [from, to] window by window and hands each fetched chunk to onChunk
// in ascending order. A window whose fetch fails is recorded in Failed and skipped.
func (s *Scanner) Scan(ctx context.Context, from, to uint64, onChunk ChunkFunc) (ScanResult, error) {
	var result ScanResult

	windows, err := SplitWindows(from, to, s.chunkSize)
	if err != nil {
		return result, err
	}

	for i, w := range windows {
		if i > 0 && s.delay > 0 {
			if err := sleep(ctx, s.delay); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Windows++

		logs, err := s.fetcher.FetchLogs(ctx, w.From, w.To, []common.Address{s.address}, s.topics)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.metrics.ChunkFailed()
			s.logger.Error("fetch logs failed, skipping window",
				zap.Uint64("from", w.From),
				zap.Uint64("to", w.To),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, model.FailedRange{
				Address: s.address.Hex(),
				From:    w.From,
				To:      w.To,
				Error:   err.Error(),
			})
			continue
		}

		result.Chunks++
		stop, err := onChunk(ctx, Chunk{Window: w, Index: i, Logs: logs})
		if err != nil {
			return result, fmt.Errorf("chunk %d-%d: %w", w.From, w.To, err)
		}
		if stop {
			result.Stopped = true
			return result, nil
		}
	}

	return result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
