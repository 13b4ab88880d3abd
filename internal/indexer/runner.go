package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tradeTape/internal/exchange"
	"tradeTape/internal/metrics"
	"tradeTape/internal/model"
	"tradeTape/internal/storage"
)

// State is the lifecycle of a sync run.
type State string

const (
	StateInit                 State = "INIT"
	StateScanning             State = "SCANNING"
	StateStoppedTargetReached State = "STOPPED_TARGET_REACHED"
	StateStoppedEndReached    State = "STOPPED_END_REACHED"
	StateFailed               State = "FAILED"
)

// Chain is everything a sync run needs from the RPC adapter.
type Chain interface {
	LogFetcher
	BlockTimer
	LatestBlock(ctx context.Context) (uint64, error)
}

// RunConfig holds runtime settings for one sync run.
// EndBlock 0 means the chain head at start-up; an empty SyncKey defaults to
// DefaultSyncKey(MarketSlug, ContractAddress).
type RunConfig struct {
	ContractAddress  common.Address
	MarketSlug       string
	StartBlock       uint64
	EndBlock         uint64
	ChunkSize        uint64
	ChunkDelay       time.Duration
	TimestampBatch   int
	TargetTradeCount int
	SyncKey          string
	FromStart        bool

	// MarketAssetsOnly skips fills whose asset is neither of the market's tokens.
	MarketAssetsOnly bool
}

// DefaultSyncKey names the checkpoint row of a market on one exchange contract.
func DefaultSyncKey(slug string, contract common.Address) string {
	return fmt.Sprintf("%s_%s", slug, strings.ToLower(contract.Hex()))
}

// Summary reports what a run did.
type Summary struct {
	State              State               `json:"state"`
	MarketID           int64               `json:"market_id"`
	SyncKey            string              `json:"sync_key"`
	FromBlock          uint64              `json:"from_block"`
	ToBlock            uint64              `json:"to_block"`
	LastBlock          uint64              `json:"last_block"`
	Chunks             int                 `json:"chunks"`
	FailedRanges       []model.FailedRange `json:"failed_ranges"`
	LogsSeen           int                 `json:"logs_seen"`
	Decoded            int                 `json:"decoded"`
	DecodeFailures     int                 `json:"decode_failures"`
	Skipped            int                 `json:"skipped"`
	Inserted           int                 `json:"inserted"`
	TimestampFallbacks int                 `json:"timestamp_fallbacks"`
}

// Runner drives one market sync from checkpoint to stop condition.
type Runner struct {
	cfg        RunConfig
	chain      Chain
	store      storage.Store
	decoder    *exchange.Decoder
	normalizer *exchange.Normalizer
	sink       storage.DecodeErrorSink
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainClient Chain, store storage.Store, normalizer *exchange.Normalizer, logger *zap.Logger) (*Runner, error) {
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("normalizer is nil")
	}
	if cfg.ChunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if cfg.ContractAddress == (common.Address{}) {
		return nil, fmt.Errorf("contract address is required")
	}
	if cfg.MarketSlug == "" {
		return nil, fmt.Errorf("market slug is required")
	}
	if cfg.TargetTradeCount < 0 {
		return nil, fmt.Errorf("target trade count must not be negative")
	}
	if cfg.SyncKey == "" {
		cfg.SyncKey = DefaultSyncKey(cfg.MarketSlug, cfg.ContractAddress)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	decoder, err := exchange.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		store:      store,
		decoder:    decoder,
		normalizer: normalizer,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// WithDecodeErrorSink records skipped logs to sink.
func (r *Runner) WithDecodeErrorSink(sink storage.DecodeErrorSink) *Runner {
	r.sink = sink
	return r
}

// WithMetrics attaches a metrics recorder.
func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

// Run executes the sync loop until the target is reached, the range is exhausted,
// or an unrecoverable error occurs.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{State: StateInit, SyncKey: r.cfg.SyncKey}

	fail := func(err error) (Summary, error) {
		summary.State = StateFailed
		r.logger.Error("sync failed", zap.String("state", string(summary.State)), zap.Error(err))
		return summary, err
	}

	market, err := r.store.GetMarket(ctx, r.cfg.MarketSlug)
	if err != nil {
		return fail(fmt.Errorf("resolve market: %w", err))
	}
	assets, err := marketAssets(market, r.cfg.MarketAssetsOnly)
	if err != nil {
		return fail(err)
	}
	summary.MarketID = market.ID

	from, err := r.startBlock(ctx)
	if err != nil {
		return fail(err)
	}
	to := r.cfg.EndBlock
	if to == 0 {
		latest, err := r.chain.LatestBlock(ctx)
		if err != nil {
			return fail(fmt.Errorf("get latest block: %w", err))
		}
		to = latest
	}
	summary.FromBlock, summary.ToBlock = from, to

	if from > to {
		summary.State = StateStoppedEndReached
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return summary, nil
	}

	r.logger.Info("sync started",
		zap.String("market", market.Slug),
		zap.Int64("market_id", market.ID),
		zap.String("sync_key", r.cfg.SyncKey),
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("target", r.cfg.TargetTradeCount),
	)
	summary.State = StateScanning

	resolver := NewTimestampResolver(r.chain, r.cfg.TimestampBatch, r.logger)
	resolver.metrics = r.metrics
	resolver.now = r.now

	scanner := NewScanner(r.chain, r.cfg.ContractAddress, fillTopics(r.decoder), r.cfg.ChunkSize, r.cfg.ChunkDelay, r.logger).WithMetrics(r.metrics)
	result, err := scanner.Scan(ctx, from, to, func(ctx context.Context, chunk Chunk) (bool, error) {
		return r.processChunk(ctx, chunk, market, assets, resolver, &summary)
	})
	summary.Chunks = result.Chunks
	summary.FailedRanges = result.Failed
	if err != nil {
		return fail(err)
	}

	if result.Stopped {
		summary.State = StateStoppedTargetReached
	} else {
		summary.State = StateStoppedEndReached
	}
	r.logger.Info("sync finished",
		zap.String("state", string(summary.State)),
		zap.Int("inserted", summary.Inserted),
		zap.Uint64("last_block", summary.LastBlock),
		zap.Int("failed_ranges", len(summary.FailedRanges)),
		zap.Int("decode_failures", summary.DecodeFailures),
	)
	return summary, nil
}

func (r *Runner) startBlock(ctx context.Context) (uint64, error) {
	from := r.cfg.StartBlock
	if r.cfg.FromStart {
		return from, nil
	}
	last, ok, err := r.store.LoadCheckpoint(ctx, r.cfg.SyncKey)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if ok && last >= from {
		from = last + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_block", last), zap.Uint64("from", from))
	}
	return from, nil
}

func (r *Runner) processChunk(ctx context.Context, chunk Chunk, market model.Market, assets map[string]struct{}, resolver *TimestampResolver, summary *Summary) (bool, error) {
	summary.LogsSeen += len(chunk.Logs)

	var diag []model.DecodeError
	trades := make([]model.Trade, 0, len(chunk.Logs))
	for _, log := range chunk.Logs {
		ev, err := r.decoder.Decode(log)
		if err != nil {
			summary.DecodeFailures++
			r.metrics.DecodeFailure()
			diag = append(diag, decodeError(log, "decode", err))
			continue
		}
		summary.Decoded++

		trade, err := r.normalizer.Normalize(ev, log, 0, market)
		if err != nil {
			if errors.Is(err, exchange.ErrNotTrade) {
				summary.Skipped++
			} else {
				summary.DecodeFailures++
				r.metrics.DecodeFailure()
			}
			diag = append(diag, decodeError(log, "normalize", err))
			continue
		}
		if assets != nil {
			if _, ok := assets[trade.AssetID]; !ok {
				summary.Skipped++
				continue
			}
		}
		trades = append(trades, trade)
	}

	if len(trades) > 0 {
		blocks := make([]uint64, 0, len(trades))
		for _, t := range trades {
			blocks = append(blocks, t.BlockNumber)
		}
		stamps, fallbacks := resolver.Resolve(ctx, blocks)
		summary.TimestampFallbacks += fallbacks
		for i := range trades {
			trades[i].Timestamp = stamps[trades[i].BlockNumber]
		}
	}
	// a cancelled run must not commit wall-clock fallback stamps
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.writeDiagnostics(diag)

	inserted, err := r.store.CommitChunk(ctx, trades, r.cfg.SyncKey, chunk.To)
	if err != nil {
		return false, fmt.Errorf("commit chunk: %w", err)
	}
	summary.Inserted += inserted
	summary.LastBlock = chunk.To
	r.metrics.TradesInserted(inserted)
	r.metrics.Checkpoint(r.cfg.SyncKey, chunk.To)

	r.logger.Info("chunk committed",
		zap.Uint64("from", chunk.From),
		zap.Uint64("to", chunk.To),
		zap.Int("logs", len(chunk.Logs)),
		zap.Int("trades", len(trades)),
		zap.Int("inserted", inserted),
		zap.Int("total_inserted", summary.Inserted),
	)

	target := r.cfg.TargetTradeCount
	return target > 0 && summary.Inserted >= target, nil
}

// fillTopics lists the distinct topic0 hashes of the catalog.
func fillTopics(decoder *exchange.Decoder) []common.Hash {
	topics := make([]common.Hash, 0)
	seen := make(map[common.Hash]struct{})
	for _, v := range decoder.Variants() {
		if _, ok := seen[v.ID()]; ok {
			continue
		}
		seen[v.ID()] = struct{}{}
		topics = append(topics, v.ID())
	}
	return topics
}

// marketAssets validates the market's token ids and, when restrict is set,
// returns the set of asset ids a trade may carry.
func marketAssets(market model.Market, restrict bool) (map[string]struct{}, error) {
	yes, err := exchange.NormalizeTokenID(market.YesTokenID)
	if err != nil {
		return nil, fmt.Errorf("market %s yes token: %w", market.Slug, err)
	}
	if !restrict {
		return nil, nil
	}
	no, err := exchange.NormalizeTokenID(market.NoTokenID)
	if err != nil {
		return nil, fmt.Errorf("market %s no token: %w", market.Slug, err)
	}
	return map[string]struct{}{yes: {}, no: {}}, nil
}

func (r *Runner) writeDiagnostics(records []model.DecodeError) {
	if r.sink == nil || len(records) == 0 {
		return
	}
	if err := r.sink.PutDecodeErrors(records); err != nil {
		r.logger.Warn("write decode errors failed", zap.Error(err))
	}
}

func decodeError(log model.RawLog, stage string, err error) model.DecodeError {
	var topic0 string
	if len(log.Topics) > 0 {
		topic0 = log.Topics[0].Hex()
	}
	return model.DecodeError{
		BlockNumber: log.BlockNumber,
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		LogIndex:    uint64(log.LogIndex),
		Address:     log.Address.Hex(),
		Topic0:      topic0,
		Stage:       stage,
		Error:       err.Error(),
	}
}
