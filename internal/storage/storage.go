package storage

import (
	"context"
	"errors"

	"tradeTape/internal/model"
)

// ErrMarketNotFound is returned when no market matches a slug.
var ErrMarketNotFound = errors.New("market not found")

// Store persists markets, trades and sync checkpoints.
type Store interface {
	GetMarket(ctx context.Context, slug string) (model.Market, error)
	// UpsertMarket inserts or updates by condition id and returns the stored row.
	UpsertMarket(ctx context.Context, market model.Market) (model.Market, error)
	ListMarkets(ctx context.Context) ([]model.Market, error)
	// ListTrades returns a market's trades ordered by time.
	ListTrades(ctx context.Context, marketID int64) ([]model.Trade, error)
	// InsertTradesIfAbsent skips trades whose (tx hash, log index) already exists.
	InsertTradesIfAbsent(ctx context.Context, trades []model.Trade) (int, error)

	LoadCheckpoint(ctx context.Context, key string) (uint64, bool, error)
	UpsertCheckpoint(ctx context.Context, key string, block uint64) error
	ListCheckpoints(ctx context.Context) ([]model.Checkpoint, error)
	// ResetCheckpoints deletes checkpoints whose key contains substr.
	ResetCheckpoints(ctx context.Context, substr string) (int64, error)

	// CommitChunk inserts trades and moves the checkpoint in one transaction.
	CommitChunk(ctx context.Context, trades []model.Trade, key string, block uint64) (int, error)
	DeleteTrades(ctx context.Context, marketID int64) (int64, error)
	Close() error
}

// DecodeErrorSink records logs that were skipped during a sync.
type DecodeErrorSink interface {
	PutDecodeErrors(records []model.DecodeError) error
}
