package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeTape/internal/model"
	"tradeTape/internal/storage"
)

// Store provides Postgres persistence for markets, trades, and sync state.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS markets (
			id BIGSERIAL PRIMARY KEY,
			slug TEXT,
			condition_id TEXT NOT NULL UNIQUE,
			question_id TEXT,
			oracle TEXT,
			yes_token_id TEXT,
			no_token_id TEXT,
			status TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_markets_slug ON markets (slug);

		CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			tx_hash TEXT NOT NULL,
			log_index BIGINT NOT NULL,
			market_id BIGINT NOT NULL REFERENCES markets(id),
			outcome TEXT NOT NULL CHECK (outcome IN ('YES', 'NO')),
			side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
			price DOUBLE PRECISION NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			timestamp BIGINT NOT NULL,
			asset_id TEXT NOT NULL DEFAULT '',
			block_number BIGINT NOT NULL DEFAULT 0
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_tx_log ON trades (tx_hash, log_index);
		CREATE INDEX IF NOT EXISTS idx_trades_market_time ON trades (market_id, timestamp);

		CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			last_block BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const marketColumns = `id, COALESCE(slug, ''), condition_id, COALESCE(question_id, ''), COALESCE(oracle, ''),
	COALESCE(yes_token_id, ''), COALESCE(no_token_id, ''), COALESCE(status, '')`

func scanMarket(row pgx.Row) (model.Market, error) {
	var m model.Market
	err := row.Scan(&m.ID, &m.Slug, &m.ConditionID, &m.QuestionID, &m.Oracle, &m.YesTokenID, &m.NoTokenID, &m.Status)
	return m, err
}

func (s *Store) GetMarket(ctx context.Context, slug string) (model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE slug=$1 ORDER BY id LIMIT 1`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Market{}, fmt.Errorf("%w: %s", storage.ErrMarketNotFound, slug)
		}
		return model.Market{}, err
	}
	return m, nil
}

// UpsertMarket inserts or updates market metadata keyed by condition id.
func (s *Store) UpsertMarket(ctx context.Context, m model.Market) (model.Market, error) {
	if m.ConditionID == "" {
		return model.Market{}, fmt.Errorf("condition id required")
	}
	return scanMarket(s.pool.QueryRow(ctx, `
		INSERT INTO markets (slug, condition_id, question_id, oracle, yes_token_id, no_token_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (condition_id)
		DO UPDATE SET
			slug = EXCLUDED.slug,
			question_id = EXCLUDED.question_id,
			oracle = EXCLUDED.oracle,
			yes_token_id = EXCLUDED.yes_token_id,
			no_token_id = EXCLUDED.no_token_id,
			status = EXCLUDED.status
		RETURNING `+marketColumns,
		m.Slug, m.ConditionID, m.QuestionID, m.Oracle, m.YesTokenID, m.NoTokenID, m.Status,
	))
}

func (s *Store) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markets := make([]model.Market, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *Store) ListTrades(ctx context.Context, marketID int64) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, log_index, market_id, outcome, side, price, size, timestamp, asset_id, block_number
		FROM trades
		WHERE market_id = $1
		ORDER BY timestamp ASC, block_number ASC, log_index ASC
	`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]model.Trade, 0)
	for rows.Next() {
		var (
			t                      model.Trade
			outcome, side          string
			logIndex, ts, blockNum int64
		)
		if err := rows.Scan(&t.TxHash, &logIndex, &t.MarketID, &outcome, &side, &t.Price, &t.Size, &ts, &t.AssetID, &blockNum); err != nil {
			return nil, err
		}
		t.LogIndex = uint64(logIndex)
		t.Timestamp = uint64(ts)
		t.BlockNumber = uint64(blockNum)
		t.Outcome = model.Outcome(outcome)
		t.Side = model.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *Store) InsertTradesIfAbsent(ctx context.Context, trades []model.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	var inserted int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		n, err := insertTrades(ctx, tx, trades)
		inserted = n
		return err
	})
	return inserted, err
}

// CommitChunk writes trades and the checkpoint in one transaction.
func (s *Store) CommitChunk(ctx context.Context, trades []model.Trade, key string, block uint64) (int, error) {
	if key == "" {
		return 0, fmt.Errorf("checkpoint key required")
	}
	var inserted int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		n, err := insertTrades(ctx, tx, trades)
		if err != nil {
			return err
		}
		if err := upsertCheckpoint(ctx, tx, key, block); err != nil {
			return err
		}
		inserted = n
		return nil
	})
	return inserted, err
}

func insertTrades(ctx context.Context, tx pgx.Tx, trades []model.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(`
			INSERT INTO trades (
				tx_hash, log_index, market_id, outcome, side, price, size, timestamp, asset_id, block_number
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			t.TxHash,
			int64(t.LogIndex),
			t.MarketID,
			string(t.Outcome),
			string(t.Side),
			t.Price,
			t.Size,
			int64(t.Timestamp),
			t.AssetID,
			int64(t.BlockNumber),
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for _, t := range trades {
		tag, err := br.Exec()
		if err != nil {
			return 0, fmt.Errorf("insert trade %s: %w", t.Key(), err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, br.Close()
}

// LoadCheckpoint returns last_block for a key.
func (s *Store) LoadCheckpoint(ctx context.Context, key string) (uint64, bool, error) {
	if key == "" {
		return 0, false, fmt.Errorf("checkpoint key required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_block FROM sync_state WHERE key=$1`, key)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// UpsertCheckpoint stores last_block for a key.
func (s *Store) UpsertCheckpoint(ctx context.Context, key string, block uint64) error {
	if key == "" {
		return fmt.Errorf("checkpoint key required")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return upsertCheckpoint(ctx, tx, key, block)
	})
}

func upsertCheckpoint(ctx context.Context, tx pgx.Tx, key string, block uint64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO sync_state (key, last_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET last_block = EXCLUDED.last_block, updated_at = now()
	`, key, int64(block))
	return err
}

func (s *Store) ListCheckpoints(ctx context.Context) ([]model.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, last_block FROM sync_state ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Checkpoint, 0)
	for rows.Next() {
		var (
			key   string
			block int64
		)
		if err := rows.Scan(&key, &block); err != nil {
			return nil, err
		}
		out = append(out, model.Checkpoint{Key: key, LastBlock: uint64(block)})
	}
	return out, rows.Err()
}

func (s *Store) ResetCheckpoints(ctx context.Context, substr string) (int64, error) {
	if substr == "" {
		return 0, fmt.Errorf("key pattern required")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM sync_state WHERE strpos(key, $1) > 0`, substr)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteTrades(ctx context.Context, marketID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE market_id=$1`, marketID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
