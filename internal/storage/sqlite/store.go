// Package sqlite is the default file-backed trade store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tradeTape/internal/model"
	"tradeTape/internal/storage"
)

// Store wraps SQLite-backed persistence for markets, trades, and sync state.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection keeps the PRAGMAs in effect and serializes writers
	db.SetMaxOpenConns(1)

	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS markets (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  slug          TEXT,
  condition_id  TEXT NOT NULL UNIQUE,
  question_id   TEXT,
  oracle        TEXT,
  yes_token_id  TEXT,
  no_token_id   TEXT,
  status        TEXT
);

CREATE INDEX IF NOT EXISTS idx_markets_slug ON markets (slug);

CREATE TABLE IF NOT EXISTS trades (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  tx_hash       TEXT NOT NULL,
  log_index     INTEGER NOT NULL,
  market_id     INTEGER NOT NULL REFERENCES markets(id),
  outcome       TEXT NOT NULL CHECK (outcome IN ('YES', 'NO')),
  side          TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
  price         REAL NOT NULL,
  size          REAL NOT NULL,
  timestamp     INTEGER NOT NULL,
  asset_id      TEXT NOT NULL DEFAULT '',
  block_number  INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_tx_log ON trades (tx_hash, log_index);
CREATE INDEX IF NOT EXISTS idx_trades_market_time ON trades (market_id, timestamp);

CREATE TABLE IF NOT EXISTS sync_state (
  key         TEXT PRIMARY KEY,
  last_block  INTEGER NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const marketColumns = `id, COALESCE(slug, ''), condition_id, COALESCE(question_id, ''), COALESCE(oracle, ''),
  COALESCE(yes_token_id, ''), COALESCE(no_token_id, ''), COALESCE(status, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (model.Market, error) {
	var m model.Market
	err := row.Scan(&m.ID, &m.Slug, &m.ConditionID, &m.QuestionID, &m.Oracle, &m.YesTokenID, &m.NoTokenID, &m.Status)
	return m, err
}

// GetMarket returns the first market registered under slug.
func (s *Store) GetMarket(ctx context.Context, slug string) (model.Market, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets WHERE slug = ? ORDER BY id LIMIT 1;`, slug)
	m, err := scanMarket(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Market{}, fmt.Errorf("%w: %s", storage.ErrMarketNotFound, slug)
	case err != nil:
		return model.Market{}, fmt.Errorf("get market: %w", err)
	}
	return m, nil
}

// UpsertMarket inserts or updates a market keyed by condition id.
func (s *Store) UpsertMarket(ctx context.Context, m model.Market) (model.Market, error) {
	if m.ConditionID == "" {
		return model.Market{}, errors.New("condition id required")
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO markets (slug, condition_id, question_id, oracle, yes_token_id, no_token_id, status)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(condition_id) DO UPDATE SET
  slug=excluded.slug,
  question_id=excluded.question_id,
  oracle=excluded.oracle,
  yes_token_id=excluded.yes_token_id,
  no_token_id=excluded.no_token_id,
  status=excluded.status
RETURNING `+marketColumns+`;
`, m.Slug, m.ConditionID, m.QuestionID, m.Oracle, m.YesTokenID, m.NoTokenID, m.Status)
	stored, err := scanMarket(row)
	if err != nil {
		return model.Market{}, fmt.Errorf("upsert market: %w", err)
	}
	return stored, nil
}

// ListMarkets returns every market ordered by id.
func (s *Store) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	markets := make([]model.Market, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// ListTrades returns a market's trades in tape order.
func (s *Store) ListTrades(ctx context.Context, marketID int64) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT tx_hash, log_index, market_id, outcome, side, price, size, timestamp, asset_id, block_number
FROM trades
WHERE market_id = ?
ORDER BY timestamp ASC, block_number ASC, log_index ASC;
`, marketID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	trades := make([]model.Trade, 0)
	for rows.Next() {
		var t model.Trade
		var outcome, side string
		if err := rows.Scan(&t.TxHash, &t.LogIndex, &t.MarketID, &outcome, &side, &t.Price, &t.Size, &t.Timestamp, &t.AssetID, &t.BlockNumber); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Outcome = model.Outcome(outcome)
		t.Side = model.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertTradesIfAbsent inserts trades in one transaction, ignoring duplicates.
func (s *Store) InsertTradesIfAbsent(ctx context.Context, trades []model.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	var inserted int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		n, err := insertTrades(ctx, tx, trades)
		inserted = n
		return err
	})
	return inserted, err
}

// CommitChunk writes trades and the checkpoint atomically.
func (s *Store) CommitChunk(ctx context.Context, trades []model.Trade, key string, block uint64) (int, error) {
	if key == "" {
		return 0, errors.New("checkpoint key required")
	}
	var inserted int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
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

func insertTrades(ctx context.Context, tx *sql.Tx, trades []model.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO trades (tx_hash, log_index, market_id, outcome, side, price, size, timestamp, asset_id, block_number)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(tx_hash, log_index) DO NOTHING;
`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert trade: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range trades {
		res, err := stmt.ExecContext(ctx,
			t.TxHash, int64(t.LogIndex), t.MarketID, string(t.Outcome), string(t.Side),
			t.Price, t.Size, int64(t.Timestamp), t.AssetID, int64(t.BlockNumber),
		)
		if err != nil {
			return 0, fmt.Errorf("insert trade %s: %w", t.Key(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// LoadCheckpoint returns the last committed block for key.
func (s *Store) LoadCheckpoint(ctx context.Context, key string) (uint64, bool, error) {
	var block uint64
	err := s.db.QueryRowContext(ctx, `SELECT last_block FROM sync_state WHERE key = ?;`, key).Scan(&block)
	switch {
	case err == nil:
		return block, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("load checkpoint: %w", err)
	}
}

// UpsertCheckpoint records block for key, last write wins.
func (s *Store) UpsertCheckpoint(ctx context.Context, key string, block uint64) error {
	if key == "" {
		return errors.New("checkpoint key required")
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return upsertCheckpoint(ctx, tx, key, block)
	})
}

func upsertCheckpoint(ctx context.Context, tx *sql.Tx, key string, block uint64) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO sync_state (key, last_block)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET last_block=excluded.last_block;
`, key, int64(block))
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns all sync_state rows ordered by key.
func (s *Store) ListCheckpoints(ctx context.Context) ([]model.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, last_block FROM sync_state ORDER BY key;`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	out := make([]model.Checkpoint, 0)
	for rows.Next() {
		var cp model.Checkpoint
		if err := rows.Scan(&cp.Key, &cp.LastBlock); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// ResetCheckpoints deletes checkpoints whose key contains substr.
func (s *Store) ResetCheckpoints(ctx context.Context, substr string) (int64, error) {
	if substr == "" {
		return 0, errors.New("key pattern required")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_state WHERE instr(key, ?) > 0;`, substr)
	if err != nil {
		return 0, fmt.Errorf("reset checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// DeleteTrades removes every trade of a market.
func (s *Store) DeleteTrades(ctx context.Context, marketID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trades WHERE market_id = ?;`, marketID)
	if err != nil {
		return 0, fmt.Errorf("delete trades: %w", err)
	}
	return res.RowsAffected()
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
