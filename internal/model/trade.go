package model

import (
	"fmt"
	"strings"
)

// Outcome is the market side an outcome token represents.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseOutcome accepts YES/NO in any case.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(strings.ToUpper(strings.TrimSpace(s))) {
	case OutcomeYes:
		return OutcomeYes, nil
	case OutcomeNo:
		return OutcomeNo, nil
	default:
		return "", fmt.Errorf("invalid outcome: %q", s)
	}
}

// ParseSide accepts BUY/SELL in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("invalid side: %q", s)
	}
}

// Trade is one reconstructed fill on the tape. (TxHash, LogIndex) is unique.
type Trade struct {
	TxHash      string  `json:"tx_hash"`
	LogIndex    uint64  `json:"log_index"`
	MarketID    int64   `json:"market_id"`
	Outcome     Outcome `json:"outcome"`
	Side        Side    `json:"side"`
	Price       float64 `json:"price"`
	Size        float64 `json:"size"`
	Timestamp   uint64  `json:"timestamp"`
	AssetID     string  `json:"asset_id"`
	BlockNumber uint64  `json:"block_number"`
}

// Key returns the dedup key of the trade.
func (t Trade) Key() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(t.TxHash), t.LogIndex)
}
