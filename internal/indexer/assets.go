package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tradeTape/internal/exchange"
	"tradeTape/internal/model"
)

// AssetStat aggregates fills of one outcome token over a scanned range.
type AssetStat struct {
	AssetID    string  `json:"asset_id"`
	TokenID    string  `json:"token_id"`
	Volume     float64 `json:"volume"`
	Notional   float64 `json:"notional"`
	Count      int     `json:"count"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	FirstBlock uint64  `json:"first_block"`
	LastBlock  uint64  `json:"last_block"`
}

// AssetReport is the result of an asset discovery scan.
type AssetReport struct {
	Assets []AssetStat         `json:"assets"`
	Failed []model.FailedRange `json:"failed_ranges"`
	Logs   int                 `json:"logs"`
}

// ScanAssets ranks the outcome tokens traded on contract in [from, to] by volume.
// It needs no market; the result helps pick a market's token ids.
func ScanAssets(
	ctx context.Context,
	fetcher LogFetcher,
	contract common.Address,
	from, to, chunkSize uint64,
	normalizer *exchange.Normalizer,
	limit int,
	logger *zap.Logger,
) (AssetReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := exchange.NewDecoder()
	if err != nil {
		return AssetReport{}, fmt.Errorf("build decoder: %w", err)
	}

	stats := make(map[string]*AssetStat)
	var report AssetReport
	scanner := NewScanner(fetcher, contract, fillTopics(decoder), chunkSize, 0, logger)
	result, err := scanner.Scan(ctx, from, to, func(_ context.Context, chunk Chunk) (bool, error) {
		report.Logs += len(chunk.Logs)
		for _, log := range chunk.Logs {
			ev, err := decoder.Decode(log)
			if err != nil {
				continue
			}
			q, err := normalizer.Quote(ev)
			if err != nil {
				continue
			}
			st, ok := stats[q.AssetID]
			if !ok {
				st = &AssetStat{AssetID: q.AssetID, MinPrice: q.Price, MaxPrice: q.Price, FirstBlock: log.BlockNumber}
				stats[q.AssetID] = st
			}
			st.Volume += q.Size
			st.Notional += q.Size * q.Price
			st.Count++
			if q.Price < st.MinPrice {
				st.MinPrice = q.Price
			}
			if q.Price > st.MaxPrice {
				st.MaxPrice = q.Price
			}
			if log.BlockNumber < st.FirstBlock {
				st.FirstBlock = log.BlockNumber
			}
			if log.BlockNumber > st.LastBlock {
				st.LastBlock = log.BlockNumber
			}
		}
		return false, nil
	})
	report.Failed = result.Failed
	if err != nil {
		return report, err
	}

	report.Assets = make([]AssetStat, 0, len(stats))
	for _, st := range stats {
		st.TokenID = new(big.Int).SetBytes(common.HexToHash(st.AssetID).Bytes()).String()
		report.Assets = append(report.Assets, *st)
	}
	sort.Slice(report.Assets, func(i, j int) bool {
		if report.Assets[i].Volume != report.Assets[j].Volume {
			return report.Assets[i].Volume > report.Assets[j].Volume
		}
		return report.Assets[i].AssetID < report.Assets[j].AssetID
	})
	if limit > 0 && len(report.Assets) > limit {
		report.Assets = report.Assets[:limit]
	}
	return report, nil
}
