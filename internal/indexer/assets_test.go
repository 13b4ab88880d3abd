package indexer

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tradeTape/internal/exchange"
	"tradeTape/internal/model"
)

func TestScanAssetsRanksByVolume(t *testing.T) {
	chain := &fakeChain{logs: []model.RawLog{
		buyYes(t, 10, 0),
		buyYes(t, 30, 0),
		fillLog(t, 20, 0, big.NewInt(0), testNoToken, 1_000_000, 4_000_000),
		fillLog(t, 25, 0, testYesToken, testNoToken, 1, 1),
	}}

	report, err := ScanAssets(context.Background(), chain, testContract, 0, 99, 40, newTestNormalizer(t), 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Logs)
	require.Len(t, report.Assets, 2)

	top := report.Assets[0]
	assert.Equal(t, exchange.NormalizeAssetID(testYesToken), top.AssetID)
	assert.Equal(t, testYesToken.String(), top.TokenID)
	assert.InDelta(t, 20.0, top.Volume, 1e-9)
	assert.InDelta(t, 10.0, top.Notional, 1e-9)
	assert.Equal(t, 2, top.Count)
	assert.Equal(t, uint64(10), top.FirstBlock)
	assert.Equal(t, uint64(30), top.LastBlock)

	no := report.Assets[1]
	assert.InDelta(t, 0.25, no.MinPrice, 1e-12)
	assert.InDelta(t, 0.25, no.MaxPrice, 1e-12)

	limited, err := ScanAssets(context.Background(), chain, testContract, 0, 99, 40, newTestNormalizer(t), 1, nil)
	require.NoError(t, err)
	assert.Len(t, limited.Assets, 1)
}
