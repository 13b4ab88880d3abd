package exchange

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeTape/internal/model"
)

func testMarket(t *testing.T) model.Market {
	t.Helper()
	return model.Market{
		ID:         7,
		Slug:       "will-it-rain",
		YesTokenID: yesTokenDecimal,
		NoTokenID:  "12345",
	}
}

func decodeFill(t *testing.T, key string, makerAsset, takerAsset, makerAmount, takerAmount *big.Int) (DecodedEvent, model.RawLog) {
	t.Helper()
	decoder, err := NewDecoder()
	require.NoError(t, err)
	v := mustVariant(t, key)
	log := buildLog(t, v, fillValues(v, makerAsset, takerAsset, makerAmount, takerAmount))
	ev, err := decoder.Decode(log)
	require.NoError(t, err)
	return ev, log
}

func TestNormalizeMakerPaysCollateralIsBuy(t *testing.T) {
	n, err := NewNormalizer(DefaultNormalizerConfig())
	require.NoError(t, err)

	ev, log := decodeFill(t, "order_filled", big.NewInt(0), yesTokenID(t), big.NewInt(5_000_000), big.NewInt(10_000_000))
	trade, err := n.Normalize(ev, log, 1_700_000_000, testMarket(t))
	require.NoError(t, err)

	assert.Equal(t, model.SideBuy, trade.Side)
	assert.Equal(t, model.OutcomeYes, trade.Outcome)
	assert.InDelta(t, 0.5, trade.Price, 1e-12)
	assert.InDelta(t, 10.0, trade.Size, 1e-12)
	assert.Equal(t, uint64(1_700_000_000), trade.Timestamp)
	assert.Equal(t, int64(7), trade.MarketID)
	assert.Equal(t, uint64(4), trade.LogIndex)
	assert.Equal(t, uint64(59311000), trade.BlockNumber)
	assert.Equal(t, strings.ToLower(log.TxHash.Hex()), trade.TxHash)
	assert.Equal(t, NormalizeAssetID(yesTokenID(t)), trade.AssetID)
}

func TestNormalizeTakerPaysCollateralIsSell(t *testing.T) {
	n, err := NewNormalizer(DefaultNormalizerConfig())
	require.NoError(t, err)

	ev, log := decodeFill(t, "order_filled", big.NewInt(12345), big.NewInt(0), big.NewInt(4_000_000), big.NewInt(1_000_000))
	trade, err := n.Normalize(ev, log, 1, testMarket(t))
	require.NoError(t, err)

	assert.Equal(t, model.SideSell, trade.Side)
	assert.Equal(t, model.OutcomeNo, trade.Outcome)
	assert.InDelta(t, 0.25, trade.Price, 1e-12)
	assert.InDelta(t, 4.0, trade.Size, 1e-12)
}

func TestNormalizeTakerConventionInvertsSide(t *testing.T) {
	cfg := DefaultNormalizerConfig()
	cfg.Convention = TakerPerspective
	n, err := NewNormalizer(cfg)
	require.NoError(t, err)

	ev, log := decodeFill(t, "order_filled", big.NewInt(0), yesTokenID(t), big.NewInt(5_000_000), big.NewInt(10_000_000))
	trade, err := n.Normalize(ev, log, 1, testMarket(t))
	require.NoError(t, err)
	assert.Equal(t, model.SideSell, trade.Side)
	assert.InDelta(t, 0.5, trade.Price, 1e-12)

	ev, log = decodeFill(t, "order_filled", yesTokenID(t), big.NewInt(0), big.NewInt(10_000_000), big.NewInt(5_000_000))
	trade, err = n.Normalize(ev, log, 1, testMarket(t))
	require.NoError(t, err)
	assert.Equal(t, model.SideBuy, trade.Side)
}

func TestNormalizeContextVariantOffsets(t *testing.T) {
	n, err := NewNormalizer(DefaultNormalizerConfig())
	require.NoError(t, err)

	ev, log := decodeFill(t, "order_filled_context", big.NewInt(0), yesTokenID(t), big.NewInt(3_000_000), big.NewInt(4_000_000))
	trade, err := n.Normalize(ev, log, 1, testMarket(t))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, trade.Price, 1e-12)
	assert.InDelta(t, 4.0, trade.Size, 1e-12)
}

func TestNormalizeOrdersMatched(t *testing.T) {
	n, err := NewNormalizer(DefaultNormalizerConfig())
	require.NoError(t, err)

	for _, key := range []string{"orders_matched_9", "orders_matched_10"} {
		ev, log := decodeFill(t, key, big.NewInt(0), yesTokenID(t), big.NewInt(600_000), big.NewInt(1_000_000))
		trade, err := n.Normalize(ev, log, 1, testMarket(t))
		require.NoError(t, err, key)
		assert.InDelta(t, 0.6, trade.Price, 1e-12, key)
		assert.Equal(t, model.OutcomeYes, trade.Outcome, key)
	}
}

func TestNormalizeRejectsNonTrades(t *testing.T) {
	n, err := NewNormalizer(DefaultNormalizerConfig())
	require.NoError(t, err)

	cases := []struct {
		name                     string
		makerAsset, takerAsset   int64
		makerAmount, takerAmount int64
	}{
		{"both collateral", 0, 0, 1_000_000, 1_000_000},
		{"token swap", 5, 6, 1_000_000, 1_000_000},
		{"zero tokens", 0, 5, 1_000_000, 0},
		{"price above max", 0, 5, 2_000_000, 1_000_000},
		{"price at max", 0, 5, 1_500_000, 1_000_000},
		{"price below min", 0, 5, 1, 10_000_000},
		{"price at min", 0, 5, 1_000, 1_000_000},
	}
	for _, tc := range cases {
		ev, log := decodeFill(t, "order_filled", big.NewInt(tc.makerAsset), big.NewInt(tc.takerAsset), big.NewInt(tc.makerAmount), big.NewInt(tc.takerAmount))
		_, err := n.Normalize(ev, log, 1, testMarket(t))
		assert.True(t, errors.Is(err, ErrNotTrade), "%s: %v", tc.name, err)
	}
}

func TestNormalizeHonoursDecimals(t *testing.T) {
	cfg := DefaultNormalizerConfig()
	cfg.TokenDecimals = 18
	n, err := NewNormalizer(cfg)
	require.NoError(t, err)

	tokens, _ := new(big.Int).SetString("2000000000000000000", 10)
	ev, log := decodeFill(t, "order_filled", big.NewInt(0), big.NewInt(99), big.NewInt(1_000_000), tokens)
	trade, err := n.Normalize(ev, log, 1, testMarket(t))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, trade.Price, 1e-12)
	assert.InDelta(t, 2.0, trade.Size, 1e-12)
}

func TestNewNormalizerValidates(t *testing.T) {
	cfg := DefaultNormalizerConfig()
	cfg.MaxPrice = cfg.MinPrice
	_, err := NewNormalizer(cfg)
	assert.Error(t, err)

	cfg = DefaultNormalizerConfig()
	cfg.Convention = "sideways"
	_, err = NewNormalizer(cfg)
	assert.Error(t, err)

	c, err := ParseSideConvention(" Taker ")
	require.NoError(t, err)
	assert.Equal(t, TakerPerspective, c)
	c, err = ParseSideConvention("")
	require.NoError(t, err)
	assert.Equal(t, MakerPerspective, c)
}

func TestNormalizeTokenIDForms(t *testing.T) {
	yes := yesTokenID(t)
	want := NormalizeAssetID(yes)

	got, err := NormalizeTokenID(yesTokenDecimal)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = NormalizeTokenID("0x" + strings.ToUpper(yes.Text(16)))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = NormalizeTokenID("0x0000" + yes.Text(16))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for _, bad := range []string{"", "0x", "abc", "-1", "0x1" + strings.Repeat("0", 64)} {
		_, err := NormalizeTokenID(bad)
		assert.Error(t, err, bad)
	}
}

func TestNormalizeOutcomeMatchesHexYesToken(t *testing.T) {
	n, err := NewNormalizer(DefaultNormalizerConfig())
	require.NoError(t, err)

	market := testMarket(t)
	market.YesTokenID = "0x" + strings.ToUpper(yesTokenID(t).Text(16))

	ev, log := decodeFill(t, "order_filled", big.NewInt(0), yesTokenID(t), big.NewInt(5_000_000), big.NewInt(10_000_000))
	trade, err := n.Normalize(ev, log, 1, market)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeYes, trade.Outcome)
}
