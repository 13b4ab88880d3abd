package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeTape/internal/model"
)

func tr(ts uint64, outcome model.Outcome, side model.Side, price, size float64) model.Trade {
	return model.Trade{Timestamp: ts, Outcome: outcome, Side: side, Price: price, Size: size, BlockNumber: ts}
}

func TestBuildBars(t *testing.T) {
	trades := []model.Trade{
		tr(65, model.OutcomeYes, model.SideSell, 0.40, 5),
		tr(61, model.OutcomeYes, model.SideBuy, 0.50, 10),
		tr(70, model.OutcomeNo, model.SideBuy, 0.55, 2),
		tr(119, model.OutcomeYes, model.SideBuy, 0.45, 1),
		tr(125, model.OutcomeYes, model.SideBuy, 0.60, 4),
	}

	bars, err := BuildBars(trades, 60)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	yes := bars[0]
	assert.Equal(t, model.OutcomeYes, yes.Outcome)
	assert.Equal(t, uint64(60), yes.WindowStart)
	assert.Equal(t, uint64(120), yes.WindowEnd)
	assert.Equal(t, 0.50, yes.Open)
	assert.Equal(t, 0.50, yes.High)
	assert.Equal(t, 0.40, yes.Low)
	assert.Equal(t, 0.45, yes.Close)
	assert.InDelta(t, 16.0, yes.Volume, 1e-12)
	assert.InDelta(t, 7.45, yes.Notional, 1e-12)
	assert.Equal(t, uint64(3), yes.Count)
	assert.Equal(t, uint64(2), yes.BuyCount)
	assert.Equal(t, uint64(1), yes.SellCount)

	assert.Equal(t, model.OutcomeNo, bars[1].Outcome)
	assert.Equal(t, uint64(60), bars[1].WindowStart)

	assert.Equal(t, uint64(120), bars[2].WindowStart)
	assert.Equal(t, 0.60, bars[2].Open)
	assert.Equal(t, 0.60, bars[2].Close)
}

func TestBuildBarsEmptyAndInvalid(t *testing.T) {
	bars, err := BuildBars(nil, 60)
	require.NoError(t, err)
	assert.Empty(t, bars)

	_, err = BuildBars(nil, 0)
	assert.Error(t, err)
}

func TestParseWindow(t *testing.T) {
	got, err := ParseWindow("1m")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), got)

	got, err = ParseWindow("4h")
	require.NoError(t, err)
	assert.Equal(t, uint64(14400), got)

	for _, bad := range []string{"", "abc", "500ms", "1.5s", "-1m"} {
		_, err := ParseWindow(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), got)

	got, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), got)

	got, err = ParseTimestamp(" ")
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}
