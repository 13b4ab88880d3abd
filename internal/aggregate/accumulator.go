package aggregate

import "tradeTape/internal/model"

// Accumulator holds running OHLCV values for one outcome window.
type Accumulator struct {
	Outcome     model.Outcome
	WindowStart uint64
	WindowEnd   uint64
	bar         model.Bar
}

func NewAccumulator(trade model.Trade, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Outcome:     trade.Outcome,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		bar: model.Bar{
			Outcome:     trade.Outcome,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			Open:        trade.Price,
			High:        trade.Price,
			Low:         trade.Price,
		},
	}
}

// AddTrade folds trade into the window; trades must arrive in tape order.
func (a *Accumulator) AddTrade(trade model.Trade) {
	b := &a.bar
	if trade.Price > b.High {
		b.High = trade.Price
	}
	if trade.Price < b.Low {
		b.Low = trade.Price
	}
	b.Close = trade.Price
	b.Volume += trade.Size
	b.Notional += trade.Size * trade.Price
	b.Count++
	switch trade.Side {
	case model.SideBuy:
		b.BuyCount++
	case model.SideSell:
		b.SellCount++
	}
}

// Bar returns the finished bar.
func (a *Accumulator) Bar() model.Bar {
	return a.bar
}
