package model

// Bar aggregates trades of one outcome over a time window.
type Bar struct {
	Outcome     Outcome `json:"outcome"`
	WindowStart uint64  `json:"window_start"`
	WindowEnd   uint64  `json:"window_end"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	Notional    float64 `json:"notional"`
	Count       uint64  `json:"count"`
	BuyCount    uint64  `json:"buy_count"`
	SellCount   uint64  `json:"sell_count"`
}
