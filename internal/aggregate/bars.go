package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"tradeTape/internal/model"
)

// ParseWindow converts a duration such as "1m" or "1h" into whole seconds.
func ParseWindow(input string) (uint64, error) {
	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("parse window: %w", err)
	}
	if d < time.Second || d%time.Second != 0 {
		return 0, fmt.Errorf("window must be a positive whole number of seconds: %s", input)
	}
	return uint64(d / time.Second), nil
}

// BuildBars groups trades into per-outcome windows of windowSec seconds.
// Bars are ordered by window start, YES before NO within a window.
func BuildBars(trades []model.Trade, windowSec uint64) ([]model.Bar, error) {
	if windowSec == 0 {
		return nil, fmt.Errorf("window must be greater than zero")
	}

	ordered := make([]model.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Timestamp != ordered[j].Timestamp {
			return ordered[i].Timestamp < ordered[j].Timestamp
		}
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	open := make(map[model.Outcome]*Accumulator)
	bars := make([]model.Bar, 0)
	for _, trade := range ordered {
		start := windowStart(trade.Timestamp, windowSec)
		acc, ok := open[trade.Outcome]
		if ok && acc.WindowStart != start {
			bars = append(bars, acc.Bar())
			ok = false
		}
		if !ok {
			acc = NewAccumulator(trade, start, start+windowSec)
			open[trade.Outcome] = acc
		}
		acc.AddTrade(trade)
	}
	for _, acc := range open {
		bars = append(bars, acc.Bar())
	}

	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].WindowStart != bars[j].WindowStart {
			return bars[i].WindowStart < bars[j].WindowStart
		}
		return bars[i].Outcome == model.OutcomeYes && bars[j].Outcome != model.OutcomeYes
	})
	return bars, nil
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
