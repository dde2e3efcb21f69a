package domain

import "time"

// Bar represents a single OHLCV candlestick for one symbol.
type Bar struct {
	Symbol    string    // Trading symbol (e.g., "ETHUSDT")
	Interval  string    // Bar interval label from the feed (e.g., "1h"), informational only
	Timestamp time.Time // Bar time, non-decreasing per symbol
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Traded volume
}

// TypicalPrice returns (High + Low + Close) / 3, used as an intrabar VWAP approximation.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Range returns High - Low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}
