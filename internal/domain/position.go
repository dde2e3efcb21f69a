package domain

import (
	"sort"
	"time"
)

// Position is a read-only view of the ledger's holding in one symbol.
type Position struct {
	Symbol      string
	Quantity    float64 // Positive for long, negative for short
	AverageCost float64 // Weighted average entry cost per unit, 0 when flat
	RealizedPnL float64 // Cumulative realized P&L for the symbol
	MarkPrice   float64 // Last close the position was marked at
}

// IsFlat reports whether the position holds no quantity.
func (p Position) IsFlat() bool {
	return p.Quantity == 0
}

// MarketValue returns Quantity * MarkPrice.
func (p Position) MarketValue() float64 {
	return p.Quantity * p.MarkPrice
}

// UnrealizedPnL returns the mark-to-market P&L of the open quantity.
func (p Position) UnrealizedPnL() float64 {
	return p.Quantity * (p.MarkPrice - p.AverageCost)
}

// UnrealizedPct returns the unrealized P&L as a fraction of the entry cost.
func (p Position) UnrealizedPct(price float64) float64 {
	if p.Quantity == 0 || p.AverageCost <= 0 {
		return 0
	}
	if p.Quantity > 0 {
		return (price - p.AverageCost) / p.AverageCost
	}
	return (p.AverageCost - price) / p.AverageCost
}

// PortfolioSnapshot is an immutable copy of the ledger state handed to strategies and the risk gate.
type PortfolioSnapshot struct {
	Timestamp  time.Time
	Cash       float64
	Equity     float64
	PeakEquity float64
	Drawdown   float64
	Positions  map[string]Position
}

// Position returns the holding for symbol, or a flat position if none exists.
func (s PortfolioSnapshot) Position(symbol string) Position {
	if p, ok := s.Positions[symbol]; ok {
		return p
	}
	return Position{Symbol: symbol}
}

// GrossExposure returns the sum of absolute market values across positions.
// Positions are summed in symbol order so the result is reproducible.
func (s PortfolioSnapshot) GrossExposure() float64 {
	var total float64
	for _, sym := range s.Symbols() {
		v := s.Positions[sym].MarketValue()
		if v < 0 {
			v = -v
		}
		total += v
	}
	return total
}

// Symbols returns the symbols with open positions in sorted order.
func (s PortfolioSnapshot) Symbols() []string {
	symbols := make([]string, 0, len(s.Positions))
	for sym, p := range s.Positions {
		if !p.IsFlat() {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols
}
