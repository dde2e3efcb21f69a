package indicators

import (
	"quantSim/internal/domain"
)

// Indicator represents a technical indicator computed from a bar history.
type Indicator interface {
	// Calculate computes the indicator value for the most recent bar in bars.
	Calculate(bars []domain.Bar) (float64, error)

	// RequiredDataPoints returns the minimum number of bars needed for calculation.
	RequiredDataPoints() int

	// Name returns the name of the indicator.
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of bars needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

// History keeps the most recent bars of one symbol, oldest first.
// Strategies feed it one bar at a time, so it never holds future data.
type History struct {
	capacity int
	bars     []domain.Bar
}

// NewHistory creates a history holding at most capacity bars.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity, bars: make([]domain.Bar, 0, capacity)}
}

// Push appends bar, evicting the oldest one when full.
func (h *History) Push(bar domain.Bar) {
	if len(h.bars) == h.capacity {
		copy(h.bars, h.bars[1:])
		h.bars = h.bars[:len(h.bars)-1]
	}
	h.bars = append(h.bars, bar)
}

// Bars returns the stored bars. The slice must not be retained across Push calls.
func (h *History) Bars() []domain.Bar {
	return h.bars
}

// Len returns the number of stored bars.
func (h *History) Len() int {
	return len(h.bars)
}

// Reset drops all stored bars.
func (h *History) Reset() {
	h.bars = h.bars[:0]
}
