package ports

import "quantSim/internal/domain"

// BarSource is a replayable, time-ordered stream of bars.
type BarSource interface {
	// Next returns the next bar, or false when the stream is exhausted.
	Next() (domain.Bar, bool)
	// Reset rewinds the stream to its first bar.
	Reset()
}

// SlippageScaler is implemented by sources that perturb liquidity; the returned
// multiplier scales the slippage applied to fills on the bar.
type SlippageScaler interface {
	SlippageMultiplier(bar domain.Bar) float64
}
