package marketdata

import (
	"fmt"
	"math"
	"time"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// Validator checks bars as they arrive: OHLC consistency, positive prices,
// non-negative volume and non-decreasing timestamps per symbol.
type Validator struct {
	last map[string]time.Time
}

// NewValidator creates a validator with no history.
func NewValidator() *Validator {
	return &Validator{last: make(map[string]time.Time)}
}

// Check validates b and records its timestamp.
func (v *Validator) Check(b domain.Bar) error {
	if err := ValidateBar(b); err != nil {
		return err
	}
	if prev, ok := v.last[b.Symbol]; ok && b.Timestamp.Before(prev) {
		return fmt.Errorf("%w: %s at %s after %s", ports.ErrNonMonotonicTimestamp,
			b.Symbol, b.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339))
	}
	v.last[b.Symbol] = b.Timestamp
	return nil
}

// Reset forgets all recorded timestamps.
func (v *Validator) Reset() {
	v.last = make(map[string]time.Time)
}

// ValidateBar checks a single bar in isolation.
func ValidateBar(b domain.Bar) error {
	malformed := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s at %s: %s", ports.ErrMalformedBar, b.Symbol,
			b.Timestamp.Format(time.RFC3339), fmt.Sprintf(format, args...))
	}
	if b.Symbol == "" {
		return malformed("missing symbol")
	}
	if b.Timestamp.IsZero() {
		return malformed("missing timestamp")
	}
	for _, p := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return malformed("non-finite value")
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return malformed("prices must be positive")
	}
	if b.Volume < 0 {
		return malformed("volume %g is negative", b.Volume)
	}
	if b.High < math.Max(b.Open, b.Close) || b.Low > math.Min(b.Open, b.Close) || b.Low > b.High {
		return malformed("OHLC out of order (o=%g h=%g l=%g c=%g)", b.Open, b.High, b.Low, b.Close)
	}
	return nil
}
