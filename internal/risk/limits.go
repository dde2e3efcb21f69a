package risk

import (
	"fmt"
	"math"
	"strings"

	"quantSim/internal/ports"
)

// VarMethod selects how value-at-risk is estimated from recent equity returns.
type VarMethod string

const (
	VarHistorical VarMethod = "historical" // empirical quantile of returns
	VarParametric VarMethod = "parametric" // normal approximation from mean and stddev
)

// ParseVarMethod converts a string to a VarMethod. Empty means historical.
func ParseVarMethod(s string) (VarMethod, error) {
	switch m := VarMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return VarHistorical, nil
	case VarHistorical, VarParametric:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown VaR method %q", ports.ErrInvalidRiskLimits, s)
	}
}

// Limits holds the immutable risk parameters of a run.
// Zero values disable the optional limits.
type Limits struct {
	MaxPositionPct      float64            // Max |position value| / equity per symbol, required
	MaxGrossExposurePct float64            // Max sum of |position values| / equity, 0 disables
	SymbolMaxPct        map[string]float64 // Per-symbol overrides tightening MaxPositionPct
	MaxDrawdown         float64            // Halt when drawdown exceeds this fraction, 0 disables
	VarLimit            float64            // Halt when VaR exceeds this fraction of equity, 0 disables
	VarConfidence       float64            // e.g. 0.95
	VarWindow           int                // Number of most recent bar returns VaR is estimated from
	VarMethod           VarMethod          // Defaults to historical
	StopLossPct         float64            // Close when unrealized loss reaches this fraction, 0 disables
	TakeProfitPct       float64            // Close when unrealized gain reaches this fraction, 0 disables
	AllowShort          bool               // Whether short targets are permitted
	LotSize             float64            // Order quantities are rounded toward zero to this step, 0 allows fractions
}

// DefaultLimits returns a conservative long-only limit set.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionPct: 0.95,
		MaxDrawdown:    0.5,
		VarConfidence:  0.95,
		VarWindow:      20,
		VarMethod:      VarHistorical,
	}
}

// Validate checks the limits for out-of-range values.
func (l Limits) Validate() error {
	var errs []string
	nonNeg := func(name string, v float64) {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("%s must be a non-negative number", name))
		}
	}

	if l.MaxPositionPct <= 0 || math.IsNaN(l.MaxPositionPct) || math.IsInf(l.MaxPositionPct, 0) {
		errs = append(errs, "max position pct must be positive")
	}
	nonNeg("max gross exposure pct", l.MaxGrossExposurePct)
	nonNeg("max drawdown", l.MaxDrawdown)
	nonNeg("VaR limit", l.VarLimit)
	nonNeg("stop loss pct", l.StopLossPct)
	nonNeg("take profit pct", l.TakeProfitPct)
	nonNeg("lot size", l.LotSize)
	if l.MaxDrawdown >= 1 {
		errs = append(errs, "max drawdown must be below 1")
	}
	for sym, pct := range l.SymbolMaxPct {
		if pct <= 0 || math.IsNaN(pct) {
			errs = append(errs, fmt.Sprintf("symbol max pct for %s must be positive", sym))
		}
	}
	if l.VarLimit > 0 {
		if l.VarConfidence <= 0 || l.VarConfidence >= 1 {
			errs = append(errs, "VaR confidence must be between 0 and 1 (exclusive)")
		}
		if l.VarWindow < 2 {
			errs = append(errs, "VaR window must be at least 2")
		}
	}
	if _, err := ParseVarMethod(string(l.VarMethod)); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrInvalidRiskLimits, strings.Join(errs, "; "))
	}
	return nil
}

// positionCap returns the effective max position fraction for symbol.
func (l Limits) positionCap(symbol string) (float64, bool) {
	if pct, ok := l.SymbolMaxPct[symbol]; ok && pct < l.MaxPositionPct {
		return pct, true
	}
	return l.MaxPositionPct, false
}
