package execution

import (
	"fmt"
	"math"
	"strings"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// SlippageModel selects how slippage scales with order participation.
type SlippageModel string

const (
	SlippageLinear SlippageModel = "linear" // rate * participation
	SlippageSqrt   SlippageModel = "sqrt"   // rate * sqrt(participation)
	SlippageFixed  SlippageModel = "fixed"  // rate
)

// PriceReference selects which bar price fills are derived from.
type PriceReference string

const (
	PriceClose   PriceReference = "close"
	PriceOpen    PriceReference = "open"
	PriceTypical PriceReference = "typical" // (H+L+C)/3
)

// ParseSlippageModel converts a string to a SlippageModel. Empty means linear.
func ParseSlippageModel(s string) (SlippageModel, error) {
	switch m := SlippageModel(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SlippageLinear, nil
	case SlippageLinear, SlippageSqrt, SlippageFixed:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ports.ErrUnknownSlippageModel, s)
	}
}

// ParsePriceReference converts a string to a PriceReference. Empty means close.
func ParsePriceReference(s string) (PriceReference, error) {
	switch r := PriceReference(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return PriceClose, nil
	case PriceClose, PriceOpen, PriceTypical:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ports.ErrUnknownPriceReference, s)
	}
}

// CostModel holds the immutable execution cost parameters of a run.
type CostModel struct {
	CommissionRate       float64        // Fraction of notional, e.g. 0.001 for 10bps
	MinCommission        float64        // Floor applied to every fill
	TaxRate              float64        // Fraction of notional charged on sells
	TaxOnBuy             bool           // Also charge tax on buys
	SlippageRate         float64        // Base slippage fraction, interpreted by SlippageModel
	SlippageModel        SlippageModel  // Defaults to linear
	MaxParticipationRate float64        // Max fraction of bar volume one order may take, <= 0 disables the cap
	PriceReference       PriceReference // Defaults to close
}

// Validate checks the cost model for out-of-range values.
func (m CostModel) Validate() error {
	var errs []string
	check := func(name string, v float64) {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("%s must be a non-negative number", name))
		}
	}
	check("commission rate", m.CommissionRate)
	check("min commission", m.MinCommission)
	check("tax rate", m.TaxRate)
	check("slippage rate", m.SlippageRate)
	if math.IsNaN(m.MaxParticipationRate) {
		errs = append(errs, "max participation rate must be a number")
	}
	if _, err := ParseSlippageModel(string(m.SlippageModel)); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := ParsePriceReference(string(m.PriceReference)); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrInvalidCostModel, strings.Join(errs, "; "))
	}
	return nil
}

// ReferencePrice returns the bar price fills are based on.
func (m CostModel) ReferencePrice(bar domain.Bar) (float64, error) {
	if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
		return 0, &Error{Kind: ports.ErrInvalidPrice, Symbol: bar.Symbol, Detail: "bar has non-positive prices"}
	}
	switch m.PriceReference {
	case PriceOpen:
		return bar.Open, nil
	case PriceTypical:
		return bar.TypicalPrice(), nil
	default:
		return bar.Close, nil
	}
}

// slippageFraction returns the adverse price move for the given participation.
func (m CostModel) slippageFraction(participation float64) float64 {
	switch m.SlippageModel {
	case SlippageFixed:
		return m.SlippageRate
	case SlippageSqrt:
		return m.SlippageRate * math.Sqrt(participation)
	default:
		return m.SlippageRate * participation
	}
}

// commission returns max(MinCommission, notional * CommissionRate).
func (m CostModel) commission(notional float64) float64 {
	return math.Max(m.MinCommission, notional*m.CommissionRate)
}

func (m CostModel) tax(side domain.OrderSide, notional float64) float64 {
	if side == domain.Sell || m.TaxOnBuy {
		return notional * m.TaxRate
	}
	return 0
}
