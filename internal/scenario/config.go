package scenario

import (
	"fmt"
	"strings"
	"time"

	"quantSim/internal/ports"
)

// Kind identifies the perturbation a scenario applies.
type Kind string

const (
	KindCrash           Kind = "crash"
	KindLiquidityCrisis Kind = "liquidity_crisis"
	KindVolatilityShock Kind = "volatility_shock"
)

// Shape selects how a crash unfolds across its window.
type Shape string

const (
	ShapeLinear  Shape = "linear"
	ShapeStepped Shape = "stepped"
)

// Config describes one scenario. Start and End are inclusive bar timestamps.
type Config struct {
	Name    string
	Kind    Kind
	Start   time.Time
	End     time.Time
	Symbols []string // Empty applies to every symbol

	// Crash
	CrashPct    float64       // Total decline reached at End, e.g. 0.3
	Shape       Shape         // Defaults to linear
	Steps       int           // Number of equal steps for the stepped shape
	Recovery    time.Duration // Length of the recovery ramp after End, 0 for none
	RecoveryPct float64       // Fraction of the decline regained by the end of the ramp; the rest persists

	// Liquidity crisis
	VolumeReduction    float64 // Volume is multiplied by (1 - VolumeReduction)
	SlippageMultiplier float64 // Multiplies execution slippage for bars in the window

	// Volatility shock
	VolatilityFactor float64 // Multiplies High - Low around the bar body

	// Seeded noise added to the crash path
	Seed   int64
	Jitter float64 // Max absolute perturbation of the decline fraction
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCrash, KindLiquidityCrisis, KindVolatilityShock:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ports.ErrUnknownScenarioKind, s)
	}
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Start.IsZero() || c.End.IsZero() || c.End.Before(c.Start) {
		return fmt.Errorf("%w: start must be set and not after end", ports.ErrInvalidScenarioWindow)
	}
	var errs []string
	switch c.Kind {
	case KindCrash:
		if c.CrashPct <= 0 || c.CrashPct >= 1 {
			errs = append(errs, "crashPct must be between 0 and 1 (exclusive)")
		}
		switch c.Shape {
		case "", ShapeLinear:
		case ShapeStepped:
			if c.Steps <= 0 {
				errs = append(errs, "steps must be >= 1 for a stepped crash")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown crash shape %q", c.Shape))
		}
		if c.Recovery < 0 {
			errs = append(errs, "recovery must be >= 0")
		}
		if c.RecoveryPct < 0 || c.RecoveryPct > 1 {
			errs = append(errs, "recoveryPct must be between 0 and 1")
		}
		if c.Jitter < 0 || c.Jitter >= c.CrashPct {
			errs = append(errs, "jitter must be >= 0 and below crashPct")
		}
	case KindLiquidityCrisis:
		if c.VolumeReduction < 0 || c.VolumeReduction > 1 {
			errs = append(errs, "volumeReduction must be between 0 and 1")
		}
		if c.SlippageMultiplier < 0 {
			errs = append(errs, "slippageMultiplier must be >= 0")
		}
	case KindVolatilityShock:
		if c.VolatilityFactor <= 0 {
			errs = append(errs, "volatilityFactor must be positive")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("scenario %q: %s", c.Name, strings.Join(errs, "; "))
	}
	return nil
}
