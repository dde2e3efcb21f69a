package strategies

import (
	"context"
	"errors"
	"fmt"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// EnsembleConfig holds configuration for a weighted vote over member strategies.
type EnsembleConfig struct {
	Name       string
	Symbols    []string
	Members    []ports.SignalProvider
	Weights    []float64 // One per member; equal weights when empty
	Threshold  float64   // |weighted vote| needed to take a view, 0.5 by default
	AllowShort bool
}

// Ensemble combines member views into one intent per symbol. Each member's
// latest signed strength per symbol counts as its vote until it signals again.
type Ensemble struct {
	*BaseStrategy
	config  EnsembleConfig
	total   float64
	weights []float64
	views   []map[string]float64
}

// NewEnsemble creates a new ensemble strategy instance.
func NewEnsemble(config EnsembleConfig, logger ports.Logger) (*Ensemble, error) {
	if len(config.Members) == 0 {
		return nil, fmt.Errorf("%w: ensemble needs at least one member", ports.ErrStrategyConfigMismatch)
	}
	weights := config.Weights
	if len(weights) == 0 {
		weights = make([]float64, len(config.Members))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(config.Members) {
		return nil, fmt.Errorf("%w: %d weights for %d members", ports.ErrStrategyConfigMismatch, len(weights), len(config.Members))
	}
	var total float64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: ensemble weights must not be negative", ports.ErrStrategyConfigMismatch)
		}
		total += w
	}
	if total == 0 {
		return nil, errors.New("ensemble weights sum to zero")
	}
	if config.Threshold == 0 {
		config.Threshold = 0.5
	}
	if config.Name == "" {
		config.Name = "ensemble"
	}

	base, err := NewBaseStrategy(config.Name, config.Symbols, 1, logger)
	if err != nil {
		return nil, err
	}
	e := &Ensemble{BaseStrategy: base, config: config, total: total, weights: weights}
	e.resetViews()
	return e, nil
}

func (e *Ensemble) resetViews() {
	e.views = make([]map[string]float64, len(e.config.Members))
	for i := range e.views {
		e.views[i] = make(map[string]float64)
	}
}

// Reset rewinds the ensemble and every resettable member.
func (e *Ensemble) Reset() {
	e.BaseStrategy.Reset()
	e.resetViews()
	for _, m := range e.config.Members {
		if r, ok := m.(ports.Resettable); ok {
			r.Reset()
		}
	}
}

// SignalsFor implements ports.SignalProvider.
func (e *Ensemble) SignalsFor(ctx context.Context, bar domain.Bar, snapshot domain.PortfolioSnapshot) []domain.Intent {
	if !e.Trades(bar.Symbol) {
		return nil
	}

	var vote float64
	for i, member := range e.config.Members {
		for _, intent := range member.SignalsFor(ctx, bar, snapshot) {
			if intent.Symbol != bar.Symbol {
				continue
			}
			e.views[i][bar.Symbol] = signedView(intent)
		}
		vote += e.weights[i] * e.views[i][bar.Symbol]
	}
	vote /= e.total

	switch {
	case vote >= e.config.Threshold:
		return e.signal(ctx, bar.Symbol, domain.DirectionLong, clampStrength(vote))
	case vote <= -e.config.Threshold:
		dir := exitDirection(e.config.AllowShort)
		strength := 0.0
		if dir == domain.DirectionShort {
			strength = clampStrength(vote)
		}
		return e.signal(ctx, bar.Symbol, dir, strength)
	}
	return nil
}

// signedView maps an intent to a vote in [-1, 1]. A flat member votes bearish.
func signedView(intent domain.Intent) float64 {
	s := intent.Strength
	if s < 0 {
		s = -s
	}
	switch intent.Direction {
	case domain.DirectionLong:
		return clampStrength(s)
	case domain.DirectionShort:
		return -clampStrength(s)
	default:
		return -1
	}
}
