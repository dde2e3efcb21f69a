package strategies

import (
	"context"
	"fmt"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
	"quantSim/internal/strategy/indicators"
)

// RSIReversionConfig holds configuration for the RSI mean-reversion strategy.
type RSIReversionConfig struct {
	Name       string
	Symbols    []string
	Period     int     // e.g., 14
	Oversold   float64 // Enter long at or below, e.g., 30
	Overbought float64 // Exit at or above, e.g., 70
	Strength   float64
	AllowShort bool
}

// RSIReversion buys oversold markets and exits when they become overbought.
type RSIReversion struct {
	*BaseStrategy
	config RSIReversionConfig
	rsi    *indicators.RSI
}

// NewRSIReversion creates a new RSI reversion strategy instance.
func NewRSIReversion(config RSIReversionConfig, logger ports.Logger) (*RSIReversion, error) {
	if config.Period <= 0 {
		config.Period = 14
	}
	if config.Oversold == 0 && config.Overbought == 0 {
		config.Oversold, config.Overbought = 30, 70
	}
	if config.Oversold < 0 || config.Overbought > 100 || config.Oversold >= config.Overbought {
		return nil, fmt.Errorf("%w: RSI thresholds must satisfy 0 <= oversold < overbought <= 100", ports.ErrStrategyConfigMismatch)
	}
	if config.Strength == 0 {
		config.Strength = 1
	}
	if config.Name == "" {
		config.Name = fmt.Sprintf("rsi_reversion_%d", config.Period)
	}

	base, err := NewBaseStrategy(config.Name, config.Symbols, config.Period+1, logger)
	if err != nil {
		return nil, err
	}
	return &RSIReversion{
		BaseStrategy: base,
		config:       config,
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.Period},
			Overbought:      config.Overbought,
			Oversold:        config.Oversold,
		}),
	}, nil
}

// SignalsFor implements ports.SignalProvider.
func (r *RSIReversion) SignalsFor(ctx context.Context, bar domain.Bar, snapshot domain.PortfolioSnapshot) []domain.Intent {
	if !r.Trades(bar.Symbol) {
		return nil
	}
	bars := r.observe(bar)
	if len(bars) < r.rsi.RequiredDataPoints() {
		return nil
	}
	value, err := r.rsi.Calculate(bars)
	if err != nil {
		r.logger.Error(ctx, err, "Failed to calculate RSI")
		return nil
	}

	switch {
	case r.rsi.IsOversold(value):
		return r.signal(ctx, bar.Symbol, domain.DirectionLong, r.config.Strength)
	case r.rsi.IsOverbought(value):
		dir := exitDirection(r.config.AllowShort)
		strength := 0.0
		if dir == domain.DirectionShort {
			strength = -r.config.Strength
		}
		return r.signal(ctx, bar.Symbol, dir, strength)
	}
	return nil
}
