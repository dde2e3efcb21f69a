package strategies

import (
	"context"
	"fmt"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
	"quantSim/internal/strategy/indicators"
)

// MACrossoverConfig holds configuration for the MA Crossover strategy
type MACrossoverConfig struct {
	Name    string
	Symbols []string

	FastPeriod int                          // Fast MA period (e.g., 10)
	SlowPeriod int                          // Slow MA period (e.g., 30)
	Type       indicators.MovingAverageType // SMA or EMA, EMA by default
	Strength   float64                      // Strength of emitted intents, 1 by default

	// Volatility filter: no new long entries while ATR/close exceeds MaxVolatilityPct.
	ATRPeriod        int
	MaxVolatilityPct float64

	AllowShort bool // Go short on a bearish cross instead of going flat
}

// MACrossover goes long when the fast moving average is above the slow one and
// exits (or reverses) when it falls below.
type MACrossover struct {
	*BaseStrategy
	config MACrossoverConfig
	fastMA *indicators.MovingAverage
	slowMA *indicators.MovingAverage
	atr    *indicators.ATR
}

// NewMACrossover creates a new MA Crossover strategy instance
func NewMACrossover(config MACrossoverConfig, logger ports.Logger) (*MACrossover, error) {
	if config.FastPeriod <= 0 || config.SlowPeriod <= 0 {
		return nil, fmt.Errorf("%w: strategy periods must be positive", ports.ErrStrategyConfigMismatch)
	}
	if config.FastPeriod >= config.SlowPeriod {
		return nil, fmt.Errorf("%w: fast MA period must be less than slow MA period", ports.ErrStrategyConfigMismatch)
	}
	if config.Type == "" {
		config.Type = indicators.ExponentialMovingAverage
	}
	if config.Type != indicators.SimpleMovingAverage && config.Type != indicators.ExponentialMovingAverage {
		return nil, fmt.Errorf("%w: unsupported moving average type %q", ports.ErrStrategyConfigMismatch, config.Type)
	}
	if config.Strength == 0 {
		config.Strength = 1
	}
	if config.MaxVolatilityPct > 0 && config.ATRPeriod == 0 {
		config.ATRPeriod = 14
	}
	if config.Name == "" {
		config.Name = fmt.Sprintf("ma_crossover_%d_%d", config.FastPeriod, config.SlowPeriod)
	}

	capacity := max(config.SlowPeriod, config.ATRPeriod+1)
	base, err := NewBaseStrategy(config.Name, config.Symbols, capacity, logger)
	if err != nil {
		return nil, err
	}

	m := &MACrossover{
		BaseStrategy: base,
		config:       config,
		fastMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.FastPeriod},
			Type:            config.Type,
		}),
		slowMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.SlowPeriod},
			Type:            config.Type,
		}),
	}
	if config.MaxVolatilityPct > 0 {
		m.atr = indicators.NewATR(indicators.IndicatorConfig{Period: config.ATRPeriod})
	}
	return m, nil
}

// RequiredDataPoints returns the minimum number of bars needed before the strategy signals.
func (m *MACrossover) RequiredDataPoints() int {
	return m.capacity
}

// SignalsFor implements ports.SignalProvider.
func (m *MACrossover) SignalsFor(ctx context.Context, bar domain.Bar, snapshot domain.PortfolioSnapshot) []domain.Intent {
	if !m.Trades(bar.Symbol) {
		return nil
	}
	bars := m.observe(bar)
	if len(bars) < m.RequiredDataPoints() {
		return nil
	}

	fast, err := m.fastMA.Calculate(bars)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate fast MA")
		return nil
	}
	slow, err := m.slowMA.Calculate(bars)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate slow MA")
		return nil
	}

	switch {
	case fast > slow:
		if m.tooVolatile(ctx, bars) {
			return nil
		}
		return m.signal(ctx, bar.Symbol, domain.DirectionLong, m.config.Strength)
	case fast < slow:
		dir := exitDirection(m.config.AllowShort)
		strength := 0.0
		if dir == domain.DirectionShort {
			strength = -m.config.Strength
		}
		return m.signal(ctx, bar.Symbol, dir, strength)
	}
	return nil
}

func (m *MACrossover) tooVolatile(ctx context.Context, bars []domain.Bar) bool {
	if m.atr == nil {
		return false
	}
	atr, err := m.atr.Calculate(bars)
	if err != nil {
		return false
	}
	vol := atr / bars[len(bars)-1].Close
	if vol > m.config.MaxVolatilityPct {
		m.logger.Debug(ctx, "Entry skipped on volatility filter", map[string]interface{}{
			"strategy":      m.name,
			"volatilityPct": vol,
			"limit":         m.config.MaxVolatilityPct,
		})
		return true
	}
	return false
}
