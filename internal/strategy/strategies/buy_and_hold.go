package strategies

import (
	"context"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// BuyAndHoldConfig holds configuration for the buy-and-hold benchmark.
type BuyAndHoldConfig struct {
	Name     string
	Symbols  []string
	Strength float64  // Used when Quantity is nil, 1 by default
	Quantity *float64 // Optional fixed quantity per symbol
}

// BuyAndHold enters a long position in every traded symbol and keeps it.
// The entry is retried each bar until it fills; once held, the position is
// never re-entered, even after a protective stop closed it.
type BuyAndHold struct {
	*BaseStrategy
	config BuyAndHoldConfig
	held   map[string]bool
}

// NewBuyAndHold creates a new buy-and-hold strategy instance.
func NewBuyAndHold(config BuyAndHoldConfig, logger ports.Logger) (*BuyAndHold, error) {
	if config.Strength == 0 {
		config.Strength = 1
	}
	if config.Name == "" {
		config.Name = "buy_and_hold"
	}
	base, err := NewBaseStrategy(config.Name, config.Symbols, 1, logger)
	if err != nil {
		return nil, err
	}
	return &BuyAndHold{BaseStrategy: base, config: config, held: make(map[string]bool)}, nil
}

// Reset clears the held set along with the base state.
func (b *BuyAndHold) Reset() {
	b.BaseStrategy.Reset()
	b.held = make(map[string]bool)
}

// SignalsFor implements ports.SignalProvider.
func (b *BuyAndHold) SignalsFor(ctx context.Context, bar domain.Bar, snapshot domain.PortfolioSnapshot) []domain.Intent {
	if !b.Trades(bar.Symbol) || b.held[bar.Symbol] {
		return nil
	}
	if !snapshot.Position(bar.Symbol).IsFlat() {
		b.held[bar.Symbol] = true
		return nil
	}
	return []domain.Intent{{
		Symbol:        bar.Symbol,
		Direction:     domain.DirectionLong,
		Strength:      b.config.Strength,
		RequestedSize: b.config.Quantity,
		Source:        domain.SourceStrategy,
	}}
}
