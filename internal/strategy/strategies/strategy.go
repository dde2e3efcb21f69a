package strategies

import (
	"context"
	"errors"
	"sort"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
	"quantSim/internal/strategy/indicators"
)

// BaseStrategy provides the per-symbol bookkeeping shared by all providers:
// a symbol filter, a rolling bar history and the last direction signalled.
// Providers only ever see bars up to the current one, so no indicator can look ahead.
type BaseStrategy struct {
	name     string
	logger   ports.Logger
	symbols  map[string]struct{}
	capacity int

	histories map[string]*indicators.History
	last      map[string]domain.Direction
}

// NewBaseStrategy creates a new base strategy instance. An empty symbols list
// means the strategy trades every symbol in the stream.
func NewBaseStrategy(name string, symbols []string, capacity int, logger ports.Logger) (*BaseStrategy, error) {
	if logger == nil {
		return nil, errors.New("logger is required for strategy")
	}
	if name == "" {
		return nil, errors.New("strategy name is required")
	}
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return &BaseStrategy{
		name:      name,
		logger:    logger,
		symbols:   set,
		capacity:  capacity,
		histories: make(map[string]*indicators.History),
		last:      make(map[string]domain.Direction),
	}, nil
}

// Name returns the name of the strategy
func (b *BaseStrategy) Name() string {
	return b.name
}

// Symbols returns the configured symbol filter, sorted.
func (b *BaseStrategy) Symbols() []string {
	out := make([]string, 0, len(b.symbols))
	for s := range b.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Reset drops all per-symbol state so the strategy can be replayed.
func (b *BaseStrategy) Reset() {
	b.histories = make(map[string]*indicators.History)
	b.last = make(map[string]domain.Direction)
}

// Trades reports whether the strategy trades symbol.
func (b *BaseStrategy) Trades(symbol string) bool {
	if len(b.symbols) == 0 {
		return true
	}
	_, ok := b.symbols[symbol]
	return ok
}

// observe appends bar to its symbol's history and returns the bars seen so far.
func (b *BaseStrategy) observe(bar domain.Bar) []domain.Bar {
	h, ok := b.histories[bar.Symbol]
	if !ok {
		h = indicators.NewHistory(b.capacity)
		b.histories[bar.Symbol] = h
	}
	h.Push(bar)
	return h.Bars()
}

// signal returns an intent when dir differs from the last direction signalled for
// symbol, and nil otherwise. Repeating an unchanged view would only resize the
// position every bar. A view the gate rejected is cleared by IntentRejected.
func (b *BaseStrategy) signal(ctx context.Context, symbol string, dir domain.Direction, strength float64) []domain.Intent {
	if prev, ok := b.last[symbol]; ok && prev == dir {
		return nil
	}
	if _, ok := b.last[symbol]; !ok && dir == domain.DirectionFlat {
		b.last[symbol] = dir
		return nil
	}
	b.last[symbol] = dir
	b.logger.Debug(ctx, "Strategy signal", map[string]interface{}{
		"strategy":  b.name,
		"symbol":    symbol,
		"direction": dir,
		"strength":  strength,
	})
	return []domain.Intent{{
		Symbol:    symbol,
		Direction: dir,
		Strength:  strength,
		Source:    domain.SourceStrategy,
	}}
}

// IntentRejected implements ports.RejectionObserver. The rejected view is
// forgotten so the next bar signals it again, whatever the view is by then.
func (b *BaseStrategy) IntentRejected(intent domain.Intent, reason error) {
	if intent.Source != domain.SourceStrategy {
		return
	}
	if prev, ok := b.last[intent.Symbol]; ok && prev == intent.Direction {
		b.last[intent.Symbol] = ""
	}
}

// exitDirection is the direction used when a strategy turns bearish.
func exitDirection(allowShort bool) domain.Direction {
	if allowShort {
		return domain.DirectionShort
	}
	return domain.DirectionFlat
}

func clampStrength(s float64) float64 {
	return min(max(s, -1), 1)
}
