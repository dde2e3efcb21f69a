package portfolio

import (
	"quantSim/internal/domain"
)

// Ledger owns the portfolio state of one run and its append-only trade history.
// It is not safe for concurrent use; each run gets its own Ledger.
type Ledger struct {
	initial float64
	state   State
	trades  []domain.Trade
}

// NewLedger creates a ledger funded with initialCapital.
func NewLedger(initialCapital float64) (*Ledger, error) {
	state, err := NewState(initialCapital)
	if err != nil {
		return nil, err
	}
	return &Ledger{initial: initialCapital, state: state}, nil
}

// Apply books a trade. On error the ledger is left unchanged.
func (l *Ledger) Apply(trade domain.Trade) (domain.Trade, error) {
	next, booked, err := Apply(l.state, trade)
	if err != nil {
		return trade, err
	}
	l.state = next
	l.trades = append(l.trades, booked)
	return booked, nil
}

// MarkToMarket revalues the portfolio at the bar close and returns the resulting equity point.
func (l *Ledger) MarkToMarket(bar domain.Bar) domain.EquityPoint {
	l.state = MarkToMarket(l.state, bar)
	return domain.EquityPoint{
		Timestamp: l.state.Timestamp,
		Equity:    l.state.Equity.InexactFloat64(),
		Cash:      l.state.Cash.InexactFloat64(),
		Drawdown:  l.state.Drawdown.InexactFloat64(),
		Exposure:  l.state.GrossExposure().InexactFloat64(),
	}
}

// State returns the current exact state. The positions map is a copy.
func (l *Ledger) State() State {
	return l.state.clone()
}

// Snapshot returns a read-only copy of the current state.
func (l *Ledger) Snapshot() domain.PortfolioSnapshot {
	return l.state.Snapshot()
}

// Trades returns a copy of the booked trade history.
func (l *Ledger) Trades() []domain.Trade {
	out := make([]domain.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// InitialCapital returns the capital the ledger was funded with.
func (l *Ledger) InitialCapital() float64 {
	return l.initial
}
