package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// Holding is the ledger's exact record of a position.
type Holding struct {
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
	RealizedPnL decimal.Decimal
	MarkPrice   decimal.Decimal
}

// State is the full portfolio state. Values are exact decimals; use Snapshot
// for the float view handed to strategies and the risk gate.
type State struct {
	Timestamp  time.Time
	Cash       decimal.Decimal
	Positions  map[string]Holding
	Equity     decimal.Decimal
	PeakEquity decimal.Decimal
	Drawdown   decimal.Decimal
}

// NewState creates the opening state of a run.
func NewState(initialCapital float64) (State, error) {
	if initialCapital <= 0 || math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) {
		return State{}, fmt.Errorf("%w: initial capital must be positive, got %v", ports.ErrInvalidRequest, initialCapital)
	}
	capital := decimal.NewFromFloat(initialCapital)
	return State{
		Cash:       capital,
		Positions:  map[string]Holding{},
		Equity:     capital,
		PeakEquity: capital,
		Drawdown:   decimal.Zero,
	}, nil
}

func (s State) clone() State {
	positions := make(map[string]Holding, len(s.Positions))
	for sym, h := range s.Positions {
		positions[sym] = h
	}
	s.Positions = positions
	return s
}

// Apply books trade against state and returns the new state together with the
// booked copy of the trade (RealizedPnL and Closing filled in).
//
// Increases use weighted-average cost with the trade's fees folded into the
// cost basis. Reductions realize P&L against the average cost net of the
// closing share of fees. A trade that crosses zero closes the old position
// in full and opens the remainder at the fill price.
//
// Apply never mutates its input; on error the returned state is the input.
func Apply(state State, trade domain.Trade) (State, domain.Trade, error) {
	if trade.Quantity <= 0 || trade.FillPrice <= 0 {
		return state, trade, fmt.Errorf("%w: trade needs positive quantity and price", ports.ErrInvalidRequest)
	}

	qty := decimal.NewFromFloat(trade.Quantity)
	price := decimal.NewFromFloat(trade.FillPrice)
	fees := decimal.NewFromFloat(trade.Commission).Add(decimal.NewFromFloat(trade.Tax))
	notional := qty.Mul(price)

	var cash decimal.Decimal
	signed := qty
	if trade.Side == domain.Buy {
		cash = state.Cash.Sub(notional).Sub(fees)
	} else {
		cash = state.Cash.Add(notional).Sub(fees)
		signed = qty.Neg()
	}
	if cash.IsNegative() {
		return state, trade, fmt.Errorf("%w: cash %s, trade needs %s", ports.ErrNegativeCash,
			state.Cash.StringFixed(2), state.Cash.Sub(cash).StringFixed(2))
	}

	next := state.clone()
	next.Cash = cash
	h := next.Positions[trade.Symbol]
	if h.MarkPrice.IsZero() {
		h.MarkPrice = price
	}

	booked := trade
	current := h.Quantity
	newQty := current.Add(signed)

	if current.IsZero() || current.Sign() == signed.Sign() {
		// Opening or adding: fees raise the long cost basis and lower the short entry.
		basis := current.Abs().Mul(h.AverageCost).Add(notional)
		basis = basis.Add(fees.Mul(decimal.NewFromInt(int64(newQty.Sign()))))
		h.AverageCost = basis.Div(newQty.Abs())
	} else {
		closeQty := decimal.Min(qty, current.Abs())
		openQty := qty.Sub(closeQty)
		closeFees := fees.Mul(closeQty).Div(qty)
		openFees := fees.Sub(closeFees)

		direction := decimal.NewFromInt(int64(current.Sign()))
		realized := price.Sub(h.AverageCost).Mul(closeQty).Mul(direction).Sub(closeFees)
		h.RealizedPnL = h.RealizedPnL.Add(realized)
		booked.RealizedPnL = realized.InexactFloat64()
		booked.Closing = true

		switch {
		case newQty.IsZero():
			h.AverageCost = decimal.Zero
		case openQty.IsPositive():
			h.AverageCost = openQty.Mul(price).Add(openFees.Mul(decimal.NewFromInt(int64(newQty.Sign())))).Div(openQty)
		}
	}
	h.Quantity = newQty
	next.Positions[trade.Symbol] = h

	return next, booked, nil
}

// MarkToMarket marks bar.Symbol at the bar close and refreshes equity, peak and drawdown.
func MarkToMarket(state State, bar domain.Bar) State {
	next := state.clone()
	next.Timestamp = bar.Timestamp
	if h, ok := next.Positions[bar.Symbol]; ok {
		h.MarkPrice = decimal.NewFromFloat(bar.Close)
		next.Positions[bar.Symbol] = h
	}
	next.Equity = next.Cash.Add(next.marketValue())
	if next.Equity.GreaterThan(next.PeakEquity) {
		next.PeakEquity = next.Equity
	}
	if next.PeakEquity.IsPositive() {
		next.Drawdown = decimal.NewFromInt(1).Sub(next.Equity.Div(next.PeakEquity))
	}
	return next
}

func (s State) marketValue() decimal.Decimal {
	total := decimal.Zero
	for _, sym := range s.symbols() {
		h := s.Positions[sym]
		total = total.Add(h.Quantity.Mul(h.MarkPrice))
	}
	return total
}

func (s State) symbols() []string {
	symbols := make([]string, 0, len(s.Positions))
	for sym := range s.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// GrossExposure returns the sum of absolute position values at their marks.
func (s State) GrossExposure() decimal.Decimal {
	total := decimal.Zero
	for _, sym := range s.symbols() {
		h := s.Positions[sym]
		total = total.Add(h.Quantity.Mul(h.MarkPrice).Abs())
	}
	return total
}

// Snapshot converts the state into the read-only float view.
func (s State) Snapshot() domain.PortfolioSnapshot {
	positions := make(map[string]domain.Position, len(s.Positions))
	for sym, h := range s.Positions {
		positions[sym] = domain.Position{
			Symbol:      sym,
			Quantity:    h.Quantity.InexactFloat64(),
			AverageCost: h.AverageCost.InexactFloat64(),
			RealizedPnL: h.RealizedPnL.InexactFloat64(),
			MarkPrice:   h.MarkPrice.InexactFloat64(),
		}
	}
	return domain.PortfolioSnapshot{
		Timestamp:  s.Timestamp,
		Cash:       s.Cash.InexactFloat64(),
		Equity:     s.Equity.InexactFloat64(),
		PeakEquity: s.PeakEquity.InexactFloat64(),
		Drawdown:   s.Drawdown.InexactFloat64(),
		Positions:  positions,
	}
}

// RealizedPnL returns the realized P&L summed over all symbols.
func (s State) RealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, sym := range s.symbols() {
		total = total.Add(s.Positions[sym].RealizedPnL)
	}
	return total
}

// UnrealizedPnL returns the mark-to-market P&L of all open positions.
func (s State) UnrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, sym := range s.symbols() {
		h := s.Positions[sym]
		total = total.Add(h.Quantity.Mul(h.MarkPrice.Sub(h.AverageCost)))
	}
	return total
}
