package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

const epsilon = 1e-9

// Quoter prices a prospective order exactly as it would be executed.
type Quoter interface {
	ReferencePrice(bar domain.Bar) (float64, error)
	Quote(order domain.Order, bar domain.Bar) (domain.Trade, error)
}

// Rejection is the typed reason an intent was refused. Reason is one of the
// ports risk sentinels so callers can use errors.Is.
type Rejection struct {
	Reason error
	Symbol string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("%v: %s", r.Reason, r.Symbol)
	}
	return fmt.Sprintf("%v: %s: %s", r.Reason, r.Symbol, r.Detail)
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

// Decision is the outcome of a pre-trade check. An accepted decision with a
// nil Order means the portfolio is already at the intent's target.
type Decision struct {
	Intent    domain.Intent
	Status    domain.IntentStatus
	Order     *domain.Order
	Rejection *Rejection
}

// Action is the post-trade verdict for a bar.
type Action string

const (
	ActionContinue Action = "CONTINUE"
	ActionHalt     Action = "HALT"
)

// PostTradeDecision is the result of the post-trade circuit breaker check.
type PostTradeDecision struct {
	Action Action
	Breach *domain.BreachDetail
}

// Stats holds counters for one run.
type Stats struct {
	Evaluated   int
	Accepted    int
	Rejected    int
	StopLosses  int
	TakeProfits int
	Halted      bool
}

// Config holds the dependencies of a Gate.
type Config struct {
	Limits         Limits
	Quoter         Quoter
	InitialCapital float64
	Logger         ports.Logger
}

// Gate enforces pre-trade limits, protective stops and post-trade circuit breakers
// for one run. It is not safe for concurrent use.
type Gate struct {
	limits     Limits
	quoter     Quoter
	logger     ports.Logger
	prevEquity float64
	periodBase float64 // Equity at the close of the previous timestamp
	lastStamp  time.Time
	open       bool // returns ends with the still-open period of lastStamp
	returns    []float64
	stats      Stats
}

// NewGate creates a new risk gate.
func NewGate(cfg Config) (*Gate, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for risk gate")
	}
	if cfg.Quoter == nil {
		return nil, errors.New("quoter is required for risk gate")
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive", ports.ErrInvalidRiskLimits)
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	limits := cfg.Limits
	limits.VarMethod, _ = ParseVarMethod(string(limits.VarMethod))
	return &Gate{
		limits:     limits,
		quoter:     cfg.Quoter,
		logger:     cfg.Logger,
		prevEquity: cfg.InitialCapital,
	}, nil
}

// Limits returns the normalized limits the gate enforces.
func (g *Gate) Limits() Limits {
	return g.limits
}

// Stats returns the gate's counters.
func (g *Gate) Stats() Stats {
	return g.stats
}

// CheckStops evaluates the stop-loss and take-profit thresholds for the
// position in bar.Symbol and returns a synthetic flat intent when one triggers.
func (g *Gate) CheckStops(ctx context.Context, bar domain.Bar, snapshot domain.PortfolioSnapshot) []domain.Intent {
	if g.limits.StopLossPct <= 0 && g.limits.TakeProfitPct <= 0 {
		return nil
	}
	pos := snapshot.Position(bar.Symbol)
	if pos.IsFlat() {
		return nil
	}
	price, err := g.quoter.ReferencePrice(bar)
	if err != nil {
		return nil
	}

	pct := pos.UnrealizedPct(price)
	var source domain.IntentSource
	switch {
	case g.limits.StopLossPct > 0 && pct <= -g.limits.StopLossPct:
		source = domain.SourceStopLoss
		g.stats.StopLosses++
	case g.limits.TakeProfitPct > 0 && pct >= g.limits.TakeProfitPct:
		source = domain.SourceTakeProfit
		g.stats.TakeProfits++
	default:
		return nil
	}

	g.logger.Info(ctx, "Protective stop triggered", map[string]interface{}{
		"symbol":     bar.Symbol,
		"source":     source,
		"unrealized": pct,
		"price":      price,
		"avg_cost":   pos.AverageCost,
	})
	return []domain.Intent{domain.FlatIntent(bar.Symbol, source)}
}

// Evaluate runs the pre-trade checks for intent on bar and, if they pass,
// returns the order to execute.
func (g *Gate) Evaluate(ctx context.Context, intent domain.Intent, bar domain.Bar, snapshot domain.PortfolioSnapshot) Decision {
	g.stats.Evaluated++
	d := g.evaluate(intent, bar, snapshot)
	if d.Status == domain.StatusRejected {
		g.stats.Rejected++
		g.logger.Debug(ctx, "Intent rejected", map[string]interface{}{
			"symbol":    intent.Symbol,
			"direction": intent.Direction,
			"source":    intent.Source,
			"reason":    d.Rejection.Error(),
		})
		return d
	}
	g.stats.Accepted++
	return d
}

func (g *Gate) evaluate(intent domain.Intent, bar domain.Bar, snapshot domain.PortfolioSnapshot) Decision {
	d := Decision{Intent: intent, Status: domain.StatusReceived}
	reject := func(reason error, format string, args ...interface{}) Decision {
		d.Status = domain.StatusRejected
		d.Rejection = &Rejection{Reason: reason, Symbol: intent.Symbol, Detail: fmt.Sprintf(format, args...)}
		return d
	}

	d.Status = domain.StatusPreTradeCheck
	if err := validateIntent(intent); err != nil {
		return reject(ports.ErrInvalidIntent, "%v", err)
	}
	if intent.Symbol != bar.Symbol {
		return reject(ports.ErrStaleIntent, "current bar is %s", bar.Symbol)
	}

	price, err := g.quoter.ReferencePrice(bar)
	if err != nil {
		return reject(ports.ErrInvalidPrice, "%v", err)
	}

	pos := snapshot.Position(intent.Symbol)
	current := pos.Quantity
	// Revalue the held position at the current price so sizing sees this bar.
	equity := snapshot.Equity - pos.MarketValue() + current*price
	limit, overridden := g.limits.positionCap(intent.Symbol)

	explicit := intent.RequestedSize != nil
	var target float64
	switch intent.Direction {
	case domain.DirectionFlat:
		target = 0
	default:
		sign := 1.0
		if intent.Direction == domain.DirectionShort {
			sign = -1
		}
		if explicit {
			target = sign * *intent.RequestedSize
		} else {
			if equity <= 0 {
				return reject(ports.ErrInsufficientCash, "equity %.2f is not positive", equity)
			}
			target = sign * math.Abs(intent.Strength) * limit * equity / price
		}
		target = g.roundLot(target)
	}

	if target < 0 && !g.limits.AllowShort {
		return reject(ports.ErrShortNotAllowed, "target %g", target)
	}

	delta := target - current
	if math.Abs(delta) <= epsilon {
		d.Status = domain.StatusAccepted
		return d
	}

	increasing := math.Abs(target) > math.Abs(current)+epsilon || target*current < 0
	if increasing {
		if equity <= 0 {
			return reject(ports.ErrInsufficientCash, "equity %.2f is not positive", equity)
		}
		exposure := math.Abs(target) * price / equity
		if exposure > limit+epsilon {
			reason := ports.ErrPositionLimit
			if overridden {
				reason = ports.ErrConcentrationLimit
			}
			return reject(reason, "position would be %.4f of equity, limit %.4f", exposure, limit)
		}
		if g.limits.MaxGrossExposurePct > 0 {
			gross := snapshot.GrossExposure() - math.Abs(pos.MarketValue()) + math.Abs(target)*price
			if gross/equity > g.limits.MaxGrossExposurePct+epsilon {
				return reject(ports.ErrConcentrationLimit, "gross exposure would be %.4f of equity, limit %.4f",
					gross/equity, g.limits.MaxGrossExposurePct)
			}
		}
	}

	order := domain.Order{
		Symbol:         intent.Symbol,
		Side:           domain.Buy,
		Quantity:       math.Abs(delta),
		ReferencePrice: price,
		Type:           domain.OrderTypeMarket,
		Reason:         intent.Source,
	}
	if delta < 0 {
		order.Side = domain.Sell
	}

	order, ok, detail := g.fitCash(order, bar, snapshot.Cash, !explicit && intent.Direction != domain.DirectionFlat)
	if !ok {
		return reject(ports.ErrInsufficientCash, "%s", detail)
	}

	d.Status = domain.StatusAccepted
	d.Order = &order
	return d
}

// fitCash quotes the order and checks that cash stays non-negative after the
// fill. Scalable orders are shrunk until they fit.
func (g *Gate) fitCash(order domain.Order, bar domain.Bar, cash float64, scalable bool) (domain.Order, bool, string) {
	const maxIterations = 12
	for i := 0; i < maxIterations; i++ {
		trade, err := g.quoter.Quote(order, bar)
		if err != nil && !errors.Is(err, ports.ErrPartialFill) {
			// Execution errors are reported by the simulator.
			return order, true, ""
		}
		after := cashAfter(cash, trade)
		if after >= 0 {
			return order, true, ""
		}
		if !scalable || order.Side != domain.Buy {
			return order, false, fmt.Sprintf("cash %.2f, fill needs %.2f", cash, cash-after)
		}

		cost := trade.Notional() + trade.Fees()
		ratio := cash / cost * (1 - 1e-9)
		if i > 0 {
			ratio *= 0.999
		}
		qty := g.roundLot(order.Quantity * ratio)
		if qty <= epsilon || qty >= order.Quantity {
			return order, false, fmt.Sprintf("cash %.2f cannot cover minimum fill", cash)
		}
		order.Quantity = qty
	}
	return order, false, "could not size order within available cash"
}

func cashAfter(cash float64, trade domain.Trade) float64 {
	if trade.Side == domain.Buy {
		return cash - trade.Notional() - trade.Fees()
	}
	return cash + trade.Notional() - trade.Fees()
}

// roundLot rounds q toward zero to a multiple of the lot size.
func (g *Gate) roundLot(q float64) float64 {
	if g.limits.LotSize <= 0 {
		return q
	}
	lots := math.Trunc(q/g.limits.LotSize + math.Copysign(epsilon, q))
	return lots * g.limits.LotSize
}

func validateIntent(intent domain.Intent) error {
	if intent.Symbol == "" {
		return errors.New("symbol is required")
	}
	switch intent.Direction {
	case domain.DirectionLong, domain.DirectionShort, domain.DirectionFlat:
	default:
		return fmt.Errorf("unknown direction %q", intent.Direction)
	}
	if math.IsNaN(intent.Strength) || intent.Strength < -1 || intent.Strength > 1 {
		return fmt.Errorf("strength %v outside [-1, 1]", intent.Strength)
	}
	if intent.RequestedSize != nil {
		size := *intent.RequestedSize
		if size < 0 || math.IsNaN(size) || math.IsInf(size, 0) {
			return fmt.Errorf("requested size %v must be a non-negative number", size)
		}
	}
	return nil
}

// PostTrade records the bar's equity and evaluates the drawdown and VaR circuit breakers.
// Bars of several symbols at one timestamp revise a single period return.
func (g *Gate) PostTrade(ctx context.Context, snapshot domain.PortfolioSnapshot) PostTradeDecision {
	if g.open && snapshot.Timestamp.Equal(g.lastStamp) {
		g.returns = g.returns[:len(g.returns)-1]
	} else {
		g.periodBase = g.prevEquity
	}
	g.open = g.periodBase > 0
	if g.open {
		g.returns = append(g.returns, snapshot.Equity/g.periodBase-1)
	}
	g.lastStamp = snapshot.Timestamp
	g.prevEquity = snapshot.Equity

	if g.limits.MaxDrawdown > 0 && snapshot.Drawdown > g.limits.MaxDrawdown {
		return g.halt(ctx, domain.BreachDetail{
			Rule: "MAX_DRAWDOWN", Value: snapshot.Drawdown, Limit: g.limits.MaxDrawdown, Timestamp: snapshot.Timestamp,
		})
	}

	if g.limits.VarLimit > 0 && len(g.returns) >= g.limits.VarWindow {
		window := g.returns[len(g.returns)-g.limits.VarWindow:]
		v := ValueAtRisk(window, g.limits.VarConfidence, g.limits.VarMethod)
		if v > g.limits.VarLimit {
			return g.halt(ctx, domain.BreachDetail{
				Rule: "VAR", Value: v, Limit: g.limits.VarLimit, Timestamp: snapshot.Timestamp,
			})
		}
	}
	return PostTradeDecision{Action: ActionContinue}
}

func (g *Gate) halt(ctx context.Context, breach domain.BreachDetail) PostTradeDecision {
	g.stats.Halted = true
	g.logger.Warn(ctx, "Risk circuit breaker tripped", map[string]interface{}{
		"rule":  breach.Rule,
		"value": breach.Value,
		"limit": breach.Limit,
	})
	return PostTradeDecision{Action: ActionHalt, Breach: &breach}
}
