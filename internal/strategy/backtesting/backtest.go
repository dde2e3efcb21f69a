package backtesting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quantSim/internal/domain"
	"quantSim/internal/execution"
	"quantSim/internal/marketdata"
	"quantSim/internal/metrics"
	"quantSim/internal/portfolio"
	"quantSim/internal/ports"
	"quantSim/internal/risk"
	"quantSim/internal/strategy/analytics"
)

// BacktestConfig holds configuration for one simulation run.
type BacktestConfig struct {
	InitialCapital float64
	CostModel      execution.CostModel
	Limits         risk.Limits
	Analytics      analytics.Options    // InitialCapital is taken from the run
	Scaler         ports.SlippageScaler // Optional; detected on the source when nil
	Logger         ports.Logger
}

// Backtest replays src against provider and returns the run's result.
//
// Each bar is validated, protective stops and strategy intents are resolved to
// at most one intent per symbol, checked by the risk gate, filled by the
// execution simulator and booked in the ledger, after which the portfolio is
// marked to market and the circuit breakers are evaluated. The returned error
// is only set for invalid configuration; every started run yields a result,
// including cancelled, halted and data-error runs.
func Backtest(ctx context.Context, src ports.BarSource, provider ports.SignalProvider, config BacktestConfig) (*domain.SimulationResult, error) {
	if src == nil || provider == nil {
		return nil, fmt.Errorf("%w: bar source and signal provider are required", ports.ErrInvalidRequest)
	}
	if config.Logger == nil {
		return nil, errors.New("logger is required for backtest")
	}

	scaler := config.Scaler
	if scaler == nil {
		if s, ok := src.(ports.SlippageScaler); ok {
			scaler = s
		}
	}
	sim, err := execution.NewSimulator(execution.Config{Model: config.CostModel, Scaler: scaler, Logger: config.Logger})
	if err != nil {
		return nil, err
	}
	ledger, err := portfolio.NewLedger(config.InitialCapital)
	if err != nil {
		return nil, err
	}
	gate, err := risk.NewGate(risk.Config{
		Limits:         config.Limits,
		Quoter:         sim,
		InitialCapital: config.InitialCapital,
		Logger:         config.Logger,
	})
	if err != nil {
		return nil, err
	}

	src.Reset()
	if r, ok := provider.(ports.Resettable); ok {
		r.Reset()
	}

	r := &run{
		name:      provider.Name(),
		src:       src,
		provider:  provider,
		sim:       sim,
		ledger:    ledger,
		gate:      gate,
		validator: marketdata.NewValidator(),
		analytics: config.Analytics,
		logger:    config.Logger,
	}
	return r.execute(ctx), nil
}

// run holds the state of one sequential simulation.
type run struct {
	name      string
	src       ports.BarSource
	provider  ports.SignalProvider
	sim       *execution.Simulator
	ledger    *portfolio.Ledger
	gate      *risk.Gate
	validator *marketdata.Validator
	analytics analytics.Options
	logger    ports.Logger

	bars   int
	curve  []domain.EquityPoint
	events []domain.Event
}

func (r *run) execute(ctx context.Context) *domain.SimulationResult {
	started := time.Now()
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	r.logger.Info(ctx, "Simulation started", map[string]interface{}{
		"strategy":       r.name,
		"initialCapital": r.ledger.InitialCapital(),
	})

	reason := domain.TerminationCompleted
	var (
		breach  *domain.BreachDetail
		dataErr error
	)
	for {
		if ctx.Err() != nil {
			reason = domain.TerminationCancelled
			break
		}
		bar, ok := r.src.Next()
		if !ok {
			break
		}
		if err := r.validator.Check(bar); err != nil {
			reason, dataErr = domain.TerminationDataError, err
			r.logger.Error(ctx, err, "Invalid bar, stopping run", map[string]interface{}{"strategy": r.name})
			break
		}

		breach = r.step(ctx, bar)
		r.bars++
		if breach != nil {
			reason = domain.TerminationRiskBreach
			break
		}
	}

	result := r.result(reason, breach, dataErr)

	metrics.BarsProcessed.WithLabelValues(r.name).Add(float64(r.bars))
	metrics.RunTerminations.WithLabelValues(string(reason)).Inc()
	metrics.RunDuration.WithLabelValues(r.name).Observe(time.Since(started).Seconds())

	r.logger.Info(ctx, "Simulation finished", map[string]interface{}{
		"strategy":    r.name,
		"termination": reason,
		"bars":        r.bars,
		"trades":      len(result.Trades),
		"finalEquity": result.Metrics.FinalEquity,
		"duration":    time.Since(started).String(),
	})
	return result
}

// step processes one validated bar and returns the breach that halts the run, if any.
func (r *run) step(ctx context.Context, bar domain.Bar) *domain.BreachDetail {
	snapshot := r.ledger.Snapshot()
	intents := r.gate.CheckStops(ctx, bar, snapshot)
	intents = append(intents, r.provider.SignalsFor(ctx, bar, snapshot)...)

	for _, intent := range r.resolve(bar, intents) {
		r.submit(ctx, intent, bar)
	}

	r.curve = append(r.curve, r.ledger.MarkToMarket(bar))

	post := r.gate.PostTrade(ctx, r.ledger.Snapshot())
	if post.Action == risk.ActionHalt {
		return post.Breach
	}
	return nil
}

// resolve applies the per-symbol tie-break: the last synthetic stop intent wins
// over any strategy intent, otherwise the last strategy intent wins. Losers are
// recorded as superseded; intents for another symbol cannot be priced on this bar.
func (r *run) resolve(bar domain.Bar, intents []domain.Intent) []domain.Intent {
	winner := -1
	for i, intent := range intents {
		if intent.Symbol != bar.Symbol {
			r.record(bar, intent, domain.EventStaleIntent, ports.ErrStaleIntent,
				fmt.Sprintf("current bar is %s", bar.Symbol))
			continue
		}
		if winner < 0 || intent.Source.Synthetic() || !intents[winner].Source.Synthetic() {
			winner = i
		}
	}
	if winner < 0 {
		return nil
	}
	for i, intent := range intents {
		if i != winner && intent.Symbol == bar.Symbol {
			r.record(bar, intent, domain.EventSuperseded, ports.ErrSuperseded,
				fmt.Sprintf("superseded by %s intent", intents[winner].Source))
		}
	}
	return []domain.Intent{intents[winner]}
}

// submit takes one intent through the gate, the simulator and the ledger.
// Rejections and execution failures are recorded and never stop the run.
func (r *run) submit(ctx context.Context, intent domain.Intent, bar domain.Bar) {
	decision := r.gate.Evaluate(ctx, intent, bar, r.ledger.Snapshot())
	if decision.Status == domain.StatusRejected {
		r.record(bar, intent, domain.EventRiskRejection, decision.Rejection.Reason, decision.Rejection.Detail)
		metrics.RiskRejections.WithLabelValues(ports.ReasonCode(decision.Rejection.Reason)).Inc()
		if obs, ok := r.provider.(ports.RejectionObserver); ok && intent.Source == domain.SourceStrategy {
			obs.IntentRejected(intent, decision.Rejection.Reason)
		}
		return
	}
	if decision.Order == nil {
		return
	}

	trade, err := r.sim.Execute(ctx, *decision.Order, bar)
	if err != nil {
		r.record(bar, intent, domain.EventExecution, err, err.Error())
		metrics.ExecutionEvents.WithLabelValues(ports.ReasonCode(err)).Inc()
		if !errors.Is(err, ports.ErrPartialFill) {
			return
		}
	}

	booked, err := r.ledger.Apply(trade)
	if err != nil {
		r.record(bar, intent, domain.EventLedgerRejected, err, err.Error())
		r.logger.Warn(ctx, "Ledger refused trade", map[string]interface{}{
			"strategy": r.name, "symbol": trade.Symbol, "error": err.Error(),
		})
		return
	}
	metrics.TradesExecuted.WithLabelValues(r.name, string(booked.Side)).Inc()
}

func (r *run) record(bar domain.Bar, intent domain.Intent, kind domain.EventKind, reason error, detail string) {
	r.events = append(r.events, domain.Event{
		Timestamp: bar.Timestamp,
		Symbol:    intent.Symbol,
		Kind:      kind,
		Reason:    ports.ReasonCode(reason),
		Detail:    detail,
		Source:    intent.Source,
	})
}

func (r *run) result(reason domain.TerminationReason, breach *domain.BreachDetail, dataErr error) *domain.SimulationResult {
	trades := r.ledger.Trades()
	opts := r.analytics
	opts.InitialCapital = r.ledger.InitialCapital()

	result := &domain.SimulationResult{
		Strategy:          r.name,
		EquityCurve:       r.curve,
		Trades:            trades,
		Events:            r.events,
		Metrics:           analytics.Analyze(r.curve, trades, opts),
		TerminationReason: reason,
		Breach:            breach,
		BarsProcessed:     r.bars,
		FinalState:        r.ledger.Snapshot(),
	}
	if dataErr != nil {
		result.TerminationError = dataErr.Error()
	}
	return result
}
