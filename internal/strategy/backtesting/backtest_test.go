package backtesting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantSim/internal/domain"
	"quantSim/internal/execution"
	"quantSim/internal/marketdata"
	"quantSim/internal/ports"
	"quantSim/internal/risk"
	"quantSim/internal/scenario"
	"quantSim/internal/strategy/strategies"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	infoMsgs []string
	warnMsgs []string
	errMsgs  []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errMsgs = append(m.errMsgs, msg)
}

// scriptedProvider emits pre-defined intents by bar index and records every bar it sees.
type scriptedProvider struct {
	script   map[int][]domain.Intent
	onBar    func(i int)
	seen     []domain.Bar
	rejected []error
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) SignalsFor(ctx context.Context, bar domain.Bar, snapshot domain.PortfolioSnapshot) []domain.Intent {
	i := len(s.seen)
	s.seen = append(s.seen, bar)
	if s.onBar != nil {
		s.onBar(i)
	}
	return s.script[i]
}

func (s *scriptedProvider) Reset() { s.seen = nil }

func (s *scriptedProvider) IntentRejected(intent domain.Intent, reason error) {
	s.rejected = append(s.rejected, reason)
}

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func makeBars(symbol string, closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1e6,
		}
	}
	return bars
}

func baseConfig(logger ports.Logger) BacktestConfig {
	return BacktestConfig{
		InitialCapital: 100000,
		Limits:         risk.Limits{MaxPositionPct: 1},
		Logger:         logger,
	}
}

func long(symbol string, size float64) domain.Intent {
	return domain.Intent{Symbol: symbol, Direction: domain.DirectionLong, Strength: 1, RequestedSize: domain.Size(size), Source: domain.SourceStrategy}
}

func TestBacktest_BuyAndHoldWithCommission(t *testing.T) {
	bars := makeBars("AAPL", 100, 101, 99, 102, 104, 103, 105, 107, 106, 108)
	hold, err := strategies.NewBuyAndHold(strategies.BuyAndHoldConfig{Quantity: domain.Size(100)}, &mockLogger{})
	require.NoError(t, err)

	cfg := baseConfig(&mockLogger{})
	cfg.CostModel = execution.CostModel{CommissionRate: 0.001}

	result, err := Backtest(context.Background(), marketdata.NewSliceSource(bars), hold, cfg)
	require.NoError(t, err)

	assert.Equal(t, domain.TerminationCompleted, result.TerminationReason)
	assert.Equal(t, 10, result.BarsProcessed)
	require.Len(t, result.EquityCurve, 10)
	require.Len(t, result.Trades, 1)

	wantCash := 100000 - 100*100*1.001
	assert.InDelta(t, wantCash, result.FinalState.Cash, 1e-6)
	assert.InDelta(t, wantCash+100*108, result.FinalState.Equity, 1e-6)
	assert.InDelta(t, wantCash+100*108, result.Metrics.FinalEquity, 1e-6)
	assert.Equal(t, 100.0, result.FinalState.Position("AAPL").Quantity)
	assert.InDelta(t, 10.0, result.Metrics.TotalCommission, 1e-9)
	assert.Empty(t, result.Events)
}

func TestBacktest_CrashScenarioTripsDrawdownBreaker(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100 - 0.1*float64(i)
	}
	bars := makeBars("SPY", closes...)

	run := func(maxDrawdown float64) *domain.SimulationResult {
		inj, err := scenario.New(marketdata.NewSliceSource(bars), scenario.Config{
			Name:     "crash",
			Kind:     scenario.KindCrash,
			Start:    bars[4].Timestamp,
			End:      bars[6].Timestamp,
			CrashPct: 0.30,
		})
		require.NoError(t, err)
		hold, err := strategies.NewBuyAndHold(strategies.BuyAndHoldConfig{}, &mockLogger{})
		require.NoError(t, err)

		cfg := baseConfig(&mockLogger{})
		cfg.Limits.MaxDrawdown = maxDrawdown
		result, err := Backtest(context.Background(), inj, hold, cfg)
		require.NoError(t, err)
		return result
	}

	unlimited := run(0)
	assert.Equal(t, domain.TerminationCompleted, unlimited.TerminationReason)
	assert.GreaterOrEqual(t, unlimited.Metrics.MaxDrawdown, 0.30)

	halted := run(0.25)
	assert.Equal(t, domain.TerminationRiskBreach, halted.TerminationReason)
	require.NotNil(t, halted.Breach)
	assert.Equal(t, "MAX_DRAWDOWN", halted.Breach.Rule)
	assert.Equal(t, bars[6].Timestamp, halted.Breach.Timestamp)
	assert.Equal(t, 7, halted.BarsProcessed)
	assert.Len(t, halted.EquityCurve, halted.BarsProcessed)
	assert.GreaterOrEqual(t, halted.Metrics.MaxDrawdown, 0.30)
	for _, tr := range halted.Trades {
		assert.False(t, tr.Timestamp.After(halted.Breach.Timestamp), "no trades after the halt bar")
	}
}

func TestBacktest_DeterministicReplay(t *testing.T) {
	bars := makeBars("BTCUSDT", 10, 11, 12, 13, 12, 11, 10, 9, 10, 12, 14, 13, 11, 9, 8)
	ma, err := strategies.NewMACrossover(strategies.MACrossoverConfig{FastPeriod: 2, SlowPeriod: 4, Type: "SMA"}, &mockLogger{})
	require.NoError(t, err)

	cfg := baseConfig(&mockLogger{})
	cfg.CostModel = execution.CostModel{CommissionRate: 0.001, SlippageRate: 0.01, MaxParticipationRate: 0.5}
	cfg.Limits.StopLossPct = 0.1
	src := marketdata.NewSliceSource(bars)

	first, err := Backtest(context.Background(), src, ma, cfg)
	require.NoError(t, err)
	second, err := Backtest(context.Background(), src, ma, cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, first.Trades)
	assert.Equal(t, first, second)
}

func TestBacktest_CancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &scriptedProvider{
		script: map[int][]domain.Intent{0: {long("ETHUSDT", 10)}},
		onBar: func(i int) {
			if i == 2 {
				cancel()
			}
		},
	}
	result, err := Backtest(ctx, marketdata.NewSliceSource(makeBars("ETHUSDT", 10, 11, 12, 13, 14, 15)), provider, baseConfig(&mockLogger{}))
	require.NoError(t, err)

	assert.Equal(t, domain.TerminationCancelled, result.TerminationReason)
	assert.Equal(t, 3, result.BarsProcessed)
	assert.Len(t, result.EquityCurve, 3)
	assert.Len(t, result.Trades, 1)
	assert.InDelta(t, 100000-100+10*12, result.Metrics.FinalEquity, 1e-6)
}

func TestBacktest_DataErrorIsFatal(t *testing.T) {
	bars := makeBars("ETHUSDT", 10, 11, 12, 13, 14)
	bars[3].Low = bars[3].High + 1

	logger := &mockLogger{}
	result, err := Backtest(context.Background(), marketdata.NewSliceSource(bars), &scriptedProvider{}, baseConfig(logger))
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationDataError, result.TerminationReason)
	assert.Equal(t, 3, result.BarsProcessed)
	assert.Len(t, result.EquityCurve, 3)
	assert.Contains(t, result.TerminationError, ports.ErrMalformedBar.Error())
	assert.Contains(t, logger.errMsgs, "Invalid bar, stopping run")

	backwards := makeBars("ETHUSDT", 10, 11, 12)
	backwards[2].Timestamp = backwards[0].Timestamp.Add(-time.Hour)
	result, err = Backtest(context.Background(), marketdata.NewSliceSource(backwards), &scriptedProvider{}, baseConfig(logger))
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationDataError, result.TerminationReason)
	assert.Contains(t, result.TerminationError, ports.ErrNonMonotonicTimestamp.Error())
}

func TestBacktest_TieBreakAndStaleIntents(t *testing.T) {
	provider := &scriptedProvider{script: map[int][]domain.Intent{
		0: {long("ETHUSDT", 5), long("BTCUSDT", 1), long("ETHUSDT", 7)},
	}}
	result, err := Backtest(context.Background(), marketdata.NewSliceSource(makeBars("ETHUSDT", 10, 10)), provider, baseConfig(&mockLogger{}))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, 7.0, result.Trades[0].Quantity, "most recent strategy intent wins")

	require.Len(t, result.Events, 2)
	assert.Equal(t, domain.EventStaleIntent, result.Events[0].Kind)
	assert.Equal(t, "BTCUSDT", result.Events[0].Symbol)
	assert.Equal(t, "STALE_INTENT", result.Events[0].Reason)
	assert.Equal(t, domain.EventSuperseded, result.Events[1].Kind)
	assert.Equal(t, "SUPERSEDED", result.Events[1].Reason)
}

func TestBacktest_StopLossOverridesStrategy(t *testing.T) {
	provider := &scriptedProvider{script: map[int][]domain.Intent{
		0: {long("ETHUSDT", 100)},
		1: {long("ETHUSDT", 200)},
	}}
	cfg := baseConfig(&mockLogger{})
	cfg.Limits.StopLossPct = 0.05

	result, err := Backtest(context.Background(), marketdata.NewSliceSource(makeBars("ETHUSDT", 100, 90, 91)), provider, cfg)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	exit := result.Trades[1]
	assert.Equal(t, domain.Sell, exit.Side)
	assert.Equal(t, domain.SourceStopLoss, exit.Reason)
	assert.True(t, exit.Closing)
	assert.InDelta(t, -1000.0, exit.RealizedPnL, 1e-9)
	assert.True(t, result.FinalState.Position("ETHUSDT").IsFlat())

	require.Len(t, result.Events, 1)
	assert.Equal(t, domain.EventSuperseded, result.Events[0].Kind)
	assert.Equal(t, domain.SourceStrategy, result.Events[0].Source)
}

func TestBacktest_RejectionsAndPartialFillsDoNotStopRun(t *testing.T) {
	bars := makeBars("ETHUSDT", 10, 10, 10, 10)
	for i := range bars {
		bars[i].Volume = 100
	}
	provider := &scriptedProvider{script: map[int][]domain.Intent{
		0: {{Symbol: "ETHUSDT", Direction: domain.DirectionShort, Strength: -1, Source: domain.SourceStrategy}},
		1: {long("ETHUSDT", 50)},
		2: {long("ETHUSDT", 1e9)},
	}}
	cfg := baseConfig(&mockLogger{})
	cfg.CostModel.MaxParticipationRate = 0.1

	result, err := Backtest(context.Background(), marketdata.NewSliceSource(bars), provider, cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationCompleted, result.TerminationReason)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, 10.0, result.Trades[0].Quantity)

	require.Len(t, result.Events, 3)
	assert.Equal(t, domain.EventRiskRejection, result.Events[0].Kind)
	assert.Equal(t, "SHORT_NOT_ALLOWED", result.Events[0].Reason)
	assert.Equal(t, domain.EventExecution, result.Events[1].Kind)
	assert.Equal(t, "PARTIAL_FILL", result.Events[1].Reason)
	assert.Equal(t, domain.EventRiskRejection, result.Events[2].Kind)
	assert.Equal(t, "POSITION_LIMIT", result.Events[2].Reason)

	require.Len(t, provider.rejected, 2, "gate rejections reach the provider, execution events do not")
	assert.ErrorIs(t, provider.rejected[0], ports.ErrShortNotAllowed)
	assert.ErrorIs(t, provider.rejected[1], ports.ErrPositionLimit)
}

func TestBacktest_LedgerInvariantsHoldEveryBar(t *testing.T) {
	bars := makeBars("BTCUSDT", 100, 104, 97, 110, 95, 120, 80, 85, 130, 90)
	flips := map[int][]domain.Intent{}
	for i := range bars {
		dir := domain.DirectionLong
		if i%2 == 1 {
			dir = domain.DirectionFlat
		}
		flips[i] = []domain.Intent{{Symbol: "BTCUSDT", Direction: dir, Strength: 1, Source: domain.SourceStrategy}}
	}
	cfg := baseConfig(&mockLogger{})
	cfg.CostModel = execution.CostModel{CommissionRate: 0.002, MinCommission: 1, TaxRate: 0.001, SlippageRate: 0.005}

	result, err := Backtest(context.Background(), marketdata.NewSliceSource(bars), &scriptedProvider{script: flips}, cfg)
	require.NoError(t, err)
	require.Len(t, result.EquityCurve, len(bars))

	peak := cfg.InitialCapital
	for i, p := range result.EquityCurve {
		assert.GreaterOrEqual(t, p.Cash, 0.0, "cash at bar %d", i)
		peak = max(peak, p.Equity)
		assert.InDelta(t, 1-p.Equity/peak, p.Drawdown, 1e-9, "drawdown at bar %d", i)
	}

	var realized, unrealized float64
	for _, pos := range result.FinalState.Positions {
		realized += pos.RealizedPnL
		unrealized += pos.UnrealizedPnL()
	}
	assert.InDelta(t, result.FinalState.Equity-cfg.InitialCapital, realized+unrealized, 1e-6)
	assert.NotEmpty(t, result.Trades)
}

func TestBacktest_ProviderSeesNoFutureBars(t *testing.T) {
	bars := makeBars("BTCUSDT", 1, 2, 3, 4, 5)
	provider := &scriptedProvider{}
	_, err := Backtest(context.Background(), marketdata.NewSliceSource(bars), provider, baseConfig(&mockLogger{}))
	require.NoError(t, err)
	assert.Equal(t, bars, provider.seen)
}

func TestBacktest_InvalidConfiguration(t *testing.T) {
	src := marketdata.NewSliceSource(makeBars("BTCUSDT", 1))

	_, err := Backtest(context.Background(), src, nil, baseConfig(&mockLogger{}))
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = Backtest(context.Background(), src, &scriptedProvider{}, BacktestConfig{InitialCapital: 1, Limits: risk.Limits{MaxPositionPct: 1}})
	assert.Error(t, err)

	cfg := baseConfig(&mockLogger{})
	cfg.Limits.MaxPositionPct = 0
	_, err = Backtest(context.Background(), src, &scriptedProvider{}, cfg)
	assert.ErrorIs(t, err, ports.ErrInvalidRiskLimits)

	cfg = baseConfig(&mockLogger{})
	cfg.CostModel.CommissionRate = -1
	_, err = Backtest(context.Background(), src, &scriptedProvider{}, cfg)
	assert.ErrorIs(t, err, ports.ErrInvalidCostModel)
}
