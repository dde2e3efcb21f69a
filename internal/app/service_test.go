package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantSim/config"
	"quantSim/internal/domain"
	"quantSim/internal/ports"
	"quantSim/internal/strategy"
	"quantSim/internal/strategy/comparison"
	"quantSim/internal/utils"
)

// Mock implementations
type mockLogger struct {
	mu       sync.Mutex
	infoMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockFetcher struct {
	bars     map[string][]domain.Bar
	requests []string
}

func (m *mockFetcher) Ping(ctx context.Context) error { return nil }
func (m *mockFetcher) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}
func (m *mockFetcher) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Bar, error) {
	return nil, ports.ErrNotFound
}
func (m *mockFetcher) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	m.requests = append(m.requests, symbol+"/"+interval)
	return m.bars[symbol], nil
}

type mockRepo struct {
	saved []string
}

func (m *mockRepo) SaveResult(ctx context.Context, scenario string, result *domain.SimulationResult) (string, error) {
	id := fmt.Sprintf("run-%d", len(m.saved)+1)
	m.saved = append(m.saved, scenario+"/"+result.Strategy)
	return id, nil
}
func (m *mockRepo) FindRun(ctx context.Context, id string) (*ports.RunSummary, error) {
	return nil, ports.ErrNotFound
}
func (m *mockRepo) ListRuns(ctx context.Context, limit int) ([]*ports.RunSummary, error) {
	return nil, nil
}
func (m *mockRepo) FindTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	return nil, nil
}
func (m *mockRepo) FindEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	return nil, nil
}
func (m *mockRepo) Close() error { return nil }

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func trendingBars(symbol string, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = domain.Bar{
			Symbol: symbol, Interval: "1h", Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1e6,
		}
	}
	return bars
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	metric, err := comparison.ParseMetric("total_return")
	require.NoError(t, err)
	return &config.Config{
		InitialCapital: 10000,
		CommissionRate: 0.001,
		MaxPositionPct: 1,
		VarConfidence:  0.95,
		VarWindow:      20,
		PeriodsPerYear: 24 * 365,
		PrimaryMetric:  metric,
		Workers:        2,
	}
}

func testSuite(t *testing.T) *config.Suite {
	t.Helper()
	suite, err := config.ParseSuite([]byte(`
data:
  symbols: [BTCUSDT]
  interval: 1h
  start: 2024-01-01T00:00:00Z
  end: 2024-01-03T00:00:00Z
strategies:
  - {name: hold, kind: buy_and_hold}
  - {name: ma, kind: ma_crossover, params: {fast: 2, slow: 4}}
scenarios:
  - name: crash
    kind: crash
    start: 2024-01-01T20:00:00Z
    end: 2024-01-01T23:00:00Z
    crash_pct: 0.4
`))
	require.NoError(t, err)
	return suite
}

func TestNewSimulationService(t *testing.T) {
	cfg := testConfig(t)
	suite := testSuite(t)
	logger := &mockLogger{}

	_, err := NewSimulationService(nil, suite, logger, nil, nil)
	assert.Error(t, err)

	_, err = NewSimulationService(cfg, suite, logger, nil, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError, "no CSV and no fetcher")

	empty := *suite
	empty.Data.Symbols = nil
	_, err = NewSimulationService(cfg, &empty, logger, &mockFetcher{}, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError, "nothing to fetch")

	svc, err := NewSimulationService(cfg, suite, logger, &mockFetcher{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestSimulationService_RunFromCSV(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.BarsCSV = filepath.Join(dir, "bars.csv")
	cfg.OutputDir = filepath.Join(dir, "out")
	require.NoError(t, utils.WriteBarsToCSV(trendingBars("BTCUSDT", 48), cfg.BarsCSV))

	repo := &mockRepo{}
	logger := &mockLogger{}
	svc, err := NewSimulationService(cfg, testSuite(t), logger, nil, repo)
	require.NoError(t, err)

	reports, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, BaselineScenario, reports[0].Scenario)
	assert.Equal(t, "crash", reports[1].Scenario)

	hold := func(r Report) *domain.SimulationResult {
		for _, row := range r.Table.Rows {
			if row.Strategy == "hold" {
				return row.Result
			}
		}
		t.Fatalf("hold missing from %s", r.Scenario)
		return nil
	}
	baseline, crashed := hold(reports[0]), hold(reports[1])
	assert.Equal(t, domain.TerminationCompleted, baseline.TerminationReason)
	assert.Equal(t, 48, baseline.BarsProcessed)
	assert.Less(t, crashed.EquityCurve[23].Equity, baseline.EquityCurve[23].Equity)
	assert.Greater(t, crashed.Metrics.MaxDrawdown, baseline.Metrics.MaxDrawdown)

	assert.Len(t, repo.saved, 4)
	assert.Len(t, reports[1].RunIDs, 2)
	assert.Contains(t, repo.saved, "crash/ma")

	for _, name := range []string{"hold_trades.csv", "hold_equity.csv", "ma_equity.csv"} {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, "crash", name))
		assert.NoError(t, err, name)
	}
	assert.Contains(t, logger.infoMsgs, "Scenario comparison finished")
}

func TestSimulationService_RunFromFetcher(t *testing.T) {
	cfg := testConfig(t)
	suite := testSuite(t)
	suite.Scenarios = nil
	suite.Strategies = []config.StrategySpec{{Config: strategy.Config{Name: "hold", Kind: strategy.KindBuyAndHold}}}
	fetcher := &mockFetcher{bars: map[string][]domain.Bar{"BTCUSDT": trendingBars("BTCUSDT", 10)}}

	svc, err := NewSimulationService(cfg, suite, &mockLogger{}, fetcher, nil)
	require.NoError(t, err)

	reports, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, []string{"BTCUSDT/1h"}, fetcher.requests)
	assert.Equal(t, 10, reports[0].Table.Bars)
	assert.Empty(t, reports[0].RunIDs)
}

func TestSimulationService_CancelledRunsStillReport(t *testing.T) {
	cfg := testConfig(t)
	suite := testSuite(t)
	suite.Scenarios = nil
	fetcher := &mockFetcher{bars: map[string][]domain.Bar{"BTCUSDT": trendingBars("BTCUSDT", 10)}}
	svc, err := NewSimulationService(cfg, suite, &mockLogger{}, fetcher, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reports, err := svc.Run(ctx)
	require.NoError(t, err)
	for _, row := range reports[0].Table.Rows {
		assert.Equal(t, domain.TerminationCancelled, row.Result.TerminationReason)
	}
}
