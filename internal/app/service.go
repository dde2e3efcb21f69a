package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"

	"quantSim/config"
	"quantSim/internal/domain"
	"quantSim/internal/marketdata"
	"quantSim/internal/ports"
	"quantSim/internal/scenario"
	"quantSim/internal/strategy/backtesting"
	"quantSim/internal/strategy/comparison"
	"quantSim/internal/utils"
)

// BaselineScenario names the comparison over unmodified bars.
const BaselineScenario = "baseline"

// Report is the ranked comparison of every strategy under one scenario.
type Report struct {
	Scenario string
	Table    *comparison.Table
	RunIDs   map[string]string // Strategy name to persisted run ID, empty without a repository
}

// SimulationService orchestrates one simulation session: load bars, replay the
// baseline and every stress scenario through the comparator, then persist and export.
type SimulationService struct {
	cfg     *config.Config
	suite   *config.Suite
	logger  ports.Logger
	fetcher ports.KlineFetcher     // Optional when cfg.BarsCSV is set
	repo    ports.ResultRepository // Optional
}

// NewSimulationService creates a new application service instance.
func NewSimulationService(
	cfg *config.Config,
	suite *config.Suite,
	logger ports.Logger,
	fetcher ports.KlineFetcher,
	repo ports.ResultRepository,
) (*SimulationService, error) {
	if cfg == nil || suite == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for SimulationService")
	}
	if cfg.BarsCSV == "" && fetcher == nil {
		return nil, fmt.Errorf("%w: either BARS_CSV or a market data client is required", ports.ErrConfigurationError)
	}
	if cfg.BarsCSV == "" && len(suite.Data.Symbols) == 0 {
		return nil, fmt.Errorf("%w: suite data.symbols is required when downloading bars", ports.ErrConfigurationError)
	}
	return &SimulationService{cfg: cfg, suite: suite, logger: logger, fetcher: fetcher, repo: repo}, nil
}

// Run executes the session. SIGINT and SIGTERM cancel it; runs that were
// interrupted still produce results marked CANCELLED.
func (s *SimulationService) Run(ctx context.Context) ([]Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	bars, err := s.loadBars(ctx)
	if err != nil {
		return nil, err
	}

	configs, err := s.suite.StrategyConfigs()
	if err != nil {
		return nil, err
	}
	candidates := comparison.Candidates(configs, s.logger)
	metric, err := comparison.ParseMetric(s.suite.Metric)
	if err != nil {
		return nil, err
	}
	if s.suite.Metric == "" {
		metric = s.cfg.PrimaryMetric
	}
	compareCfg := comparison.Config{
		Backtest: backtesting.BacktestConfig{
			InitialCapital: s.cfg.InitialCapital,
			CostModel:      s.cfg.CostModel(),
			Limits:         s.cfg.RiskLimits(),
			Analytics:      s.cfg.AnalyticsOptions(),
			Logger:         s.logger,
		},
		Metric:  metric,
		Workers: s.cfg.Workers,
	}

	sources := []namedSource{{BaselineScenario, marketdata.NewSliceSource(bars)}}
	for _, sc := range s.suite.Scenarios {
		scCfg, err := sc.ScenarioConfig()
		if err != nil {
			return nil, err
		}
		inj, err := scenario.New(marketdata.NewSliceSource(bars), scCfg)
		if err != nil {
			return nil, err
		}
		sources = append(sources, namedSource{scCfg.Name, inj})
	}

	reports := make([]Report, 0, len(sources))
	for _, source := range sources {
		table, err := comparison.Compare(ctx, source.src, candidates, compareCfg)
		if err != nil {
			return reports, fmt.Errorf("scenario %s: %w", source.name, err)
		}
		report := Report{Scenario: source.name, Table: table, RunIDs: map[string]string{}}
		if err := s.persist(ctx, &report); err != nil {
			return reports, err
		}
		if err := s.export(report); err != nil {
			return reports, err
		}
		best := table.Best()
		s.logger.Info(ctx, "Scenario comparison finished", map[string]interface{}{
			"scenario":     source.name,
			"strategies":   len(table.Rows),
			"bestStrategy": best.Strategy,
			"metric":       table.Metric,
		})
		reports = append(reports, report)
	}
	return reports, nil
}

type namedSource struct {
	name string
	src  ports.BarSource
}

func (s *SimulationService) loadBars(ctx context.Context) ([]domain.Bar, error) {
	if s.cfg.BarsCSV != "" {
		symbol := ""
		if len(s.suite.Data.Symbols) > 0 {
			symbol = s.suite.Data.Symbols[0]
		}
		bars, err := utils.ReadBarsFromCSV(s.cfg.BarsCSV, symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to load bars from %s: %w", s.cfg.BarsCSV, err)
		}
		s.logger.Info(ctx, "Loaded bars from CSV", map[string]interface{}{"path": s.cfg.BarsCSV, "bars": len(bars)})
		return bars, nil
	}

	requests := make([]marketdata.FetchRequest, len(s.suite.Data.Symbols))
	for i, sym := range s.suite.Data.Symbols {
		requests[i] = marketdata.FetchRequest{
			Symbol: sym, Interval: s.suite.Data.Interval, Start: s.suite.Data.Start, End: s.suite.Data.End,
		}
	}
	src, err := marketdata.FromFetcher(ctx, s.fetcher, requests...)
	if err != nil {
		return nil, err
	}
	return marketdata.Drain(src), nil
}

func (s *SimulationService) persist(ctx context.Context, report *Report) error {
	if s.repo == nil {
		return nil
	}
	for _, row := range report.Table.Rows {
		id, err := s.repo.SaveResult(ctx, report.Scenario, row.Result)
		if err != nil {
			return fmt.Errorf("failed to persist %s/%s: %w", report.Scenario, row.Strategy, err)
		}
		report.RunIDs[row.Strategy] = id
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._=-]+`)

func (s *SimulationService) export(report Report) error {
	if s.cfg.OutputDir == "" {
		return nil
	}
	dir := filepath.Join(s.cfg.OutputDir, unsafeFileChars.ReplaceAllString(report.Scenario, "_"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory '%s': %w", dir, err)
	}
	for _, row := range report.Table.Rows {
		base := filepath.Join(dir, unsafeFileChars.ReplaceAllString(row.Strategy, "_"))
		if err := utils.WriteTradesToCSV(row.Result.Trades, base+"_trades.csv"); err != nil {
			return fmt.Errorf("failed to export trades for %s: %w", row.Strategy, err)
		}
		if err := utils.WriteEquityCurveToCSV(row.Result.EquityCurve, base+"_equity.csv"); err != nil {
			return fmt.Errorf("failed to export equity curve for %s: %w", row.Strategy, err)
		}
	}
	return nil
}
