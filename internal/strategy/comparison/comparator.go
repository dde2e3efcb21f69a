package comparison

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"quantSim/internal/domain"
	"quantSim/internal/marketdata"
	"quantSim/internal/ports"
	"quantSim/internal/strategy"
	"quantSim/internal/strategy/backtesting"
)

// Metric is the primary ranking metric of a comparison. Higher is better for
// every metric except max_drawdown.
type Metric string

const (
	MetricSharpe           Metric = "sharpe"
	MetricSortino          Metric = "sortino"
	MetricCalmar           Metric = "calmar"
	MetricTotalReturn      Metric = "total_return"
	MetricAnnualizedReturn Metric = "annualized_return"
	MetricMaxDrawdown      Metric = "max_drawdown"
	MetricWinRate          Metric = "win_rate"
	MetricProfitFactor     Metric = "profit_factor"
	MetricFinalEquity      Metric = "final_equity"
)

// ParseMetric converts a string to a Metric. Empty means sharpe.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricSharpe, nil
	case MetricSharpe, MetricSortino, MetricCalmar, MetricTotalReturn, MetricAnnualizedReturn,
		MetricMaxDrawdown, MetricWinRate, MetricProfitFactor, MetricFinalEquity:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ports.ErrUnknownRankingMetric, s)
	}
}

// Value returns the metric's value for m, or nil when it is undefined for the run.
func (metric Metric) Value(m domain.Metrics) *float64 {
	v := func(f float64) *float64 { return &f }
	switch metric {
	case MetricSharpe:
		return m.SharpeRatio
	case MetricSortino:
		return m.SortinoRatio
	case MetricCalmar:
		return m.CalmarRatio
	case MetricTotalReturn:
		return v(m.TotalReturn)
	case MetricAnnualizedReturn:
		return v(m.AnnualizedReturn)
	case MetricMaxDrawdown:
		return v(m.MaxDrawdown)
	case MetricWinRate:
		return m.WinRate
	case MetricProfitFactor:
		return m.ProfitFactor
	case MetricFinalEquity:
		return v(m.FinalEquity)
	}
	return nil
}

func (metric Metric) higherIsBetter() bool {
	return metric != MetricMaxDrawdown
}

// Candidate is one strategy taking part in a comparison. New must return a
// fresh provider on every call.
type Candidate struct {
	Name string
	New  func() (ports.SignalProvider, error)
}

// Candidates builds one candidate per strategy config.
func Candidates(configs []strategy.Config, logger ports.Logger) []Candidate {
	out := make([]Candidate, len(configs))
	for i, cfg := range configs {
		if cfg.Name == "" {
			cfg.Name = string(cfg.Kind)
		}
		out[i] = Candidate{Name: cfg.Name, New: strategy.Factory(cfg, logger)}
	}
	return out
}

// Config holds configuration for a comparison.
type Config struct {
	Backtest backtesting.BacktestConfig // Shared by every run; each run still gets its own ledger and gate
	Metric   Metric
	Workers  int // Max concurrent runs, GOMAXPROCS when <= 0
}

// Row is one ranked run.
type Row struct {
	Rank     int
	Strategy string
	Score    *float64 // nil when the metric is undefined for the run
	Result   *domain.SimulationResult
}

// Table is the ranked outcome of a comparison.
type Table struct {
	Metric Metric
	Bars   int // Number of bars every run replayed
	Rows   []Row
}

// Best returns the top-ranked row.
func (t *Table) Best() Row {
	return t.Rows[0]
}

// Compare runs every candidate over the same bars and ranks the results.
//
// src is drained once, so candidates replay an identical immutable copy of
// the (possibly scenario-modified) stream regardless of execution order.
// Runs execute on at most Workers goroutines and share nothing but the bars.
func Compare(ctx context.Context, src ports.BarSource, candidates []Candidate, config Config) (*Table, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: bar source is required", ports.ErrInvalidRequest)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no strategies to compare", ports.ErrInvalidRequest)
	}
	if config.Backtest.Logger == nil {
		return nil, errors.New("logger is required for comparison")
	}
	metric, err := ParseMetric(string(config.Metric))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c.New == nil {
			return nil, fmt.Errorf("%w: candidate %q has no constructor", ports.ErrInvalidRequest, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ports.ErrDuplicateStrategyName, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	bars := marketdata.Drain(src)
	if len(bars) == 0 {
		return nil, ports.ErrEmptyDataset
	}
	base := config.Backtest
	if base.Scaler == nil {
		if s, ok := src.(ports.SlippageScaler); ok {
			base.Scaler = s
		}
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	base.Logger.Info(ctx, "Starting strategy comparison", map[string]interface{}{
		"strategies": len(candidates),
		"bars":       len(bars),
		"metric":     metric,
		"workers":    workers,
	})

	results := make([]*domain.SimulationResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			provider, err := c.New()
			if err != nil {
				return fmt.Errorf("strategy %s: %w", c.Name, err)
			}
			result, err := backtesting.Backtest(gctx, marketdata.NewSliceSource(bars), provider, base)
			if err != nil {
				return fmt.Errorf("strategy %s: %w", c.Name, err)
			}
			result.Strategy = c.Name
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := &Table{Metric: metric, Bars: len(bars), Rows: make([]Row, len(results))}
	for i, r := range results {
		table.Rows[i] = Row{Strategy: r.Strategy, Score: metric.Value(r.Metrics), Result: r}
	}
	Rank(table.Rows, metric)
	return table, nil
}

// Rank orders rows by metric: defined scores first, best first; ties go to
// the lower max drawdown, then to the strategy name.
func Rank(rows []Row, metric Metric) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if (a.Score == nil) != (b.Score == nil) {
			return a.Score != nil
		}
		if a.Score != nil && *a.Score != *b.Score {
			if metric.higherIsBetter() {
				return *a.Score > *b.Score
			}
			return *a.Score < *b.Score
		}
		ddA, ddB := a.Result.Metrics.MaxDrawdown, b.Result.Metrics.MaxDrawdown
		if ddA != ddB {
			return ddA < ddB
		}
		return a.Strategy < b.Strategy
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}
