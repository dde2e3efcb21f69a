package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"quantSim/config"
	"quantSim/internal/adapters/logger"
	"quantSim/internal/domain"
	"quantSim/internal/marketdata"
	"quantSim/internal/strategy"
	"quantSim/internal/strategy/backtesting"
	"quantSim/internal/utils"
)

// parseParams reads "fast=10,slow=30" into a parameter map.
func parseParams(s string) (map[string]float64, error) {
	params := map[string]float64{}
	if strings.TrimSpace(s) == "" {
		return params, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q is not key=value", pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		params[strings.TrimSpace(k)] = f
	}
	return params, nil
}

func main() {
	csvPath := flag.String("csv", "", "bars CSV, defaults to BARS_CSV")
	symbol := flag.String("symbol", "ETHUSDT", "symbol for CSV files without a symbol column")
	kind := flag.String("kind", string(strategy.KindMACrossover), "strategy kind")
	name := flag.String("name", "", "strategy name, defaults to the kind")
	paramStr := flag.String("params", "", "strategy parameters, e.g. fast=10,slow=30")
	outDir := flag.String("out", "", "directory for the trade log and equity curve")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}

	// 2. Load bars
	if *csvPath == "" {
		*csvPath = cfg.BarsCSV
	}
	bars, err := utils.ReadBarsFromCSV(*csvPath, *symbol)
	if err != nil {
		log.Fatalf("Error loading bars from %q: %v", *csvPath, err)
	}

	// 3. Build the strategy
	params, err := parseParams(*paramStr)
	if err != nil {
		log.Fatalf("Invalid -params: %v", err)
	}
	stratCfg := strategy.Config{Name: *name, Kind: strategy.Kind(*kind), Params: params}
	if stratCfg.Name == "" {
		stratCfg.Name = *kind
	}
	provider, err := strategy.New(stratCfg, appLogger)
	if err != nil {
		log.Fatalf("Error building strategy: %v", err)
	}

	// 4. Run
	result, err := backtesting.Backtest(context.Background(), marketdata.NewSliceSource(bars), provider, backtesting.BacktestConfig{
		InitialCapital: cfg.InitialCapital,
		CostModel:      cfg.CostModel(),
		Limits:         cfg.RiskLimits(),
		Analytics:      cfg.AnalyticsOptions(),
		Logger:         appLogger,
	})
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}

	m := result.Metrics
	fmt.Printf("%s over %d bars: %s\n", result.Strategy, result.BarsProcessed, result.TerminationReason)
	if result.TerminationError != "" {
		fmt.Printf("  error: %s\n", result.TerminationError)
	}
	if result.Breach != nil {
		fmt.Printf("  breach: %s %.4f > %.4f at %s\n", result.Breach.Rule, result.Breach.Value, result.Breach.Limit, result.Breach.Timestamp)
	}
	fmt.Printf("  final equity %.2f (return %.2f%%, max drawdown %.2f%%)\n", m.FinalEquity, m.TotalReturn*100, m.MaxDrawdown*100)
	fmt.Printf("  trades %d, realized P&L %.2f, commission %.2f, slippage %.2f\n", m.TotalTrades, m.RealizedPnL, m.TotalCommission, m.TotalSlippage)
	if m.SharpeRatio != nil {
		fmt.Printf("  sharpe %.2f\n", *m.SharpeRatio)
	}
	reasons := map[string]int{}
	rejections := 0
	for _, e := range result.Events {
		reasons[e.Reason]++
		if e.Kind == domain.EventRiskRejection {
			rejections++
		}
	}
	fmt.Printf("  events %d (%d risk rejections) %v\n", len(result.Events), rejections, reasons)

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			log.Fatalf("Error creating %s: %v", *outDir, err)
		}
		base := filepath.Join(*outDir, strings.NewReplacer("[", "_", "]", "", ",", "_").Replace(result.Strategy))
		if err := utils.WriteTradesToCSV(result.Trades, base+"_trades.csv"); err != nil {
			log.Fatalf("Error writing trades: %v", err)
		}
		if err := utils.WriteEquityCurveToCSV(result.EquityCurve, base+"_equity.csv"); err != nil {
			log.Fatalf("Error writing equity curve: %v", err)
		}
	}
}
