package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"quantSim/config"
	"quantSim/internal/adapters/binanceclient"
	"quantSim/internal/adapters/logger"
	"quantSim/internal/marketdata"
	"quantSim/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "symbol to download")
	interval := flag.String("interval", "1h", "kline interval")
	months := flag.Int("months", 3, "months of history ending now")
	outDir := flag.String("out", "data", "output directory")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		UseTestnet:        cfg.IsTestnet,
		Logger:            appLogger,
		RequestsPerSecond: float64(cfg.FetchRatePerMinute) / 60,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, -*months, 0)

	fmt.Printf("Fetching bars for %s %s from %s to %s...\n", *symbol, *interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	src, err := marketdata.FromFetcher(context.Background(), binanceClient, marketdata.FetchRequest{
		Symbol: *symbol, Interval: *interval, Start: start, End: end,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching bars")
		log.Fatalf("Error fetching bars: %v", err)
	}
	bars := marketdata.Drain(src)

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Error creating %s: %v", *outDir, err)
	}
	filename := filepath.Join(*outDir, fmt.Sprintf("%s_%s_%s_to_%s.csv", *symbol, *interval, start.Format("20060102"), end.Format("20060102")))
	if err := utils.WriteBarsToCSV(bars, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved bars", map[string]interface{}{"filename": filename, "count": len(bars)})
}
