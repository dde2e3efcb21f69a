package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantSim/config"
	"quantSim/internal/adapters/binanceclient"
	"quantSim/internal/adapters/logger"
	"quantSim/internal/adapters/sqlite"
	"quantSim/internal/app"
	"quantSim/internal/ports"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Load the strategy suite
	suite, err := config.LoadSuite(cfg.SuitePath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load strategy suite", map[string]interface{}{"path": cfg.SuitePath})
		log.Fatalf("FATAL: Failed to load strategy suite: %v", err)
	}

	// 4. Metrics endpoint
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error(ctx, err, "Metrics server stopped")
			}
		}()
		defer srv.Close()
		appLogger.Info(ctx, "Serving metrics", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 5. Result repository (optional)
	var repo ports.ResultRepository
	if cfg.DBPath != "" {
		sqliteRepo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
		}
		defer func() {
			if err := sqliteRepo.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing database repository")
			}
		}()
		repo = sqliteRepo
	}

	// 6. Market data client, only needed when bars are not read from CSV
	var fetcher ports.KlineFetcher
	if cfg.BarsCSV == "" {
		client, err := binanceclient.New(binanceclient.Config{
			APIKey:            cfg.APIKey,
			SecretKey:         cfg.SecretKey,
			UseTestnet:        cfg.IsTestnet,
			Logger:            appLogger,
			RequestsPerSecond: float64(cfg.FetchRatePerMinute) / 60,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
		}
		fetcher = client
	}

	// 7. Run the session
	service, err := app.NewSimulationService(cfg, suite, appLogger, fetcher, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize simulation service: %v", err)
	}
	reports, err := service.Run(ctx)
	if len(reports) > 0 {
		if werr := app.WriteReports(os.Stdout, reports); werr != nil {
			appLogger.Error(ctx, werr, "Failed to print reports")
		}
	}
	if err != nil {
		appLogger.Error(ctx, err, "Simulation session failed")
		os.Exit(1)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
