package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"quantSim/config"
	"quantSim/internal/adapters/logger"
	"quantSim/internal/adapters/sqlite"
	"quantSim/internal/app"
	"quantSim/internal/strategy/analytics"
)

func main() {
	dbPath := flag.String("db", "", "SQLite result store, defaults to DB_PATH")
	limit := flag.Int("limit", 20, "number of runs to list, 0 for all")
	runID := flag.String("run", "", "show the drawdowns and monthly returns of one run")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.DBPath
	}
	if *dbPath == "" {
		log.Fatal("No result store configured. Pass -db or set DB_PATH.")
	}

	appLogger := logger.NewStdLogger(logger.LevelWarn)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening result store: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if *runID == "" {
		runs, err := repo.ListRuns(ctx, *limit)
		if err != nil {
			log.Fatalf("Error listing runs: %v", err)
		}
		if len(runs) == 0 {
			log.Println("No runs found. Run the simulator with DB_PATH set first.")
			return
		}
		if err := app.WriteRunSummaries(os.Stdout, runs); err != nil {
			log.Fatalf("Error printing runs: %v", err)
		}
		return
	}

	run, err := repo.FindRun(ctx, *runID)
	if err != nil {
		log.Fatalf("Error loading run: %v", err)
	}
	curve, err := repo.FindEquityCurve(ctx, run.ID)
	if err != nil {
		log.Fatalf("Error loading equity curve: %v", err)
	}
	trades, err := repo.FindTrades(ctx, run.ID)
	if err != nil {
		log.Fatalf("Error loading trades: %v", err)
	}

	opts := cfg.AnalyticsOptions()
	opts.InitialCapital = run.InitialCapital
	m := analytics.Analyze(curve, trades, opts)

	fmt.Printf("Run %s: %s under %s (%s)\n", run.ID, run.Strategy, run.Scenario, run.TerminationReason)
	fmt.Printf("Return %.2f%%, annualized %.2f%%, max drawdown %.2f%%, %d trades, commission %.2f\n\n",
		m.TotalReturn*100, m.AnnualizedReturn*100, m.MaxDrawdown*100, m.TotalTrades, m.TotalCommission)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "## Drawdowns\t\t\t\t")
	fmt.Fprintln(w, "Start\tTrough\tDepth%\tDuration\tRecovered\t")
	for _, d := range m.Drawdowns {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%t\t\n",
			d.StartTime.Format("2006-01-02 15:04"), d.TroughTime.Format("2006-01-02 15:04"), d.Depth*100, d.Duration, d.Recovered)
	}
	fmt.Fprintln(w, "\t\t\t\t")
	fmt.Fprintln(w, "## Monthly returns\t\t\t\t")
	for _, mr := range m.MonthlyReturns {
		fmt.Fprintf(w, "%s\t%.2f%%\t\t\t\n", mr.Month.Format("2006-01"), mr.Return*100)
	}
	w.Flush()
}
