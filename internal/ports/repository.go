package ports

import (
	"context"
	"time"

	"quantSim/internal/domain"
)

// RunSummary is the stored header of a persisted simulation run.
type RunSummary struct {
	ID                string
	Strategy          string
	Scenario          string
	TerminationReason domain.TerminationReason
	BarsProcessed     int
	TotalTrades       int
	InitialCapital    float64
	FinalEquity       float64
	TotalReturn       float64
	MaxDrawdown       float64
	SharpeRatio       *float64
	CreatedAt         time.Time
}

// ResultRepository defines the interface for storing and retrieving simulation results.
type ResultRepository interface {
	// SaveResult persists a run with its trades, equity curve and events and returns the run ID.
	SaveResult(ctx context.Context, scenario string, result *domain.SimulationResult) (string, error)
	// FindRun retrieves a run summary by ID. Returns ErrNotFound if it does not exist.
	FindRun(ctx context.Context, id string) (*RunSummary, error)
	// ListRuns retrieves the most recent runs, newest first, up to limit (0 means no limit).
	ListRuns(ctx context.Context, limit int) ([]*RunSummary, error)
	// FindTrades retrieves the trades of a run in booking order.
	FindTrades(ctx context.Context, runID string) ([]domain.Trade, error)
	// FindEquityCurve retrieves the equity curve of a run in time order.
	FindEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error)
	// Close releases the underlying storage.
	Close() error
}
