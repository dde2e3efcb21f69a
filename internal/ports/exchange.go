package ports

import (
	"context"
	"time"

	"quantSim/internal/domain"
)

// KlineFetcher defines the read-only exchange surface used to acquire historical bars.
// This abstraction keeps the simulation core independent of a specific exchange.
type KlineFetcher interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)

	// GetKlines retrieves the most recent historical bars for the given symbol.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]domain.Bar, error)

	// GetKlinesRange retrieves all bars for symbol and interval within [start, end], paginating as needed.
	GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)
}
