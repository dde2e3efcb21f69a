package ports

import (
	"context"

	"quantSim/internal/domain"
)

// SignalProvider defines the interface for trading strategies.
// Implementations only see the current bar and a copy of the portfolio; they
// keep whatever history they need themselves.
type SignalProvider interface {
	// Name identifies the strategy in results and comparison tables.
	Name() string

	// SignalsFor returns zero or more intents for the given bar.
	SignalsFor(ctx context.Context, bar domain.Bar, snapshot domain.PortfolioSnapshot) []domain.Intent
}

// Resettable is implemented by providers that hold per-run state and can be rewound.
type Resettable interface {
	Reset()
}

// RejectionObserver is implemented by providers that want to hear when the risk
// gate refused one of their intents, so they can offer the view again.
type RejectionObserver interface {
	IntentRejected(intent domain.Intent, reason error)
}
