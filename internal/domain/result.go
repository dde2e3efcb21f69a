package domain

import "time"

// EquityPoint represents a point on the equity curve, recorded at the end of every bar.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
	Cash      float64
	Drawdown  float64
	Exposure  float64 // Gross market value of open positions
}

// Event records a non-fatal occurrence during a run (rejected intent, partial fill, ...).
type Event struct {
	Timestamp time.Time
	Symbol    string
	Kind      EventKind
	Reason    string // Machine-friendly reason, e.g. "POSITION_LIMIT" or "PARTIAL_FILL"
	Detail    string
	Source    IntentSource
}

// BreachDetail describes the circuit breaker that halted a run.
type BreachDetail struct {
	Rule      string // "MAX_DRAWDOWN" or "VAR"
	Value     float64
	Limit     float64
	Timestamp time.Time
}

// DrawdownPeriod represents one peak-to-recovery drawdown episode on the equity curve.
type DrawdownPeriod struct {
	StartTime  time.Time
	EndTime    time.Time
	PeakValue  float64
	TroughTime time.Time
	Depth      float64
	Duration   time.Duration
	Recovered  bool
}

// MonthlyReturn represents a calendar-month return on the equity curve.
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// Metrics holds the performance analytics for one run.
// Pointer fields are nil when the metric is undefined for the run.
type Metrics struct {
	InitialCapital   float64
	FinalEquity      float64
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      *float64
	SortinoRatio     *float64
	CalmarRatio      *float64
	MaxDrawdown      float64
	Exposure         float64 // Fraction of bars with an open position

	// Trade metrics
	TotalTrades          int
	ClosingTrades        int
	WinningTrades        int
	LosingTrades         int
	WinRate              *float64
	ProfitFactor         *float64
	AverageWin           *float64
	AverageLoss          *float64
	Expectancy           *float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	RealizedPnL          float64
	TotalCommission      float64
	TotalTax             float64
	TotalSlippage        float64

	Drawdowns      []DrawdownPeriod
	MonthlyReturns []MonthlyReturn
}

// SimulationResult is the outcome of one strategy run. It is always well formed,
// including for runs that terminated early.
type SimulationResult struct {
	Strategy          string
	EquityCurve       []EquityPoint
	Trades            []Trade
	Events            []Event
	Metrics           Metrics
	TerminationReason TerminationReason
	TerminationError  string        // Set for data errors
	Breach            *BreachDetail // Set when TerminationReason is RISK_BREACH
	BarsProcessed     int
	FinalState        PortfolioSnapshot
}
