package ports

import "errors"

// Standard application-level errors.
// Adapters and simulation components wrap underlying errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market Data Errors (fatal to a run)
	ErrMalformedBar           = errors.New("malformed bar")
	ErrNonMonotonicTimestamp  = errors.New("bar timestamp moves backwards for symbol")
	ErrEmptyDataset           = errors.New("no bars available")
	ErrUnknownSlippageModel   = errors.New("unknown slippage model")
	ErrUnknownPriceReference  = errors.New("unknown price reference")
	ErrUnknownStrategyKind    = errors.New("unknown strategy kind")
	ErrUnknownScenarioKind    = errors.New("unknown scenario kind")
	ErrUnknownRankingMetric   = errors.New("unknown ranking metric")
	ErrInvalidScenarioWindow  = errors.New("invalid scenario window")
	ErrInvalidRiskLimits      = errors.New("invalid risk limits")
	ErrInvalidCostModel       = errors.New("invalid cost model")
	ErrInvalidParameterRange  = errors.New("invalid parameter range")
	ErrDuplicateStrategyName  = errors.New("duplicate strategy name")
	ErrStrategyConfigMismatch = errors.New("strategy configuration does not match its kind")

	// Execution Errors (recovered inside the run)
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for order")
	ErrInvalidPrice          = errors.New("invalid price for execution")
	ErrPartialFill           = errors.New("order partially filled")

	// Risk Rejections (recovered inside the run)
	ErrPositionLimit      = errors.New("position limit exceeded")
	ErrConcentrationLimit = errors.New("concentration limit exceeded")
	ErrInsufficientCash   = errors.New("insufficient cash for order")
	ErrShortNotAllowed    = errors.New("short positions are not allowed")
	ErrInvalidIntent      = errors.New("invalid intent")
	ErrSuperseded         = errors.New("intent superseded by a later intent for the same symbol")
	ErrStaleIntent        = errors.New("intent does not refer to the current bar")

	// Ledger Errors
	ErrNegativeCash = errors.New("trade would make cash negative")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrPositionLimit, "POSITION_LIMIT"},
	{ErrConcentrationLimit, "CONCENTRATION_LIMIT"},
	{ErrInsufficientCash, "INSUFFICIENT_CASH"},
	{ErrShortNotAllowed, "SHORT_NOT_ALLOWED"},
	{ErrInvalidIntent, "INVALID_INTENT"},
	{ErrSuperseded, "SUPERSEDED"},
	{ErrStaleIntent, "STALE_INTENT"},
	{ErrInsufficientLiquidity, "INSUFFICIENT_LIQUIDITY"},
	{ErrInvalidPrice, "INVALID_PRICE"},
	{ErrPartialFill, "PARTIAL_FILL"},
	{ErrInvalidRequest, "INVALID_REQUEST"},
	{ErrNegativeCash, "NEGATIVE_CASH"},
	{ErrMalformedBar, "MALFORMED_BAR"},
	{ErrNonMonotonicTimestamp, "NON_MONOTONIC_TIMESTAMP"},
}

// ReasonCode returns the machine-friendly code recorded in run events for err.
func ReasonCode(err error) string {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "UNKNOWN"
}
