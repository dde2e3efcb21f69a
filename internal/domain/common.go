package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Direction is the desired exposure expressed by an intent.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// IntentSource tells strategy intents apart from the synthetic ones the risk gate emits.
type IntentSource string

const (
	SourceStrategy   IntentSource = "strategy"
	SourceStopLoss   IntentSource = "stop_loss"
	SourceTakeProfit IntentSource = "take_profit"
)

// Synthetic reports whether the intent was generated by the risk gate rather than a strategy.
func (s IntentSource) Synthetic() bool {
	return s == SourceStopLoss || s == SourceTakeProfit
}

// IntentStatus tracks an intent through the pre-trade gate.
type IntentStatus string

const (
	StatusReceived      IntentStatus = "RECEIVED"
	StatusPreTradeCheck IntentStatus = "PRE_TRADE_CHECK"
	StatusAccepted      IntentStatus = "ACCEPTED"
	StatusRejected      IntentStatus = "REJECTED"
)

// TerminationReason indicates why a simulation run ended.
type TerminationReason string

const (
	TerminationCompleted  TerminationReason = "COMPLETED"
	TerminationCancelled  TerminationReason = "CANCELLED"
	TerminationRiskBreach TerminationReason = "RISK_BREACH"
	TerminationDataError  TerminationReason = "DATA_ERROR"
)

// EventKind classifies the non-fatal events recorded during a run.
type EventKind string

const (
	EventRiskRejection  EventKind = "RISK_REJECTION"
	EventExecution      EventKind = "EXECUTION"
	EventSuperseded     EventKind = "SUPERSEDED"
	EventStaleIntent    EventKind = "STALE_INTENT"
	EventLedgerRejected EventKind = "LEDGER_REJECTED"
)
