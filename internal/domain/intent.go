package domain

// Intent is a signal provider's request to change exposure in one symbol.
// It is only valid for the bar it was produced on.
type Intent struct {
	Symbol    string
	Direction Direction
	// Strength in [-1, 1]; its magnitude scales the target position when RequestedSize is nil.
	Strength float64
	// RequestedSize is an optional absolute target quantity in the intent's direction.
	RequestedSize *float64
	Source        IntentSource
}

// Size returns a pointer to q, for building intents with an explicit size.
func Size(q float64) *float64 {
	return &q
}

// FlatIntent builds an intent that closes any position in symbol.
func FlatIntent(symbol string, source IntentSource) Intent {
	return Intent{Symbol: symbol, Direction: DirectionFlat, Source: source}
}

// OrderType describes how an order is priced by the simulator.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
)

// Order is an accepted intent translated into a concrete quantity.
type Order struct {
	Symbol         string
	Side           OrderSide
	Quantity       float64 // Always positive
	ReferencePrice float64 // Price the gate sized the order against
	Type           OrderType
	Reason         IntentSource
}

// SignedQuantity returns the quantity with the order side applied.
func (o Order) SignedQuantity() float64 {
	return o.Side.Sign() * o.Quantity
}
