package domain

import "time"

// Trade represents an executed fill. Trades are never mutated after booking.
type Trade struct {
	Symbol         string       // Trading symbol
	Side           OrderSide    // BUY or SELL
	Quantity       float64      // Filled quantity, always positive
	FillPrice      float64      // Price including slippage
	ReferencePrice float64      // Bar price the fill was derived from
	Commission     float64      // Commission paid
	Tax            float64      // Transaction tax paid
	Slippage       float64      // Cost of slippage in quote currency
	Timestamp      time.Time    // Timestamp of the bar the trade executed on
	Reason         IntentSource // What triggered the trade

	// Set by the ledger when the trade is booked.
	RealizedPnL float64 // P&L realized by the closing part of the trade, net of its share of fees
	Closing     bool    // Whether the trade reduced or closed existing exposure
}

// Notional returns Quantity * FillPrice.
func (t Trade) Notional() float64 {
	return t.Quantity * t.FillPrice
}

// Fees returns Commission + Tax.
func (t Trade) Fees() float64 {
	return t.Commission + t.Tax
}

// SignedQuantity returns the quantity with the trade side applied.
func (t Trade) SignedQuantity() float64 {
	return t.Side.Sign() * t.Quantity
}
