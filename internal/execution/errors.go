package execution

import "fmt"

// Error is an execution failure for a single order. Kind is one of
// ports.ErrInsufficientLiquidity, ports.ErrInvalidPrice, ports.ErrPartialFill
// or ports.ErrInvalidRequest, so callers can use errors.Is.
type Error struct {
	Kind      error
	Symbol    string
	Requested float64
	Filled    float64
	Detail    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Symbol)
	if e.Requested > 0 {
		msg += fmt.Sprintf(" (requested %g, filled %g)", e.Requested, e.Filled)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}
