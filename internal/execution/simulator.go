package execution

import (
	"context"
	"errors"
	"fmt"
	"math"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// Execute fills order against bar under the given cost model.
//
// The fill price is the model's reference price moved against the order by the
// slippage fraction. When the order exceeds the bar's participation cap the
// permitted portion is filled and returned together with an ErrPartialFill
// error; the remainder is dropped.
func Execute(order domain.Order, bar domain.Bar, model CostModel) (domain.Trade, error) {
	return execute(order, bar, model, 1)
}

func execute(order domain.Order, bar domain.Bar, model CostModel, slippageMultiplier float64) (domain.Trade, error) {
	if order.Symbol != bar.Symbol {
		return domain.Trade{}, &Error{Kind: ports.ErrInvalidRequest, Symbol: order.Symbol,
			Detail: fmt.Sprintf("order symbol does not match bar symbol %s", bar.Symbol)}
	}
	if order.Quantity <= 0 || math.IsNaN(order.Quantity) || math.IsInf(order.Quantity, 0) {
		return domain.Trade{}, &Error{Kind: ports.ErrInvalidRequest, Symbol: order.Symbol,
			Detail: fmt.Sprintf("order quantity must be positive, got %g", order.Quantity)}
	}
	if order.Side != domain.Buy && order.Side != domain.Sell {
		return domain.Trade{}, &Error{Kind: ports.ErrInvalidRequest, Symbol: order.Symbol,
			Detail: fmt.Sprintf("unknown order side %q", order.Side)}
	}

	ref, err := model.ReferencePrice(bar)
	if err != nil {
		return domain.Trade{}, err
	}

	quantity := order.Quantity
	partial := false
	if model.MaxParticipationRate > 0 {
		permitted := bar.Volume * model.MaxParticipationRate
		if permitted <= 0 {
			return domain.Trade{}, &Error{Kind: ports.ErrInsufficientLiquidity, Symbol: order.Symbol,
				Requested: order.Quantity, Detail: "bar has no tradable volume"}
		}
		if quantity > permitted {
			quantity = permitted
			partial = true
		}
	}

	participation := 1.0
	if bar.Volume > 0 {
		participation = math.Min(quantity/bar.Volume, 1)
	}
	if slippageMultiplier <= 0 {
		slippageMultiplier = 1
	}
	slip := model.slippageFraction(participation) * slippageMultiplier

	fill := ref * (1 + order.Side.Sign()*slip)
	if fill <= 0 {
		return domain.Trade{}, &Error{Kind: ports.ErrInvalidPrice, Symbol: order.Symbol,
			Requested: order.Quantity, Detail: fmt.Sprintf("slippage drives fill price to %g", fill)}
	}

	notional := quantity * fill
	trade := domain.Trade{
		Symbol:         order.Symbol,
		Side:           order.Side,
		Quantity:       quantity,
		FillPrice:      fill,
		ReferencePrice: ref,
		Commission:     model.commission(notional),
		Tax:            model.tax(order.Side, notional),
		Slippage:       quantity * math.Abs(fill-ref),
		Timestamp:      bar.Timestamp,
		Reason:         order.Reason,
	}

	if partial {
		return trade, &Error{Kind: ports.ErrPartialFill, Symbol: order.Symbol,
			Requested: order.Quantity, Filled: quantity}
	}
	return trade, nil
}

// Config holds the dependencies of a Simulator.
type Config struct {
	Model  CostModel
	Scaler ports.SlippageScaler // Optional, e.g. a liquidity-crisis scenario
	Logger ports.Logger
}

// Simulator executes orders for one run. It holds no per-order state, so
// Quote and Execute always agree for the same order and bar.
type Simulator struct {
	model  CostModel
	scaler ports.SlippageScaler
	logger ports.Logger
}

// NewSimulator creates a new execution simulator.
func NewSimulator(cfg Config) (*Simulator, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for execution simulator")
	}
	if err := cfg.Model.Validate(); err != nil {
		return nil, err
	}
	model := cfg.Model
	model.SlippageModel, _ = ParseSlippageModel(string(model.SlippageModel))
	model.PriceReference, _ = ParsePriceReference(string(model.PriceReference))
	return &Simulator{model: model, scaler: cfg.Scaler, logger: cfg.Logger}, nil
}

// Model returns the normalized cost model.
func (s *Simulator) Model() CostModel {
	return s.model
}

// ReferencePrice returns the price orders on bar are sized and filled against.
func (s *Simulator) ReferencePrice(bar domain.Bar) (float64, error) {
	return s.model.ReferencePrice(bar)
}

// Quote returns the trade Execute would produce without logging it.
func (s *Simulator) Quote(order domain.Order, bar domain.Bar) (domain.Trade, error) {
	return execute(order, bar, s.model, s.multiplier(bar))
}

// Execute fills order against bar.
func (s *Simulator) Execute(ctx context.Context, order domain.Order, bar domain.Bar) (domain.Trade, error) {
	trade, err := execute(order, bar, s.model, s.multiplier(bar))
	if err != nil && !errors.Is(err, ports.ErrPartialFill) {
		s.logger.Debug(ctx, "Order not executed", map[string]interface{}{
			"symbol": order.Symbol, "side": order.Side, "quantity": order.Quantity, "error": err.Error(),
		})
		return trade, err
	}
	s.logger.Debug(ctx, "Order executed", map[string]interface{}{
		"symbol":     trade.Symbol,
		"side":       trade.Side,
		"quantity":   trade.Quantity,
		"fill_price": trade.FillPrice,
		"commission": trade.Commission,
		"partial":    err != nil,
	})
	return trade, err
}

func (s *Simulator) multiplier(bar domain.Bar) float64 {
	if s.scaler == nil {
		return 1
	}
	return s.scaler.SlippageMultiplier(bar)
}
