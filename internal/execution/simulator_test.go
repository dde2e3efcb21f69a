package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

type mockLogger struct {
	debugMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fixedScaler float64

func (f fixedScaler) SlippageMultiplier(domain.Bar) float64 { return float64(f) }

func testBar() domain.Bar {
	return domain.Bar{
		Symbol:    "BTCUSDT",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:      98,
		High:      105,
		Low:       95,
		Close:     100,
		Volume:    1000,
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name           string
		order          domain.Order
		model          CostModel
		wantErr        error
		wantQty        float64
		wantFill       float64
		wantCommission float64
		wantTax        float64
	}{
		{
			name:           "buy at close with commission only",
			order:          domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 10},
			model:          CostModel{CommissionRate: 0.001},
			wantQty:        10,
			wantFill:       100,
			wantCommission: 1,
		},
		{
			name:           "minimum commission applies",
			order:          domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1},
			model:          CostModel{CommissionRate: 0.001, MinCommission: 5},
			wantQty:        1,
			wantFill:       100,
			wantCommission: 5,
		},
		{
			name:     "linear slippage moves buy fill up",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 100},
			model:    CostModel{SlippageRate: 0.1},
			wantQty:  100,
			wantFill: 101, // 0.1 * 100/1000 = 1%
		},
		{
			name:     "sqrt slippage moves sell fill down",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Sell, Quantity: 10},
			model:    CostModel{SlippageRate: 0.1, SlippageModel: SlippageSqrt},
			wantQty:  10,
			wantFill: 99, // 0.1 * sqrt(0.01) = 1%
		},
		{
			name:     "fixed slippage ignores size",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1},
			model:    CostModel{SlippageRate: 0.002, SlippageModel: SlippageFixed},
			wantQty:  1,
			wantFill: 100.2,
		},
		{
			name:     "tax charged on sells only",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Sell, Quantity: 10},
			model:    CostModel{TaxRate: 0.003},
			wantQty:  10,
			wantFill: 100,
			wantTax:  3,
		},
		{
			name:     "no tax on buys by default",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 10},
			model:    CostModel{TaxRate: 0.003},
			wantQty:  10,
			wantFill: 100,
		},
		{
			name:     "tax on buys when enabled",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 10},
			model:    CostModel{TaxRate: 0.003, TaxOnBuy: true},
			wantQty:  10,
			wantFill: 100,
			wantTax:  3,
		},
		{
			name:     "open reference price",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1},
			model:    CostModel{PriceReference: PriceOpen},
			wantQty:  1,
			wantFill: 98,
		},
		{
			name:     "typical reference price",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1},
			model:    CostModel{PriceReference: PriceTypical},
			wantQty:  1,
			wantFill: 100,
		},
		{
			name:     "partial fill above participation cap",
			order:    domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 500},
			model:    CostModel{MaxParticipationRate: 0.1},
			wantErr:  ports.ErrPartialFill,
			wantQty:  100,
			wantFill: 100,
		},
		{
			name:    "symbol mismatch",
			order:   domain.Order{Symbol: "ETHUSDT", Side: domain.Buy, Quantity: 1},
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name:    "zero quantity",
			order:   domain.Order{Symbol: "BTCUSDT", Side: domain.Buy},
			wantErr: ports.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := Execute(tt.order, testBar(), tt.model)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				if !errors.Is(err, ports.ErrPartialFill) {
					return
				}
			} else {
				require.NoError(t, err)
			}
			assert.InDelta(t, tt.wantQty, trade.Quantity, 1e-9)
			assert.InDelta(t, tt.wantFill, trade.FillPrice, 1e-9)
			assert.InDelta(t, tt.wantCommission, trade.Commission, 1e-9)
			assert.InDelta(t, tt.wantTax, trade.Tax, 1e-9)
			assert.Equal(t, tt.order.Side, trade.Side)
			assert.Equal(t, testBar().Timestamp, trade.Timestamp)
		})
	}
}

func TestExecuteLiquidityAndPriceErrors(t *testing.T) {
	bar := testBar()
	bar.Volume = 0
	_, err := Execute(domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1}, bar, CostModel{MaxParticipationRate: 0.1})
	assert.ErrorIs(t, err, ports.ErrInsufficientLiquidity)

	// Without a participation cap zero volume is still fillable.
	_, err = Execute(domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1}, bar, CostModel{})
	assert.NoError(t, err)

	bar = testBar()
	bar.Close = 0
	_, err = Execute(domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1}, bar, CostModel{})
	assert.ErrorIs(t, err, ports.ErrInvalidPrice)

	// Slippage of 100%+ on a sell would produce a non-positive price.
	_, err = Execute(domain.Order{Symbol: "BTCUSDT", Side: domain.Sell, Quantity: 1}, testBar(),
		CostModel{SlippageRate: 1.5, SlippageModel: SlippageFixed})
	assert.ErrorIs(t, err, ports.ErrInvalidPrice)

	var execErr *Error
	_, err = Execute(domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 500}, testBar(), CostModel{MaxParticipationRate: 0.1})
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 500.0, execErr.Requested)
	assert.Equal(t, 100.0, execErr.Filled)
}

func TestExecuteDependsOnlyOnBarAndModel(t *testing.T) {
	order := domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 42}
	model := CostModel{CommissionRate: 0.0005, SlippageRate: 0.05, TaxRate: 0.001, TaxOnBuy: true}

	first, err := Execute(order, testBar(), model)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Execute(order, testBar(), model)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.InDelta(t, 42*math.Abs(first.FillPrice-100), first.Slippage, 1e-9)
}

func TestSimulator(t *testing.T) {
	logger := &mockLogger{}

	_, err := NewSimulator(Config{Model: CostModel{}})
	assert.Error(t, err, "logger is required")

	_, err = NewSimulator(Config{Model: CostModel{CommissionRate: -1}, Logger: logger})
	assert.ErrorIs(t, err, ports.ErrInvalidCostModel)

	_, err = NewSimulator(Config{Model: CostModel{SlippageModel: "quadratic"}, Logger: logger})
	assert.ErrorIs(t, err, ports.ErrInvalidCostModel)

	sim, err := NewSimulator(Config{
		Model:  CostModel{SlippageRate: 0.1},
		Scaler: fixedScaler(3),
		Logger: logger,
	})
	require.NoError(t, err)
	assert.Equal(t, SlippageLinear, sim.Model().SlippageModel)
	assert.Equal(t, PriceClose, sim.Model().PriceReference)

	order := domain.Order{Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 100}
	quote, err := sim.Quote(order, testBar())
	require.NoError(t, err)
	assert.InDelta(t, 103, quote.FillPrice, 1e-9, "scaler triples the 1%% linear slippage")

	trade, err := sim.Execute(context.Background(), order, testBar())
	require.NoError(t, err)
	assert.Equal(t, quote, trade)
	assert.Contains(t, logger.debugMsgs, "Order executed")
}

func TestParseModels(t *testing.T) {
	m, err := ParseSlippageModel(" SQRT ")
	require.NoError(t, err)
	assert.Equal(t, SlippageSqrt, m)

	_, err = ParseSlippageModel("cubic")
	assert.ErrorIs(t, err, ports.ErrUnknownSlippageModel)

	r, err := ParsePriceReference("")
	require.NoError(t, err)
	assert.Equal(t, PriceClose, r)

	_, err = ParsePriceReference("vwap")
	assert.ErrorIs(t, err, ports.ErrUnknownPriceReference)
}
