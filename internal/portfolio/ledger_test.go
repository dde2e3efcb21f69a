package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func trade(side domain.OrderSide, qty, price, commission float64) domain.Trade {
	return domain.Trade{
		Symbol:     "ETHUSDT",
		Side:       side,
		Quantity:   qty,
		FillPrice:  price,
		Commission: commission,
		Timestamp:  t0,
	}
}

func bar(close float64) domain.Bar {
	return domain.Bar{Symbol: "ETHUSDT", Timestamp: t0, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestNewLedger(t *testing.T) {
	_, err := NewLedger(0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	l, err := NewLedger(10000)
	require.NoError(t, err)
	snap := l.Snapshot()
	assert.Equal(t, 10000.0, snap.Cash)
	assert.Equal(t, 10000.0, snap.Equity)
	assert.Equal(t, 10000.0, snap.PeakEquity)
	assert.Equal(t, 0.0, snap.Drawdown)
	assert.Empty(t, snap.Positions)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name         string
		trades       []domain.Trade
		wantCash     float64
		wantQty      float64
		wantAvgCost  float64
		wantRealized float64
		lastClosing  bool
	}{
		{
			name:        "open long folds fees into cost",
			trades:      []domain.Trade{trade(domain.Buy, 10, 100, 1)},
			wantCash:    10000 - 1000 - 1,
			wantQty:     10,
			wantAvgCost: 100.1,
		},
		{
			name:        "add to long uses weighted average",
			trades:      []domain.Trade{trade(domain.Buy, 10, 100, 0), trade(domain.Buy, 10, 120, 0)},
			wantCash:    10000 - 1000 - 1200,
			wantQty:     20,
			wantAvgCost: 110,
		},
		{
			name:         "partial close realizes against average cost",
			trades:       []domain.Trade{trade(domain.Buy, 10, 100, 0), trade(domain.Sell, 4, 110, 2)},
			wantCash:     10000 - 1000 + 440 - 2,
			wantQty:      6,
			wantAvgCost:  100,
			wantRealized: 40 - 2,
			lastClosing:  true,
		},
		{
			name:         "full close resets average cost",
			trades:       []domain.Trade{trade(domain.Buy, 10, 100, 0), trade(domain.Sell, 10, 90, 0)},
			wantCash:     10000 - 1000 + 900,
			wantQty:      0,
			wantAvgCost:  0,
			wantRealized: -100,
			lastClosing:  true,
		},
		{
			name:         "flip closes then opens remainder",
			trades:       []domain.Trade{trade(domain.Buy, 10, 100, 0), trade(domain.Sell, 15, 110, 3)},
			wantCash:     10000 - 1000 + 1650 - 3,
			wantQty:      -5,
			wantAvgCost:  109.8, // (5*110 - 1) / 5
			wantRealized: 100 - 2,
			lastClosing:  true,
		},
		{
			name:        "open short credits cash",
			trades:      []domain.Trade{trade(domain.Sell, 5, 200, 1)},
			wantCash:    10000 + 1000 - 1,
			wantQty:     -5,
			wantAvgCost: 199.8,
		},
		{
			name:         "cover short realizes gain on price drop",
			trades:       []domain.Trade{trade(domain.Sell, 5, 200, 0), trade(domain.Buy, 5, 180, 0)},
			wantCash:     10000 + 1000 - 900,
			wantQty:      0,
			wantRealized: 100,
			lastClosing:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLedger(10000)
			require.NoError(t, err)

			var booked domain.Trade
			for _, tr := range tt.trades {
				booked, err = l.Apply(tr)
				require.NoError(t, err)
			}

			snap := l.Snapshot()
			pos := snap.Position("ETHUSDT")
			assert.InDelta(t, tt.wantCash, snap.Cash, 1e-9)
			assert.InDelta(t, tt.wantQty, pos.Quantity, 1e-12)
			assert.InDelta(t, tt.wantAvgCost, pos.AverageCost, 1e-9)
			assert.InDelta(t, tt.wantRealized, pos.RealizedPnL, 1e-9)
			assert.Equal(t, tt.lastClosing, booked.Closing)
			assert.Len(t, l.Trades(), len(tt.trades))
		})
	}
}

func TestApplyRejectsNegativeCash(t *testing.T) {
	l, err := NewLedger(1000)
	require.NoError(t, err)

	before := l.Snapshot()
	_, err = l.Apply(trade(domain.Buy, 10, 100, 1))
	assert.ErrorIs(t, err, ports.ErrNegativeCash)
	assert.Equal(t, before, l.Snapshot(), "ledger must be unchanged after a refused trade")
	assert.Empty(t, l.Trades())

	_, err = l.Apply(trade(domain.Buy, 10, 100, 0))
	require.NoError(t, err, "spending exactly all cash is allowed")
	assert.Equal(t, 0.0, l.Snapshot().Cash)
}

func TestApplyIsPure(t *testing.T) {
	state, err := NewState(10000)
	require.NoError(t, err)

	next, _, err := Apply(state, trade(domain.Buy, 1, 100, 0))
	require.NoError(t, err)
	assert.Empty(t, state.Positions, "input state must not be mutated")
	assert.Len(t, next.Positions, 1)
}

func TestMarkToMarketAndEquityIdentity(t *testing.T) {
	l, err := NewLedger(10000)
	require.NoError(t, err)

	steps := []struct {
		tr    *domain.Trade
		close float64
	}{
		{tr: ptr(trade(domain.Buy, 20, 100, 2)), close: 101},
		{close: 110},
		{tr: ptr(trade(domain.Sell, 5, 109, 0.5)), close: 95},
		{tr: ptr(trade(domain.Sell, 30, 96, 3)), close: 90},
		{close: 99},
	}

	peak := 10000.0
	for i, s := range steps {
		if s.tr != nil {
			_, err := l.Apply(*s.tr)
			require.NoError(t, err, "step %d", i)
		}
		point := l.MarkToMarket(bar(s.close))
		state := l.State()

		assert.True(t, state.Equity.Equal(state.Cash.Add(state.marketValue())))
		lhs := state.Equity.InexactFloat64() - 10000
		rhs := state.RealizedPnL().Add(state.UnrealizedPnL()).InexactFloat64()
		assert.InDelta(t, lhs, rhs, 1e-6, "equity identity at step %d", i)

		snap := l.Snapshot()
		assert.GreaterOrEqual(t, snap.Cash, 0.0)
		assert.GreaterOrEqual(t, snap.PeakEquity, peak, "peak must be non-decreasing")
		peak = snap.PeakEquity
		assert.InDelta(t, 1-snap.Equity/snap.PeakEquity, snap.Drawdown, 1e-9)
		assert.Equal(t, snap.Equity, point.Equity)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	l, err := NewLedger(10000)
	require.NoError(t, err)
	_, err = l.Apply(trade(domain.Buy, 1, 100, 0))
	require.NoError(t, err)

	snap := l.Snapshot()
	snap.Positions["ETHUSDT"] = domain.Position{Quantity: 999}
	assert.Equal(t, 1.0, l.Snapshot().Position("ETHUSDT").Quantity)

	trades := l.Trades()
	trades[0].Quantity = 999
	assert.Equal(t, 1.0, l.Trades()[0].Quantity)
}

func ptr(t domain.Trade) *domain.Trade { return &t }
