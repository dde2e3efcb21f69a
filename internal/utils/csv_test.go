package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

func TestBarsCSVRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		{Symbol: "BTCUSDT", Interval: "1h", Timestamp: start, Open: 100, High: 101.5, Low: 99, Close: 100.25, Volume: 12},
		{Symbol: "ETHUSDT", Interval: "1h", Timestamp: start.Add(time.Hour), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 300},
	}
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, WriteBarsToCSV(bars, path))

	got, err := ReadBarsFromCSV(path, "IGNORED")
	require.NoError(t, err)
	assert.Equal(t, bars, got)
}

func TestReadBars(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []domain.Bar
		wantErr error
	}{
		{
			name:  "millisecond timestamps and default symbol",
			input: "open_time,open,high,low,close,volume\n1704067200000,1,2,0.5,1.5,10\n",
			want: []domain.Bar{{
				Symbol: "SOLUSDT", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
			}},
		},
		{
			name:    "missing column",
			input:   "timestamp,open,high,low,close\n",
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name:    "bad number",
			input:   "timestamp,open,high,low,close,volume\n2024-01-01T00:00:00Z,x,2,1,1,1\n",
			wantErr: ports.ErrMalformedBar,
		},
		{
			name:    "bad timestamp",
			input:   "timestamp,open,high,low,close,volume\nyesterday,1,2,1,1,1\n",
			wantErr: ports.ErrMalformedBar,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: ports.ErrEmptyDataset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadBars(strings.NewReader(tt.input), "SOLUSDT")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteTradesAndEquity(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tradesPath := filepath.Join(dir, "trades.csv")
	require.NoError(t, WriteTradesToCSV([]domain.Trade{{
		Symbol: "BTCUSDT", Side: domain.Sell, Quantity: 2, FillPrice: 99.5, ReferencePrice: 100,
		Commission: 0.2, Timestamp: ts, Reason: domain.SourceStopLoss, RealizedPnL: -5, Closing: true,
	}}, tradesPath))
	data, err := os.ReadFile(tradesPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-01-01T00:00:00Z,BTCUSDT,SELL,2,99.5,100,0.2,0,0,-5,true,stop_loss", lines[1])

	equityPath := filepath.Join(dir, "equity.csv")
	require.NoError(t, WriteEquityCurveToCSV([]domain.EquityPoint{{Timestamp: ts, Equity: 1000, Cash: 400, Drawdown: 0.1, Exposure: 600}}, equityPath))
	data, err = os.ReadFile(equityPath)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,equity,cash,drawdown,exposure\n2024-01-01T00:00:00Z,1000,400,0.1,600\n", string(data))
}
