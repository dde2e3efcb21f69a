package binanceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantSim/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var _ ports.KlineFetcher = (*Client)(nil)

// klineRow renders one row of the klines endpoint for an hourly bar opening at openMs.
func klineRow(openMs int64, price float64) []interface{} {
	c := strconv.FormatFloat(price, 'f', 2, 64)
	return []interface{}{
		openMs, c, c, c, c, "10.5", openMs + int64(time.Hour/time.Millisecond) - 1,
		"1000", 5, "5", "500", "0",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:           srv.URL,
		Logger:            &mockLogger{},
		RequestsPerSecond: 1000,
		MaxRetries:        3,
		MinBackoff:        time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestGetKlinesRange_Paginates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := maxPageSize + 10
	var calls int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		atomic.AddInt32(&calls, 1)
		from, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		first := int((from - start.UnixMilli() + int64(time.Hour/time.Millisecond) - 1) / int64(time.Hour/time.Millisecond))
		rows := make([][]interface{}, 0)
		for i := first; i < total && len(rows) < maxPageSize; i++ {
			rows = append(rows, klineRow(start.Add(time.Duration(i)*time.Hour).UnixMilli(), 100+float64(i)))
		}
		assert.NoError(t, json.NewEncoder(w).Encode(rows))
	})

	bars, err := c.GetKlinesRange(context.Background(), "BTCUSDT", "1h", start, start.Add(time.Duration(total)*time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, total)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, start, bars[0].Timestamp)
	assert.Equal(t, "BTCUSDT", bars[0].Symbol)
	assert.Equal(t, "1h", bars[0].Interval)
	assert.Equal(t, 10.5, bars[0].Volume)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i].Timestamp.After(bars[i-1].Timestamp))
	}
}

func TestGetKlines_RetriesRateLimit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
			return
		}
		_ = json.NewEncoder(w).Encode([][]interface{}{klineRow(0, 42)})
	})

	bars, err := c.GetKlines(context.Background(), "ETHUSDT", "1h", 1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 42.0, bars[0].Close)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetKlines_MapsErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := c.GetKlines(context.Background(), "NOPE", "1h", 10)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "invalid requests are not retried")

	_, err = c.GetKlines(context.Background(), "BTCUSDT", "1h", 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = c.GetKlinesRange(context.Background(), "BTCUSDT", "1h", time.Unix(10, 0), time.Unix(0, 0))
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestGetKlines_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	})

	_, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 10)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestPingAndServerTime(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/ping":
			_, _ = w.Write([]byte(`{}`))
		case "/fapi/v1/time":
			_, _ = w.Write([]byte(`{"serverTime":1704067200000}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	require.NoError(t, c.Ping(context.Background()))
	ts, err := c.GetServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts)
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
