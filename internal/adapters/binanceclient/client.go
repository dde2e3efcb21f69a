package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// maxPageSize is the largest page the klines endpoint serves.
	maxPageSize = 1500
)

// Client implements ports.KlineFetcher on the public Binance futures market data endpoints.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	limiter       *rate.Limiter
	maxRetries    int
	minBackoff    time.Duration
	maxBackoff    time.Duration
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey            string
	SecretKey         string
	UseTestnet        bool
	BaseURL           string // Overrides the production/testnet URL when set
	Logger            ports.Logger
	RequestsPerSecond float64       // Defaults to 10
	MaxRetries        int           // Retries for throttled or unavailable responses, defaults to 5
	MinBackoff        time.Duration // Defaults to 500ms
	MaxBackoff        time.Duration // Defaults to 30s
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance market data client configured", map[string]interface{}{"baseURL": client.BaseURL})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 5
	}
	minBackoff := cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = 500 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries:    retries,
		minBackoff:    minBackoff,
		maxBackoff:    maxBackoff,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1000, -1001, -1007: // Unknown, internal disconnect, backend timeout
			mappedErr = ports.ErrExchangeUnavailable
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2014, -2015: // API-key format or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func retryable(err error) bool {
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrExchangeUnavailable) ||
		errors.Is(err, ports.ErrConnectionFailed)
}

// do runs call under the rate limiter and retries throttled or transient failures with backoff.
func (c *Client) do(ctx context.Context, operation string, call func(ctx context.Context) error) error {
	b := &backoff.Backoff{Min: c.minBackoff, Max: c.maxBackoff, Factor: 2, Jitter: true}
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.handleError(ctx, err, operation)
		}
		err := c.handleError(ctx, call(ctx), operation)
		if err == nil || !retryable(err) || int(b.Attempt()) >= c.maxRetries {
			return err
		}
		delay := b.Duration()
		c.logger.Warn(ctx, "Retrying Binance request", map[string]interface{}{
			"operation": operation, "attempt": int(b.Attempt()), "delay": delay.String(),
		})
		select {
		case <-ctx.Done():
			return c.handleError(ctx, ctx.Err(), operation)
		case <-time.After(delay):
		}
	}
}

// Ping checks connectivity to the Binance API.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "Ping", func(ctx context.Context) error {
		return c.futuresClient.NewPingService().Do(ctx)
	})
}

// GetServerTime retrieves the current server time.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	var serverTime int64
	err := c.do(ctx, "GetServerTime", func(ctx context.Context) error {
		var err error
		serverTime, err = c.futuresClient.NewServerTimeService().Do(ctx)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(serverTime).UTC(), nil
}

// GetKlines retrieves the most recent closed bars for symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]domain.Bar, error) {
	op := "GetKlines"
	if limit <= 0 || limit > maxPageSize {
		return nil, fmt.Errorf("%s failed: %w: limit must be in [1, %d]", op, ports.ErrInvalidRequest, maxPageSize)
	}
	var klines []*futures.Kline
	err := c.do(ctx, op, func(ctx context.Context) error {
		var err error
		klines, err = c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.translate(ctx, klines, symbol, interval, op)
}

// GetKlinesRange fetches every bar between start and end, paging forward from start.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	op := "GetKlinesRange"
	if end.Before(start) {
		return nil, fmt.Errorf("%s failed: %w: end before start", op, ports.ErrInvalidRequest)
	}
	var all []domain.Bar
	from := start

	for {
		var klines []*futures.Kline
		err := c.do(ctx, op, func(ctx context.Context) error {
			var err error
			klines, err = c.futuresClient.NewKlinesService().
				Symbol(symbol).
				Interval(interval).
				StartTime(from.UnixMilli()).
				EndTime(end.UnixMilli()).
				Limit(maxPageSize).
				Do(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		bars, err := c.translate(ctx, klines, symbol, interval, op)
		if err != nil {
			return nil, err
		}
		all = append(all, bars...)

		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxPageSize {
			break
		}
	}

	c.logger.Info(ctx, "Fetched historical bars", map[string]interface{}{
		"symbol": symbol, "interval": interval, "bars": len(all),
	})
	return all, nil
}

func (c *Client) translate(ctx context.Context, klines []*futures.Kline, symbol, interval, op string) ([]domain.Bar, error) {
	bars := make([]domain.Bar, 0, len(klines))
	for _, bk := range klines {
		bar, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// translateBinanceKline converts a futures kline into a bar stamped with its open time.
func translateBinanceKline(bk *futures.Kline, symbol, interval string) (domain.Bar, error) {
	if bk == nil {
		return domain.Bar{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Bar{
		Symbol:    symbol,
		Interval:  interval,
		Timestamp: time.UnixMilli(bk.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
