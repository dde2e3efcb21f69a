package indicators

import (
	"fmt"

	"quantSim/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA over bar closes.
type MovingAverage struct {
	BaseIndicator
	maType MovingAverageType
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		maType:        config.Type,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.maType)
}

// Calculate computes the moving average of the closes in bars.
func (m *MovingAverage) Calculate(bars []domain.Bar) (float64, error) {
	closes := Closes(bars)
	switch m.maType {
	case SimpleMovingAverage:
		return SMA(closes, m.Config.Period)
	case ExponentialMovingAverage:
		return EMA(closes, m.Config.Period)
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.maType)
	}
}

// Closes extracts the close prices of bars.
func Closes(bars []domain.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// SMA returns the mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate SMA for period %d", len(values), period)
	}
	var total float64
	for _, v := range values[len(values)-period:] {
		total += v
	}
	return total / float64(period), nil
}

// EMA seeds with the SMA of the first period values and smooths the rest
// with multiplier 2/(period+1).
func EMA(values []float64, period int) (float64, error) {
	seed, err := SMA(values[:min(period, len(values))], period)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate initial SMA for EMA: %w", err)
	}
	multiplier := 2.0 / float64(period+1)
	ema := seed
	for _, v := range values[period:] {
		ema += (v - ema) * multiplier
	}
	return ema, nil
}
