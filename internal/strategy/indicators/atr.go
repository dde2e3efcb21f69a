package indicators

import (
	"fmt"
	"math"

	"quantSim/internal/domain"
)

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config IndicatorConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// RequiredDataPoints needs a previous close for the first true range.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the Average True Range with Wilder's smoothing.
func (a *ATR) Calculate(bars []domain.Bar) (float64, error) {
	period := a.Config.Period
	if period <= 0 || len(bars) < period+1 {
		return 0, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(bars))
	}

	tr := func(i int) float64 {
		if i == 0 {
			return bars[0].Range()
		}
		prev := bars[i-1].Close
		return math.Max(bars[i].Range(), math.Max(math.Abs(bars[i].High-prev), math.Abs(bars[i].Low-prev)))
	}

	var atr float64
	for i := 0; i < period; i++ {
		atr += tr(i)
	}
	atr /= float64(period)
	for i := period; i < len(bars); i++ {
		atr = (atr*float64(period-1) + tr(i)) / float64(period)
	}
	return atr, nil
}
