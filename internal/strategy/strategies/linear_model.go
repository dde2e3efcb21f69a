package strategies

import (
	"context"
	"errors"
	"fmt"
	"math"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
	"quantSim/internal/strategy/indicators"
)

// Model scores a feature vector. Positive scores are bullish, negative bearish.
// Trained models live outside the simulator; they only have to satisfy this interface.
type Model interface {
	Predict(features []float64) (float64, error)
}

// LinearScorer is a Model computing Bias + Σ Weights[i]·features[i].
type LinearScorer struct {
	Weights []float64
	Bias    float64
}

// Predict implements Model.
func (l LinearScorer) Predict(features []float64) (float64, error) {
	if len(features) != len(l.Weights) {
		return 0, fmt.Errorf("model expects %d features, got %d", len(l.Weights), len(features))
	}
	score := l.Bias
	for i, f := range features {
		score += l.Weights[i] * f
	}
	return score, nil
}

// Feature names in the order FeatureVector produces them.
var FeatureNames = []string{"momentum", "trend", "rsi"}

// LinearModelConfig holds configuration for the model-backed strategy.
type LinearModelConfig struct {
	Name       string
	Symbols    []string
	Model      Model
	FastPeriod int     // Trend feature fast SMA, e.g. 5
	SlowPeriod int     // Trend feature slow SMA, e.g. 20
	RSIPeriod  int     // e.g. 14
	Threshold  float64 // |score| needed to take a view
	AllowShort bool
}

// LinearModel turns model scores over indicator features into intents.
// Strength is tanh(score), so stronger conviction sizes larger positions.
type LinearModel struct {
	*BaseStrategy
	config LinearModelConfig
}

// NewLinearModel creates a new model-backed strategy instance.
func NewLinearModel(config LinearModelConfig, logger ports.Logger) (*LinearModel, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("%w: model is required", ports.ErrStrategyConfigMismatch)
	}
	if config.FastPeriod <= 0 {
		config.FastPeriod = 5
	}
	if config.SlowPeriod <= 0 {
		config.SlowPeriod = 20
	}
	if config.RSIPeriod <= 0 {
		config.RSIPeriod = 14
	}
	if config.FastPeriod >= config.SlowPeriod {
		return nil, fmt.Errorf("%w: fast period must be less than slow period", ports.ErrStrategyConfigMismatch)
	}
	if config.Threshold < 0 {
		return nil, fmt.Errorf("%w: threshold must not be negative", ports.ErrStrategyConfigMismatch)
	}
	if config.Name == "" {
		config.Name = "linear_model"
	}
	capacity := max(config.SlowPeriod, config.RSIPeriod+1)
	base, err := NewBaseStrategy(config.Name, config.Symbols, capacity, logger)
	if err != nil {
		return nil, err
	}
	return &LinearModel{BaseStrategy: base, config: config}, nil
}

// SignalsFor implements ports.SignalProvider.
func (l *LinearModel) SignalsFor(ctx context.Context, bar domain.Bar, snapshot domain.PortfolioSnapshot) []domain.Intent {
	if !l.Trades(bar.Symbol) {
		return nil
	}
	bars := l.observe(bar)
	if len(bars) < l.capacity {
		return nil
	}
	features, err := FeatureVector(bars, l.config.FastPeriod, l.config.SlowPeriod, l.config.RSIPeriod)
	if err != nil {
		l.logger.Error(ctx, err, "Failed to build features")
		return nil
	}
	score, err := l.config.Model.Predict(features)
	if err != nil {
		l.logger.Error(ctx, err, "Model prediction failed", map[string]interface{}{"strategy": l.name})
		return nil
	}

	strength := math.Tanh(score)
	switch {
	case score > l.config.Threshold:
		return l.signal(ctx, bar.Symbol, domain.DirectionLong, strength)
	case score < -l.config.Threshold:
		dir := exitDirection(l.config.AllowShort)
		if dir == domain.DirectionFlat {
			strength = 0
		}
		return l.signal(ctx, bar.Symbol, dir, strength)
	}
	return nil
}

// FeatureVector builds the model inputs from bars, oldest first:
// last-bar momentum, fast/slow SMA spread and RSI centred on zero in [-0.5, 0.5].
func FeatureVector(bars []domain.Bar, fast, slow, rsiPeriod int) ([]float64, error) {
	if len(bars) < 2 {
		return nil, errors.New("at least two bars are required for features")
	}
	closes := indicators.Closes(bars)
	last, prev := closes[len(closes)-1], closes[len(closes)-2]
	if prev <= 0 {
		return nil, errors.New("non-positive close in history")
	}

	fastMA, err := indicators.SMA(closes, fast)
	if err != nil {
		return nil, err
	}
	slowMA, err := indicators.SMA(closes, slow)
	if err != nil {
		return nil, err
	}
	rsi, err := indicators.WilderRSI(closes, rsiPeriod)
	if err != nil {
		return nil, err
	}
	return []float64{last/prev - 1, fastMA/slowMA - 1, rsi/100 - 0.5}, nil
}
