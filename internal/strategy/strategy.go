package strategy

import (
	"fmt"
	"sort"
	"strings"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
	"quantSim/internal/strategy/indicators"
	"quantSim/internal/strategy/strategies"
)

// Kind selects the signal provider variant built by New.
type Kind string

const (
	KindMACrossover  Kind = "ma_crossover"
	KindRSIReversion Kind = "rsi_reversion"
	KindBuyAndHold   Kind = "buy_and_hold"
	KindLinearModel  Kind = "linear_model"
	KindEnsemble     Kind = "ensemble"
)

// Config describes one strategy. Params are kind specific:
//
//	ma_crossover:  fast, slow, sma (1 for SMA), strength, atr_period, max_volatility, allow_short
//	rsi_reversion: period, oversold, overbought, strength, allow_short
//	buy_and_hold:  strength, quantity
//	linear_model:  w_momentum, w_trend, w_rsi, bias, threshold, fast, slow, rsi_period, allow_short
//	ensemble:      threshold, allow_short (plus Members and Weights)
type Config struct {
	Name    string             `yaml:"name"`
	Kind    Kind               `yaml:"kind"`
	Symbols []string           `yaml:"symbols"`
	Params  map[string]float64 `yaml:"params"`
	Weights []float64          `yaml:"weights"`
	Members []Config           `yaml:"members"`
}

// Param returns the named parameter or def when it is not set.
func (c Config) Param(name string, def float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}

func (c Config) flag(name string) bool {
	return c.Param(name, 0) != 0
}

// WithParams returns a copy of c with params overriding its own, named after them.
func (c Config) WithParams(params map[string]float64) Config {
	out := c
	out.Params = make(map[string]float64, len(c.Params)+len(params))
	for k, v := range c.Params {
		out.Params[k] = v
	}
	keys := make([]string, 0, len(params))
	for k, v := range params {
		out.Params[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, params[k])
	}
	out.Name = fmt.Sprintf("%s[%s]", c.Name, strings.Join(parts, ","))
	return out
}

// New builds the signal provider described by cfg. Every call returns a fresh
// instance with its own state, so one Config can back any number of runs.
func New(cfg Config, logger ports.Logger) (ports.SignalProvider, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Kind)
	}
	if cfg.Kind != KindEnsemble && len(cfg.Members) > 0 {
		return nil, fmt.Errorf("%w: %s: only ensembles take members", ports.ErrStrategyConfigMismatch, cfg.Name)
	}

	switch cfg.Kind {
	case KindMACrossover:
		maType := indicators.ExponentialMovingAverage
		if cfg.flag("sma") {
			maType = indicators.SimpleMovingAverage
		}
		return provider(strategies.NewMACrossover(strategies.MACrossoverConfig{
			Name:             cfg.Name,
			Symbols:          cfg.Symbols,
			FastPeriod:       int(cfg.Param("fast", 10)),
			SlowPeriod:       int(cfg.Param("slow", 30)),
			Type:             maType,
			Strength:         cfg.Param("strength", 1),
			ATRPeriod:        int(cfg.Param("atr_period", 0)),
			MaxVolatilityPct: cfg.Param("max_volatility", 0),
			AllowShort:       cfg.flag("allow_short"),
		}, logger))

	case KindRSIReversion:
		return provider(strategies.NewRSIReversion(strategies.RSIReversionConfig{
			Name:       cfg.Name,
			Symbols:    cfg.Symbols,
			Period:     int(cfg.Param("period", 14)),
			Oversold:   cfg.Param("oversold", 30),
			Overbought: cfg.Param("overbought", 70),
			Strength:   cfg.Param("strength", 1),
			AllowShort: cfg.flag("allow_short"),
		}, logger))

	case KindBuyAndHold:
		var qty *float64
		if q, ok := cfg.Params["quantity"]; ok {
			qty = domain.Size(q)
		}
		return provider(strategies.NewBuyAndHold(strategies.BuyAndHoldConfig{
			Name:     cfg.Name,
			Symbols:  cfg.Symbols,
			Strength: cfg.Param("strength", 1),
			Quantity: qty,
		}, logger))

	case KindLinearModel:
		model := strategies.LinearScorer{
			Weights: []float64{cfg.Param("w_momentum", 0), cfg.Param("w_trend", 0), cfg.Param("w_rsi", 0)},
			Bias:    cfg.Param("bias", 0),
		}
		return provider(strategies.NewLinearModel(strategies.LinearModelConfig{
			Name:       cfg.Name,
			Symbols:    cfg.Symbols,
			Model:      model,
			FastPeriod: int(cfg.Param("fast", 5)),
			SlowPeriod: int(cfg.Param("slow", 20)),
			RSIPeriod:  int(cfg.Param("rsi_period", 14)),
			Threshold:  cfg.Param("threshold", 0),
			AllowShort: cfg.flag("allow_short"),
		}, logger))

	case KindEnsemble:
		members := make([]ports.SignalProvider, 0, len(cfg.Members))
		for i, mc := range cfg.Members {
			if mc.Name == "" {
				mc.Name = fmt.Sprintf("%s.%d", cfg.Name, i)
			}
			if len(mc.Symbols) == 0 {
				mc.Symbols = cfg.Symbols
			}
			m, err := New(mc, logger)
			if err != nil {
				return nil, fmt.Errorf("ensemble %s member %d: %w", cfg.Name, i, err)
			}
			members = append(members, m)
		}
		return provider(strategies.NewEnsemble(strategies.EnsembleConfig{
			Name:       cfg.Name,
			Symbols:    cfg.Symbols,
			Members:    members,
			Weights:    cfg.Weights,
			Threshold:  cfg.Param("threshold", 0),
			AllowShort: cfg.flag("allow_short"),
		}, logger))
	}
	return nil, fmt.Errorf("%w: %q", ports.ErrUnknownStrategyKind, cfg.Kind)
}

// provider drops the concrete type so a failed constructor yields a nil interface.
func provider[T ports.SignalProvider](p T, err error) (ports.SignalProvider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Factory returns a constructor bound to cfg, for callers that need one
// provider per run.
func Factory(cfg Config, logger ports.Logger) func() (ports.SignalProvider, error) {
	return func() (ports.SignalProvider, error) {
		return New(cfg, logger)
	}
}
