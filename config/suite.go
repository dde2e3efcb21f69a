package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quantSim/internal/ports"
	"quantSim/internal/scenario"
	"quantSim/internal/strategy"
	"quantSim/internal/strategy/comparison"
)

// Suite is a YAML file naming the strategies to compare, the market data to
// download when no CSV is configured, and the stress scenarios to replay.
type Suite struct {
	Metric     string         `yaml:"metric"`
	Data       DataSpec       `yaml:"data"`
	Strategies []StrategySpec `yaml:"strategies"`
	Scenarios  []ScenarioSpec `yaml:"scenarios"`
}

// DataSpec describes the historical bars to fetch from the exchange.
type DataSpec struct {
	Symbols  []string  `yaml:"symbols"`
	Interval string    `yaml:"interval"`
	Start    time.Time `yaml:"start"`
	End      time.Time `yaml:"end"`
}

// StrategySpec is a strategy config with an optional parameter grid.
type StrategySpec struct {
	strategy.Config `yaml:",inline"`
	Grid            []comparison.ParameterRange `yaml:"grid"`
}

// ScenarioSpec mirrors scenario.Config with YAML-friendly durations.
type ScenarioSpec struct {
	Name               string    `yaml:"name"`
	Kind               string    `yaml:"kind"`
	Start              time.Time `yaml:"start"`
	End                time.Time `yaml:"end"`
	Symbols            []string  `yaml:"symbols"`
	CrashPct           float64   `yaml:"crash_pct"`
	Shape              string    `yaml:"shape"`
	Steps              int       `yaml:"steps"`
	Recovery           string    `yaml:"recovery"` // Go duration, e.g. "48h"
	RecoveryPct        float64   `yaml:"recovery_pct"`
	VolumeReduction    float64   `yaml:"volume_reduction"`
	SlippageMultiplier float64   `yaml:"slippage_multiplier"`
	VolatilityFactor   float64   `yaml:"volatility_factor"`
	Seed               int64     `yaml:"seed"`
	Jitter             float64   `yaml:"jitter"`
}

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite %s: %w", path, err)
	}
	return ParseSuite(data)
}

// ParseSuite decodes and validates a suite document.
func ParseSuite(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decoding suite: %v", ports.ErrConfigurationError, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the suite for errors that would only surface mid-run.
func (s *Suite) Validate() error {
	var errs []error
	if len(s.Strategies) == 0 {
		errs = append(errs, errors.New("at least one strategy is required"))
	}
	if _, err := comparison.ParseMetric(s.Metric); err != nil {
		errs = append(errs, err)
	}
	for i, sc := range s.Scenarios {
		if _, err := sc.ScenarioConfig(); err != nil {
			errs = append(errs, fmt.Errorf("scenario %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ports.ErrConfigurationError, errors.Join(errs...))
	}
	return nil
}

// StrategyConfigs expands every strategy grid into concrete configs.
func (s *Suite) StrategyConfigs() ([]strategy.Config, error) {
	var configs []strategy.Config
	for _, entry := range s.Strategies {
		expanded, err := comparison.ExpandGrid(entry.Config, entry.Grid)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", entry.Name, err)
		}
		configs = append(configs, expanded...)
	}
	return configs, nil
}

// ScenarioConfig converts the YAML entry into a validated scenario config.
func (sc ScenarioSpec) ScenarioConfig() (scenario.Config, error) {
	kind, err := scenario.ParseKind(sc.Kind)
	if err != nil {
		return scenario.Config{}, err
	}
	var recovery time.Duration
	if strings.TrimSpace(sc.Recovery) != "" {
		recovery, err = time.ParseDuration(sc.Recovery)
		if err != nil {
			return scenario.Config{}, fmt.Errorf("scenario %q: invalid recovery: %w", sc.Name, err)
		}
	}
	cfg := scenario.Config{
		Name:               sc.Name,
		Kind:               kind,
		Start:              sc.Start,
		End:                sc.End,
		Symbols:            sc.Symbols,
		CrashPct:           sc.CrashPct,
		Shape:              scenario.Shape(strings.ToLower(sc.Shape)),
		Steps:              sc.Steps,
		Recovery:           recovery,
		RecoveryPct:        sc.RecoveryPct,
		VolumeReduction:    sc.VolumeReduction,
		SlippageMultiplier: sc.SlippageMultiplier,
		VolatilityFactor:   sc.VolatilityFactor,
		Seed:               sc.Seed,
		Jitter:             sc.Jitter,
	}
	if cfg.Name == "" {
		cfg.Name = string(kind)
	}
	if err := cfg.Validate(); err != nil {
		return scenario.Config{}, err
	}
	return cfg, nil
}
