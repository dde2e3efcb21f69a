package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"quantSim/internal/adapters/logger" // Import the logger package for LogLevel
	"quantSim/internal/execution"
	"quantSim/internal/risk"
	"quantSim/internal/strategy/analytics"
	"quantSim/internal/strategy/comparison"
)

// Config holds all application configuration.
type Config struct {
	// Portfolio
	InitialCapital float64

	// Execution costs
	CommissionRate       float64
	MinCommission        float64
	TaxRate              float64
	TaxOnBuy             bool
	SlippageRate         float64
	SlippageModel        execution.SlippageModel
	PriceReference       execution.PriceReference
	MaxParticipationRate float64

	// Risk limits
	MaxPositionPct      float64
	MaxGrossExposurePct float64
	MaxDrawdown         float64
	VarLimit            float64
	VarConfidence       float64
	VarWindow           int
	VarMethod           risk.VarMethod
	StopLossPct         float64
	TakeProfitPct       float64
	AllowShort          bool
	LotSize             float64

	// Analytics and comparison
	PeriodsPerYear float64
	RiskFreeRate   float64
	PrimaryMetric  comparison.Metric
	Workers        int // 0 means one worker per CPU

	// Inputs and outputs
	BarsCSV   string // Historical bars; when empty bars are downloaded from Binance
	SuitePath string // YAML strategy/scenario suite
	OutputDir string // CSV exports, empty disables them
	DBPath    string // SQLite result store, empty disables persistence

	// Binance market data
	APIKey             string
	SecretKey          string
	IsTestnet          bool
	FetchRatePerMinute int

	// Logging and metrics
	LogLevel    logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat   string          // "text" or "json"
	MetricsAddr string          // Serves /metrics when set, e.g. ":9090"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	floatVar := func(dst *float64, key string, def float64, check func(float64) string) {
		*dst, err = getEnvAsFloatRequired(key, def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			return
		}
		if check != nil {
			if msg := check(*dst); msg != "" {
				errs = append(errs, key+" "+msg)
			}
		}
	}
	nonNegative := func(v float64) string {
		if v < 0 {
			return "cannot be negative"
		}
		return ""
	}
	fraction := func(v float64) string {
		if v < 0 || v >= 1 {
			return "must be in [0, 1)"
		}
		return ""
	}

	// Portfolio
	floatVar(&cfg.InitialCapital, "INITIAL_CAPITAL", 100000, func(v float64) string {
		if v <= 0 {
			return "must be positive"
		}
		return ""
	})

	// Execution costs
	floatVar(&cfg.CommissionRate, "COMMISSION_RATE", 0.001, nonNegative)
	floatVar(&cfg.MinCommission, "MIN_COMMISSION", 0, nonNegative)
	floatVar(&cfg.TaxRate, "TAX_RATE", 0, nonNegative)
	cfg.TaxOnBuy = getEnvAsBool("TAX_ON_BUY", false)
	floatVar(&cfg.SlippageRate, "SLIPPAGE_RATE", 0.0005, nonNegative)
	floatVar(&cfg.MaxParticipationRate, "MAX_PARTICIPATION_RATE", 0.1, nonNegative)
	if cfg.SlippageModel, err = execution.ParseSlippageModel(getEnv("SLIPPAGE_MODEL", "")); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SLIPPAGE_MODEL: %v", err))
	}
	if cfg.PriceReference, err = execution.ParsePriceReference(getEnv("PRICE_REFERENCE", "")); err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_REFERENCE: %v", err))
	}

	// Risk limits
	floatVar(&cfg.MaxPositionPct, "MAX_POSITION_PCT", 0.95, func(v float64) string {
		if v <= 0 {
			return "must be positive"
		}
		return ""
	})
	floatVar(&cfg.MaxGrossExposurePct, "MAX_GROSS_EXPOSURE_PCT", 0, nonNegative)
	floatVar(&cfg.MaxDrawdown, "MAX_DRAWDOWN", 0.5, fraction)
	floatVar(&cfg.VarLimit, "VAR_LIMIT", 0, nonNegative)
	floatVar(&cfg.VarConfidence, "VAR_CONFIDENCE", 0.95, func(v float64) string {
		if v <= 0 || v >= 1 {
			return "must be in (0, 1)"
		}
		return ""
	})
	cfg.VarWindow, err = getEnvAsIntRequired("VAR_WINDOW", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid VAR_WINDOW: %v", err))
	} else if cfg.VarWindow < 2 {
		errs = append(errs, "VAR_WINDOW must be at least 2")
	}
	if cfg.VarMethod, err = risk.ParseVarMethod(getEnv("VAR_METHOD", "")); err != nil {
		errs = append(errs, fmt.Sprintf("invalid VAR_METHOD: %v", err))
	}
	floatVar(&cfg.StopLossPct, "STOP_LOSS_PCT", 0, fraction)
	floatVar(&cfg.TakeProfitPct, "TAKE_PROFIT_PCT", 0, nonNegative)
	cfg.AllowShort = getEnvAsBool("ALLOW_SHORT", false)
	floatVar(&cfg.LotSize, "LOT_SIZE", 0, nonNegative)

	// Analytics and comparison
	floatVar(&cfg.PeriodsPerYear, "PERIODS_PER_YEAR", analytics.DefaultPeriodsPerYear, func(v float64) string {
		if v <= 0 {
			return "must be positive"
		}
		return ""
	})
	floatVar(&cfg.RiskFreeRate, "RISK_FREE_RATE", 0, nil)
	if cfg.PrimaryMetric, err = comparison.ParseMetric(getEnv("PRIMARY_METRIC", "")); err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRIMARY_METRIC: %v", err))
	}
	cfg.Workers, err = getEnvAsIntRequired("WORKERS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WORKERS: %v", err))
	} else if cfg.Workers < 0 {
		errs = append(errs, "WORKERS cannot be negative")
	}

	// Inputs and outputs
	cfg.BarsCSV = getEnv("BARS_CSV", "")
	cfg.SuitePath = getEnv("SUITE_PATH", "./suite.yaml")
	if cfg.SuitePath == "" {
		errs = append(errs, "SUITE_PATH must be set")
	}
	cfg.OutputDir = getEnv("OUTPUT_DIR", "")
	cfg.DBPath = getEnv("DB_PATH", "")

	// Binance market data (public endpoints need no keys)
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	cfg.FetchRatePerMinute, err = getEnvAsIntRequired("FETCH_RATE_PER_MINUTE", 600)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_RATE_PER_MINUTE: %v", err))
	} else if cfg.FetchRatePerMinute <= 0 {
		errs = append(errs, "FETCH_RATE_PER_MINUTE must be positive")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// CostModel returns the execution cost parameters of a run.
func (c *Config) CostModel() execution.CostModel {
	return execution.CostModel{
		CommissionRate:       c.CommissionRate,
		MinCommission:        c.MinCommission,
		TaxRate:              c.TaxRate,
		TaxOnBuy:             c.TaxOnBuy,
		SlippageRate:         c.SlippageRate,
		SlippageModel:        c.SlippageModel,
		MaxParticipationRate: c.MaxParticipationRate,
		PriceReference:       c.PriceReference,
	}
}

// RiskLimits returns the risk parameters of a run.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		MaxPositionPct:      c.MaxPositionPct,
		MaxGrossExposurePct: c.MaxGrossExposurePct,
		MaxDrawdown:         c.MaxDrawdown,
		VarLimit:            c.VarLimit,
		VarConfidence:       c.VarConfidence,
		VarWindow:           c.VarWindow,
		VarMethod:           c.VarMethod,
		StopLossPct:         c.StopLossPct,
		TakeProfitPct:       c.TakeProfitPct,
		AllowShort:          c.AllowShort,
		LotSize:             c.LotSize,
	}
}

// AnalyticsOptions returns the annualisation settings. InitialCapital is filled in by each run.
func (c *Config) AnalyticsOptions() analytics.Options {
	return analytics.Options{
		PeriodsPerYear: c.PeriodsPerYear,
		RiskFreeRate:   c.RiskFreeRate,
	}
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
