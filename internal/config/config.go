// Package config loads and validates the pipeline's runtime configuration
// (spec.md §6). Loading uses github.com/spf13/viper the way the teacher
// did (YAML + env override), but the schema itself is rewritten entirely
// for this domain: no server/database/websocket/auth sections survive.
//
// A schema_version field gates reload: an incompatible version is a
// KindConfig error and the old config is kept (spec.md §7 "reject reload,
// keep old config"), checked via Masterminds/semver/v3 — a teacher
// dependency previously unused anywhere in the tree.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
)

// SchemaVersionConstraint is the range of config schema versions this
// binary accepts. Bumped whenever a breaking field is added/removed.
const SchemaVersionConstraint = ">= 1.0.0, < 2.0.0"

// Config is the full runtime configuration (spec.md §6 "Config schema").
type Config struct {
	SchemaVersion string `mapstructure:"schema_version" validate:"required"`

	Performance struct {
		CommandChannelSize int `mapstructure:"command_channel_size" validate:"min=1"`
	} `mapstructure:"performance"`

	CentralManager struct {
		EventBufferSize int `mapstructure:"event_buffer_size" validate:"min=1"`
	} `mapstructure:"central_manager"`

	QualityThresholds struct {
		MaxBatchSize      int `mapstructure:"max_batch_size" validate:"min=1"`
		MaxOrderbookCount int `mapstructure:"max_orderbook_count" validate:"min=1"`
	} `mapstructure:"quality_thresholds"`

	Cache struct {
		L2Directory   string `mapstructure:"l2_directory"`
		L3Directory   string `mapstructure:"l3_directory"`
		LogDirectory  string `mapstructure:"log_directory"`
		AutoCreateDirs bool  `mapstructure:"auto_create_dirs"`
	} `mapstructure:"cache"`

	MarketState struct {
		VolatilityNormalThreshold float64 `mapstructure:"volatility_normal_threshold"`
		VolatilityExtremeThreshold float64 `mapstructure:"volatility_extreme_threshold"`
		LiquidityNormalThreshold  float64 `mapstructure:"liquidity_normal_threshold"`
		LiquidityExtremeThreshold float64 `mapstructure:"liquidity_extreme_threshold"`
		VolumeSpikeThreshold      float64 `mapstructure:"volume_spike_threshold"`
		VolumeExtremeThreshold    float64 `mapstructure:"volume_extreme_threshold"`
		PriceChangeNormalThreshold float64 `mapstructure:"price_change_normal_threshold"`
		PriceChangeExtremeThreshold float64 `mapstructure:"price_change_extreme_threshold"`
		APILatencyNormalThreshold  float64 `mapstructure:"api_latency_normal_threshold"`
		APILatencyExtremeThreshold float64 `mapstructure:"api_latency_extreme_threshold"`
		StateChangePersistenceMinutes int  `mapstructure:"state_change_persistence_minutes" validate:"min=0"`
		IndicatorConsensusCount       int  `mapstructure:"indicator_consensus_count" validate:"min=1"`
		Weights struct {
			Volatility   float64 `mapstructure:"volatility"`
			Liquidity    float64 `mapstructure:"liquidity"`
			Volume       float64 `mapstructure:"volume"`
			PriceChange  float64 `mapstructure:"price_change"`
			APIHealth    float64 `mapstructure:"api_health"`
			ExternalRisk float64 `mapstructure:"external_risk"`
		} `mapstructure:"weights"`
	} `mapstructure:"market_state"`

	MinProfit struct {
		NormalMinProfit     float64 `mapstructure:"normal_min_profit"`
		CautionMinProfit    float64 `mapstructure:"caution_min_profit"`
		ExtremeMinProfit    float64 `mapstructure:"extreme_min_profit"`
		AdaptiveAdjustment  bool    `mapstructure:"adaptive_adjustment"`
		SuccessRateThreshold float64 `mapstructure:"success_rate_threshold"`
		AdjustmentFactor    float64 `mapstructure:"adjustment_factor"`
	} `mapstructure:"min_profit"`

	// Exchanges lists the NATS-backed reference adapters to stand up at
	// startup (spec.md §9's one concrete adapter). Additional adapter
	// implementations are wired by an operator outside this schema.
	Exchanges []ExchangeConfig `mapstructure:"exchanges"`

	LogLevel string `mapstructure:"log_level"`
}

// ExchangeConfig configures one pkg/adapter/nats.Adapter instance.
type ExchangeConfig struct {
	ID      string   `mapstructure:"id" validate:"required"`
	NATSURL string   `mapstructure:"nats_url" validate:"required"`
	Symbols []string `mapstructure:"symbols" validate:"min=1"`
	Scale   uint8    `mapstructure:"scale"`
}

var (
	current *Config
	once    sync.Once
	mu      sync.RWMutex
	validate = validator.New()
)

// Load reads configuration from configPath (a directory) plus
// ARB_-prefixed environment variables, validating both the struct tags and
// the schema_version compatibility range before accepting it.
func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		cfg := &Config{}
		setDefaults(cfg)

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/arb-pipeline")
		}
		v.AutomaticEnv()
		v.SetEnvPrefix("ARB")

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = pipelineerrors.Wrap(readErr, pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "reading config file")
				return
			}
		}
		if unmarshalErr := v.Unmarshal(cfg); unmarshalErr != nil {
			err = pipelineerrors.Wrap(unmarshalErr, pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "unmarshaling config")
			return
		}
		if validateErr := Validate(cfg); validateErr != nil {
			err = validateErr
			return
		}

		mu.Lock()
		current = cfg
		mu.Unlock()
	})

	mu.RLock()
	defer mu.RUnlock()
	return current, err
}

// Validate checks struct tags and the schema_version compatibility range.
// A failure here means "reject reload, keep old config" (spec.md §7).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "config struct validation failed")
	}

	constraint, err := semver.NewConstraint(SchemaVersionConstraint)
	if err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindInternal, pipelineerrors.CodeInvalidSchema, "parsing schema version constraint")
	}
	version, err := semver.NewVersion(cfg.SchemaVersion)
	if err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "parsing config schema_version")
	}
	if !constraint.Check(version) {
		return pipelineerrors.Newf(pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "schema_version %s does not satisfy %s", cfg.SchemaVersion, SchemaVersionConstraint)
	}
	return nil
}

// Current returns the active configuration, loading it with defaults on
// first access if Load has not been called yet.
func Current() *Config {
	mu.RLock()
	c := current
	mu.RUnlock()
	if c != nil {
		return c
	}
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("failed to load default config: %v", err))
	}
	return cfg
}

// Reload re-reads configPath and atomically swaps Current's backing value,
// rejecting the new config (and keeping the old one in place) if it fails
// validation (spec.md §7 Config-kind error policy).
func Reload(configPath string) error {
	cfg := &Config{}
	setDefaults(cfg)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AutomaticEnv()
	v.SetEnvPrefix("ARB")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return pipelineerrors.Wrap(err, pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "reading config file on reload")
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "unmarshaling config on reload")
	}
	if err := Validate(cfg); err != nil {
		return err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// Save writes cfg's schema_version and log_level to path, creating its
// directory if needed (kept for operator tooling/debugging, not on any hot
// path). No other section is written; the file format follows path's
// extension.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindResource, pipelineerrors.CodeCacheWriteFailed, "creating config directory")
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.MergeConfigMap(toMap(cfg)); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindInternal, pipelineerrors.CodeInvalidSchema, "merging config map for save")
	}
	return v.WriteConfigAs(path)
}

func toMap(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"schema_version": cfg.SchemaVersion,
		"log_level":      cfg.LogLevel,
	}
}

func setDefaults(cfg *Config) {
	cfg.SchemaVersion = "1.0.0"

	cfg.Performance.CommandChannelSize = 256
	cfg.CentralManager.EventBufferSize = 4096
	cfg.QualityThresholds.MaxBatchSize = 512
	cfg.QualityThresholds.MaxOrderbookCount = 10000

	cfg.Cache.L2Directory = "./data/cache/l2"
	cfg.Cache.L3Directory = "./data/cache/l3"
	cfg.Cache.LogDirectory = "./data/logs"
	cfg.Cache.AutoCreateDirs = true

	cfg.MarketState.VolatilityNormalThreshold = 0.01
	cfg.MarketState.VolatilityExtremeThreshold = 0.05
	cfg.MarketState.LiquidityNormalThreshold = 0.3
	cfg.MarketState.LiquidityExtremeThreshold = 0.8
	cfg.MarketState.VolumeSpikeThreshold = 2.0
	cfg.MarketState.VolumeExtremeThreshold = 5.0
	cfg.MarketState.PriceChangeNormalThreshold = 0.01
	cfg.MarketState.PriceChangeExtremeThreshold = 0.05
	cfg.MarketState.APILatencyNormalThreshold = 200
	cfg.MarketState.APILatencyExtremeThreshold = 1000
	cfg.MarketState.StateChangePersistenceMinutes = 5
	cfg.MarketState.IndicatorConsensusCount = 3
	cfg.MarketState.Weights.Volatility = 1.0 / 6
	cfg.MarketState.Weights.Liquidity = 1.0 / 6
	cfg.MarketState.Weights.Volume = 1.0 / 6
	cfg.MarketState.Weights.PriceChange = 1.0 / 6
	cfg.MarketState.Weights.APIHealth = 1.0 / 6
	cfg.MarketState.Weights.ExternalRisk = 1.0 / 6

	cfg.MinProfit.NormalMinProfit = 0.001
	cfg.MinProfit.CautionMinProfit = 0.003
	cfg.MinProfit.ExtremeMinProfit = 0.01
	cfg.MinProfit.AdaptiveAdjustment = true
	cfg.MinProfit.SuccessRateThreshold = 0.6
	cfg.MinProfit.AdjustmentFactor = 0.1

	cfg.Exchanges = []ExchangeConfig{
		{ID: "binance", NATSURL: "nats://127.0.0.1:4222", Symbols: []string{"BTC-USD"}, Scale: 8},
	}

	cfg.LogLevel = "info"
}

// InitLogger builds a zap.Logger matching cfg.LogLevel, the same pattern
// the teacher used to pick Development vs Production zap presets.
func InitLogger(cfg *Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch cfg.LogLevel {
	case "debug":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
