package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-forecast/internal/alerts"
	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/features"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/predictor"
	"github.com/miradorstack/mirador-forecast/internal/risk"
)

// Config captures the settings required to boot the forecast service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Feed      FeedConfig      `yaml:"feed"`
	Features  features.Config `yaml:"features"`
	Predictor PredictorConfig `yaml:"predictor"`
	Training  TrainingConfig  `yaml:"training"`
	Risk      RiskConfig      `yaml:"risk"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Rules     RulesConfig     `yaml:"rules"`
	Cache     CacheConfig     `yaml:"cache"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Fleet     FleetConfig     `yaml:"fleet"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SimulatorConfig configures the synthetic metric source used when no feed is set.
type SimulatorConfig struct {
	Seed int64 `yaml:"seed"`

	// Degraded injects a failure scenario over the trailing hours of the named
	// deployments.
	Degraded map[string]int `yaml:"degraded"`
}

// FeedConfig configures the HTTP metric feed. An empty BaseURL selects the simulator.
type FeedConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	SeriesPath string        `yaml:"seriesPath"`
	Timeout    time.Duration `yaml:"timeout"`
}

// PredictorConfig carries hyper-parameters and the sub-model capability descriptor.
type PredictorConfig struct {
	predictor.Config `yaml:",inline"`
	Capabilities     predictor.Capabilities `yaml:"capabilities"`
}

// TrainingConfig controls how much history feeds a training run.
type TrainingConfig struct {
	HistoryHours   int  `yaml:"historyHours"`
	LookaheadHours int  `yaml:"lookaheadHours"`
	OnStart        bool `yaml:"onStart"`
}

// RiskConfig overrides individual metric thresholds.
type RiskConfig struct {
	Thresholds map[string]risk.Threshold `yaml:"thresholds"`
}

// AlertsConfig controls alert retention and suppression.
type AlertsConfig struct {
	Cooldown     time.Duration `yaml:"cooldown"`
	HistoryLimit int           `yaml:"historyLimit"`
}

// RulesConfig controls rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig selects the shared cache backend.
type CacheConfig struct {
	Backend      string        `yaml:"backend"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	FeedTTL      time.Duration `yaml:"feedTTL"`
	PatternsTTL  time.Duration `yaml:"patternsTTL"`
	ModelTTL     time.Duration `yaml:"modelTTL"`
}

// ArchiveConfig points at the Weaviate instance holding mined patterns. An empty
// endpoint disables archiving.
type ArchiveConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// FleetConfig lists the deployments evaluated on a schedule.
type FleetConfig struct {
	Deployments  []string      `yaml:"deployments"`
	Concurrency  int           `yaml:"concurrency"`
	HistoryHours int           `yaml:"historyHours"`
	Interval     time.Duration `yaml:"interval"`
	ReportLimit  int           `yaml:"reportLimit"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FORECAST_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Logging:   LoggingConfig{Level: "info", JSON: false},
		Simulator: SimulatorConfig{Seed: 42},
		Feed:      FeedConfig{SeriesPath: "/api/v1/metrics/series", Timeout: 5 * time.Second},
		Features:  features.DefaultConfig(),
		Predictor: PredictorConfig{
			Config:       predictor.DefaultConfig(),
			Capabilities: predictor.FullCapabilities(),
		},
		Training: TrainingConfig{HistoryHours: 90 * 24, LookaheadHours: 48},
		Alerts:   AlertsConfig{Cooldown: alerts.DefaultCooldown, HistoryLimit: 10000},
		Rules:    RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Backend:      cache.BackendMemory,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			FeedTTL:      5 * time.Minute,
			PatternsTTL:  10 * time.Minute,
			ModelTTL:     24 * time.Hour,
		},
		Archive: ArchiveConfig{Timeout: 5 * time.Second},
		Fleet: FleetConfig{
			Concurrency:  4,
			HistoryHours: 216,
			Interval:     time.Hour,
			ReportLimit:  168,
		},
	}
}

// CacheProviderConfig converts the cache section for cache.New.
func (c *Config) CacheProviderConfig() cache.Config {
	return cache.Config{
		Backend: c.Cache.Backend,
		Redis: cache.RedisConfig{
			Addr:         c.Cache.Addr,
			Username:     c.Cache.Username,
			Password:     c.Cache.Password,
			DB:           c.Cache.DB,
			DialTimeout:  c.Cache.DialTimeout,
			ReadTimeout:  c.Cache.ReadTimeout,
			WriteTimeout: c.Cache.WriteTimeout,
			MaxRetries:   c.Cache.MaxRetries,
			TLS:          c.Cache.TLS,
		},
	}
}

// RiskThresholds converts the configured overrides, rejecting unknown metrics.
func (c *Config) RiskThresholds() (risk.Thresholds, error) {
	known := risk.DefaultThresholds()
	out := make(risk.Thresholds, len(c.Risk.Thresholds))
	for name, th := range c.Risk.Thresholds {
		field := models.Field(name)
		def, ok := known[field]
		if !ok {
			return nil, fmt.Errorf("risk threshold for unknown metric %q", name)
		}
		th.LowerIsWorse = def.LowerIsWorse
		out[field] = th
	}
	return out, nil
}

// BookConfig converts the alerts section.
func (c *Config) BookConfig() alerts.BookConfig {
	return alerts.BookConfig{Cooldown: c.Alerts.Cooldown, HistoryLimit: c.Alerts.HistoryLimit}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FORECAST_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FORECAST_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FORECAST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FORECAST_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FORECAST_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("FORECAST_FEED_BASE_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv("FORECAST_SIMULATOR_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Simulator.Seed = seed
		}
	}
	if v := os.Getenv("FORECAST_SEQUENCE_ENABLED"); v != "" {
		cfg.Predictor.Capabilities.Sequence = parseBool(v)
	}
	if v := os.Getenv("FORECAST_TABULAR_ENABLED"); v != "" {
		cfg.Predictor.Capabilities.Tabular = parseBool(v)
	}
	if v := os.Getenv("FORECAST_ALERT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerts.Cooldown = d
		}
	}
	if v := os.Getenv("FORECAST_FLEET_DEPLOYMENTS"); v != "" {
		cfg.Fleet.Deployments = splitList(v)
	}
	if v := os.Getenv("FORECAST_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("FORECAST_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("FORECAST_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("FORECAST_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("FORECAST_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("FORECAST_CACHE_TLS"); parseBool(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("FORECAST_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("FORECAST_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("FORECAST_ARCHIVE_API_KEY"); v != "" {
		cfg.Archive.APIKey = v
	}
	if v := os.Getenv("FORECAST_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
