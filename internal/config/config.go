// Package config loads application configuration and initializes logging.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matbeedotcom/media-transparency-sub001/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" mapstructure:"embeddings"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the relational/graph database backend.
type StoreConfig struct {
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// EngineConfig configures the discovery worker loop.
type EngineConfig struct {
	Workers              int           `yaml:"workers" mapstructure:"workers"`
	BatchSize            int           `yaml:"batch_size" mapstructure:"batch_size"`
	ConnectorTimeout     time.Duration `yaml:"connector_timeout" mapstructure:"connector_timeout"`
	LookupCacheTTL       time.Duration `yaml:"lookup_cache_ttl" mapstructure:"lookup_cache_ttl"`
	ConnectorMaxAttempts int           `yaml:"connector_max_attempts" mapstructure:"connector_max_attempts"`
}

// ResolverConfig holds matching thresholds. These are plain tunables, not
// derived values.
type ResolverConfig struct {
	FuzzyThreshold     float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	AutoMergeThreshold float64 `yaml:"auto_merge_threshold" mapstructure:"auto_merge_threshold"`
	ReviewThreshold    float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	ScoreFloor         float64 `yaml:"score_floor" mapstructure:"score_floor"`
}

// EmbeddingsConfig configures the optional vector similarity backend.
// An empty key disables similarity matching entirely.
type EmbeddingsConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLOWGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.batch_size", 10)
	v.SetDefault("engine.connector_timeout", "30s")
	v.SetDefault("engine.lookup_cache_ttl", "5m")
	v.SetDefault("engine.connector_max_attempts", 3)
	v.SetDefault("resolver.fuzzy_threshold", 0.75)
	v.SetDefault("resolver.auto_merge_threshold", 0.92)
	v.SetDefault("resolver.review_threshold", 0.75)
	v.SetDefault("resolver.score_floor", 0.4)
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
