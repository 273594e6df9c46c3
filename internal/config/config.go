// Package config loads the application configuration from an optional YAML
// file and STUDYBUDDY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abhisek/studybuddy/internal/gateway"
	"github.com/abhisek/studybuddy/internal/learner"
	"github.com/abhisek/studybuddy/internal/llm"
	"github.com/abhisek/studybuddy/internal/logging"
	"github.com/abhisek/studybuddy/internal/monitor"
	"github.com/abhisek/studybuddy/internal/reports"
	"github.com/abhisek/studybuddy/internal/store"
)

// EnvPrefix prefixes every environment override, e.g.
// STUDYBUDDY_LLM_PROVIDER for llm.provider.
const EnvPrefix = "STUDYBUDDY"

// Config mirrors the configuration file.
type Config struct {
	Log     logging.Config `mapstructure:"log"`
	Store   store.Config   `mapstructure:"store"`
	LLM     llm.Config     `mapstructure:"llm"`
	Gateway gateway.Config `mapstructure:"gateway"`
	Safety  SafetyConfig   `mapstructure:"safety"`
	Monitor MonitorConfig  `mapstructure:"monitor"`
	Server  ServerConfig   `mapstructure:"server"`
	Reports ReportsConfig  `mapstructure:"reports"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
}

// SafetyConfig points at an optional replacement for the embedded rules.
type SafetyConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// MonitorConfig configures the out-of-band alert channel. Without Kafka
// brokers, urgent alerts are only logged.
type MonitorConfig struct {
	Kafka monitor.KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string            `mapstructure:"addr"`
	Mode      string            `mapstructure:"mode"`
	RateLimit gateway.RateLimit `mapstructure:"rate_limit"`
}

// ReportsConfig configures the weekly report archive.
type ReportsConfig struct {
	MinIO reports.MinIOConfig `mapstructure:"minio"`
}

// MetricsConfig configures Prometheus instruments.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// Load reads path (optional) and the environment. Every key has a
// default, so an empty path yields a runnable configuration.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM = cfg.LLM.DiscoverKeys()
	cfg.Gateway.MaxTokens = cfg.LLM.MaxTokens
	cfg.Gateway.Temperature = cfg.LLM.Temperature

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case store.BackendSQLite, store.BackendBadger, store.BackendRedis, store.BackendPostgres, store.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Gateway.MaxHistory < 2 {
		errs = append(errs, fmt.Errorf("gateway.max_history must be at least 2, got %d", c.Gateway.MaxHistory))
	}
	if c.Gateway.ModelTimeout <= 0 {
		errs = append(errs, errors.New("gateway.model_timeout must be positive"))
	}
	switch c.Gateway.Locale {
	case learner.LanguageEnglish, learner.LanguageArabic:
	default:
		errs = append(errs, fmt.Errorf("gateway.locale: unsupported locale %q", c.Gateway.Locale))
	}
	if c.Server.RateLimit.PerSecond < 0 {
		errs = append(errs, errors.New("server.rate_limit.per_second must not be negative"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	llmDefaults := llm.DefaultConfig()
	gw := gateway.DefaultConfig()

	defaults := map[string]any{
		"log.level":       "info",
		"log.format":      "console",
		"log.output_path": "",

		"store.backend":        store.BackendSQLite,
		"store.sqlite_path":    "",
		"store.badger_path":    "",
		"store.redis.addr":     "localhost:6379",
		"store.redis.password": "",
		"store.redis.db":       0,
		"store.postgres_url":   "",

		"llm.provider":            llmDefaults.Provider,
		"llm.anthropic.api_key":   "",
		"llm.anthropic.model":     llmDefaults.Anthropic.Model,
		"llm.anthropic.base_url":  "",
		"llm.openai.api_key":      "",
		"llm.openai.model":        llmDefaults.OpenAI.Model,
		"llm.openai.base_url":     "",
		"llm.gemini.api_key":      "",
		"llm.gemini.model":        llmDefaults.Gemini.Model,
		"llm.openrouter.api_key":  "",
		"llm.openrouter.model":    llmDefaults.OpenRouter.Model,
		"llm.openrouter.base_url": "",
		"llm.offline.min_delay":   llmDefaults.Offline.MinDelay,
		"llm.offline.max_delay":   llmDefaults.Offline.MaxDelay,
		"llm.retry.max_attempts":  llmDefaults.Retry.MaxAttempts,
		"llm.retry.initial_wait":  llmDefaults.Retry.InitialWait,
		"llm.retry.max_wait":      llmDefaults.Retry.MaxWait,
		"llm.retry.multiplier":    llmDefaults.Retry.Multiplier,
		"llm.max_tokens":          llmDefaults.MaxTokens,
		"llm.temperature":         llmDefaults.Temperature,

		"gateway.max_history":   gw.MaxHistory,
		"gateway.locale":        string(gw.Locale),
		"gateway.model_timeout": gw.ModelTimeout,

		"safety.rules_file": "",

		"monitor.kafka.brokers": []string{},
		"monitor.kafka.topic":   "studybuddy.parent-alerts",

		"server.addr":                  ":8080",
		"server.mode":                  "release",
		"server.rate_limit.per_second": 1.0,
		"server.rate_limit.burst":      5,

		"reports.minio.endpoint":          "",
		"reports.minio.access_key_id":     "",
		"reports.minio.secret_access_key": "",
		"reports.minio.use_ssl":           false,
		"reports.minio.bucket_name":       "studybuddy-reports",
		"reports.minio.presign_expiry":    24 * time.Hour,

		"metrics.namespace": "studybuddy",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}
