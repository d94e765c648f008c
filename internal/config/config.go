package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the service configuration loaded from medanswer.yaml.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	Search   SearchConfig   `mapstructure:"search"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Lexicon  LexiconConfig  `mapstructure:"lexicon"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type RedisConfig struct {
	Addr        string `mapstructure:"addr"`
	PasswordEnv string `mapstructure:"password_env"`
	DB          int    `mapstructure:"db"`
}

type SessionConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxHistory int           `mapstructure:"max_history"`
}

type SearchConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	APIKeyEnv         string        `mapstructure:"api_key_env"`
	TrustedScopeID    string        `mapstructure:"trusted_scope_id"`
	BroadScopeID      string        `mapstructure:"broad_scope_id"`
	TrustedDomains    []string      `mapstructure:"trusted_domains"`
	ResultCount       int           `mapstructure:"result_count"`
	EscalatedCount    int           `mapstructure:"escalated_count"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ProbeLinks        bool          `mapstructure:"probe_links"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
}

// ProviderConfig describes one generative completion provider.
type ProviderConfig struct {
	Name      string        `mapstructure:"name"`
	Kind      string        `mapstructure:"kind"` // "gemini" or "openai"
	Endpoint  string        `mapstructure:"endpoint"`
	Model     string        `mapstructure:"model"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RPM       int           `mapstructure:"rpm"`
}

type LLMConfig struct {
	Providers       []ProviderConfig `mapstructure:"providers"`
	Temperature     float64          `mapstructure:"temperature"`
	MaxOutputTokens int              `mapstructure:"max_output_tokens"`
}

type PipelineConfig struct {
	HistoryWindow int  `mapstructure:"history_window"`
	FilterCited   bool `mapstructure:"filter_cited"`
}

type LexiconConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from CONFIG_PATH or ./config/medanswer.yaml.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/medanswer.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password_env", "REDIS_PASSWORD")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.max_history", 50)
	v.SetDefault("search.result_count", 5)
	v.SetDefault("search.escalated_count", 15)
	v.SetDefault("search.timeout", "6s")
	v.SetDefault("search.probe_links", false)
	v.SetDefault("search.probe_timeout", "2s")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_output_tokens", 300)
	v.SetDefault("pipeline.history_window", 10)
	v.SetDefault("pipeline.filter_cited", true)
	v.SetDefault("lexicon.path", "./config/lexicon.yaml")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the fields that have no workable zero value.
func (c *Config) Validate() error {
	if c.Search.Endpoint == "" {
		return fmt.Errorf("search.endpoint is required")
	}
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers must list at least one provider")
	}
	for i, p := range c.LLM.Providers {
		if p.Kind != "gemini" && p.Kind != "openai" {
			return fmt.Errorf("llm.providers[%d].kind must be gemini or openai, got %q", i, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("llm.providers[%d].model is required", i)
		}
	}
	return nil
}

// RedisPassword resolves the Redis password from the configured env var.
func (c *Config) RedisPassword() string {
	if c.Redis.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Redis.PasswordEnv)
}
