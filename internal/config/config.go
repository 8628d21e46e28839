package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs from the outside. Values come
// from an optional YAML file and are overridden by environment variables.
type Config struct {
	Port   string `yaml:"port"`
	DBPath string `yaml:"db_path"`

	WorldSize   int `yaml:"world_size"`
	TickWorkers int `yaml:"tick_workers"`

	Oracle OracleConfig `yaml:"oracle"`

	SentimentExpr string `yaml:"sentiment_expr"`
	JWTSecret     string `yaml:"jwt_secret"`

	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`
}

// OracleConfig configures the decision oracle client.
type OracleConfig struct {
	BaseURL string   `yaml:"base_url"`
	Model   string   `yaml:"model"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// Duration is a time.Duration that decodes from YAML strings like "20s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:        "8080",
		DBPath:      "town.db",
		WorldSize:   20,
		TickWorkers: 4,
		Oracle: OracleConfig{
			Model:   "openai/gpt-4o-mini",
			Timeout: Duration(20 * time.Second),
		},
		RateLimitPerSecond: 20,
		RateLimitBurst:     5,
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.WorldSize < 2 {
		return cfg, fmt.Errorf("world_size must be at least 2, got %d", cfg.WorldSize)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("WORLD_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorldSize = n
		}
	}
	if v := os.Getenv("TICK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TickWorkers = n
		}
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		c.Oracle.BaseURL = v
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Oracle.APIKey = v
	}
	if v := os.Getenv("ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Oracle.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("SENTIMENT_EXPR"); v != "" {
		c.SentimentExpr = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
}
