package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the coaching system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic, local, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
	Multimodal      bool    `mapstructure:"multimodal"`
}

// LLMRoutingConfig defines which model to use for each pipeline stage
type LLMRoutingConfig struct {
	Analysis   string `mapstructure:"analysis"`   // structured health assessment
	Planning   string `mapstructure:"planning"`   // recommendation planning
	Validation string `mapstructure:"validation"` // deep safety validation
	Chat       string `mapstructure:"chat"`       // conversational reply composition
	Vision     string `mapstructure:"vision"`     // multimodal photo analysis
	Fallback   string `mapstructure:"fallback"`   // fallback model
}

// MemoryConfig controls the dual-tier session memory
type MemoryConfig struct {
	Redis          RedisConfig   `mapstructure:"redis"`
	WindowTurns    int           `mapstructure:"window_turns"` // N; window holds 2*N messages
	IdleTTL        time.Duration `mapstructure:"idle_ttl"`
	SweepSchedule  string        `mapstructure:"sweep_schedule"` // cron expression, @hourly, @daily
	PersistWorkers int           `mapstructure:"persist_workers"`
	PersistQueue   int           `mapstructure:"persist_queue"`
}

// ProfileConfig controls the Health Twin profile store
type ProfileConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig describes a redis connection
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PostgresConfig describes a postgres connection
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (profile.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// ToolsConfig contains the read-through lookup settings
type ToolsConfig struct {
	Wearable WearableConfig `mapstructure:"wearable"`
}

// WearableConfig describes the wearable snapshot endpoint
type WearableConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

func (m MemoryConfig) Validate() error {
	if m.WindowTurns <= 0 {
		return fmt.Errorf("memory.window_turns must be > 0")
	}
	if m.IdleTTL <= 0 {
		return fmt.Errorf("memory.idle_ttl must be > 0")
	}
	return nil
}

// LoadConfig reads configuration from file and environment.
// An empty path searches ./config and the working directory.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "45s")
	v.SetDefault("server.address", ":10100")
	v.SetDefault("memory.window_turns", 8)
	v.SetDefault("memory.idle_ttl", "6h")
	v.SetDefault("memory.sweep_schedule", "@hourly")
	v.SetDefault("memory.persist_workers", 2)
	v.SetDefault("memory.persist_queue", 256)
	v.SetDefault("memory.redis.host", "localhost")
	v.SetDefault("memory.redis.port", "6379")
	v.SetDefault("memory.redis.timeout", "5s")
	v.SetDefault("profile.redis.host", "localhost")
	v.SetDefault("profile.redis.port", "6379")
	v.SetDefault("profile.redis.timeout", "5s")
	v.SetDefault("tools.wearable.timeout", "3s")
	v.SetDefault("tools.wearable.cache_ttl", "5m")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("HEALTHTWIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// no config file is fine; defaults + env carry the load
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Memory.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
