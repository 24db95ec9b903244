package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config maps the whole application configuration. Keys are read from
// ./configs/config.yaml and can be overridden by environment variables
// (server.port -> SERVER_PORT).
type Config struct {
	Server struct {
		Port            int           `mapstructure:"port"`
		BaseURL         string        `mapstructure:"base_url"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	// Database is the SQLite file used by the GORM repositories.
	Database struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"database"`

	// Postgres switches the location index to PostGIS when DSN is set.
	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`

	// Redis switches the short link store to Redis when Addr is set.
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Store struct {
		Timeout      time.Duration `mapstructure:"timeout"`
		RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	} `mapstructure:"store"`

	Links struct {
		CodeLength     int           `mapstructure:"code_length"`
		MaxAttempts    int           `mapstructure:"max_attempts"`
		CacheSize      int           `mapstructure:"cache_size"`
		CacheTTL       time.Duration `mapstructure:"cache_ttl"`
		Retention      time.Duration `mapstructure:"retention"`
		ShareTTLDays   int           `mapstructure:"share_ttl_days"`
		DefaultTTLDays int           `mapstructure:"default_ttl_days"`
	} `mapstructure:"links"`

	Geo struct {
		MaxRadiusKm     float64  `mapstructure:"max_radius_km"`
		DefaultLimit    int      `mapstructure:"default_limit"`
		MaxLimit        int      `mapstructure:"max_limit"`
		ExtraCategories []string `mapstructure:"extra_categories"`
	} `mapstructure:"geo"`

	Analytics struct {
		BufferSize  int `mapstructure:"buffer_size"`
		WorkerCount int `mapstructure:"worker_count"`
	} `mapstructure:"analytics"`

	Realtime struct {
		IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
		WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"realtime"`

	Stream struct {
		BufferSize       int           `mapstructure:"buffer_size"`
		IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
		TokenDelay       time.Duration `mapstructure:"token_delay"`
		LocationInterval time.Duration `mapstructure:"location_interval"`
	} `mapstructure:"stream"`

	// Monitor drives the retention janitor.
	Monitor struct {
		IntervalMinutes int  `mapstructure:"interval_minutes"`
		CheckTargets    bool `mapstructure:"check_targets"`
	} `mapstructure:"monitor"`

	AI struct {
		Provider string        `mapstructure:"provider"` // openai | static
		APIKey   string        `mapstructure:"api_key"`
		BaseURL  string        `mapstructure:"base_url"`
		Model    string        `mapstructure:"model"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ai"`

	NATS struct {
		URL      string `mapstructure:"url"`
		Embedded bool   `mapstructure:"embedded"`
		Subject  string `mapstructure:"subject"`
	} `mapstructure:"nats"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.name", "locashare.db")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("store.timeout", 3*time.Second)
	v.SetDefault("store.retry_backoff", 50*time.Millisecond)
	v.SetDefault("links.code_length", 7)
	v.SetDefault("links.max_attempts", 8)
	v.SetDefault("links.cache_size", 10000)
	v.SetDefault("links.cache_ttl", 5*time.Minute)
	v.SetDefault("links.retention", 90*24*time.Hour)
	v.SetDefault("links.share_ttl_days", 7)
	v.SetDefault("links.default_ttl_days", 0)
	v.SetDefault("geo.max_radius_km", 50.0)
	v.SetDefault("geo.default_limit", 20)
	v.SetDefault("geo.max_limit", 100)
	v.SetDefault("geo.extra_categories", []string{})
	v.SetDefault("analytics.buffer_size", 1000)
	v.SetDefault("analytics.worker_count", 5)
	v.SetDefault("realtime.idle_timeout", 2*time.Minute)
	v.SetDefault("realtime.sweep_interval", 30*time.Second)
	v.SetDefault("realtime.write_timeout", 5*time.Second)
	v.SetDefault("stream.buffer_size", 64)
	v.SetDefault("stream.idle_timeout", 30*time.Second)
	v.SetDefault("stream.token_delay", 100*time.Millisecond)
	v.SetDefault("stream.location_interval", 5*time.Second)
	v.SetDefault("monitor.interval_minutes", 60)
	v.SetDefault("monitor.check_targets", false)
	v.SetDefault("ai.provider", "static")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.embedded", false)
	v.SetDefault("nats.subject", "locashare.broadcast")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig loads the configuration from ./configs/config.yaml, the
// environment and built-in defaults, in decreasing order of precedence:
// env, file, defaults.
func LoadConfig() (*Config, error) {
	return load(viper.New(), "./configs")
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	return &cfg, nil
}

// Validate rejects values that would make a component misbehave.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port: out of range: %d", c.Server.Port)
	case c.Links.CodeLength < 4 || c.Links.CodeLength > 32:
		return fmt.Errorf("links.code_length: must be within 4..32, got %d", c.Links.CodeLength)
	case c.Links.MaxAttempts < 1:
		return fmt.Errorf("links.max_attempts: must be positive")
	case c.Geo.MaxRadiusKm <= 0:
		return fmt.Errorf("geo.max_radius_km: must be positive")
	case c.Geo.MaxLimit < 1 || c.Geo.DefaultLimit < 1:
		return fmt.Errorf("geo limits must be positive")
	case c.Analytics.WorkerCount < 1 || c.Analytics.BufferSize < 1:
		return fmt.Errorf("analytics: worker_count and buffer_size must be positive")
	case c.Stream.BufferSize < 1:
		return fmt.Errorf("stream.buffer_size: must be positive")
	case c.Log.Format != "json" && c.Log.Format != "text":
		return fmt.Errorf("log.format: %q, expected json or text", c.Log.Format)
	}
	return nil
}

// SetupLogger builds the process logger from the log section and installs
// it as the slog default.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
