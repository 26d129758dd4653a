package config

import (
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Routing   RoutingConfig   `yaml:"routing"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// RoutingConfig tunes the request executor: retry backoff, context-window
// fitting, per-provider circuit breakers, and the per-provider request rate.
type RoutingConfig struct {
	DefaultTimeout    time.Duration        `yaml:"default_timeout"`
	DefaultMaxRetries int                  `yaml:"default_max_retries"`
	Backoff           BackoffConfig        `yaml:"backoff"`
	Window            WindowConfig         `yaml:"window"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	ProviderRPM       int64                `yaml:"provider_rpm"`

	// DailySpendLimitCents caps per-workflow daily spend; zero disables the cap.
	DailySpendLimitCents int64 `yaml:"daily_spend_limit_cents"`
}

type BackoffConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// WindowConfig controls context-window fitting. TruncateFrom selects which
// end of the prompt is discarded when over budget: "head" or "tail".
type WindowConfig struct {
	TruncateFrom       string `yaml:"truncate_from"`
	SafetyMarginTokens int    `yaml:"safety_margin_tokens"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "scribe",
			User:            "scribe",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Routing: RoutingConfig{
			DefaultTimeout:    60 * time.Second,
			DefaultMaxRetries: 2,
			Backoff: BackoffConfig{
				BaseDelay: 500 * time.Millisecond,
				MaxDelay:  30 * time.Second,
			},
			Window: WindowConfig{
				TruncateFrom:       "head",
				SafetyMarginTokens: 256,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
			ProviderRPM: 600,
		},
	}
}
