package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. RECON_SERVER_ADDR.
const EnvPrefix = "RECON"

// Config is the full runtime configuration.
type Config struct {
	Server   Server         `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Sources  SourcesConfig  `mapstructure:"sources"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PostgresConfig selects the SQL stores. An empty DSN keeps stores in memory.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig enables the distributed execution lease. An empty URL keeps it in memory.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig enables lifecycle event publishing. No brokers means events are only logged.
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
}

// ExecutorConfig bounds background search execution.
type ExecutorConfig struct {
	Workers          int           `mapstructure:"workers"`
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	FanOutTimeout    time.Duration `mapstructure:"fan_out_timeout"`
	LeaseTTL         time.Duration `mapstructure:"lease_ttl"`
}

// SourcesConfig configures the outbound HTTP transport and the upstream endpoints.
type SourcesConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	RetryCount         int           `mapstructure:"retry_count"`
	RetryWait          time.Duration `mapstructure:"retry_wait"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
	BreakerFailures    int           `mapstructure:"breaker_failures"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown"`
	DefaultCountryCode string        `mapstructure:"default_country_code"`
	PhoneParser        string        `mapstructure:"phone_parser"`

	Gravatar  Endpoint `mapstructure:"gravatar"`
	Breach    Endpoint `mapstructure:"breach"`
	RDAP      Endpoint `mapstructure:"rdap"`
	RapidDNS  Endpoint `mapstructure:"rapiddns"`
	HLR       Endpoint `mapstructure:"hlr"`
	LeakCheck Endpoint `mapstructure:"leakcheck"`
}

// Endpoint is one upstream HTTP API. A source with an empty BaseURL is not registered.
type Endpoint struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

var defaults = map[string]any{
	"server.addr":                ":8080",
	"server.read_header_timeout": 5 * time.Second,
	"server.shutdown_timeout":    10 * time.Second,

	"log.level":  "info",
	"log.format": "json",

	"postgres.dsn":               "",
	"postgres.max_open_conns":    10,
	"postgres.max_idle_conns":    5,
	"postgres.conn_max_lifetime": 30 * time.Minute,

	"redis.url":            "",
	"redis.pool_size":      10,
	"redis.min_idle_conns": 2,
	"redis.dial_timeout":   5 * time.Second,
	"redis.read_timeout":   3 * time.Second,
	"redis.write_timeout":  3 * time.Second,

	"kafka.brokers":            []string{},
	"kafka.topic":              "recon.search.lifecycle",
	"kafka.partitions":         3,
	"kafka.replication_factor": 1,

	"executor.workers":           8,
	"executor.execution_timeout": 2 * time.Minute,
	"executor.fan_out_timeout":   90 * time.Second,
	"executor.lease_ttl":         3 * time.Minute,

	"sources.timeout":              30 * time.Second,
	"sources.retry_count":          2,
	"sources.retry_wait":           500 * time.Millisecond,
	"sources.requests_per_second":  10.0,
	"sources.burst":                10,
	"sources.breaker_failures":     5,
	"sources.breaker_cooldown":     30 * time.Second,
	"sources.default_country_code": "+1",
	"sources.phone_parser":         "table",

	"sources.gravatar.base_url":  "https://en.gravatar.com",
	"sources.gravatar.api_key":   "",
	"sources.breach.base_url":    "",
	"sources.breach.api_key":     "",
	"sources.rdap.base_url":      "https://rdap.org",
	"sources.rdap.api_key":       "",
	"sources.rapiddns.base_url":  "https://rapiddns.io/api",
	"sources.rapiddns.api_key":   "",
	"sources.hlr.base_url":       "",
	"sources.hlr.api_key":        "",
	"sources.leakcheck.base_url": "",
	"sources.leakcheck.api_key":  "",
}

// Load reads defaults, then the optional config file, then RECON_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading the environment.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate rejects settings the executor cannot run with.
func (c Config) Validate() error {
	if c.Executor.Workers <= 0 {
		return fmt.Errorf("executor.workers must be positive")
	}
	if c.Executor.ExecutionTimeout <= 0 {
		return fmt.Errorf("executor.execution_timeout must be positive")
	}
	switch c.Sources.PhoneParser {
	case "table", "legacy":
	default:
		return fmt.Errorf("sources.phone_parser must be table or legacy, got %q", c.Sources.PhoneParser)
	}
	if !strings.HasPrefix(c.Sources.DefaultCountryCode, "+") {
		return fmt.Errorf("sources.default_country_code must start with +")
	}
	return nil
}
