// Package config loads process configuration from defaults, an optional
// YAML file, a .env file and INSPECTOR_ prefixed environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INSPECTOR_SERVER_ADDR.
const EnvPrefix = "INSPECTOR"

// Data source kinds.
const (
	SourceMemory     = "memory"
	SourceClickHouse = "clickhouse"
)

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Data       DataConfig       `mapstructure:"data"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Query      QueryConfig      `mapstructure:"query"`
	Log        LogConfig        `mapstructure:"log"`
	Birdeye    BirdeyeConfig    `mapstructure:"birdeye"`
	Solana     SolanaConfig     `mapstructure:"solana"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBatchItems   int           `mapstructure:"max_batch_items"`
}

// DataConfig selects the trade data source.
type DataConfig struct {
	Source  string `mapstructure:"source"` // memory | clickhouse
	CSVPath string `mapstructure:"csv_path"`
}

type ClickHouseConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type QueryConfig struct {
	DefaultRate    float64 `mapstructure:"default_rate"` // SOL price in USD
	MaxConcurrency int     `mapstructure:"max_concurrency"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type BirdeyeConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SolanaConfig struct {
	RPCEndpoint string        `mapstructure:"rpc_endpoint"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute) // lookup batches are throttled to 1 req/s
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_batch_items", 500)

	v.SetDefault("data.source", SourceMemory)
	v.SetDefault("data.csv_path", "data/trades.csv")

	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("clickhouse.migrate", true)

	v.SetDefault("cache.ttl", 300*time.Second)

	v.SetDefault("query.default_rate", 133.0)
	v.SetDefault("query.max_concurrency", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/inspector.log")

	v.SetDefault("birdeye.base_url", "https://public-api.birdeye.so")
	v.SetDefault("birdeye.api_key", "")
	v.SetDefault("birdeye.interval", time.Second)
	v.SetDefault("birdeye.timeout", 10*time.Second)

	v.SetDefault("solana.rpc_endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.interval", time.Second)
	v.SetDefault("solana.timeout", 10*time.Second)
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration. path may be empty to skip the config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names used by existing deployments.
	_ = v.BindEnv("birdeye.api_key", EnvPrefix+"_BIRDEYE_API_KEY", "BIRDEYE_API_KEY")
	_ = v.BindEnv("clickhouse.dsn", EnvPrefix+"_CLICKHOUSE_DSN", "CLICKHOUSE_DSN")
	_ = v.BindEnv("solana.rpc_endpoint", EnvPrefix+"_SOLANA_RPC_ENDPOINT", "SOLANA_RPC_ENDPOINT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.Data.Source {
	case SourceMemory:
		if c.Data.CSVPath == "" {
			errs = append(errs, errors.New("data.csv_path is required for the memory source"))
		}
	case SourceClickHouse:
		if c.ClickHouse.DSN == "" {
			errs = append(errs, errors.New("clickhouse.dsn is required for the clickhouse source"))
		}
	default:
		errs = append(errs, fmt.Errorf("data.source must be %q or %q, got %q", SourceMemory, SourceClickHouse, c.Data.Source))
	}
	if !(c.Query.DefaultRate > 0) {
		errs = append(errs, fmt.Errorf("query.default_rate must be positive, got %v", c.Query.DefaultRate))
	}
	if c.Query.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("query.max_concurrency must be >= 1, got %d", c.Query.MaxConcurrency))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	return errors.Join(errs...)
}
