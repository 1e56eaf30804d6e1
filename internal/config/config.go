// Package config defines the top-level configuration for the chainarb
// service and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CHAINARB_* environment variables.
type Config struct {
	Detector DetectorConfig `toml:"detector"`
	Source   SourceConfig   `toml:"source"`
	Gas      GasConfig      `toml:"gas"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DetectorConfig holds the detection engine parameters.
type DetectorConfig struct {
	Assets                    []string `toml:"assets"`
	Venues                    []string `toml:"venues"`
	MinProfitThresholdPercent float64  `toml:"min_profit_threshold_percent"`
	TradeSize                 float64  `toml:"trade_size"`
	FetchTimeout              duration `toml:"fetch_timeout"`
	MaxConcurrency            int      `toml:"max_concurrency"`
	// Interval is the period of the detect loop.
	Interval duration `toml:"interval"`
	// OpportunityTTL is how long a persisted opportunity stays executable.
	OpportunityTTL duration `toml:"opportunity_ttl"`
}

// SourceConfig selects and configures the price source.
type SourceConfig struct {
	// Kind is "indexer" or "simulated".
	Kind                string  `toml:"kind"`
	IndexerURL          string  `toml:"indexer_url"`
	APIKey              string  `toml:"api_key"`
	RatePerSecond       float64 `toml:"rate_per_second"`
	Burst               int     `toml:"burst"`
	MaxIdleConnsPerHost int     `toml:"max_idle_conns_per_host"`
	// RecordQuotes writes every fetched quote to the redis quote cache.
	RecordQuotes bool `toml:"record_quotes"`

	SimulatedJitter float64 `toml:"simulated_jitter"`
	SimulatedSeed   uint64  `toml:"simulated_seed"`
}

// GasEntry is one row of the gas table.
type GasEntry struct {
	GasPriceGwei      float64 `toml:"gas_price_gwei"`
	GasLimit          uint64  `toml:"gas_limit"`
	NativeToReference float64 `toml:"native_to_reference"`
}

// GasConfig holds the static per-venue gas table.
type GasConfig struct {
	Default GasEntry            `toml:"default"`
	Venues  map[string]GasEntry `toml:"venues"`
	// RefreshInterval is the TTL of the loaded table.
	RefreshInterval duration `toml:"refresh_interval"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// QuoteTTL bounds how long a cached quote is served by the price API.
	QuoteTTL duration `toml:"quote_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the number of requests one client IP may make per
	// RateWindow. Zero disables rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MinNetProfit is the smallest net profit worth a notification.
	MinNetProfit float64 `toml:"min_net_profit"`
}

// ArchiveConfig controls the S3 archive of old opportunities.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	Retention duration `toml:"retention"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Detector: DetectorConfig{
			Assets: []string{
				"0xA0b86a33E6441b8c4C8C2B8c4C8C2B8c4C8C2B8c", // USDC
				"0xdAC17F958D2ee523a2206206994597C13D831ec7", // USDT
				"0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", // WBTC
			},
			Venues:                    []string{"ethereum", "polygon", "arbitrum", "optimism", "bsc"},
			MinProfitThresholdPercent: 0.5,
			TradeSize:                 1000,
			FetchTimeout:              duration{5 * time.Second},
			MaxConcurrency:            16,
			Interval:                  duration{30 * time.Second},
			OpportunityTTL:            duration{time.Hour},
		},
		Source: SourceConfig{
			Kind:                "indexer",
			IndexerURL:          "http://localhost:8001",
			RatePerSecond:       50,
			Burst:               10,
			MaxIdleConnsPerHost: 32,
			SimulatedJitter:     0.001,
			SimulatedSeed:       1,
		},
		Gas: GasConfig{
			Default: GasEntry{GasPriceGwei: 50, GasLimit: 21000, NativeToReference: 1},
			Venues: map[string]GasEntry{
				"ethereum": {GasPriceGwei: 50, GasLimit: 21000, NativeToReference: 1},
				"polygon":  {GasPriceGwei: 30, GasLimit: 21000, NativeToReference: 0.0001},
				"arbitrum": {GasPriceGwei: 0.1, GasLimit: 21000, NativeToReference: 0.0001},
				"optimism": {GasPriceGwei: 0.001, GasLimit: 21000, NativeToReference: 0.0001},
				"bsc":      {GasPriceGwei: 5, GasLimit: 21000, NativeToReference: 0.0001},
			},
			RefreshInterval: duration{5 * time.Minute},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "chainarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			QuoteTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "chainarb-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"*"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:       []string{"opportunity_detected", "error"},
			MinNetProfit: 100,
		},
		Archive: ArchiveConfig{
			Interval:  duration{24 * time.Hour},
			Retention: duration{7 * 24 * time.Hour},
		},
		Mode:     "once",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"once":   true,
	"detect": true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSourceKinds = map[string]bool{
	"indexer":   true,
	"simulated": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. Hex asset ids are rewritten
// in checksummed form.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, detect, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Detector
	d := &c.Detector
	if len(d.Assets) == 0 {
		errs = append(errs, "detector: assets must not be empty")
	}
	seenAssets := map[string]bool{}
	for i, a := range d.Assets {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			errs = append(errs, fmt.Sprintf("detector: assets[%d] is empty", i))
			continue
		case strings.HasPrefix(a, "0x") || strings.HasPrefix(a, "0X"):
			if !common.IsHexAddress(a) {
				errs = append(errs, fmt.Sprintf("detector: assets[%d] %q is not a valid address", i, a))
				continue
			}
			a = common.HexToAddress(a).Hex()
		}
		d.Assets[i] = a
		if seenAssets[a] {
			errs = append(errs, fmt.Sprintf("detector: duplicate asset %q", a))
		}
		seenAssets[a] = true
	}
	if len(d.Venues) == 0 {
		errs = append(errs, "detector: venues must not be empty")
	}
	seen := map[string]bool{}
	for _, v := range d.Venues {
		if seen[v] {
			errs = append(errs, fmt.Sprintf("detector: duplicate venue %q", v))
		}
		seen[v] = true
	}
	if math.IsNaN(d.MinProfitThresholdPercent) || d.MinProfitThresholdPercent < 0 {
		errs = append(errs, "detector: min_profit_threshold_percent must be >= 0")
	}
	if !(d.TradeSize > 0) {
		errs = append(errs, "detector: trade_size must be > 0")
	}
	if d.FetchTimeout.Duration <= 0 {
		errs = append(errs, "detector: fetch_timeout must be > 0")
	}
	if d.MaxConcurrency < 1 {
		errs = append(errs, "detector: max_concurrency must be >= 1")
	}
	if d.Interval.Duration <= 0 {
		errs = append(errs, "detector: interval must be > 0")
	}
	if d.OpportunityTTL.Duration <= 0 {
		errs = append(errs, "detector: opportunity_ttl must be > 0")
	}

	// Source
	if !validSourceKinds[c.Source.Kind] {
		errs = append(errs, fmt.Sprintf("source: unknown kind %q (valid: indexer, simulated)", c.Source.Kind))
	}
	if c.Source.Kind == "indexer" && strings.TrimSpace(c.Source.IndexerURL) == "" {
		errs = append(errs, "source: indexer_url must be set for kind indexer")
	}
	if c.Source.RatePerSecond < 0 {
		errs = append(errs, "source: rate_per_second must be >= 0")
	}
	if c.Source.RecordQuotes && !c.Redis.Enabled {
		errs = append(errs, "source: record_quotes requires redis.enabled")
	}

	// Gas
	checkGas := func(name string, e GasEntry) {
		if e.GasPriceGwei < 0 || e.NativeToReference < 0 {
			errs = append(errs, fmt.Sprintf("gas: %s must not be negative", name))
		}
	}
	checkGas("default", c.Gas.Default)
	for venue, e := range c.Gas.Venues {
		checkGas("venues."+venue, e)
	}

	// Database
	if c.Database.Enabled {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.QuoteTTL.Duration <= 0 {
			errs = append(errs, "redis: quote_ttl must be > 0")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Archive.Enabled {
		if !c.S3.Enabled || !c.Database.Enabled {
			errs = append(errs, "archive: requires s3.enabled and database.enabled")
		}
		if c.Archive.Interval.Duration <= 0 || c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: interval and retention must be > 0")
		}
	}

	// Server
	mode := strings.ToLower(c.Mode)
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if !c.Database.Enabled {
			errs = append(errs, "server: database.enabled is required for mode "+mode)
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis.enabled (set rate_limit = 0 to disable)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
