package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CHAINARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CHAINARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Detector ──
	setStringSlice(&cfg.Detector.Assets, "CHAINARB_DETECTOR_ASSETS")
	setStringSlice(&cfg.Detector.Venues, "CHAINARB_DETECTOR_VENUES")
	setFloat64(&cfg.Detector.MinProfitThresholdPercent, "CHAINARB_DETECTOR_MIN_PROFIT_THRESHOLD_PERCENT")
	setFloat64(&cfg.Detector.TradeSize, "CHAINARB_DETECTOR_TRADE_SIZE")
	setDuration(&cfg.Detector.FetchTimeout, "CHAINARB_DETECTOR_FETCH_TIMEOUT")
	setInt(&cfg.Detector.MaxConcurrency, "CHAINARB_DETECTOR_MAX_CONCURRENCY")
	setDuration(&cfg.Detector.Interval, "CHAINARB_DETECTOR_INTERVAL")
	setDuration(&cfg.Detector.OpportunityTTL, "CHAINARB_DETECTOR_OPPORTUNITY_TTL")

	// ── Source ──
	setStr(&cfg.Source.Kind, "CHAINARB_SOURCE_KIND")
	setStr(&cfg.Source.IndexerURL, "CHAINARB_SOURCE_INDEXER_URL")
	setStr(&cfg.Source.IndexerURL, "INDEXER_URL") // compatibility alias
	setStr(&cfg.Source.APIKey, "CHAINARB_SOURCE_API_KEY")
	setFloat64(&cfg.Source.RatePerSecond, "CHAINARB_SOURCE_RATE_PER_SECOND")
	setInt(&cfg.Source.Burst, "CHAINARB_SOURCE_BURST")
	setBool(&cfg.Source.RecordQuotes, "CHAINARB_SOURCE_RECORD_QUOTES")
	setFloat64(&cfg.Source.SimulatedJitter, "CHAINARB_SOURCE_SIMULATED_JITTER")
	setUint64(&cfg.Source.SimulatedSeed, "CHAINARB_SOURCE_SIMULATED_SEED")

	// ── Gas ──
	setFloat64(&cfg.Gas.Default.GasPriceGwei, "CHAINARB_GAS_DEFAULT_GAS_PRICE_GWEI")
	setUint64(&cfg.Gas.Default.GasLimit, "CHAINARB_GAS_DEFAULT_GAS_LIMIT")
	setFloat64(&cfg.Gas.Default.NativeToReference, "CHAINARB_GAS_DEFAULT_NATIVE_TO_REFERENCE")
	setDuration(&cfg.Gas.RefreshInterval, "CHAINARB_GAS_REFRESH_INTERVAL")

	// ── Database ──
	setBool(&cfg.Database.Enabled, "CHAINARB_DATABASE_ENABLED")
	setStr(&cfg.Database.DSN, "CHAINARB_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "CHAINARB_DATABASE_HOST")
	setInt(&cfg.Database.Port, "CHAINARB_DATABASE_PORT")
	setStr(&cfg.Database.Database, "CHAINARB_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "CHAINARB_DATABASE_USER")
	setStr(&cfg.Database.Password, "CHAINARB_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "CHAINARB_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "CHAINARB_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "CHAINARB_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "CHAINARB_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CHAINARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CHAINARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CHAINARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CHAINARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CHAINARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CHAINARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CHAINARB_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteTTL, "CHAINARB_REDIS_QUOTE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CHAINARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CHAINARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CHAINARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CHAINARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CHAINARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CHAINARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CHAINARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CHAINARB_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "CHAINARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CHAINARB_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "CHAINARB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CHAINARB_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CHAINARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CHAINARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CHAINARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CHAINARB_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinNetProfit, "CHAINARB_NOTIFY_MIN_NET_PROFIT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CHAINARB_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "CHAINARB_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.Retention, "CHAINARB_ARCHIVE_RETENTION")

	// ── Top-level ──
	setStr(&cfg.Mode, "CHAINARB_MODE")
	setStr(&cfg.LogLevel, "CHAINARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
