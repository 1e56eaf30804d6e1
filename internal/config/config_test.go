package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, 0.5, cfg.Detector.MinProfitThresholdPercent)
	assert.Equal(t, 1000.0, cfg.Detector.TradeSize)
	assert.Len(t, cfg.Gas.Venues, 5)
}

func TestValidateChecksumsAssets(t *testing.T) {
	cfg := Defaults()
	cfg.Detector.Assets = []string{"0xdac17f958d2ee523a2206206994597c13d831ec7", "WETH"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0xdAC17F958D2ee523a2206206994597C13D831ec7", cfg.Detector.Assets[0])
	assert.Equal(t, "WETH", cfg.Detector.Assets[1])
}

func TestValidateRejectsDuplicateAssets(t *testing.T) {
	cfg := Defaults()
	cfg.Detector.Assets = []string{
		"0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599",
		"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599",
		"WETH",
		"WETH",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `detector: duplicate asset "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"`)
	assert.Contains(t, err.Error(), `detector: duplicate asset "WETH"`)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Detector.Venues = nil
	cfg.Detector.TradeSize = 0
	cfg.Detector.MinProfitThresholdPercent = -1
	cfg.Detector.Assets = []string{"0x1234"}
	cfg.Source.Kind = "oracle"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "trade"`,
		"venues must not be empty",
		"trade_size must be > 0",
		"min_profit_threshold_percent",
		"is not a valid address",
		`unknown kind "oracle"`,
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateServerModeRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.enabled is required")
	assert.Contains(t, err.Error(), "rate_limit requires redis.enabled")

	cfg.Database.Enabled = true
	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "detect"

[detector]
assets = ["WETH"]
venues = ["ethereum", "zksync"]
fetch_timeout = "750ms"

[gas.venues.zksync]
gas_price_gwei = 0.25
gas_limit = 500000
native_to_reference = 1.0
`), 0o600))

	t.Setenv("CHAINARB_DETECTOR_TRADE_SIZE", "2500")
	t.Setenv("CHAINARB_SOURCE_KIND", "simulated")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "detect", cfg.Mode)
	assert.Equal(t, []string{"WETH"}, cfg.Detector.Assets)
	assert.Equal(t, 750*time.Millisecond, cfg.Detector.FetchTimeout.Duration)
	assert.Equal(t, 2500.0, cfg.Detector.TradeSize)
	assert.Equal(t, "simulated", cfg.Source.Kind)
	// Defaults that the file did not touch survive.
	assert.Equal(t, 0.5, cfg.Detector.MinProfitThresholdPercent)
	assert.Equal(t, GasEntry{GasPriceGwei: 0.25, GasLimit: 500000, NativeToReference: 1}, cfg.Gas.Venues["zksync"])
	assert.Contains(t, cfg.Gas.Venues, "ethereum")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Source.APIKey = "key"
	cfg.Notify.TelegramToken = "tg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Database.Password)
	assert.Equal(t, "***", out.Source.APIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.S3.SecretKey)

	out.Detector.Venues[0] = "mutated"
	assert.Equal(t, "ethereum", cfg.Detector.Venues[0])
	assert.Equal(t, "hunter2", cfg.Database.Password)
}
