package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
market:
  symbols: [btcusdt, ethusdt]
`))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, ":9984", cfg.App.HTTPAddr)
	assert.Equal(t, "binance", cfg.Market.Source)
	assert.Equal(t, "1m", cfg.Market.Interval)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Market.SymbolsUpper())
	assert.Equal(t, 15, cfg.Pipeline.OpeningRangeMinutes)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.InDelta(t, 0.01, cfg.Risk.PerTradeRisk, 1e-12)
	assert.InDelta(t, 2.0, cfg.Risk.DailyStopPct, 1e-12)
	assert.InDelta(t, 0.25, cfg.Broker.SlippageFraction, 1e-12)
	assert.True(t, cfg.Strategy.TrendPullback.Enabled)
	assert.True(t, cfg.Strategy.RangeBreakout.Enabled)
	assert.True(t, cfg.Strategy.BandReversion.Enabled)
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
market:
  symbols: [BTCUSDT]
  interval: 5m
pipeline:
  timezone: America/New_York
  opening_range_minutes: 30
strategy:
  band_reversion:
    enabled: false
risk:
  per_trade_risk: 0.02
  daily_stop_pct: 3
  weekly_stop_pct: 6
`))
	require.NoError(t, err)

	assert.Equal(t, "5m", cfg.Market.Interval)
	assert.Equal(t, "America/New_York", cfg.Pipeline.Timezone)
	assert.Equal(t, 30, cfg.Pipeline.OpeningRangeMinutes)
	assert.False(t, cfg.Strategy.BandReversion.Enabled, "explicit false survives defaulting")
	assert.InDelta(t, 0.02, cfg.Risk.PerTradeRisk, 1e-12)
	assert.InDelta(t, 3.0, cfg.Risk.DailyStopPct, 1e-12)
}

func TestLoadRejectsBadSource(t *testing.T) {
	_, err := Load(writeConfig(t, `
market:
  source: carrier-pigeon
  symbols: [BTCUSDT]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market.source")
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	_, err := Load(writeConfig(t, `
market:
  symbols: [BTCUSDT]
pipeline:
  timezone: Mars/Olympus_Mons
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.timezone")
}

func TestLoadRejectsWeeklyBelowDaily(t *testing.T) {
	_, err := Load(writeConfig(t, `
market:
  symbols: [BTCUSDT]
risk:
  daily_stop_pct: 5
  weekly_stop_pct: 2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekly_stop_pct")
}

func TestLoadRejectsTelegramWithoutToken(t *testing.T) {
	_, err := Load(writeConfig(t, `
market:
  symbols: [BTCUSDT]
notify:
  telegram:
    enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_token")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
