package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/config"
	cfgloader "riptide/internal/config/loader"
	"riptide/internal/market"
	"riptide/internal/strategy"
	"riptide/internal/types"
)

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{LogLevel: "error", HTTPAddr: ":0"},
		Market: config.MarketConfig{Source: "replay", Symbols: []string{"btcusdt"}, Interval: "1m"},
		Strategy: config.StrategyConfig{
			TrendPullback: config.TrendPullbackConfig{Enabled: true},
			RangeBreakout: config.RangeBreakoutConfig{Enabled: true},
			BandReversion: config.BandReversionConfig{Enabled: false},
		},
		Risk: config.RiskConfig{StartingEquity: 50000},
	}
}

func TestBuildWiresPipelineWithoutStore(t *testing.T) {
	b := NewAppBuilder(testConfig(), WithSourceBuilder(func(*config.Config) (market.Source, error) {
		return market.NewReplaySource(), nil
	}))
	app, err := b.Build(context.Background())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.host)
	assert.NotNil(t, app.http)
	assert.Nil(t, app.store, "store disabled by config")
	assert.Nil(t, app.recorder)
	assert.Nil(t, app.journal)
	assert.Nil(t, app.alertBridge, "telegram disabled by config")
}

func TestBuildWithStoreEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreConfig{
		Enabled:     true,
		DBPath:      t.TempDir() + "/events.db",
		JournalPath: t.TempDir() + "/journal.db",
	}
	b := NewAppBuilder(cfg, WithSourceBuilder(func(*config.Config) (market.Source, error) {
		return market.NewReplaySource(), nil
	}))
	app, err := b.Build(context.Background())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.store)
	assert.NotNil(t, app.recorder)
	assert.NotNil(t, app.journal)
	assert.NotNil(t, app.charts)
}

func TestBuildEvaluatorsHonorsEnableFlags(t *testing.T) {
	evs, _ := buildEvaluators(config.StrategyConfig{
		TrendPullback: config.TrendPullbackConfig{Enabled: true},
		BandReversion: config.BandReversionConfig{Enabled: true},
	})
	require.Len(t, evs, 2)
	assert.Equal(t, strategy.CodeTrendPullback, evs[0].Code())
	assert.Equal(t, strategy.CodeBandReversion, evs[1].Code())
}

func TestReconfigurePushesProfileParams(t *testing.T) {
	evs, reconfigure := buildEvaluators(config.StrategyConfig{
		RangeBreakout: config.RangeBreakoutConfig{Enabled: true, BufferPrice: 0.1},
	})
	require.Len(t, evs, 1)

	// must not panic and must leave the evaluator usable
	reconfigure(cfgloader.ProfileDefinition{
		RangeBreakout: cfgloader.RangeBreakoutParams{BufferPrice: 0.5, ProjectionMult: 2},
	})
	assert.Equal(t, strategy.CodeRangeBreakout, evs[0].Code())
}

func TestMinSeverityFallsBackToWarning(t *testing.T) {
	assert.Equal(t, types.AlertInfo, minSeverity("INFO"))
	assert.Equal(t, types.AlertCritical, minSeverity("CRITICAL"))
	assert.Equal(t, types.AlertWarning, minSeverity(""))
	assert.Equal(t, types.AlertWarning, minSeverity("bogus"))
}
