package config

import "strings"

const (
	defaultAppEnv        = "dev"
	defaultAppLogLevel   = "info"
	defaultAppHTTPAddr   = ":9984"
	defaultAppLogPath    = ""
	defaultMarketSource  = "binance"
	defaultMarketREST    = "https://fapi.binance.com"
	defaultInterval      = "1m"
	defaultPreheatBars   = 300
	defaultMaxCached     = 500
	defaultTimezone      = "UTC"
	defaultOpeningRange  = 15
	defaultMaxAttempts   = 3
	defaultCooldownMin   = 30
	defaultWorkers       = 4
	defaultBusBuffer     = 256
	defaultPerTradeRisk  = 0.01
	defaultDailyStop     = 2.0
	defaultWeeklyStop    = 5.0
	defaultMaxPositions  = 3
	defaultEquity        = 100000.0
	defaultSlippage      = 0.25
	defaultStoreDB       = "data/riptide.db"
	defaultStoreJournal  = "data/journal.db"
	defaultAlertSeverity = "WARNING"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Pipeline.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		stringFieldDefault("market.interval", &m.Interval, defaultInterval),
		fieldDefault{
			key:   "market.preheat_bars",
			need:  func() bool { return m.PreheatBars <= 0 },
			apply: func() { m.PreheatBars = defaultPreheatBars },
		},
		fieldDefault{
			key:   "market.max_cached",
			need:  func() bool { return m.MaxCached <= 0 },
			apply: func() { m.MaxCached = defaultMaxCached },
		},
	)
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
}

func (p *PipelineConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("pipeline.timezone", &p.Timezone, defaultTimezone),
		fieldDefault{
			key:   "pipeline.opening_range_minutes",
			need:  func() bool { return p.OpeningRangeMinutes <= 0 },
			apply: func() { p.OpeningRangeMinutes = defaultOpeningRange },
		},
		fieldDefault{
			key:   "pipeline.max_attempts",
			need:  func() bool { return p.MaxAttempts <= 0 },
			apply: func() { p.MaxAttempts = defaultMaxAttempts },
		},
		fieldDefault{
			key:   "pipeline.cooldown_minutes",
			need:  func() bool { return p.CooldownMinutes <= 0 },
			apply: func() { p.CooldownMinutes = defaultCooldownMin },
		},
		fieldDefault{
			key:   "pipeline.workers",
			need:  func() bool { return p.Workers <= 0 },
			apply: func() { p.Workers = defaultWorkers },
		},
		fieldDefault{
			key:   "pipeline.bus_buffer",
			need:  func() bool { return p.BusBuffer <= 0 },
			apply: func() { p.BusBuffer = defaultBusBuffer },
		},
	)
}

// Strategy evaluators carry their own withDefaults on the package side;
// here only the enable flags default. Everything enabled unless the file
// says otherwise.
func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("strategy.trend_pullback.enabled", &s.TrendPullback.Enabled, true),
		boolFieldDefault("strategy.range_breakout.enabled", &s.RangeBreakout.Enabled, true),
		boolFieldDefault("strategy.band_reversion.enabled", &s.BandReversion.Enabled, true),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.per_trade_risk",
			need:  func() bool { return r.PerTradeRisk <= 0 },
			apply: func() { r.PerTradeRisk = defaultPerTradeRisk },
		},
		fieldDefault{
			key:   "risk.daily_stop_pct",
			need:  func() bool { return r.DailyStopPct <= 0 },
			apply: func() { r.DailyStopPct = defaultDailyStop },
		},
		fieldDefault{
			key:   "risk.weekly_stop_pct",
			need:  func() bool { return r.WeeklyStopPct <= 0 },
			apply: func() { r.WeeklyStopPct = defaultWeeklyStop },
		},
		fieldDefault{
			key:   "risk.max_positions",
			need:  func() bool { return r.MaxPositions <= 0 },
			apply: func() { r.MaxPositions = defaultMaxPositions },
		},
		fieldDefault{
			key:   "risk.starting_equity",
			need:  func() bool { return r.StartingEquity <= 0 },
			apply: func() { r.StartingEquity = defaultEquity },
		},
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "broker.slippage_fraction",
			need:  func() bool { return b.SlippageFraction <= 0 },
			apply: func() { b.SlippageFraction = defaultSlippage },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("store.enabled", &s.Enabled, true),
		stringFieldDefault("store.db_path", &s.DBPath, defaultStoreDB),
		stringFieldDefault("store.journal_path", &s.JournalPath, defaultStoreJournal),
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("notify.telegram.min_severity", &n.Telegram.MinSeverity, defaultAlertSeverity),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
