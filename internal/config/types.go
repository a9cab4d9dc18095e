package config

import "strings"

// Config is the main configuration carrier for the pipeline.
type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Indicator IndicatorConfig `toml:"indicator"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Risk      RiskConfig      `toml:"risk"`
	Broker    BrokerConfig    `toml:"broker"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type MarketConfig struct {
	Source      string   `toml:"source"` // "binance" | "replay"
	Symbols     []string `toml:"symbols"`
	Interval    string   `toml:"interval"`
	RESTBaseURL string   `toml:"rest_base_url"`
	PreheatBars int      `toml:"preheat_bars"`
	MaxCached   int      `toml:"max_cached"`
}

func (m MarketConfig) SymbolsUpper() []string {
	out := make([]string, 0, len(m.Symbols))
	for _, s := range m.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

type PipelineConfig struct {
	Timezone            string `toml:"timezone"`
	OpeningRangeMinutes int    `toml:"opening_range_minutes"`
	MaxAttempts         int    `toml:"max_attempts"`
	CooldownMinutes     int    `toml:"cooldown_minutes"`
	Workers             int    `toml:"workers"`
	BusBuffer           int    `toml:"bus_buffer"`
	ProfilePath         string `toml:"profile_path"`
}

type IndicatorConfig struct {
	EMALen          int     `toml:"ema_len"`
	SMALen          int     `toml:"sma_len"`
	ATRLen          int     `toml:"atr_len"`
	RSIFast         int     `toml:"rsi_fast"`
	RSISlow         int     `toml:"rsi_slow"`
	SigmaWindow     int     `toml:"sigma_window"`
	SpreadWindow    int     `toml:"spread_window"`
	ATRMedianWindow int     `toml:"atr_median_window"`
	SlopeWindow     int     `toml:"slope_window"`
	TrendEpsilon    float64 `toml:"trend_epsilon"`
	VolatilityFloor float64 `toml:"volatility_floor"`
	SpreadCeiling   float64 `toml:"spread_ceiling"`
}

type StrategyConfig struct {
	TrendPullback TrendPullbackConfig `toml:"trend_pullback"`
	RangeBreakout RangeBreakoutConfig `toml:"range_breakout"`
	BandReversion BandReversionConfig `toml:"band_reversion"`
}

type TrendPullbackConfig struct {
	Enabled       bool    `toml:"enabled"`
	MaxDistance   float64 `toml:"max_distance"`
	MinStop       float64 `toml:"min_stop"`
	StopATRFactor float64 `toml:"stop_atr_factor"`
	TargetMult    float64 `toml:"target_mult"`
	RequireCross  bool    `toml:"require_cross"`
	RiskFraction  float64 `toml:"risk_fraction"`
}

type RangeBreakoutConfig struct {
	Enabled        bool    `toml:"enabled"`
	BufferPrice    float64 `toml:"buffer_price"`
	ProjectionMult float64 `toml:"projection_mult"`
	MinStop        float64 `toml:"min_stop"`
	RiskFraction   float64 `toml:"risk_fraction"`
}

type BandReversionConfig struct {
	Enabled       bool    `toml:"enabled"`
	BandK         float64 `toml:"band_k"`
	StopSigmaMult float64 `toml:"stop_sigma_mult"`
	RiskFraction  float64 `toml:"risk_fraction"`
}

type RiskConfig struct {
	PerTradeRisk   float64 `toml:"per_trade_risk"`
	DailyStopPct   float64 `toml:"daily_stop_pct"`
	WeeklyStopPct  float64 `toml:"weekly_stop_pct"`
	MaxPositions   int     `toml:"max_positions"`
	StartingEquity float64 `toml:"starting_equity"`
}

type BrokerConfig struct {
	SlippageFraction float64 `toml:"slippage_fraction"`
}

type StoreConfig struct {
	Enabled     bool   `toml:"enabled"`
	DBPath      string `toml:"db_path"`
	JournalPath string `toml:"journal_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled     bool   `toml:"enabled"`
	BotToken    string `toml:"bot_token"`
	ChatID      string `toml:"chat_id"`
	MinSeverity string `toml:"min_severity"`
}

// keySet tracks the field paths explicitly present in the config file, so
// defaults never clobber an intentional zero value.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault is one field's defaulting rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
