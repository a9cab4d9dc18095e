package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"riptide/internal/analysis/visual"
	"riptide/internal/broker"
	"riptide/internal/bus"
	"riptide/internal/config"
	cfgloader "riptide/internal/config/loader"
	"riptide/internal/engine"
	"riptide/internal/gateway"
	"riptide/internal/gateway/notifier"
	"riptide/internal/indicator"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/portfolio"
	"riptide/internal/risk"
	"riptide/internal/store"
	"riptide/internal/store/gormstore"
	"riptide/internal/store/journal"
	"riptide/internal/strategy"
	livehttp "riptide/internal/transport/http/live"
	"riptide/internal/types"
)

// AppBuilder assembles the full live pipeline from config. Build functions
// are fields so tests can swap a single component without re-wiring the
// rest.
type AppBuilder struct {
	cfg *config.Config

	buildSource  func(*config.Config) (market.Source, error)
	buildStore   func(*config.Config) (*gormstore.GormStore, error)
	buildJournal func(*config.Config) (*journal.EventJournal, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSourceBuilder overrides market source construction, used by replay
// harnesses to inject a pre-loaded source.
func WithSourceBuilder(fn func(*config.Config) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.buildSource = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:          cfg,
		buildSource:  gateway.NewSourceFromConfig,
		buildStore:   func(c *config.Config) (*gormstore.GormStore, error) { return gormstore.New(c.Store.DBPath) },
		buildJournal: func(c *config.Config) (*journal.EventJournal, error) { return journal.New(c.Store.JournalPath) },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build constructs every component and wires them together. Nothing starts
// running here; App.Run launches the goroutines.
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	events := bus.New(cfg.Pipeline.BusBuffer)
	pf := portfolio.NewService(decimal.NewFromFloat(cfg.Risk.StartingEquity))
	riskMgr := risk.NewManager(risk.Config{
		PerTradeRisk:  cfg.Risk.PerTradeRisk,
		DailyStopPct:  cfg.Risk.DailyStopPct,
		WeeklyStopPct: cfg.Risk.WeeklyStopPct,
		MaxPositions:  cfg.Risk.MaxPositions,
	}, pf)
	brk := broker.NewPaper(broker.Config{SlippageFraction: cfg.Broker.SlippageFraction})

	evaluators, reconfigure := buildEvaluators(cfg.Strategy)
	if len(evaluators) == 0 {
		logger.Warnf("App: all strategy evaluators disabled, pipeline will only serve manual intents")
	}

	klines := market.NewMemoryKlineStore()

	host, err := engine.New(engine.Config{
		Symbols:             cfg.Market.SymbolsUpper(),
		Interval:            cfg.Market.Interval,
		Timezone:            cfg.Pipeline.Timezone,
		OpeningRangeMinutes: cfg.Pipeline.OpeningRangeMinutes,
		MaxAttempts:         cfg.Pipeline.MaxAttempts,
		Cooldown:            time.Duration(cfg.Pipeline.CooldownMinutes) * time.Minute,
		Workers:             cfg.Pipeline.Workers,
		HistoryDepth:        cfg.Market.MaxCached,
		Indicator:           indicatorConfig(cfg.Indicator),
	}, evaluators, riskMgr, brk, pf, events, klines)
	if err != nil {
		return nil, fmt.Errorf("build engine host: %w", err)
	}

	src, err := b.buildSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("build market source: %w", err)
	}

	app := &App{
		cfg:       cfg,
		events:    events,
		portfolio: pf,
		risk:      riskMgr,
		host:      host,
		source:    src,
	}

	if cfg.Store.Enabled {
		db, err := b.buildStore(cfg)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open event store: %w", err)
		}
		app.store = db
		app.recorder = store.NewRecorder(db, events)
		app.charts = visual.NewCharts(db)

		jrnl, err := b.buildJournal(cfg)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open event journal: %w", err)
		}
		app.journal = jrnl
	}

	if cfg.Notify.Telegram.Enabled {
		tg := notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
		app.notify = tg
		app.alertBridge = notifier.NewAlertBridge(events, tg, minSeverity(cfg.Notify.Telegram.MinSeverity))
	}

	if cfg.Pipeline.ProfilePath != "" {
		pl, err := cfgloader.NewProfileLoader(cfg.Pipeline.ProfilePath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open strategy profile: %w", err)
		}
		pl.Subscribe(func(snap cfgloader.ProfileSnapshot) {
			if snap.Version <= 1 {
				// initial delivery mirrors the file config already applied
				return
			}
			reconfigure(snap.Strategy)
			logger.Infof("App: strategy parameters reloaded (profile version %d)", snap.Version)
		})
		app.profiles = pl
	}

	router := &livehttp.Router{
		Pipeline:  host,
		Risk:      riskMgr,
		Portfolio: pf,
		Store:     app.store,
		Journal:   app.journal,
		Chart:     chartOrNil(app.charts),
	}
	httpSrv, err := livehttp.NewServer(livehttp.ServerConfig{Addr: cfg.App.HTTPAddr, Router: router})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("build http server: %w", err)
	}
	app.http = httpSrv

	app.summary = newStartupSummary(cfg, evaluators)
	return app, nil
}

// chartOrNil avoids storing a typed-nil *visual.Charts in the renderer
// interface field.
func chartOrNil(c *visual.Charts) livehttp.EquityChartRenderer {
	if c == nil {
		return nil
	}
	return c
}

// buildEvaluators constructs the enabled evaluators in their fixed pass
// order and returns a function that pushes profile parameter sets into
// them.
func buildEvaluators(cfg config.StrategyConfig) ([]strategy.Evaluator, func(cfgloader.ProfileDefinition)) {
	var out []strategy.Evaluator
	var tpb *strategy.TrendPullback
	var orb *strategy.RangeBreakout
	var vrb *strategy.BandReversion

	if cfg.TrendPullback.Enabled {
		tpb = strategy.NewTrendPullback(trendPullbackConfig(cfg.TrendPullback))
		out = append(out, tpb)
	}
	if cfg.RangeBreakout.Enabled {
		orb = strategy.NewRangeBreakout(rangeBreakoutConfig(cfg.RangeBreakout))
		out = append(out, orb)
	}
	if cfg.BandReversion.Enabled {
		vrb = strategy.NewBandReversion(bandReversionConfig(cfg.BandReversion))
		out = append(out, vrb)
	}

	reconfigure := func(def cfgloader.ProfileDefinition) {
		if tpb != nil {
			tpb.Reconfigure(strategy.TrendPullbackConfig{
				MaxDistance:   def.TrendPullback.MaxDistance,
				MinStop:       def.TrendPullback.MinStop,
				StopATRFactor: def.TrendPullback.StopATRFactor,
				TargetMult:    def.TrendPullback.TargetMult,
				RequireCross:  def.TrendPullback.RequireCross,
				RiskFraction:  def.TrendPullback.RiskFraction,
			})
		}
		if orb != nil {
			orb.Reconfigure(strategy.RangeBreakoutConfig{
				BufferPrice:    def.RangeBreakout.BufferPrice,
				ProjectionMult: def.RangeBreakout.ProjectionMult,
				MinStop:        def.RangeBreakout.MinStop,
				RiskFraction:   def.RangeBreakout.RiskFraction,
			})
		}
		if vrb != nil {
			vrb.Reconfigure(strategy.BandReversionConfig{
				BandK:         def.BandReversion.BandK,
				StopSigmaMult: def.BandReversion.StopSigmaMult,
				RiskFraction:  def.BandReversion.RiskFraction,
			})
		}
	}
	return out, reconfigure
}

func trendPullbackConfig(c config.TrendPullbackConfig) strategy.TrendPullbackConfig {
	return strategy.TrendPullbackConfig{
		MaxDistance:   c.MaxDistance,
		MinStop:       c.MinStop,
		StopATRFactor: c.StopATRFactor,
		TargetMult:    c.TargetMult,
		RequireCross:  c.RequireCross,
		RiskFraction:  c.RiskFraction,
	}
}

func rangeBreakoutConfig(c config.RangeBreakoutConfig) strategy.RangeBreakoutConfig {
	return strategy.RangeBreakoutConfig{
		BufferPrice:    c.BufferPrice,
		ProjectionMult: c.ProjectionMult,
		MinStop:        c.MinStop,
		RiskFraction:   c.RiskFraction,
	}
}

func bandReversionConfig(c config.BandReversionConfig) strategy.BandReversionConfig {
	return strategy.BandReversionConfig{
		BandK:         c.BandK,
		StopSigmaMult: c.StopSigmaMult,
		RiskFraction:  c.RiskFraction,
	}
}

func indicatorConfig(c config.IndicatorConfig) indicator.Config {
	return indicator.Config{
		EMALen:          c.EMALen,
		SMALen:          c.SMALen,
		ATRLen:          c.ATRLen,
		RSIFast:         c.RSIFast,
		RSISlow:         c.RSISlow,
		SigmaWindow:     c.SigmaWindow,
		SpreadWindow:    c.SpreadWindow,
		ATRMedianWindow: c.ATRMedianWindow,
		SlopeWindow:     c.SlopeWindow,
		TrendEpsilon:    c.TrendEpsilon,
		VolatilityFloor: c.VolatilityFloor,
		SpreadCeiling:   c.SpreadCeiling,
	}
}

func minSeverity(s string) types.AlertSeverity {
	switch types.AlertSeverity(s) {
	case types.AlertInfo, types.AlertWarning, types.AlertCritical:
		return types.AlertSeverity(s)
	default:
		return types.AlertWarning
	}
}
