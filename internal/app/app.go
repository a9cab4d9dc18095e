package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"riptide/internal/analysis/visual"
	"riptide/internal/bus"
	"riptide/internal/config"
	cfgloader "riptide/internal/config/loader"
	"riptide/internal/engine"
	"riptide/internal/gateway/notifier"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/portfolio"
	"riptide/internal/risk"
	"riptide/internal/scheduler"
	"riptide/internal/store"
	"riptide/internal/store/gormstore"
	"riptide/internal/store/journal"
	livehttp "riptide/internal/transport/http/live"
)

// App owns the assembled pipeline: market feed -> engine host -> bus ->
// consumers, plus the HTTP surface. Build wires it, Run starts it.
type App struct {
	cfg *config.Config

	events    *bus.Bus
	portfolio *portfolio.Service
	risk      *risk.Manager
	host      *engine.Host
	source    market.Source

	store       *gormstore.GormStore
	recorder    *store.Recorder
	journal     *journal.EventJournal
	charts      *visual.Charts
	alertBridge *notifier.AlertBridge
	notify      notifier.TextNotifier
	profiles    *cfgloader.ProfileLoader
	http        *livehttp.Server

	summary *StartupSummary
}

// NewApp builds the application from config without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Host exposes the engine host, for replay harnesses and tests.
func (a *App) Host() *engine.Host {
	if a == nil {
		return nil
	}
	return a.host
}

// Run preheats the indicator engines and then launches every long-running
// component. It returns when the context is cancelled or any component
// fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.summary != nil {
		a.summary.Print()
	}

	if a.cfg.Market.PreheatBars > 0 {
		preheatCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		err := a.host.Preheat(preheatCtx, a.source, a.cfg.Market.PreheatBars)
		cancel()
		if err != nil {
			logger.Warnf("App: preheat incomplete, starting cold: %v", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("live http server error: %w", err)
		}
		return nil
	})

	if a.recorder != nil {
		group.Go(func() error { return a.recorder.Run(ctx) })
	}
	if a.journal != nil {
		group.Go(func() error { return a.runJournalBridge(ctx) })
	}
	if a.alertBridge != nil {
		group.Go(func() error { return a.alertBridge.Run(ctx) })
	}
	if a.store != nil {
		group.Go(func() error {
			a.runEquitySnapshots(ctx)
			return nil
		})
	}
	if a.notify != nil {
		group.Go(func() error {
			a.runDailyReport(ctx)
			return nil
		})
	}

	group.Go(func() error {
		defer a.Close()
		return a.host.Run(ctx, a.source)
	})

	return group.Wait()
}

// runJournalBridge copies every bus event into the append-only journal.
// The journal is forensic; insert failures log and move on.
func (a *App) runJournalBridge(ctx context.Context) error {
	signals, cancelSig := a.events.Signals.Subscribe()
	defer cancelSig()
	executions, cancelExec := a.events.Executions.Subscribe()
	defer cancelExec()
	alerts, cancelAlert := a.events.Alerts.Subscribe()
	defer cancelAlert()

	record := func(kind, symbol string, payload any) {
		if err := a.journal.Append(ctx, kind, symbol, payload); err != nil {
			logger.Warnf("App: journal append %s failed: %v", kind, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			record("SIGNAL", sig.Symbol, sig)
		case exec, ok := <-executions:
			if !ok {
				return nil
			}
			record("EXECUTION", exec.Fill.Symbol, exec)
		case alert, ok := <-alerts:
			if !ok {
				return nil
			}
			symbol := ""
			if s, ok := alert.Context["symbol"].(string); ok {
				symbol = s
			}
			record("ALERT", symbol, alert)
		}
	}
}

// runEquitySnapshots persists an account snapshot shortly after each bar
// close, feeding the equity chart.
func (a *App) runEquitySnapshots(ctx context.Context) {
	interval, ok := scheduler.ParseIntervalDuration(a.cfg.Market.Interval)
	if !ok {
		interval = time.Minute
	}
	sch := scheduler.NewAlignedScheduler(ctx, interval, 2*time.Second)
	sch.Start(func() {
		now := time.Now()
		acct := a.portfolio.Snapshot(now)
		rec := store.EquitySnapshotRecord(acct, now)
		if err := a.store.InsertEquitySnapshot(ctx, rec); err != nil {
			logger.Warnf("App: equity snapshot insert failed: %v", err)
		}
	})
}

// runDailyReport pushes the session summary once per UTC day.
func (a *App) runDailyReport(ctx context.Context) {
	sch := scheduler.NewAlignedScheduler(ctx, 24*time.Hour, 30*time.Second)
	sch.Start(func() {
		sum := a.portfolio.SessionSummary()
		acct := a.portfolio.Snapshot(time.Now())
		msg := notifier.StructuredMessage{
			Icon:  "📊",
			Title: "Daily session report",
			Sections: []notifier.MessageSection{
				{Title: "Account", Lines: []string{
					fmt.Sprintf("Equity: %s", acct.Equity.String()),
					fmt.Sprintf("Daily P&L: %.2f%%", acct.DailyPnLPct),
					fmt.Sprintf("Weekly P&L: %.2f%%", acct.WeeklyPnLPct),
					fmt.Sprintf("Open positions: %d", acct.OpenPositions),
				}},
				{Title: "Trades", Lines: []string{
					fmt.Sprintf("Closed: %d", sum.Trades),
					fmt.Sprintf("Win rate: %.1f%%", sum.WinRate*100),
					fmt.Sprintf("Expectancy: %s", sum.Expectancy.StringFixed(2)),
					fmt.Sprintf("Realized P&L: %s", sum.RealizedPnL.StringFixed(2)),
				}},
			},
			Timestamp: time.Now(),
		}
		if err := a.notify.SendText(msg.RenderMarkdown()); err != nil {
			logger.Warnf("App: daily report send failed: %v", err)
		}
	})
}

// Close tears down in reverse dependency order. Safe to call more than
// once; each component tolerates a repeated close.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.profiles != nil {
		_ = a.profiles.Close()
	}
	if a.source != nil {
		_ = a.source.Close()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
