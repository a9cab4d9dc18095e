package app

import (
	"fmt"
	"strings"

	"riptide/internal/config"
	"riptide/internal/logger"
	"riptide/internal/strategy"
)

// StartupSummary is the one-shot configuration digest printed when the
// pipeline comes up.
type StartupSummary struct {
	Symbols    []string
	Interval   string
	Timezone   string
	Strategies []string
	RiskLine   string
	StoreLine  string
	NotifyLine string
	HTTPAddr   string
}

func newStartupSummary(cfg *config.Config, evaluators []strategy.Evaluator) *StartupSummary {
	codes := make([]string, 0, len(evaluators))
	for _, ev := range evaluators {
		codes = append(codes, ev.Code())
	}

	storeLine := "disabled"
	if cfg.Store.Enabled {
		storeLine = fmt.Sprintf("db=%s journal=%s", cfg.Store.DBPath, cfg.Store.JournalPath)
	}
	notifyLine := "disabled"
	if cfg.Notify.Telegram.Enabled {
		notifyLine = fmt.Sprintf("telegram (min severity %s)", cfg.Notify.Telegram.MinSeverity)
	}

	return &StartupSummary{
		Symbols:    cfg.Market.SymbolsUpper(),
		Interval:   cfg.Market.Interval,
		Timezone:   cfg.Pipeline.Timezone,
		Strategies: codes,
		RiskLine: fmt.Sprintf("per-trade %.2f%% | daily stop %.1f%% | weekly stop %.1f%% | max positions %d",
			cfg.Risk.PerTradeRisk*100, cfg.Risk.DailyStopPct, cfg.Risk.WeeklyStopPct, cfg.Risk.MaxPositions),
		StoreLine:  storeLine,
		NotifyLine: notifyLine,
		HTTPAddr:   cfg.App.HTTPAddr,
	}
}

func (s *StartupSummary) Print() {
	if s == nil {
		return
	}
	lines := []string{
		strings.Repeat("=", 64),
		"STARTUP SUMMARY",
		strings.Repeat("=", 64),
		fmt.Sprintf("Symbols:    %s", formatList(s.Symbols)),
		fmt.Sprintf("Interval:   %s (%s)", s.Interval, s.Timezone),
		fmt.Sprintf("Strategies: %s", formatList(s.Strategies)),
		fmt.Sprintf("Risk:       %s", s.RiskLine),
		fmt.Sprintf("Store:      %s", s.StoreLine),
		fmt.Sprintf("Notify:     %s", s.NotifyLine),
		fmt.Sprintf("HTTP:       %s", s.HTTPAddr),
		strings.Repeat("=", 64),
	}
	logger.InfoBlock(strings.Join(lines, "\n"))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
