package config

import (
	"fmt"
	"strings"
	"time"
)

func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(m.Source)) {
	case "binance", "replay":
	default:
		return fmt.Errorf("market.source must be binance or replay, got %q", m.Source)
	}
	if len(m.SymbolsUpper()) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	return nil
}

func (p *PipelineConfig) validate() error {
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("pipeline.timezone invalid: %w", err)
	}
	if p.OpeningRangeMinutes <= 0 {
		return fmt.Errorf("pipeline.opening_range_minutes must be > 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.PerTradeRisk <= 0 || r.PerTradeRisk >= 1 {
		return fmt.Errorf("risk.per_trade_risk must be in (0,1)")
	}
	if r.DailyStopPct <= 0 {
		return fmt.Errorf("risk.daily_stop_pct must be > 0")
	}
	if r.WeeklyStopPct < r.DailyStopPct {
		return fmt.Errorf("risk.weekly_stop_pct must be >= risk.daily_stop_pct")
	}
	if r.StartingEquity <= 0 {
		return fmt.Errorf("risk.starting_equity must be > 0")
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	if b.SlippageFraction < 0 || b.SlippageFraction > 1 {
		return fmt.Errorf("broker.slippage_fraction must be in [0,1]")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.BotToken) == "" {
			return fmt.Errorf("notify.telegram.bot_token required when enabled")
		}
		if strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram.chat_id required when enabled")
		}
	}
	switch strings.ToUpper(strings.TrimSpace(n.Telegram.MinSeverity)) {
	case "", "INFO", "WARNING", "CRITICAL":
	default:
		return fmt.Errorf("notify.telegram.min_severity must be INFO, WARNING or CRITICAL")
	}
	return nil
}
