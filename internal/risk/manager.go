// Package risk applies the pre-trade gate and books post-trade state. The
// pre-trade checks run in a fixed order and short-circuit so the surfaced
// rejection reason is always the most severe one.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"riptide/internal/indicator"
	"riptide/internal/logger"
	"riptide/internal/pkg/decimalx"
	"riptide/internal/portfolio"
	"riptide/internal/types"
)

// Rejection reasons surfaced on alert events and API responses.
const (
	ReasonDailyStop    = "Daily stop reached"
	ReasonWeeklyStop   = "Weekly stop reached"
	ReasonMaxPositions = "Max concurrent positions reached"
	ReasonTrendFilter  = "Trend filter blocked entry"
	ReasonInvalidStop  = "Invalid stop distance"
	ReasonMinQuantity  = "Position size below minimum tradeable unit"
)

type Config struct {
	// PerTradeRisk is the equity fraction risked per trade (0.01 = 1%).
	PerTradeRisk float64
	// DailyStopPct / WeeklyStopPct halt entries once the respective P&L
	// drops at or below the negative threshold, in percent.
	DailyStopPct  float64
	WeeklyStopPct float64
	MaxPositions  int
}

func (c Config) withDefaults() Config {
	out := c
	if out.PerTradeRisk <= 0 {
		out.PerTradeRisk = 0.01
	}
	if out.DailyStopPct <= 0 {
		out.DailyStopPct = 2.0
	}
	if out.WeeklyStopPct <= 0 {
		out.WeeklyStopPct = 5.0
	}
	if out.MaxPositions <= 0 {
		out.MaxPositions = 3
	}
	return out
}

type Manager struct {
	cfg       Config
	portfolio *portfolio.Service
}

func NewManager(cfg Config, pf *portfolio.Service) *Manager {
	return &Manager{cfg: cfg.withDefaults(), portfolio: pf}
}

func (m *Manager) Limits() Config { return m.cfg }

func reject(reason string) types.RiskDecision {
	return types.RiskDecision{Allowed: false, Reason: reason, Quantity: decimal.Zero}
}

// PreTrade runs the ordered gate: daily stop, weekly stop, position limit,
// trend filter, stop-distance validity, sizing. riskFraction overrides the
// configured per-trade fraction when positive (strategy signals may carry
// their own). The returned quantity is floor(equity*fraction / |entry-stop|),
// capped at the intent's requested quantity when one was set.
func (m *Manager) PreTrade(intent types.TradeIntent, account types.AccountSnapshot, snap indicator.Snapshot, riskFraction float64) types.RiskDecision {
	if account.DailyPnLPct <= -m.cfg.DailyStopPct {
		return reject(ReasonDailyStop)
	}
	if account.WeeklyPnLPct <= -m.cfg.WeeklyStopPct {
		return reject(ReasonWeeklyStop)
	}
	if account.OpenPositions >= m.cfg.MaxPositions {
		return reject(ReasonMaxPositions)
	}
	if !snap.TrendOK {
		return reject(ReasonTrendFilter)
	}

	fraction := m.cfg.PerTradeRisk
	if riskFraction > 0 {
		fraction = riskFraction
	}
	riskPerUnit := decimalx.AbsDiff(intent.Entry, intent.Stop)
	if riskPerUnit.Sign() <= 0 {
		return reject(ReasonInvalidStop)
	}

	riskCapital := account.Equity.Mul(decimalx.FromFloat(fraction))
	qty := riskCapital.Div(riskPerUnit).Floor()
	if intent.Quantity.Sign() > 0 && intent.Quantity.LessThan(qty) {
		qty = intent.Quantity
	}
	if qty.Sign() <= 0 {
		return reject(ReasonMinQuantity)
	}

	return types.RiskDecision{Allowed: true, Quantity: qty, RiskFraction: fraction}
}

// PostTrade books a fill into the portfolio. The trade already happened, so
// failures here are logged and swallowed, never surfaced as a rejection.
func (m *Manager) PostTrade(fill types.Fill, strategyCode string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Risk: post-trade update failed for %s: %v", fill.Symbol, r)
		}
	}()
	if m.portfolio == nil {
		return
	}
	m.portfolio.ApplyFill(fill, strategyCode)
	logger.Debugf("Risk: booked fill %s %s %s@%s", fill.Symbol, fill.Side,
		fill.Quantity.String(), fmt.Sprintf("%.4f", fill.Price))
}
