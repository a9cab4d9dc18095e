// Package types holds the small value types shared across the pipeline:
// sides, intents, decisions, fills, account views, alerts. It stays a leaf
// so every layer can depend on it without cycles.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// TradeIntent is one request to trade. Quantity starts as the requested
// amount (zero for strategy signals, which are sized by the risk gate) and
// is mutated exactly once by the risk check before execution.
type TradeIntent struct {
	ID        string
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	OrderType OrderType
	Entry     float64
	Stop      float64
	Target    float64
	Strategy  string
	CreatedAt time.Time
}

// RiskDecision is the outcome of one pre-trade check. Allowed and a
// positive quantity always agree; a rejection carries the first failing
// reason only.
type RiskDecision struct {
	Allowed      bool
	Reason       string
	Quantity     decimal.Decimal
	RiskFraction float64
}

// Fill records one simulated execution.
type Fill struct {
	TradeID  string
	OrderID  string
	Symbol   string
	Side     Side
	Price    float64
	Quantity decimal.Decimal
	Spread   float64
	Slippage float64
	FilledAt time.Time
}

// ExecutionEvent is the fill annotated with its originating strategy,
// published to downstream consumers.
type ExecutionEvent struct {
	Fill
	Strategy string
}

// AccountSnapshot is the risk manager's read-only view of the portfolio at
// decision time.
type AccountSnapshot struct {
	Equity        decimal.Decimal
	DailyPnLPct   float64
	WeeklyPnLPct  float64
	OpenPositions int
	UpdatedAt     time.Time
}

type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "INFO"
	AlertWarning  AlertSeverity = "WARNING"
	AlertCritical AlertSeverity = "CRITICAL"
)

const (
	AlertRiskRejected = "risk_rejected"
	AlertBrokerReject = "broker_reject"
	AlertEvalPanic    = "evaluation_panic"
)

// AlertEvent reports a rejection or failure on the alert channel. Context
// carries structured detail for persistence and operator tooling.
type AlertEvent struct {
	Type      string
	Severity  AlertSeverity
	Message   string
	Context   map[string]any
	Timestamp time.Time
}
