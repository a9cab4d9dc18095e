// Package model holds the persisted row shapes. Timestamps are unix
// milliseconds; decimal quantities are stored as strings to keep exact
// values across the round trip.
package model

import "gorm.io/datatypes"

type SignalModel struct {
	ID       int64          `gorm:"column:id;primaryKey"`
	TS       int64          `gorm:"column:ts;index:idx_signals_symbol_ts,priority:2"`
	Symbol   string         `gorm:"column:symbol;index:idx_signals_symbol_ts,priority:1"`
	Strategy string         `gorm:"column:strategy"`
	Side     string         `gorm:"column:side"`
	Entry    float64        `gorm:"column:entry"`
	Stop     float64        `gorm:"column:stop"`
	Target   float64        `gorm:"column:target"`
	Score    float64        `gorm:"column:score"`
	Features datatypes.JSON `gorm:"column:features;type:TEXT"`
}

func (SignalModel) TableName() string { return "signals" }

type ExecutionModel struct {
	ID       int64   `gorm:"column:id;primaryKey"`
	TradeID  string  `gorm:"column:trade_id;uniqueIndex"`
	OrderID  string  `gorm:"column:order_id"`
	TS       int64   `gorm:"column:ts;index:idx_executions_symbol_ts,priority:2"`
	Symbol   string  `gorm:"column:symbol;index:idx_executions_symbol_ts,priority:1"`
	Side     string  `gorm:"column:side"`
	Strategy string  `gorm:"column:strategy"`
	Price    float64 `gorm:"column:price"`
	Quantity string  `gorm:"column:quantity"`
	Spread   float64 `gorm:"column:spread"`
	Slippage float64 `gorm:"column:slippage"`
}

func (ExecutionModel) TableName() string { return "executions" }

type AlertModel struct {
	ID       int64          `gorm:"column:id;primaryKey"`
	TS       int64          `gorm:"column:ts;index"`
	Type     string         `gorm:"column:type"`
	Severity string         `gorm:"column:severity"`
	Message  string         `gorm:"column:message"`
	Context  datatypes.JSON `gorm:"column:context;type:TEXT"`
}

func (AlertModel) TableName() string { return "alerts" }

type EquitySnapshotModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	TS            int64   `gorm:"column:ts;index"`
	Equity        string  `gorm:"column:equity"`
	DailyPnLPct   float64 `gorm:"column:daily_pnl_pct"`
	WeeklyPnLPct  float64 `gorm:"column:weekly_pnl_pct"`
	OpenPositions int     `gorm:"column:open_positions"`
}

func (EquitySnapshotModel) TableName() string { return "equity_snapshots" }
