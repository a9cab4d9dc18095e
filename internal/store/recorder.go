// Package store bridges the in-process event bus to durable storage. The
// Recorder subscribes to every topic and writes rows as events arrive, so
// persistence never sits on the trading path.
package store

import (
	"context"
	"encoding/json"
	"time"

	"riptide/internal/bus"
	"riptide/internal/logger"
	"riptide/internal/store/gormstore"
	storemodel "riptide/internal/store/model"
	"riptide/internal/strategy"
	"riptide/internal/types"
)

// EquitySnapshotRecord converts an account snapshot into its storage row.
func EquitySnapshotRecord(acct types.AccountSnapshot, at time.Time) *storemodel.EquitySnapshotModel {
	return &storemodel.EquitySnapshotModel{
		TS:            at.UnixMilli(),
		Equity:        acct.Equity.String(),
		DailyPnLPct:   acct.DailyPnLPct,
		WeeklyPnLPct:  acct.WeeklyPnLPct,
		OpenPositions: acct.OpenPositions,
	}
}

type Recorder struct {
	db  *gormstore.GormStore
	bus *bus.Bus
}

func NewRecorder(db *gormstore.GormStore, b *bus.Bus) *Recorder {
	return &Recorder{db: db, bus: b}
}

// Run consumes until ctx is cancelled or the bus closes. Insert failures are
// logged and skipped; a full disk must not stall the pipeline.
func (r *Recorder) Run(ctx context.Context) error {
	if r == nil || r.db == nil || r.bus == nil {
		return nil
	}
	signals, cancelSignals := r.bus.Signals.Subscribe()
	defer cancelSignals()
	executions, cancelExecutions := r.bus.Executions.Subscribe()
	defer cancelExecutions()
	alerts, cancelAlerts := r.bus.Alerts.Subscribe()
	defer cancelAlerts()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			r.recordSignal(ctx, sig)
		case exec, ok := <-executions:
			if !ok {
				return nil
			}
			r.recordExecution(ctx, exec)
		case alert, ok := <-alerts:
			if !ok {
				return nil
			}
			r.recordAlert(ctx, alert)
		}
	}
}

func (r *Recorder) recordSignal(ctx context.Context, sig strategy.Signal) {
	features, _ := json.Marshal(sig.Features)
	rec := &storemodel.SignalModel{
		TS:       sig.Timestamp.UnixMilli(),
		Symbol:   sig.Symbol,
		Strategy: sig.Strategy,
		Side:     string(sig.Side),
		Entry:    sig.Entry,
		Stop:     sig.Stop,
		Target:   sig.Target,
		Score:    sig.Score,
		Features: features,
	}
	if err := r.db.InsertSignal(ctx, rec); err != nil {
		logger.Errorf("Recorder: insert signal %s/%s failed: %v", sig.Symbol, sig.Strategy, err)
	}
}

func (r *Recorder) recordExecution(ctx context.Context, exec types.ExecutionEvent) {
	rec := &storemodel.ExecutionModel{
		TradeID:  exec.TradeID,
		OrderID:  exec.OrderID,
		TS:       exec.FilledAt.UnixMilli(),
		Symbol:   exec.Symbol,
		Side:     string(exec.Side),
		Strategy: exec.Strategy,
		Price:    exec.Price,
		Quantity: exec.Quantity.String(),
		Spread:   exec.Spread,
		Slippage: exec.Slippage,
	}
	if err := r.db.InsertExecution(ctx, rec); err != nil {
		logger.Errorf("Recorder: insert execution %s failed: %v", exec.TradeID, err)
	}
}

func (r *Recorder) recordAlert(ctx context.Context, alert types.AlertEvent) {
	detail, _ := json.Marshal(alert.Context)
	rec := &storemodel.AlertModel{
		TS:       alert.Timestamp.UnixMilli(),
		Type:     alert.Type,
		Severity: string(alert.Severity),
		Message:  alert.Message,
		Context:  detail,
	}
	if err := r.db.InsertAlert(ctx, rec); err != nil {
		logger.Errorf("Recorder: insert alert %s failed: %v", alert.Type, err)
	}
}
