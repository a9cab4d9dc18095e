package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/bus"
	"riptide/internal/store/gormstore"
	"riptide/internal/strategy"
	"riptide/internal/types"
)

func newTestStore(t *testing.T) *gormstore.GormStore {
	t.Helper()
	db, err := gormstore.New(filepath.Join(t.TempDir(), "riptide.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecorderPersistsBusEvents(t *testing.T) {
	db := newTestStore(t)
	b := bus.New(64)
	rec := NewRecorder(db, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()

	now := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	require.NoError(t, b.Signals.Publish(strategy.Signal{
		Symbol:    "BTCUSDT",
		Strategy:  strategy.CodeRangeBreakout,
		Side:      types.SideBuy,
		Entry:     50.6,
		Stop:      50.3,
		Target:    51.6,
		Score:     1.2,
		Features:  map[string]float64{"range_high": 50.5},
		Timestamp: now,
	}))
	require.NoError(t, b.Executions.Publish(types.ExecutionEvent{
		Fill: types.Fill{
			TradeID:  "trade-1",
			OrderID:  "order-1",
			Symbol:   "BTCUSDT",
			Side:     types.SideBuy,
			Price:    100.15,
			Quantity: decimal.NewFromInt(500),
			Spread:   0.2,
			Slippage: 0.05,
			FilledAt: now,
		},
		Strategy: strategy.CodeRangeBreakout,
	}))
	require.NoError(t, b.Alerts.Publish(types.AlertEvent{
		Type:      types.AlertRiskRejected,
		Severity:  types.AlertWarning,
		Message:   "Daily stop reached",
		Context:   map[string]any{"symbol": "BTCUSDT"},
		Timestamp: now,
	}))

	require.Eventually(t, func() bool {
		signals, err := db.ListSignals(context.Background(), gormstore.Query{})
		if err != nil || len(signals) != 1 {
			return false
		}
		executions, err := db.ListExecutions(context.Background(), gormstore.Query{})
		if err != nil || len(executions) != 1 {
			return false
		}
		alerts, err := db.ListAlerts(context.Background(), gormstore.Query{})
		return err == nil && len(alerts) == 1
	}, 3*time.Second, 20*time.Millisecond)

	signals, err := db.ListSignals(context.Background(), gormstore.Query{Symbol: "btcusdt"})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, strategy.CodeRangeBreakout, signals[0].Strategy)
	assert.InDelta(t, 50.6, signals[0].Entry, 1e-12)
	assert.JSONEq(t, `{"range_high":50.5}`, string(signals[0].Features))

	executions, err := db.ListExecutions(context.Background(), gormstore.Query{})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "500", executions[0].Quantity)
	assert.InDelta(t, 100.15, executions[0].Price, 1e-12)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop on cancel")
	}
}

func TestRecorderStopsWhenBusCloses(t *testing.T) {
	db := newTestStore(t)
	b := bus.New(8)
	rec := NewRecorder(db, b)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	b.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop on bus close")
	}
}
