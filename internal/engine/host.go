// Package engine wires market events to per-instrument state and drives the
// evaluate -> gate -> risk -> execute -> emit sequence. Each instrument owns
// a shard with its own lock; instruments never contend with each other.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"riptide/internal/broker"
	"riptide/internal/bus"
	"riptide/internal/indicator"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/portfolio"
	"riptide/internal/risk"
	"riptide/internal/session"
	"riptide/internal/strategy"
	"riptide/internal/types"
)

type Config struct {
	Symbols             []string
	Interval            string
	Timezone            string
	OpeningRangeMinutes int
	MaxAttempts         int
	Cooldown            time.Duration
	Workers             int
	HistoryDepth        int
	Indicator           indicator.Config
}

func (c Config) withDefaults() Config {
	out := c
	if out.Interval == "" {
		out.Interval = "1m"
	}
	if out.Timezone == "" {
		out.Timezone = "UTC"
	}
	if out.OpeningRangeMinutes <= 0 {
		out.OpeningRangeMinutes = 15
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.Cooldown <= 0 {
		out.Cooldown = 30 * time.Minute
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.HistoryDepth <= 0 {
		out.HistoryDepth = 500
	}
	return out
}

type trackerKey struct {
	strategy string
	side     types.Side
}

// instrumentShard owns every piece of mutable per-instrument state. All
// access goes through its mutex, which serializes one instrument without
// blocking any other.
type instrumentShard struct {
	mu        sync.Mutex
	symbol    string
	ind       *indicator.Engine
	opening   *session.OpeningRange
	trackers  map[trackerKey]*session.AttemptTracker
	lastQuote market.Quote
}

type Host struct {
	cfg        Config
	loc        *time.Location
	evaluators []strategy.Evaluator
	riskMgr    *risk.Manager
	brk        *broker.Paper
	pf         *portfolio.Service
	events     *bus.Bus
	klines     market.KlineStore

	mu     sync.RWMutex
	shards map[string]*instrumentShard
}

func New(cfg Config, evaluators []strategy.Evaluator, riskMgr *risk.Manager, brk *broker.Paper, pf *portfolio.Service, events *bus.Bus, klines market.KlineStore) (*Host, error) {
	final := cfg.withDefaults()
	loc, err := time.LoadLocation(final.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", final.Timezone, err)
	}
	return &Host{
		cfg:        final,
		loc:        loc,
		evaluators: evaluators,
		riskMgr:    riskMgr,
		brk:        brk,
		pf:         pf,
		events:     events,
		klines:     klines,
		shards:     make(map[string]*instrumentShard),
	}, nil
}

func (h *Host) shardFor(symbol string) *instrumentShard {
	symbol = strings.ToUpper(symbol)
	h.mu.RLock()
	s, ok := h.shards[symbol]
	h.mu.RUnlock()
	if ok {
		return s
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok = h.shards[symbol]; ok {
		return s
	}
	s = &instrumentShard{
		symbol:   symbol,
		ind:      indicator.NewEngine(symbol, h.cfg.Indicator, h.loc),
		opening:  session.NewOpeningRange(h.cfg.OpeningRangeMinutes, h.loc),
		trackers: make(map[trackerKey]*session.AttemptTracker),
	}
	h.shards[symbol] = s
	return s
}

func (s *instrumentShard) tracker(code string, side types.Side) *session.AttemptTracker {
	k := trackerKey{strategy: code, side: side}
	t, ok := s.trackers[k]
	if !ok {
		t = session.NewAttemptTracker()
		s.trackers[k] = t
	}
	return t
}

// dispatchEvent is the per-worker union of market event kinds.
type dispatchEvent struct {
	symbol string
	candle *market.Candle
	quote  *market.Quote
	trade  *market.Trade
}

// Run subscribes to the source and pumps events through symbol-hashed
// workers until the context is cancelled. Hashing keeps one symbol on one
// worker, so per-instrument arrival order is preserved.
func (h *Host) Run(ctx context.Context, src market.Source) error {
	candles, err := src.Subscribe(ctx, h.cfg.Symbols, h.cfg.Interval, market.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("subscribe candles: %w", err)
	}
	quotes, err := src.SubscribeQuotes(ctx, h.cfg.Symbols, market.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("subscribe quotes: %w", err)
	}
	trades, err := src.SubscribeTrades(ctx, h.cfg.Symbols, market.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("subscribe trades: %w", err)
	}

	lanes := make([]chan dispatchEvent, h.cfg.Workers)
	for i := range lanes {
		lanes[i] = make(chan dispatchEvent, 256)
	}
	laneFor := func(symbol string) chan dispatchEvent {
		return lanes[int(fnv32(strings.ToUpper(symbol)))%len(lanes)]
	}
	forward := func(ev dispatchEvent) bool {
		select {
		case laneFor(ev.symbol) <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for ev := range candles {
			c := ev.Candle
			if !forward(dispatchEvent{symbol: ev.Symbol, candle: &c}) {
				return nil
			}
		}
		return nil
	})
	g.Go(func() error {
		for ev := range quotes {
			q := ev.Quote
			if !forward(dispatchEvent{symbol: ev.Symbol, quote: &q}) {
				return nil
			}
		}
		return nil
	})
	g.Go(func() error {
		for ev := range trades {
			t := ev.Trade
			if !forward(dispatchEvent{symbol: ev.Symbol, trade: &t}) {
				return nil
			}
		}
		return nil
	})
	for i := range lanes {
		lane := lanes[i]
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-lane:
					h.handle(ev)
				}
			}
		})
	}

	logger.Infof("Host: pipeline running, %d symbols, %d workers", len(h.cfg.Symbols), h.cfg.Workers)
	return g.Wait()
}

func (h *Host) handle(ev dispatchEvent) {
	switch {
	case ev.candle != nil:
		h.OnBar(ev.symbol, *ev.candle)
	case ev.quote != nil:
		h.OnQuote(*ev.quote)
	case ev.trade != nil:
		h.OnTrade(*ev.trade)
	}
}

func (h *Host) OnQuote(q market.Quote) {
	h.brk.UpdateQuote(q)
	s := h.shardFor(q.Symbol)
	s.mu.Lock()
	s.ind.UpdateQuote(q)
	s.lastQuote = q
	s.mu.Unlock()
}

func (h *Host) OnTrade(t market.Trade) {
	s := h.shardFor(t.Symbol)
	s.mu.Lock()
	s.ind.UpdateTrade(t)
	s.mu.Unlock()
}

// OnBar folds one bar into the instrument state and, on a finalized bar,
// runs the full evaluation sequence. A panic in any step is contained to
// this instrument.
func (h *Host) OnBar(symbol string, bar market.Candle) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Host: panic evaluating %s: %v", symbol, r)
			debug.PrintStack()
			h.alert(types.AlertEvent{
				Type:      types.AlertEvalPanic,
				Severity:  types.AlertCritical,
				Message:   fmt.Sprintf("evaluation panic for %s", symbol),
				Context:   map[string]any{"symbol": symbol, "panic": fmt.Sprint(r)},
				Timestamp: bar.CloseAt(),
			})
		}
	}()

	if h.klines != nil {
		if err := h.klines.Put(context.Background(), strings.ToUpper(symbol), h.cfg.Interval, []market.Candle{bar}, h.cfg.HistoryDepth); err != nil {
			logger.Warnf("Host: kline store put failed for %s: %v", symbol, err)
		}
	}

	s := h.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	// The websocket re-sends the in-progress bar on every update; only the
	// kline cache above tracks those. Indicators and the opening range fold
	// each bar in exactly once, at close.
	if !bar.Final {
		return
	}
	s.ind.ApplyBar(bar)
	s.opening.ApplyBar(bar)
	h.evaluateLocked(s, bar.CloseAt())
}

// evaluateLocked runs the fixed-order strategy pass for one finalized bar.
// Caller holds the shard lock, which makes gate check + register atomic per
// (instrument, strategy, side).
func (h *Host) evaluateLocked(s *instrumentShard, now time.Time) {
	snap := s.ind.BuildSnapshot()
	if snap.ATR <= 0 || snap.LastPrice <= 0 {
		return
	}

	ctx := strategy.Context{Snapshot: snap, Range: s.opening.State(), Quote: s.lastQuote}
	for _, ev := range h.evaluators {
		sig := ev.Evaluate(ctx)
		if sig == nil {
			continue
		}
		tr := s.tracker(sig.Strategy, sig.Side)
		if !tr.CanEmit(now, h.cfg.MaxAttempts, h.cfg.Cooldown) {
			logger.Debugf("Host: gate closed for %s %s %s", s.symbol, sig.Strategy, sig.Side)
			continue
		}
		tr.RegisterSignal(now)
		h.execute(*sig, snap, now)
	}
}

// execute runs risk -> broker -> portfolio -> events for one signal. The
// sequence completes before the next strategy is evaluated for this bar.
func (h *Host) execute(sig strategy.Signal, snap indicator.Snapshot, now time.Time) {
	if err := h.events.Signals.Publish(sig); err != nil {
		logger.Warnf("Host: signal publish failed: %v", err)
	}

	intent := types.TradeIntent{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		OrderType: types.OrderMarket,
		Entry:     sig.Entry,
		Stop:      sig.Stop,
		Target:    sig.Target,
		Strategy:  sig.Strategy,
		CreatedAt: now,
	}

	account := h.pf.Snapshot(now)
	dec := h.riskMgr.PreTrade(intent, account, snap, sig.RiskFraction)
	if !dec.Allowed {
		logger.Infof("Host: risk rejected %s %s: %s", sig.Symbol, sig.Strategy, dec.Reason)
		h.alert(types.AlertEvent{
			Type:     types.AlertRiskRejected,
			Severity: types.AlertWarning,
			Message:  dec.Reason,
			Context: map[string]any{
				"symbol":   sig.Symbol,
				"strategy": sig.Strategy,
				"side":     string(sig.Side),
				"intent":   intent.ID,
			},
			Timestamp: now,
		})
		return
	}
	intent.Quantity = dec.Quantity

	fill, err := h.brk.PlaceOrder(intent)
	if err != nil {
		logger.Errorf("Host: broker rejected %s %s: %v", sig.Symbol, sig.Strategy, err)
		h.alert(types.AlertEvent{
			Type:     types.AlertBrokerReject,
			Severity: types.AlertCritical,
			Message:  err.Error(),
			Context: map[string]any{
				"symbol":   sig.Symbol,
				"strategy": sig.Strategy,
				"intent":   intent.ID,
			},
			Timestamp: now,
		})
		return
	}

	h.riskMgr.PostTrade(fill, sig.Strategy)
	if err := h.events.Executions.Publish(types.ExecutionEvent{Fill: fill, Strategy: sig.Strategy}); err != nil {
		logger.Warnf("Host: execution publish failed: %v", err)
	}
	logger.Infof("Host: %s %s %s filled %s @ %.4f", sig.Strategy, sig.Side, sig.Symbol,
		fill.Quantity.String(), fill.Price)
}

// SubmitIntent is the manual trade path. It bypasses the evaluators and the
// attempt gate but runs the identical risk/execute sequence, returning the
// decision and fill synchronously.
func (h *Host) SubmitIntent(intent types.TradeIntent) (types.RiskDecision, *types.Fill, error) {
	if !intent.Side.Valid() {
		return types.RiskDecision{}, nil, fmt.Errorf("invalid side %q", intent.Side)
	}
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	if intent.OrderType == "" {
		intent.OrderType = types.OrderMarket
	}
	now := intent.CreatedAt
	if now.IsZero() {
		now = time.Now()
		intent.CreatedAt = now
	}
	intent.Symbol = strings.ToUpper(intent.Symbol)

	s := h.shardFor(intent.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.ind.BuildSnapshot()
	account := h.pf.Snapshot(now)
	dec := h.riskMgr.PreTrade(intent, account, snap, 0)
	if !dec.Allowed {
		h.alert(types.AlertEvent{
			Type:      types.AlertRiskRejected,
			Severity:  types.AlertWarning,
			Message:   dec.Reason,
			Context:   map[string]any{"symbol": intent.Symbol, "intent": intent.ID, "manual": true},
			Timestamp: now,
		})
		return dec, nil, nil
	}
	intent.Quantity = dec.Quantity

	fill, err := h.brk.PlaceOrder(intent)
	if err != nil {
		h.alert(types.AlertEvent{
			Type:      types.AlertBrokerReject,
			Severity:  types.AlertCritical,
			Message:   err.Error(),
			Context:   map[string]any{"symbol": intent.Symbol, "intent": intent.ID, "manual": true},
			Timestamp: now,
		})
		return dec, nil, err
	}
	h.riskMgr.PostTrade(fill, intent.Strategy)
	if pubErr := h.events.Executions.Publish(types.ExecutionEvent{Fill: fill, Strategy: intent.Strategy}); pubErr != nil {
		logger.Warnf("Host: execution publish failed: %v", pubErr)
	}
	return dec, &fill, nil
}

// Preheat replays recent history through the indicator engines so
// strategies do not start cold.
func (h *Host) Preheat(ctx context.Context, src market.Source, limit int) error {
	if limit <= 0 {
		limit = h.cfg.HistoryDepth
	}
	for _, symbol := range h.cfg.Symbols {
		bars, err := src.FetchHistory(ctx, symbol, h.cfg.Interval, limit)
		if err != nil {
			return fmt.Errorf("preheat %s: %w", symbol, err)
		}
		s := h.shardFor(symbol)
		s.mu.Lock()
		for _, bar := range bars {
			s.ind.ApplyBar(bar)
			s.opening.ApplyBar(bar)
		}
		s.mu.Unlock()
		if h.klines != nil && len(bars) > 0 {
			if err := h.klines.Put(ctx, strings.ToUpper(symbol), h.cfg.Interval, bars, h.cfg.HistoryDepth); err != nil {
				logger.Warnf("Host: preheat kline store put failed for %s: %v", symbol, err)
			}
		}
		logger.Infof("Host: preheated %s with %d bars", symbol, len(bars))
	}
	return nil
}

// Snapshot exposes the current indicator snapshot for one symbol, used by
// the API layer.
func (h *Host) Snapshot(symbol string) indicator.Snapshot {
	s := h.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ind.BuildSnapshot()
}

func (h *Host) alert(ev types.AlertEvent) {
	if err := h.events.Alerts.Publish(ev); err != nil {
		logger.Warnf("Host: alert publish failed: %v", err)
	}
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
