package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ReplaySource drives the pipeline from pre-loaded candles/quotes/trades.
// Events are delivered in insertion order, which makes test runs and local
// dry runs deterministic.
type ReplaySource struct {
	mu      sync.Mutex
	history map[string][]Candle
	candles []CandleEvent
	quotes  []QuoteEvent
	trades  []TradeEvent
	closed  bool
}

func NewReplaySource() *ReplaySource {
	return &ReplaySource{history: make(map[string][]Candle)}
}

func (r *ReplaySource) LoadHistory(symbol, interval string, ks []Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Candle, len(ks))
	copy(cp, ks)
	r.history[storeKey(strings.ToUpper(symbol), interval)] = cp
}

func (r *ReplaySource) AddCandle(ev CandleEvent) {
	r.mu.Lock()
	r.candles = append(r.candles, ev)
	r.mu.Unlock()
}

func (r *ReplaySource) AddQuote(ev QuoteEvent) {
	r.mu.Lock()
	r.quotes = append(r.quotes, ev)
	r.mu.Unlock()
}

func (r *ReplaySource) AddTrade(ev TradeEvent) {
	r.mu.Lock()
	r.trades = append(r.trades, ev)
	r.mu.Unlock()
}

func (r *ReplaySource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ks := r.history[storeKey(strings.ToUpper(symbol), interval)]
	if limit > 0 && len(ks) > limit {
		ks = ks[len(ks)-limit:]
	}
	out := make([]Candle, len(ks))
	copy(out, ks)
	return out, nil
}

func (r *ReplaySource) Subscribe(ctx context.Context, symbols []string, interval string, opts SubscribeOptions) (<-chan CandleEvent, error) {
	r.mu.Lock()
	events := make([]CandleEvent, len(r.candles))
	copy(events, r.candles)
	r.mu.Unlock()

	want := symbolSet(symbols)
	out := make(chan CandleEvent, bufferOrDefault(opts.Buffer, len(events)))
	go func() {
		defer close(out)
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		for _, ev := range events {
			if len(want) > 0 {
				if _, ok := want[strings.ToUpper(ev.Symbol)]; !ok {
					continue
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
	}()
	return out, nil
}

func (r *ReplaySource) SubscribeQuotes(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan QuoteEvent, error) {
	r.mu.Lock()
	events := make([]QuoteEvent, len(r.quotes))
	copy(events, r.quotes)
	r.mu.Unlock()

	want := symbolSet(symbols)
	out := make(chan QuoteEvent, bufferOrDefault(opts.Buffer, len(events)))
	go func() {
		defer close(out)
		for _, ev := range events {
			if len(want) > 0 {
				if _, ok := want[strings.ToUpper(ev.Symbol)]; !ok {
					continue
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
	}()
	return out, nil
}

func (r *ReplaySource) SubscribeTrades(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan TradeEvent, error) {
	r.mu.Lock()
	events := make([]TradeEvent, len(r.trades))
	copy(events, r.trades)
	r.mu.Unlock()

	want := symbolSet(symbols)
	out := make(chan TradeEvent, bufferOrDefault(opts.Buffer, len(events)))
	go func() {
		defer close(out)
		for _, ev := range events {
			if len(want) > 0 {
				if _, ok := want[strings.ToUpper(ev.Symbol)]; !ok {
					continue
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
	}()
	return out, nil
}

func (r *ReplaySource) Stats() SourceStats { return SourceStats{} }

func (r *ReplaySource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("replay source already closed")
	}
	r.closed = true
	return nil
}

func symbolSet(symbols []string) map[string]struct{} {
	out := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func bufferOrDefault(buffer, fallback int) int {
	if buffer > 0 {
		return buffer
	}
	if fallback > 0 {
		return fallback
	}
	return 64
}
