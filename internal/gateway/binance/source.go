// Package binance implements market.Source on Binance USD-M futures via the
// go-binance SDK: REST klines for history, combined websocket streams for
// live bars, top-of-book quotes, and aggregate trades.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/scheduler"
)

const maxHistoryLimit = 1500

type Source struct {
	cfg    Config
	client *futures.Client

	mu           sync.Mutex
	candleCancel context.CancelFunc
	quoteCancel  context.CancelFunc
	tradeCancel  context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			futures.SetWsProxyUrl(wsProxy)
		}
	}
	return &Source{
		cfg:    final,
		client: client,
	}, nil
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	svc := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
			Final:     true,
		})
	}
	// The REST endpoint returns the in-progress bar last; history is closed
	// bars only.
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		out = scheduler.DropUnclosedKline(out, dur)
	}
	return out, nil
}

func (s *Source) Subscribe(ctx context.Context, symbols []string, interval string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	cleaned := cleanSymbols(symbols)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no valid symbols for kline subscription")
	}
	mapping := make(map[string]string, len(cleaned))
	for _, sym := range cleaned {
		mapping[sym] = interval
	}
	out := make(chan market.CandleEvent, bufferOr(opts.Buffer, 512))
	subCtx := s.swapCancel(ctx, &s.candleCancel)

	go func() {
		defer close(out)
		s.runStreamLoop(subCtx, opts, "kline", func() (chan struct{}, chan struct{}, error) {
			return futures.WsCombinedKlineServe(mapping, func(event *futures.WsKlineEvent) {
				ce, ok := convertKlineEvent(event)
				if !ok {
					return
				}
				select {
				case <-subCtx.Done():
				case out <- ce:
				default:
					logger.Warnf("Binance source: kline channel full, drop %s %s", ce.Symbol, ce.Interval)
				}
			}, s.makeErrHandler())
		})
	}()
	return out, nil
}

func (s *Source) SubscribeQuotes(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.QuoteEvent, error) {
	cleaned := cleanSymbols(symbols)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no valid symbols for quote subscription")
	}
	out := make(chan market.QuoteEvent, bufferOr(opts.Buffer, 1024))
	subCtx := s.swapCancel(ctx, &s.quoteCancel)

	go func() {
		defer close(out)
		s.runStreamLoop(subCtx, opts, "bookTicker", func() (chan struct{}, chan struct{}, error) {
			return futures.WsCombinedBookTickerServe(cleaned, func(event *futures.WsBookTickerEvent) {
				qe, ok := convertBookTickerEvent(event)
				if !ok {
					return
				}
				select {
				case <-subCtx.Done():
				case out <- qe:
				default:
					// Quotes are ephemeral; dropping the oldest under
					// pressure is fine, the next update supersedes it.
				}
			}, s.makeErrHandler())
		})
	}()
	return out, nil
}

func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TradeEvent, error) {
	cleaned := cleanSymbols(symbols)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no valid symbols for trade subscription")
	}
	out := make(chan market.TradeEvent, bufferOr(opts.Buffer, 1024))
	subCtx := s.swapCancel(ctx, &s.tradeCancel)

	go func() {
		defer close(out)
		s.runStreamLoop(subCtx, opts, "aggTrade", func() (chan struct{}, chan struct{}, error) {
			return futures.WsCombinedAggTradeServe(cleaned, func(event *futures.WsAggTradeEvent) {
				te, ok := convertAggTradeEvent(event)
				if !ok {
					return
				}
				select {
				case <-subCtx.Done():
				case out <- te:
				default:
					logger.Warnf("Binance source: aggTrade channel full, drop %s", te.Symbol)
				}
			}, s.makeErrHandler())
		})
	}()
	return out, nil
}

// runStreamLoop keeps one combined websocket stream alive: serve, wait for
// disconnect, back off, reconnect. The serve closure owns the handlers.
func (s *Source) runStreamLoop(ctx context.Context, opts market.SubscribeOptions, name string, serve func() (doneC, stopC chan struct{}, err error)) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		doneC, stopC, err := serve()
		if err != nil {
			s.recordSubscribeError(err)
			logger.Warnf("Binance source: %s subscribe failed: %v", name, err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		s.recordReconnect()
		logger.Warnf("Binance source: %s stream disconnected, reconnecting in %s", name, delay)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(s.lastError())
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range []*context.CancelFunc{&s.candleCancel, &s.quoteCancel, &s.tradeCancel} {
		if *cancel != nil {
			(*cancel)()
			*cancel = nil
		}
	}
	return nil
}

// swapCancel replaces the previous subscription of the same kind so only one
// stream per kind is live.
func (s *Source) swapCancel(ctx context.Context, slot *context.CancelFunc) context.Context {
	subCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if *slot != nil {
		(*slot)()
	}
	*slot = cancel
	s.mu.Unlock()
	return subCtx
}

func (s *Source) makeErrHandler() futures.ErrHandler {
	return func(err error) {
		if err == nil {
			return
		}
		s.statsMu.Lock()
		s.stats.LastError = err.Error()
		s.statsMu.Unlock()
	}
}

func (s *Source) recordSubscribeError(err error) {
	if err == nil {
		return
	}
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect() {
	s.statsMu.Lock()
	s.stats.Reconnects++
	s.statsMu.Unlock()
}

func (s *Source) lastError() error {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.stats.LastError == "" {
		return nil
	}
	return fmt.Errorf("%s", s.stats.LastError)
}

func cleanSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		out = appendUnique(out, upper)
	}
	return out
}

func appendUnique(target []string, val string) []string {
	for _, existing := range target {
		if existing == val {
			return target
		}
	}
	return append(target, val)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func convertKlineEvent(ev *futures.WsKlineEvent) (market.CandleEvent, bool) {
	if ev == nil {
		return market.CandleEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	interval := strings.ToLower(strings.TrimSpace(ev.Kline.Interval))
	if symbol == "" || interval == "" {
		return market.CandleEvent{}, false
	}
	return market.CandleEvent{
		Symbol:   symbol,
		Interval: interval,
		Candle: market.Candle{
			OpenTime:  ev.Kline.StartTime,
			CloseTime: ev.Kline.EndTime,
			Open:      parseFloat(ev.Kline.Open),
			High:      parseFloat(ev.Kline.High),
			Low:       parseFloat(ev.Kline.Low),
			Close:     parseFloat(ev.Kline.Close),
			Volume:    parseFloat(ev.Kline.Volume),
			Trades:    ev.Kline.TradeNum,
			Final:     ev.Kline.IsFinal,
		},
	}, true
}

func convertBookTickerEvent(ev *futures.WsBookTickerEvent) (market.QuoteEvent, bool) {
	if ev == nil {
		return market.QuoteEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return market.QuoteEvent{}, false
	}
	bid := parseFloat(ev.BestBidPrice)
	ask := parseFloat(ev.BestAskPrice)
	if bid <= 0 && ask <= 0 {
		return market.QuoteEvent{}, false
	}
	return market.QuoteEvent{
		Symbol: symbol,
		Quote: market.Quote{
			Symbol: symbol,
			Bid:    bid,
			Ask:    ask,
			Time:   ev.Time,
		},
	}, true
}

func convertAggTradeEvent(ev *futures.WsAggTradeEvent) (market.TradeEvent, bool) {
	if ev == nil {
		return market.TradeEvent{}, false
	}
	price := parseFloat(ev.Price)
	if price <= 0 {
		return market.TradeEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return market.TradeEvent{}, false
	}
	return market.TradeEvent{
		Symbol: symbol,
		Trade: market.Trade{
			Symbol:   symbol,
			Price:    price,
			Quantity: parseFloat(ev.Quantity),
			Time:     ev.TradeTime,
		},
	}, true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func bufferOr(buffer, fallback int) int {
	if buffer > 0 {
		return buffer
	}
	if fallback > 0 {
		return fallback
	}
	return 64
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
