package market

import "context"

type CandleEvent struct {
	Symbol   string
	Interval string
	Candle   Candle
}

type QuoteEvent struct {
	Symbol string
	Quote  Quote
}

type TradeEvent struct {
	Symbol string
	Trade  Trade
}

type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

type SourceStats struct {
	Reconnects      int
	SubscribeErrors int
	LastError       string
}

// Source is a live or replayed market-data provider. Implementations own
// their transport; consumers only see the event channels.
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	Subscribe(ctx context.Context, symbols []string, interval string, opts SubscribeOptions) (<-chan CandleEvent, error)

	SubscribeQuotes(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan QuoteEvent, error)

	SubscribeTrades(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan TradeEvent, error)

	Stats() SourceStats

	Close() error
}
