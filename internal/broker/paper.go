// Package broker simulates order execution against the latest cached
// quote. No resting orders, no partial fills: every accepted placement
// produces exactly one full fill.
package broker

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/types"
)

// ErrNoMarketData means no quote is cached for the instrument. A fill
// without a reference price is never simulated.
var ErrNoMarketData = errors.New("no market data for instrument")

type Config struct {
	// SlippageFraction of the quoted spread is added to (buys) or taken
	// from (sells) the touch price.
	SlippageFraction float64
}

func (c Config) withDefaults() Config {
	out := c
	if out.SlippageFraction < 0 {
		out.SlippageFraction = 0
	}
	if out.SlippageFraction == 0 {
		out.SlippageFraction = 0.25
	}
	return out
}

type Paper struct {
	cfg    Config
	quotes sync.Map // symbol -> market.Quote
	clock  func() time.Time
}

func NewPaper(cfg Config) *Paper {
	return &Paper{cfg: cfg.withDefaults(), clock: time.Now}
}

// UpdateQuote caches the latest quote for a symbol, overwriting the
// previous one.
func (p *Paper) UpdateQuote(q market.Quote) {
	p.quotes.Store(q.Symbol, q)
}

// PlaceOrder fills the intent at the touch plus slippage. Fill price is
// ask+slippage for buys and bid-slippage for sells, slippage being
// spread*fraction with the spread floored at zero.
func (p *Paper) PlaceOrder(intent types.TradeIntent) (types.Fill, error) {
	v, ok := p.quotes.Load(intent.Symbol)
	if !ok {
		return types.Fill{}, ErrNoMarketData
	}
	q := v.(market.Quote)

	spread := q.Spread()
	slippage := spread * p.cfg.SlippageFraction

	var price float64
	switch intent.Side {
	case types.SideBuy:
		price = q.Ask + slippage
	case types.SideSell:
		price = q.Bid - slippage
	default:
		return types.Fill{}, errors.New("invalid side " + string(intent.Side))
	}

	fill := types.Fill{
		TradeID:  uuid.NewString(),
		OrderID:  uuid.NewString(),
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Price:    price,
		Quantity: intent.Quantity,
		Spread:   spread,
		Slippage: slippage,
		FilledAt: p.clock(),
	}
	logger.Debugf("Broker: filled %s %s %s @ %.6f (slippage %.6f)",
		fill.Side, fill.Quantity.String(), fill.Symbol, fill.Price, fill.Slippage)
	return fill, nil
}

// CancelOrder is a no-op success: paper orders never rest.
func (p *Paper) CancelOrder(orderID string) error { return nil }
