package gateway

import (
	"fmt"
	"strings"

	"riptide/internal/config"
	"riptide/internal/gateway/binance"
	"riptide/internal/market"
)

// NewSourceFromConfig maps market.source to a concrete feed. The replay
// source starts empty; harnesses load it through WithSourceBuilder instead.
func NewSourceFromConfig(cfg *config.Config) (market.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Market.Source)) {
	case "", "binance", "binance-futures":
		return binance.New(binance.Config{
			RESTBaseURL: cfg.Market.RESTBaseURL,
		})
	case "replay":
		return market.NewReplaySource(), nil
	default:
		return nil, fmt.Errorf("unsupported market source: %s", cfg.Market.Source)
	}
}
