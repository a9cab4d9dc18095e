package market

import "time"

// Candle is one OHLCV bar. Final marks a closed bar; provisional updates of
// the in-progress bar carry Final=false and never trigger strategy
// evaluation downstream.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
	Final     bool    `json:"final"`
}

func (c Candle) OpenAt() time.Time  { return time.UnixMilli(c.OpenTime).UTC() }
func (c Candle) CloseAt() time.Time { return time.UnixMilli(c.CloseTime).UTC() }

// TypicalPrice is (high+low+close)/3, the price fed into session VWAP.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Quote is the latest top-of-book for an instrument. Ephemeral: each update
// overwrites the previous one.
type Quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"`
}

// Spread returns ask-bid floored at zero; crossed or empty books never
// produce a negative spread.
func (q Quote) Spread() float64 {
	s := q.Ask - q.Bid
	if s < 0 {
		return 0
	}
	return s
}

// Trade is a single executed market trade.
type Trade struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Time     int64   `json:"time"`
}
