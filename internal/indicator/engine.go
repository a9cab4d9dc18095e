package indicator

import (
	"math"
	"time"

	"riptide/internal/market"
)

const eps = 1e-12

// Config holds the indicator parameters for one instrument engine.
type Config struct {
	EMALen          int
	SMALen          int
	ATRLen          int
	RSIFast         int
	RSISlow         int
	SigmaWindow     int
	SpreadWindow    int
	ATRMedianWindow int
	SlopeWindow     int

	// TrendEpsilon is the minimum relative distance between price and the
	// long MA for the trend gate to confirm.
	TrendEpsilon float64
	// VolatilityFloor scales the rolling ATR median; ATR below
	// floor*median fails the volatility gate.
	VolatilityFloor float64
	// SpreadCeiling scales the rolling median spread; a last spread above
	// ceiling*median fails the spread gate.
	SpreadCeiling float64
}

func (c Config) withDefaults() Config {
	out := c
	if out.EMALen <= 0 {
		out.EMALen = 200
	}
	if out.SMALen <= 0 {
		out.SMALen = 20
	}
	if out.ATRLen <= 0 {
		out.ATRLen = 14
	}
	if out.RSIFast <= 0 {
		out.RSIFast = 7
	}
	if out.RSISlow <= 0 {
		out.RSISlow = 14
	}
	if out.SigmaWindow <= 0 {
		out.SigmaWindow = 60
	}
	if out.SpreadWindow <= 0 {
		out.SpreadWindow = 15
	}
	if out.ATRMedianWindow <= 0 {
		out.ATRMedianWindow = 60
	}
	if out.SlopeWindow <= 0 {
		out.SlopeWindow = 5
	}
	if out.TrendEpsilon <= 0 {
		out.TrendEpsilon = 5e-4
	}
	if out.VolatilityFloor <= 0 {
		out.VolatilityFloor = 0.7
	}
	if out.SpreadCeiling <= 0 {
		out.SpreadCeiling = 1.5
	}
	return out
}

// Snapshot is an immutable view of one instrument's indicators at a point
// in time. All fields derive from the update sequence seen so far for that
// instrument only.
type Snapshot struct {
	Symbol    string
	Timestamp time.Time

	LastPrice float64
	VWAP      float64
	ShortMA   float64
	LongMA    float64
	// LongMASlope is the mean of the long MA's recent one-bar deltas.
	LongMASlope float64
	ATR         float64
	RSIFast     float64
	RSIFastPrev float64
	RSISlow     float64
	// Sigma is the population stddev of close-VWAP residuals over the
	// configured window.
	Sigma        float64
	MedianSpread float64
	LastSpread   float64

	TrendOK      bool
	VolatilityOK bool
	SpreadOK     bool

	Bars int
}

// Engine maintains streaming indicators for exactly one instrument.
// It is not safe for concurrent use: the owning instrument shard serializes
// all calls, which keeps instruments independently lockable.
type Engine struct {
	cfg    Config
	symbol string
	loc    *time.Location

	sessionDate string
	pvSum       float64
	volSum      float64

	shortWin *Rolling

	ema       float64
	emaSeeded bool
	prevEMA   float64
	havePrev  bool
	slopeWin  *Rolling

	atr       float64
	atrSeeded bool

	avgGainFast, avgLossFast float64
	avgGainSlow, avgLossSlow float64
	rsiSeeded                bool
	rsiFast, rsiFastPrev     float64
	rsiSlow                  float64

	residWin     *Rolling
	spreadWin    *Rolling
	atrMedianWin *Rolling
	lastSpread   float64
	haveSpread   bool

	prevClose float64
	haveClose bool
	lastPrice float64
	lastBarAt time.Time
	barCount  int

	lastTradePrice float64
	lastTradeQty   float64
}

func NewEngine(symbol string, cfg Config, loc *time.Location) *Engine {
	final := cfg.withDefaults()
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		cfg:          final,
		symbol:       symbol,
		loc:          loc,
		shortWin:     NewRolling(final.SMALen),
		slopeWin:     NewRolling(final.SlopeWindow),
		residWin:     NewRolling(final.SigmaWindow),
		spreadWin:    NewRolling(final.SpreadWindow),
		atrMedianWin: NewRolling(final.ATRMedianWindow),
		rsiFast:      50,
		rsiFastPrev:  50,
		rsiSlow:      50,
	}
}

// UpdateQuote records the spread into the rolling spread window. Always
// succeeds; inputs are validated upstream.
func (e *Engine) UpdateQuote(q market.Quote) {
	spread := q.Spread()
	e.spreadWin.Push(spread)
	e.lastSpread = spread
	e.haveSpread = true
}

// UpdateTrade records the last traded price/quantity. Indicator
// recomputation is driven by bars, not trades.
func (e *Engine) UpdateTrade(t market.Trade) {
	e.lastTradePrice = t.Price
	e.lastTradeQty = t.Quantity
}

// ApplyBar folds one bar into every streaming indicator. Invoked once per
// bar, finalized or provisional.
func (e *Engine) ApplyBar(bar market.Candle) {
	date := bar.OpenAt().In(e.loc).Format("2006-01-02")
	if date != e.sessionDate {
		// new local session: VWAP starts over
		e.sessionDate = date
		e.pvSum = 0
		e.volSum = 0
	}

	close := bar.Close

	vol := bar.Volume
	if vol <= 0 {
		vol = 1
	}
	e.pvSum += bar.TypicalPrice() * vol
	e.volSum += vol

	e.shortWin.Push(close)
	shortMA := e.shortWin.Mean()

	if !e.emaSeeded {
		if e.shortWin.Full() {
			e.ema = shortMA
			e.emaSeeded = true
		} else {
			e.ema = close
		}
	} else {
		alpha := 2 / (float64(e.cfg.EMALen) + 1)
		e.ema += alpha * (close - e.ema)
	}
	if e.havePrev {
		e.slopeWin.Push(e.ema - e.prevEMA)
	}
	e.prevEMA = e.ema
	e.havePrev = true

	tr := bar.High - bar.Low
	if e.haveClose {
		if hc := math.Abs(bar.High - e.prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(bar.Low - e.prevClose); lc > tr {
			tr = lc
		}
	}
	if !e.atrSeeded {
		e.atr = tr
		e.atrSeeded = true
	} else {
		n := float64(e.cfg.ATRLen)
		e.atr = (e.atr*(n-1) + tr) / n
	}
	e.atrMedianWin.Push(e.atr)

	if e.haveClose {
		delta := close - e.prevClose
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		if !e.rsiSeeded {
			e.avgGainFast, e.avgLossFast = gain, loss
			e.avgGainSlow, e.avgLossSlow = gain, loss
			e.rsiSeeded = true
		} else {
			e.avgGainFast = wilder(e.avgGainFast, gain, e.cfg.RSIFast)
			e.avgLossFast = wilder(e.avgLossFast, loss, e.cfg.RSIFast)
			e.avgGainSlow = wilder(e.avgGainSlow, gain, e.cfg.RSISlow)
			e.avgLossSlow = wilder(e.avgLossSlow, loss, e.cfg.RSISlow)
		}
		e.rsiFastPrev = e.rsiFast
		e.rsiFast = rsiValue(e.avgGainFast, e.avgLossFast)
		e.rsiSlow = rsiValue(e.avgGainSlow, e.avgLossSlow)
	}

	if e.volSum > 0 {
		e.residWin.Push(close - e.pvSum/e.volSum)
	}

	e.prevClose = close
	e.haveClose = true
	e.lastPrice = close
	e.lastBarAt = bar.CloseAt()
	e.barCount++
}

func wilder(avg, v float64, n int) float64 {
	period := float64(n)
	return (avg*(period-1) + v) / period
}

// rsiValue maps Wilder-smoothed gain/loss averages to [0,100]. A zero
// average loss reports exactly 100.
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss <= 0 {
		return 100
	}
	rs := avgGain / avgLoss
	out := 100 - 100/(1+rs)
	if out < 0 {
		return 0
	}
	if out > 100 {
		return 100
	}
	return out
}

// BuildSnapshot assembles the current state into an immutable snapshot.
// Undefined indicators default to neutral values until enough history
// accumulates: oscillators to 50, moving averages to the last close.
func (e *Engine) BuildSnapshot() Snapshot {
	snap := Snapshot{
		Symbol:      e.symbol,
		Timestamp:   e.lastBarAt,
		LastPrice:   e.lastPrice,
		ShortMA:     e.lastPrice,
		LongMA:      e.lastPrice,
		RSIFast:     50,
		RSIFastPrev: 50,
		RSISlow:     50,
		Bars:        e.barCount,
	}
	if e.barCount == 0 {
		snap.SpreadOK = true
		return snap
	}

	if e.volSum > 0 {
		snap.VWAP = e.pvSum / e.volSum
	} else {
		snap.VWAP = e.lastPrice
	}
	snap.ShortMA = e.shortWin.Mean()
	snap.LongMA = e.ema
	snap.LongMASlope = e.slopeWin.Mean()
	snap.ATR = e.atr
	if e.rsiSeeded {
		snap.RSIFast = e.rsiFast
		snap.RSIFastPrev = e.rsiFastPrev
		snap.RSISlow = e.rsiSlow
	}
	snap.Sigma = e.residWin.StdDev()
	snap.MedianSpread = e.spreadWin.Median()
	snap.LastSpread = e.lastSpread

	price := snap.LastPrice
	if price < eps {
		price = eps
	}
	snap.TrendOK = math.Abs(snap.LastPrice-snap.LongMA)/price >= e.cfg.TrendEpsilon

	atrMedian := e.atrMedianWin.Median()
	snap.VolatilityOK = atrMedian <= 0 || snap.ATR >= atrMedian*e.cfg.VolatilityFloor

	snap.SpreadOK = !e.haveSpread || snap.MedianSpread <= 0 ||
		snap.LastSpread <= snap.MedianSpread*e.cfg.SpreadCeiling

	return snap
}
