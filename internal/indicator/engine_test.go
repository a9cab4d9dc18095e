package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	talib "github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/market"
)

func TestRollingStdDev(t *testing.T) {
	r := NewRolling(4)
	assert.Zero(t, r.StdDev())

	r.Push(2)
	assert.Zero(t, r.StdDev(), "one sample reports zero, not NaN")

	r.Push(4)
	r.Push(4)
	r.Push(6)
	// population stddev of {2,4,4,6} = sqrt(2)
	assert.InDelta(t, math.Sqrt(2), r.StdDev(), 1e-12)

	// pushing past capacity drops the oldest sample
	r.Push(6)
	assert.InDelta(t, 1.0, r.StdDev(), 1e-12) // {4,4,6,6}
}

func TestRollingMedian(t *testing.T) {
	r := NewRolling(5)
	assert.Zero(t, r.Median())

	for _, v := range []float64{5, 1, 3} {
		r.Push(v)
	}
	assert.Equal(t, 3.0, r.Median())

	r.Push(9)
	assert.Equal(t, 4.0, r.Median()) // {1,3,5,9} -> (3+5)/2
}

func syntheticBars(n int, seed int64) []market.Candle {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]market.Candle, 0, n)
	price := 100.0
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		drift := rng.NormFloat64() * 0.4
		open := price
		close := price + drift
		high := math.Max(open, close) + rng.Float64()*0.3
		low := math.Min(open, close) - rng.Float64()*0.3
		openAt := start.Add(time.Duration(i) * time.Minute)
		bars = append(bars, market.Candle{
			OpenTime:  openAt.UnixMilli(),
			CloseTime: openAt.Add(time.Minute).UnixMilli() - 1,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    50 + rng.Float64()*100,
			Final:     true,
		})
		price = close
	}
	return bars
}

// The streaming engine seeds its smoothed series differently from the batch
// implementations (first-sample seed vs SMA seed), so the comparison runs a
// long series where the exponential forgetting makes both converge.
func TestEngineMatchesBatchIndicators(t *testing.T) {
	bars := syntheticBars(2500, 7)

	eng := NewEngine("BTCUSDT", Config{}, time.UTC)
	for _, b := range bars {
		eng.ApplyBar(b)
	}
	snap := eng.BuildSnapshot()

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	sma := talib.Sma(closes, 20)
	assert.InDelta(t, sma[len(sma)-1], snap.ShortMA, 1e-9)

	ema := talib.Ema(closes, 200)
	assert.InDelta(t, ema[len(ema)-1], snap.LongMA, 1e-6)

	atr := talib.Atr(highs, lows, closes, 14)
	assert.InDelta(t, atr[len(atr)-1], snap.ATR, 1e-6)

	rsi := talib.Rsi(closes, 14)
	assert.InDelta(t, rsi[len(rsi)-1], snap.RSISlow, 1e-6)

	rsiFast := talib.Rsi(closes, 7)
	assert.InDelta(t, rsiFast[len(rsiFast)-1], snap.RSIFast, 1e-6)
}

func TestSnapshotNeutralDefaults(t *testing.T) {
	eng := NewEngine("ETHUSDT", Config{}, time.UTC)
	snap := eng.BuildSnapshot()

	assert.Equal(t, 50.0, snap.RSIFast)
	assert.Equal(t, 50.0, snap.RSISlow)
	assert.Zero(t, snap.ATR)
	assert.Zero(t, snap.Sigma)
	assert.Equal(t, snap.LastPrice, snap.ShortMA)
	assert.Equal(t, snap.LastPrice, snap.LongMA)
	assert.Zero(t, snap.Bars)
}

func TestSnapshotIdempotent(t *testing.T) {
	eng := NewEngine("BTCUSDT", Config{}, time.UTC)
	for _, b := range syntheticBars(50, 3) {
		eng.ApplyBar(b)
	}
	first := eng.BuildSnapshot()
	second := eng.BuildSnapshot()
	assert.Equal(t, first, second)
}

func TestVWAPSessionReset(t *testing.T) {
	eng := NewEngine("BTCUSDT", Config{}, time.UTC)

	day1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	eng.ApplyBar(market.Candle{
		OpenTime: day1.UnixMilli(), CloseTime: day1.Add(time.Minute).UnixMilli(),
		Open: 100, High: 102, Low: 98, Close: 100, Volume: 10, Final: true,
	})
	snap := eng.BuildSnapshot()
	assert.InDelta(t, 100.0, snap.VWAP, 1e-12) // (102+98+100)/3

	day2 := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	eng.ApplyBar(market.Candle{
		OpenTime: day2.UnixMilli(), CloseTime: day2.Add(time.Minute).UnixMilli(),
		Open: 200, High: 210, Low: 195, Close: 200, Volume: 5, Final: true,
	})
	snap = eng.BuildSnapshot()
	// session changed: VWAP reflects only the new day's bar
	assert.InDelta(t, (210.0+195+200)/3, snap.VWAP, 1e-12)
}

func TestVWAPVolumeFloor(t *testing.T) {
	eng := NewEngine("BTCUSDT", Config{}, time.UTC)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	eng.ApplyBar(market.Candle{
		OpenTime: at.UnixMilli(), CloseTime: at.Add(time.Minute).UnixMilli(),
		Open: 100, High: 101, Low: 99, Close: 100, Volume: 0, Final: true,
	})
	snap := eng.BuildSnapshot()
	require.False(t, math.IsNaN(snap.VWAP))
	assert.InDelta(t, 100.0, snap.VWAP, 1e-12)
}

func TestRSIZeroLossReportsExactly100(t *testing.T) {
	eng := NewEngine("BTCUSDT", Config{}, time.UTC)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < 30; i++ {
		open := price
		price += 1
		eng.ApplyBar(market.Candle{
			OpenTime:  at.Add(time.Duration(i) * time.Minute).UnixMilli(),
			CloseTime: at.Add(time.Duration(i+1) * time.Minute).UnixMilli(),
			Open:      open, High: price + 0.5, Low: open - 0.5, Close: price,
			Volume: 10, Final: true,
		})
	}
	snap := eng.BuildSnapshot()
	assert.Equal(t, 100.0, snap.RSIFast)
	assert.Equal(t, 100.0, snap.RSISlow)
}

func TestSpreadGate(t *testing.T) {
	eng := NewEngine("BTCUSDT", Config{}, time.UTC)
	for _, b := range syntheticBars(30, 11) {
		eng.ApplyBar(b)
	}
	for i := 0; i < 15; i++ {
		eng.UpdateQuote(market.Quote{Symbol: "BTCUSDT", Bid: 100, Ask: 100.1})
	}
	snap := eng.BuildSnapshot()
	assert.True(t, snap.SpreadOK)
	assert.InDelta(t, 0.1, snap.MedianSpread, 1e-9)

	// blowout spread fails the gate
	eng.UpdateQuote(market.Quote{Symbol: "BTCUSDT", Bid: 100, Ask: 101})
	snap = eng.BuildSnapshot()
	assert.False(t, snap.SpreadOK)
}

func TestCrossedQuoteSpreadFloorsAtZero(t *testing.T) {
	eng := NewEngine("BTCUSDT", Config{}, time.UTC)
	eng.UpdateQuote(market.Quote{Symbol: "BTCUSDT", Bid: 100.2, Ask: 100.0})
	for _, b := range syntheticBars(5, 2) {
		eng.ApplyBar(b)
	}
	snap := eng.BuildSnapshot()
	assert.Zero(t, snap.LastSpread)
}
