package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/indicator"
	"riptide/internal/session"
)

func pullbackSnapshot() indicator.Snapshot {
	return indicator.Snapshot{
		Symbol:       "BTCUSDT",
		LastPrice:    101,
		ShortMA:      100,
		VWAP:         100.5,
		LongMA:       95,
		ATR:          2,
		RSIFast:      40,
		RSIFastPrev:  33,
		TrendOK:      true,
		VolatilityOK: true,
		SpreadOK:     true,
		Bars:         300,
	}
}

func TestTrendPullbackBuy(t *testing.T) {
	ev := NewTrendPullback(TrendPullbackConfig{MaxDistance: 0.1})
	sig := ev.Evaluate(Context{Snapshot: pullbackSnapshot()})
	require.NotNil(t, sig)

	assert.Equal(t, SideBuy, sig.Side)
	assert.Equal(t, CodeTrendPullback, sig.Strategy)
	assert.Equal(t, 101.0, sig.Entry)
	// stop distance = max(0.01, min(0.8*2, |101-100|)) = 1
	assert.InDelta(t, 100.0, sig.Stop, 1e-12)
	assert.InDelta(t, 101+1.5*1, sig.Target, 1e-12)
	// nearest reference is VWAP: 0.5/100.5 relative
	assert.InDelta(t, 1-(0.5/100.5)/0.1, sig.Score, 1e-9)
	assert.Greater(t, sig.Entry-sig.Stop, 0.0)
}

func TestTrendPullbackRejections(t *testing.T) {
	ev := NewTrendPullback(TrendPullbackConfig{MaxDistance: 0.1})

	t.Run("oscillator still oversold", func(t *testing.T) {
		snap := pullbackSnapshot()
		snap.RSIFast = 30
		assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
	})

	t.Run("price exactly on long MA", func(t *testing.T) {
		snap := pullbackSnapshot()
		snap.LastPrice = snap.LongMA
		assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
	})

	t.Run("too far from references", func(t *testing.T) {
		snap := pullbackSnapshot()
		snap.VWAP = 80 // relative distance > 0.1
		assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
	})

	t.Run("zero reference rejects", func(t *testing.T) {
		snap := pullbackSnapshot()
		snap.VWAP = 0
		assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
	})

	t.Run("volatility gate", func(t *testing.T) {
		snap := pullbackSnapshot()
		snap.VolatilityOK = false
		assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
	})

	t.Run("spread gate", func(t *testing.T) {
		snap := pullbackSnapshot()
		snap.SpreadOK = false
		assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
	})

	t.Run("slope against direction", func(t *testing.T) {
		snap := pullbackSnapshot()
		snap.LongMASlope = -0.5
		assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
	})

	t.Run("no ATR", func(t *testing.T) {
		snap := pullbackSnapshot()
		snap.ATR = 0
		assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
	})
}

func TestTrendPullbackRequireCross(t *testing.T) {
	ev := NewTrendPullback(TrendPullbackConfig{MaxDistance: 0.1, RequireCross: true})

	snap := pullbackSnapshot()
	snap.RSIFastPrev = 33 // crossed up through 35 this bar
	assert.NotNil(t, ev.Evaluate(Context{Snapshot: snap}))

	snap.RSIFastPrev = 40 // already recovered earlier
	assert.Nil(t, ev.Evaluate(Context{Snapshot: snap}))
}

func TestTrendPullbackSell(t *testing.T) {
	ev := NewTrendPullback(TrendPullbackConfig{MaxDistance: 0.1})
	snap := pullbackSnapshot()
	snap.LastPrice = 99
	snap.LongMA = 105
	snap.RSIFast = 60
	snap.RSIFastPrev = 67
	snap.VWAP = 99.5

	sig := ev.Evaluate(Context{Snapshot: snap})
	require.NotNil(t, sig)
	assert.Equal(t, SideSell, sig.Side)
	assert.Greater(t, sig.Stop, sig.Entry)
	assert.Less(t, sig.Target, sig.Entry)
}

func TestRangeBreakoutBuy(t *testing.T) {
	ev := NewRangeBreakout(RangeBreakoutConfig{BufferPrice: 0.1, ProjectionMult: 1.0})
	ctx := Context{
		Snapshot: indicator.Snapshot{Symbol: "ETHUSDT", LastPrice: 50.7, ATR: 0.3},
		Range:    session.RangeState{High: 50.5, Low: 49.5, Completed: true},
	}

	sig := ev.Evaluate(ctx)
	require.NotNil(t, sig)
	assert.Equal(t, SideBuy, sig.Side)
	assert.InDelta(t, 50.6, sig.Entry, 1e-12)
	// stop = entry - min(range/2, ATR) = 50.6 - 0.3
	assert.InDelta(t, 50.3, sig.Stop, 1e-12)
	assert.InDelta(t, 51.6, sig.Target, 1e-12)
	// range/ATR = 3.33 clamps to 3
	assert.InDelta(t, 3.0, sig.Score, 1e-9)
}

func TestRangeBreakoutRejections(t *testing.T) {
	ev := NewRangeBreakout(RangeBreakoutConfig{BufferPrice: 0.1})

	t.Run("window not completed", func(t *testing.T) {
		ctx := Context{
			Snapshot: indicator.Snapshot{LastPrice: 50.7, ATR: 0.3},
			Range:    session.RangeState{High: 50.5, Low: 49.5},
		}
		assert.Nil(t, ev.Evaluate(ctx))
	})

	t.Run("price at the buffered boundary", func(t *testing.T) {
		ctx := Context{
			Snapshot: indicator.Snapshot{LastPrice: 50.6, ATR: 0.3},
			Range:    session.RangeState{High: 50.5, Low: 49.5, Completed: true},
		}
		assert.Nil(t, ev.Evaluate(ctx))
	})

	t.Run("degenerate range", func(t *testing.T) {
		ctx := Context{
			Snapshot: indicator.Snapshot{LastPrice: 51, ATR: 0.3},
			Range:    session.RangeState{High: 50, Low: 50, Completed: true},
		}
		assert.Nil(t, ev.Evaluate(ctx))
	})
}

func TestRangeBreakoutSell(t *testing.T) {
	ev := NewRangeBreakout(RangeBreakoutConfig{BufferPrice: 0.1, ProjectionMult: 1.5})
	ctx := Context{
		Snapshot: indicator.Snapshot{LastPrice: 49.2, ATR: 0.3},
		Range:    session.RangeState{High: 50.5, Low: 49.5, Completed: true},
	}

	sig := ev.Evaluate(ctx)
	require.NotNil(t, sig)
	assert.Equal(t, SideSell, sig.Side)
	assert.InDelta(t, 49.4, sig.Entry, 1e-12)
	assert.InDelta(t, 49.7, sig.Stop, 1e-12)
	assert.InDelta(t, 49.4-1.5, sig.Target, 1e-12)
}

func TestBandReversionSell(t *testing.T) {
	ev := NewBandReversion(BandReversionConfig{BandK: 2, StopSigmaMult: 1})
	ctx := Context{Snapshot: indicator.Snapshot{Symbol: "BTCUSDT", LastPrice: 105, VWAP: 100, Sigma: 2}}

	sig := ev.Evaluate(ctx)
	require.NotNil(t, sig)
	assert.Equal(t, SideSell, sig.Side)
	assert.Equal(t, 105.0, sig.Entry)
	assert.InDelta(t, 107.0, sig.Stop, 1e-12) // price + sigma*stopMult
	assert.Equal(t, 100.0, sig.Target)        // reversion to VWAP
	assert.InDelta(t, 5.0/4.0, sig.Score, 1e-6)
}

func TestBandReversionBuyAndRejections(t *testing.T) {
	ev := NewBandReversion(BandReversionConfig{BandK: 2, StopSigmaMult: 1})

	sig := ev.Evaluate(Context{Snapshot: indicator.Snapshot{LastPrice: 95, VWAP: 100, Sigma: 2}})
	require.NotNil(t, sig)
	assert.Equal(t, SideBuy, sig.Side)
	assert.InDelta(t, 93.0, sig.Stop, 1e-12)

	t.Run("inside bands", func(t *testing.T) {
		assert.Nil(t, ev.Evaluate(Context{Snapshot: indicator.Snapshot{LastPrice: 103, VWAP: 100, Sigma: 2}}))
	})
	t.Run("no dispersion yet", func(t *testing.T) {
		assert.Nil(t, ev.Evaluate(Context{Snapshot: indicator.Snapshot{LastPrice: 105, VWAP: 100, Sigma: 0}}))
	})
}
