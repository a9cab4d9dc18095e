package strategy

import (
	"math"
	"sync/atomic"
)

// TrendPullbackConfig parameterizes the mean-reversion-to-trend evaluator.
type TrendPullbackConfig struct {
	// MaxDistance is the largest relative distance from price to the short
	// MA or VWAP that still counts as a pullback.
	MaxDistance float64
	// MinStop is the absolute floor on the stop distance.
	MinStop float64
	// StopATRFactor caps the stop distance at this fraction of ATR.
	StopATRFactor float64
	// TargetMult projects the target at entry +/- stopDistance*TargetMult.
	TargetMult float64
	// RequireCross demands the fast oscillator crossed its threshold on
	// this bar rather than merely sitting past it.
	RequireCross bool
	RiskFraction float64
}

func (c TrendPullbackConfig) withDefaults() TrendPullbackConfig {
	out := c
	if out.MaxDistance <= 0 {
		out.MaxDistance = 0.004
	}
	if out.MinStop <= 0 {
		out.MinStop = 0.01
	}
	if out.StopATRFactor <= 0 {
		out.StopATRFactor = 0.8
	}
	if out.TargetMult <= 0 {
		out.TargetMult = 1.5
	}
	return out
}

const (
	oversoldLevel   = 35.0
	overboughtLevel = 65.0
)

// TrendPullback buys pullbacks toward the short MA / session VWAP while
// price holds the long-MA side of an established trend, and sells the
// mirror image.
type TrendPullback struct {
	cfg atomic.Pointer[TrendPullbackConfig]
}

func NewTrendPullback(cfg TrendPullbackConfig) *TrendPullback {
	s := &TrendPullback{}
	s.Reconfigure(cfg)
	return s
}

// Reconfigure swaps the parameter set atomically; in-flight evaluations
// finish on the old one.
func (s *TrendPullback) Reconfigure(cfg TrendPullbackConfig) {
	final := cfg.withDefaults()
	s.cfg.Store(&final)
}

func (s *TrendPullback) Code() string { return CodeTrendPullback }

func (s *TrendPullback) Evaluate(ctx Context) *Signal {
	cfg := *s.cfg.Load()
	snap := ctx.Snapshot
	price := snap.LastPrice
	if snap.ATR <= 0 || price <= 0 {
		return nil
	}
	if !snap.VolatilityOK || !snap.SpreadOK {
		return nil
	}

	var side Side
	switch {
	case price > snap.LongMA:
		side = SideBuy
	case price < snap.LongMA:
		side = SideSell
	default:
		// price exactly on the long MA qualifies for neither side
		return nil
	}

	if side == SideBuy && snap.LongMASlope < 0 {
		return nil
	}
	if side == SideSell && snap.LongMASlope > 0 {
		return nil
	}

	distMA := relDistance(price, snap.ShortMA)
	distVWAP := relDistance(price, snap.VWAP)
	if distMA > cfg.MaxDistance || distVWAP > cfg.MaxDistance {
		return nil
	}

	if side == SideBuy {
		if snap.RSIFast <= oversoldLevel {
			return nil
		}
		if cfg.RequireCross && snap.RSIFastPrev > oversoldLevel {
			return nil
		}
	} else {
		if snap.RSIFast >= overboughtLevel {
			return nil
		}
		if cfg.RequireCross && snap.RSIFastPrev < overboughtLevel {
			return nil
		}
	}

	stopDist := math.Max(cfg.MinStop, math.Min(cfg.StopATRFactor*snap.ATR, math.Abs(price-snap.ShortMA)))
	if stopDist <= 0 {
		return nil
	}

	entry := price
	var stop, target float64
	if side == SideBuy {
		stop = entry - stopDist
		target = entry + stopDist*cfg.TargetMult
	} else {
		stop = entry + stopDist
		target = entry - stopDist*cfg.TargetMult
	}

	score := clamp(1-math.Min(distMA, distVWAP)/cfg.MaxDistance, 0, 1)

	return &Signal{
		Symbol:       snap.Symbol,
		Strategy:     s.Code(),
		Side:         side,
		Entry:        entry,
		Stop:         stop,
		Target:       target,
		Score:        score,
		RiskFraction: cfg.RiskFraction,
		Features: map[string]float64{
			"atr":       snap.ATR,
			"vwap":      snap.VWAP,
			"short_ma":  snap.ShortMA,
			"long_ma":   snap.LongMA,
			"rsi_fast":  snap.RSIFast,
			"dist_ma":   distMA,
			"dist_vwap": distVWAP,
		},
		Timestamp: snap.Timestamp,
	}
}
