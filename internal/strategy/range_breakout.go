package strategy

import (
	"math"
	"sync/atomic"
)

// RangeBreakoutConfig parameterizes the opening-range breakout evaluator.
type RangeBreakoutConfig struct {
	// BufferPrice pads the range edges as an absolute price offset.
	BufferPrice float64
	// ProjectionMult projects the target at entry +/- range*ProjectionMult.
	ProjectionMult float64
	MinStop        float64
	RiskFraction   float64
}

func (c RangeBreakoutConfig) withDefaults() RangeBreakoutConfig {
	out := c
	if out.BufferPrice <= 0 {
		out.BufferPrice = 0.1
	}
	if out.ProjectionMult <= 0 {
		out.ProjectionMult = 1.0
	}
	if out.MinStop <= 0 {
		out.MinStop = 0.01
	}
	return out
}

// RangeBreakout trades closes beyond the completed opening range, entering
// at the buffered breakout level.
type RangeBreakout struct {
	cfg atomic.Pointer[RangeBreakoutConfig]
}

func NewRangeBreakout(cfg RangeBreakoutConfig) *RangeBreakout {
	s := &RangeBreakout{}
	s.Reconfigure(cfg)
	return s
}

// Reconfigure swaps the parameter set atomically.
func (s *RangeBreakout) Reconfigure(cfg RangeBreakoutConfig) {
	final := cfg.withDefaults()
	s.cfg.Store(&final)
}

func (s *RangeBreakout) Code() string { return CodeRangeBreakout }

func (s *RangeBreakout) Evaluate(ctx Context) *Signal {
	cfg := *s.cfg.Load()
	snap := ctx.Snapshot
	or := ctx.Range
	if !or.Completed {
		return nil
	}
	rng := or.High - or.Low
	if rng <= 0 {
		return nil
	}
	price := snap.LastPrice

	breakout := or.High + cfg.BufferPrice
	breakdown := or.Low - cfg.BufferPrice

	var side Side
	var entry float64
	switch {
	case price > breakout:
		side, entry = SideBuy, breakout
	case price < breakdown:
		side, entry = SideSell, breakdown
	default:
		// inside the buffered range, boundary included
		return nil
	}

	stopDist := math.Max(cfg.MinStop, math.Min(rng/2, snap.ATR))
	if stopDist <= 0 {
		return nil
	}

	var stop, target float64
	if side == SideBuy {
		stop = entry - stopDist
		target = entry + rng*cfg.ProjectionMult
	} else {
		stop = entry + stopDist
		target = entry - rng*cfg.ProjectionMult
	}

	score := clamp(rng/(snap.ATR+scoreEps), 0, 3)

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
			"range_high": or.High,
			"range_low":  or.Low,
			"range":      rng,
			"atr":        snap.ATR,
			"price":      price,
		},
		Timestamp: snap.Timestamp,
	}
}
