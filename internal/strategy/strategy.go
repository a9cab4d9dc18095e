package strategy

import (
	"math"
	"time"

	"riptide/internal/indicator"
	"riptide/internal/market"
	"riptide/internal/session"
	"riptide/internal/types"
)

type Side = types.Side

const (
	SideBuy  = types.SideBuy
	SideSell = types.SideSell
)

// Strategy codes, fixed evaluation priority order.
const (
	CodeTrendPullback = "TPB_VWAP"
	CodeRangeBreakout = "ORB15"
	CodeBandReversion = "VRB"
)

// Signal is one candidate trade. Immutable once created; consumed exactly
// once by the execution pipeline.
type Signal struct {
	Symbol       string
	Strategy     string
	Side         Side
	Entry        float64
	Stop         float64
	Target       float64
	Score        float64
	RiskFraction float64
	Features     map[string]float64
	Timestamp    time.Time
}

// Context carries everything an evaluator may inspect for one bar close.
type Context struct {
	Snapshot indicator.Snapshot
	Range    session.RangeState
	Quote    market.Quote
}

// Evaluator maps a context to at most one signal. Implementations are pure
// given their inputs; all session state lives outside them.
type Evaluator interface {
	Code() string
	Evaluate(ctx Context) *Signal
}

const scoreEps = 1e-9

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// relDistance is |price-reference|/reference. A zero reference reads as
// infinitely far, which rejects against any finite ceiling.
func relDistance(price, reference float64) float64 {
	if reference == 0 {
		return math.Inf(1)
	}
	return math.Abs(price-reference) / math.Abs(reference)
}
