package strategy

import (
	"math"
	"sync/atomic"
)

// BandReversionConfig parameterizes the VWAP-band reversion evaluator.
type BandReversionConfig struct {
	// BandK sets the band half-width as a sigma multiple.
	BandK float64
	// StopSigmaMult sets the stop distance as a sigma multiple.
	StopSigmaMult float64
	RiskFraction  float64
}

func (c BandReversionConfig) withDefaults() BandReversionConfig {
	out := c
	if out.BandK <= 0 {
		out.BandK = 2.0
	}
	if out.StopSigmaMult <= 0 {
		out.StopSigmaMult = 1.0
	}
	return out
}

// BandReversion fades excursions beyond VWAP +/- k*sigma, targeting a
// reversion to VWAP.
type BandReversion struct {
	cfg atomic.Pointer[BandReversionConfig]
}

func NewBandReversion(cfg BandReversionConfig) *BandReversion {
	s := &BandReversion{}
	s.Reconfigure(cfg)
	return s
}

// Reconfigure swaps the parameter set atomically.
func (s *BandReversion) Reconfigure(cfg BandReversionConfig) {
	final := cfg.withDefaults()
	s.cfg.Store(&final)
}

func (s *BandReversion) Code() string { return CodeBandReversion }

func (s *BandReversion) Evaluate(ctx Context) *Signal {
	cfg := *s.cfg.Load()
	snap := ctx.Snapshot
	if snap.Sigma <= 0 {
		return nil
	}
	price := snap.LastPrice

	upper := snap.VWAP + cfg.BandK*snap.Sigma
	lower := snap.VWAP - cfg.BandK*snap.Sigma

	var side Side
	var stop float64
	switch {
	case price > upper:
		side = SideSell
		stop = price + snap.Sigma*cfg.StopSigmaMult
	case price < lower:
		side = SideBuy
		stop = price - snap.Sigma*cfg.StopSigmaMult
	default:
		return nil
	}

	if math.Abs(price-stop) <= 0 {
		return nil
	}

	score := clamp(math.Abs(price-snap.VWAP)/(cfg.BandK*snap.Sigma+scoreEps), 0, 2)

	return &Signal{
		Symbol:       snap.Symbol,
		Strategy:     s.Code(),
		Side:         side,
		Entry:        price,
		Stop:         stop,
		Target:       snap.VWAP,
		Score:        score,
		RiskFraction: cfg.RiskFraction,
		Features: map[string]float64{
			"vwap":  snap.VWAP,
			"sigma": snap.Sigma,
			"upper": upper,
			"lower": lower,
		},
		Timestamp: snap.Timestamp,
	}
}
