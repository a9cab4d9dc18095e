package session

import (
	"time"

	"riptide/internal/market"
)

// OpeningRange tracks the high/low band established during the first
// configured minutes of a local trading session. The session boundary is the
// calendar date in the configured timezone; state resets automatically when
// the date changes.
type OpeningRange struct {
	loc    *time.Location
	window time.Duration

	sessionDate string
	high, low   float64
	haveBar     bool
	completed   bool
}

// RangeState is the read-only view consumed by the breakout evaluator.
type RangeState struct {
	High      float64
	Low       float64
	Completed bool
}

func NewOpeningRange(windowMinutes int, loc *time.Location) *OpeningRange {
	if windowMinutes <= 0 {
		windowMinutes = 15
	}
	if loc == nil {
		loc = time.UTC
	}
	return &OpeningRange{loc: loc, window: time.Duration(windowMinutes) * time.Minute}
}

// ApplyBar folds one bar into the range. Bars inside the opening window
// extend the band; the first bar at or past the window end marks it
// completed.
func (o *OpeningRange) ApplyBar(bar market.Candle) {
	local := bar.OpenAt().In(o.loc)
	date := local.Format("2006-01-02")
	if date != o.sessionDate {
		o.sessionDate = date
		o.high = 0
		o.low = 0
		o.haveBar = false
		o.completed = false
	}

	sessionOpen := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, o.loc)
	if local.Sub(sessionOpen) < o.window {
		if !o.haveBar || bar.High > o.high {
			o.high = bar.High
		}
		if !o.haveBar || bar.Low < o.low {
			o.low = bar.Low
		}
		o.haveBar = true
		return
	}
	o.completed = true
}

func (o *OpeningRange) State() RangeState {
	if !o.haveBar {
		return RangeState{Completed: o.completed}
	}
	return RangeState{High: o.high, Low: o.low, Completed: o.completed}
}
