package session

import "time"

// AttemptTracker bounds how often one (instrument, strategy, side) key may
// emit signals: at most maxAttempts per UTC session date, spaced by at least
// the cooldown. Not safe for concurrent use on its own; the owning
// instrument shard serializes CanEmit/RegisterSignal so the pair behaves
// atomically.
type AttemptTracker struct {
	sessionDate string
	attempts    int
	lastSignal  time.Time
}

func NewAttemptTracker() *AttemptTracker { return &AttemptTracker{} }

func (t *AttemptTracker) roll(now time.Time) {
	date := now.UTC().Format("2006-01-02")
	if date != t.sessionDate {
		t.sessionDate = date
		t.attempts = 0
	}
}

// CanEmit reports whether a new signal is allowed at now. A check whose UTC
// calendar date differs from the stored session date resets the attempt
// count first, so exhaustion never carries across sessions.
func (t *AttemptTracker) CanEmit(now time.Time, maxAttempts int, cooldown time.Duration) bool {
	t.roll(now)
	if maxAttempts > 0 && t.attempts >= maxAttempts {
		return false
	}
	if !t.lastSignal.IsZero() && now.Sub(t.lastSignal) < cooldown {
		return false
	}
	return true
}

// RegisterSignal consumes one attempt. Called immediately after CanEmit
// passes, before the risk check: a risk-rejected signal still counts, which
// bounds total live-order attempts rather than successful trades only.
func (t *AttemptTracker) RegisterSignal(now time.Time) {
	t.roll(now)
	t.attempts++
	t.lastSignal = now
}

// Attempts reports the count for the session containing now.
func (t *AttemptTracker) Attempts(now time.Time) int {
	t.roll(now)
	return t.attempts
}
