package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/market"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, ok := ParseIntervalDuration(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "m", "0m", "-1h", "7x", "1"} {
		_, ok := ParseIntervalDuration(bad)
		assert.False(t, ok, bad)
	}
}

func TestDropUnclosedKline(t *testing.T) {
	interval := time.Minute
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	bars := []market.Candle{
		{OpenTime: base.UnixMilli()},
		{OpenTime: base.Add(time.Minute).UnixMilli()},
	}

	t.Run("last bar still open is dropped", func(t *testing.T) {
		now := base.Add(90 * time.Second)
		out := dropUnclosedKlineAt(bars, interval, now, 0)
		assert.Len(t, out, 1)
	})

	t.Run("last bar closed past grace is kept", func(t *testing.T) {
		now := base.Add(2*time.Minute + 11*time.Second)
		out := dropUnclosedKlineAt(bars, interval, now, 10*time.Second)
		assert.Len(t, out, 2)
	})

	t.Run("empty input passes through", func(t *testing.T) {
		assert.Empty(t, dropUnclosedKlineAt(nil, interval, base, 0))
	})
}

func TestAlignedSchedulerNextTimes(t *testing.T) {
	s := &AlignedScheduler{Interval: time.Minute, Offset: 5 * time.Second}
	now := time.Date(2026, 3, 2, 10, 0, 30, 0, time.UTC)
	nextClose, wakeAt, untilClose, wait := s.nextTimes(now)

	assert.Equal(t, time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC), nextClose)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 1, 5, 0, time.UTC), wakeAt)
	assert.Equal(t, 30*time.Second, untilClose)
	assert.Equal(t, 35*time.Second, wait)
}
