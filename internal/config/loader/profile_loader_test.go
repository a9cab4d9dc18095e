package loader

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profileV1 = `
strategy:
  trend_pullback:
    max_distance: 0.004
    target_mult: 1.5
  range_breakout:
    buffer_price: 0.1
  band_reversion:
    band_k: 2.0
`

const profileV2 = `
strategy:
  trend_pullback:
    max_distance: 0.008
    target_mult: 2.0
  range_breakout:
    buffer_price: 0.25
  band_reversion:
    band_k: 2.5
`

func writeProfile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoaderReadsInitialProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	writeProfile(t, path, profileV1)

	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()

	snap := l.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, 0.004, snap.Strategy.TrendPullback.MaxDistance)
	assert.Equal(t, 0.1, snap.Strategy.RangeBreakout.BufferPrice)
	assert.Equal(t, 2.0, snap.Strategy.BandReversion.BandK)
}

func TestLoaderReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	writeProfile(t, path, profileV1)

	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()

	var version atomic.Int64
	l.Subscribe(func(snap ProfileSnapshot) { version.Store(snap.Version) })

	writeProfile(t, path, profileV2)

	require.Eventually(t, func() bool { return version.Load() >= 2 },
		3*time.Second, 20*time.Millisecond, "watcher should pick up the rewrite")

	snap := l.Snapshot()
	assert.Equal(t, 0.008, snap.Strategy.TrendPullback.MaxDistance)
	assert.Equal(t, 0.25, snap.Strategy.RangeBreakout.BufferPrice)
}

func TestLoaderKeepsLastGoodOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	writeProfile(t, path, profileV1)

	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()

	writeProfile(t, path, "strategy: [not a map")

	// broken file must not clobber the last good snapshot
	time.Sleep(200 * time.Millisecond)
	snap := l.Snapshot()
	assert.Equal(t, 0.004, snap.Strategy.TrendPullback.MaxDistance)
}

func TestLoaderRejectsMissingFile(t *testing.T) {
	_, err := NewProfileLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoaderRejectsEmptyPath(t *testing.T) {
	_, err := NewProfileLoader("  ")
	assert.Error(t, err)
}
