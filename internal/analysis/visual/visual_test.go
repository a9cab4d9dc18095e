package visual

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storemodel "riptide/internal/store/model"
)

type stubEquitySource struct {
	snaps []storemodel.EquitySnapshotModel
	err   error
}

func (s *stubEquitySource) ListEquitySnapshots(ctx context.Context, limit int) ([]storemodel.EquitySnapshotModel, error) {
	return s.snaps, s.err
}

func TestRenderEquityProducesHTML(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	src := &stubEquitySource{snaps: []storemodel.EquitySnapshotModel{
		{TS: base.UnixMilli(), Equity: "100000", DailyPnLPct: 0},
		{TS: base.Add(time.Hour).UnixMilli(), Equity: "100050.5", DailyPnLPct: 0.0505},
	}}
	var buf bytes.Buffer
	require.NoError(t, NewCharts(src).RenderEquity(&buf))

	out := buf.String()
	assert.Contains(t, out, "<html>")
	assert.Contains(t, out, "Equity")
	assert.Contains(t, out, "100050.5")
}

func TestRenderEquityEmptyStore(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCharts(&stubEquitySource{}).RenderEquity(&buf))
	assert.Contains(t, buf.String(), "0 snapshots")
}

func TestRenderEquityPropagatesError(t *testing.T) {
	var buf bytes.Buffer
	err := NewCharts(&stubEquitySource{err: assert.AnError}).RenderEquity(&buf)
	assert.Error(t, err)
}
