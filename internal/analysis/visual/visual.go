// Package visual renders the operator chart pages with go-echarts. Charts
// are served as self-contained HTML; no headless browser involved.
package visual

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	storemodel "riptide/internal/store/model"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorDailyPnL      = "#fbbf24"

	chartWidthPx  = 1200
	chartHeightPx = 520
)

// EquitySource provides the persisted equity curve, oldest first.
type EquitySource interface {
	ListEquitySnapshots(ctx context.Context, limit int) ([]storemodel.EquitySnapshotModel, error)
}

type Charts struct {
	equity EquitySource
	limit  int
}

func NewCharts(equity EquitySource) *Charts {
	return &Charts{equity: equity, limit: 2000}
}

// RenderEquity writes the equity curve page. An empty store still renders a
// valid page with no points.
func (c *Charts) RenderEquity(w io.Writer) error {
	if c == nil || c.equity == nil {
		return fmt.Errorf("equity source not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snaps, err := c.equity.ListEquitySnapshots(ctx, c.limit)
	if err != nil {
		return err
	}

	xAxis := make([]string, len(snaps))
	equity := make([]opts.LineData, len(snaps))
	daily := make([]opts.LineData, len(snaps))
	for i, snap := range snaps {
		xAxis[i] = time.UnixMilli(snap.TS).UTC().Format("01-02 15:04")
		equity[i] = opts.LineData{Value: parseEquity(snap.Equity)}
		daily[i] = opts.LineData{Value: round(snap.DailyPnLPct, 4)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         "Equity",
			Subtitle:      fmt.Sprintf("%d snapshots", len(snaps)),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", equity,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	pnl := charts.NewLine()
	pnl.SetXAxis(xAxis)
	pnl.AddSeries("Daily P&L %", daily,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDailyPnL, Width: 1}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.Overlap(pnl)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)
	return page.Render(w)
}

func parseEquity(s string) float64 {
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0
	}
	return round(v, 2)
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
