package livehttp

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"riptide/internal/indicator"
	"riptide/internal/logger"
	"riptide/internal/portfolio"
	"riptide/internal/risk"
	"riptide/internal/store/gormstore"
	"riptide/internal/store/journal"
	"riptide/internal/types"
)

// Pipeline is the slice of the engine host the API needs.
type Pipeline interface {
	SubmitIntent(intent types.TradeIntent) (types.RiskDecision, *types.Fill, error)
	Snapshot(symbol string) indicator.Snapshot
}

// EquityChartRenderer renders the equity curve page.
type EquityChartRenderer interface {
	RenderEquity(w io.Writer) error
}

type Router struct {
	Pipeline  Pipeline
	Risk      *risk.Manager
	Portfolio *portfolio.Service
	Store     *gormstore.GormStore
	Journal   *journal.EventJournal
	Chart     EquityChartRenderer
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/risk/limits", r.handleRiskLimits)
	group.GET("/account", r.handleAccount)
	group.GET("/positions", r.handlePositions)
	group.GET("/positions/:symbol", r.handlePositionDetail)
	group.GET("/session/summary", r.handleSessionSummary)
	group.GET("/indicators/:symbol", r.handleIndicators)
	group.POST("/intents", r.handleSubmitIntent)
	if r.Store != nil {
		group.GET("/signals", r.handleSignals)
		group.GET("/executions", r.handleExecutions)
		group.GET("/alerts", r.handleAlerts)
	}
	if r.Journal != nil {
		group.GET("/journal", r.handleJournal)
	}
	if r.Chart != nil {
		group.GET("/charts/equity", r.handleEquityChart)
	}
}

func (r *Router) handleRiskLimits(c *gin.Context) {
	if r.Risk == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk manager not available"})
		return
	}
	limits := r.Risk.Limits()
	open := 0
	if r.Portfolio != nil {
		open = len(r.Portfolio.Positions())
	}
	c.JSON(http.StatusOK, gin.H{
		"per_trade_risk":  limits.PerTradeRisk,
		"daily_stop_pct":  limits.DailyStopPct,
		"weekly_stop_pct": limits.WeeklyStopPct,
		"max_positions":   limits.MaxPositions,
		"open_positions":  open,
	})
}

func (r *Router) handleAccount(c *gin.Context) {
	if r.Portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "portfolio not available"})
		return
	}
	snap := r.Portfolio.Snapshot(time.Now().UTC())
	c.JSON(http.StatusOK, gin.H{
		"equity":         snap.Equity,
		"daily_pnl_pct":  snap.DailyPnLPct,
		"weekly_pnl_pct": snap.WeeklyPnLPct,
		"open_positions": snap.OpenPositions,
		"updated_at":     snap.UpdatedAt,
	})
}

func (r *Router) handlePositions(c *gin.Context) {
	if r.Portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "portfolio not available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": r.Portfolio.Positions()})
}

func (r *Router) handlePositionDetail(c *gin.Context) {
	if r.Portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "portfolio not available"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	pos := r.Portfolio.Position(symbol)
	if pos.Quantity.IsZero() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open position for " + symbol})
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (r *Router) handleSessionSummary(c *gin.Context) {
	if r.Portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "portfolio not available"})
		return
	}
	summary := r.Portfolio.SessionSummary()
	c.JSON(http.StatusOK, gin.H{
		"trades":       summary.Trades,
		"wins":         summary.Wins,
		"win_rate":     summary.WinRate,
		"expectancy":   summary.Expectancy,
		"realized_pnl": summary.RealizedPnL,
	})
}

func (r *Router) handleIndicators(c *gin.Context) {
	if r.Pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline not available"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	snap := r.Pipeline.Snapshot(symbol)
	c.JSON(http.StatusOK, snap)
}

// handleSubmitIntent validates the body against the intent schema, builds a
// trade intent and runs it through the synchronous manual path. The response
// always carries the risk decision; a fill only when the order executed.
func (r *Router) handleSubmitIntent(c *gin.Context) {
	if r.Pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline not available"})
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}
	if err := validateIntentBody(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body := gjson.ParseBytes(raw)
	intent := types.TradeIntent{
		Symbol:   body.Get("symbol").String(),
		Side:     types.Side(body.Get("side").String()),
		Entry:    body.Get("entry").Float(),
		Stop:     body.Get("stop").Float(),
		Target:   body.Get("target").Float(),
		Strategy: body.Get("strategy").String(),
	}
	if orderType := body.Get("order_type"); orderType.Exists() {
		intent.OrderType = types.OrderType(orderType.String())
	}
	if qty := body.Get("quantity"); qty.Exists() {
		intent.Quantity = decimal.NewFromFloat(qty.Float())
	}

	decision, fill, err := r.Pipeline.SubmitIntent(intent)
	if err != nil {
		logger.Warnf("API: manual intent %s %s failed: %v", intent.Side, intent.Symbol, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    err.Error(),
			"decision": decisionPayload(decision),
		})
		return
	}
	if !decision.Allowed {
		c.JSON(http.StatusOK, gin.H{"decision": decisionPayload(decision)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decision": decisionPayload(decision),
		"fill":     fill,
	})
}

func decisionPayload(d types.RiskDecision) gin.H {
	return gin.H{
		"allowed":       d.Allowed,
		"reason":        d.Reason,
		"quantity":      d.Quantity,
		"risk_fraction": d.RiskFraction,
	}
}

func (r *Router) handleSignals(c *gin.Context) {
	out, err := r.Store.ListSignals(c.Request.Context(), storeQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": out})
}

func (r *Router) handleExecutions(c *gin.Context) {
	out, err := r.Store.ListExecutions(c.Request.Context(), storeQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": out})
}

func (r *Router) handleAlerts(c *gin.Context) {
	out, err := r.Store.ListAlerts(c.Request.Context(), storeQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

func (r *Router) handleJournal(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	out, err := r.Journal.Recent(c.Request.Context(), journal.Query{
		Kind:   c.Query("kind"),
		Symbol: c.Query("symbol"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (r *Router) handleEquityChart(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := r.Chart.RenderEquity(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func storeQuery(c *gin.Context) gormstore.Query {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit > 500 {
		limit = 500
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return gormstore.Query{
		Symbol:   c.Query("symbol"),
		Strategy: c.Query("strategy"),
		Limit:    limit,
		Offset:   offset,
	}
}
