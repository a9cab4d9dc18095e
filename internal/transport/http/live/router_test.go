package livehttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/indicator"
	"riptide/internal/portfolio"
	"riptide/internal/risk"
	"riptide/internal/types"
)

type stubPipeline struct {
	lastIntent types.TradeIntent
	decision   types.RiskDecision
	fill       *types.Fill
	err        error
}

func (s *stubPipeline) SubmitIntent(intent types.TradeIntent) (types.RiskDecision, *types.Fill, error) {
	s.lastIntent = intent
	return s.decision, s.fill, s.err
}

func (s *stubPipeline) Snapshot(symbol string) indicator.Snapshot {
	return indicator.Snapshot{Symbol: symbol, RSIFast: 50}
}

func newTestServer(t *testing.T, pipe *stubPipeline) *Server {
	t.Helper()
	pf := portfolio.NewService(decimal.NewFromInt(100000))
	rm := risk.NewManager(risk.Config{PerTradeRisk: 0.01, DailyStopPct: 2, WeeklyStopPct: 5, MaxPositions: 3}, pf)
	srv, err := NewServer(ServerConfig{
		Addr: ":0",
		Router: &Router{
			Pipeline:  pipe,
			Risk:      rm,
			Portfolio: pf,
		},
	})
	require.NoError(t, err)
	return srv
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{})
	w := doRequest(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRiskLimitsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{})
	w := doRequest(srv, http.MethodGet, "/api/v1/risk/limits", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.InDelta(t, 0.01, out["per_trade_risk"], 1e-12)
	assert.InDelta(t, 2.0, out["daily_stop_pct"], 1e-12)
	assert.EqualValues(t, 3, out["max_positions"])
	assert.EqualValues(t, 0, out["open_positions"])
}

func TestSubmitIntentHappyPath(t *testing.T) {
	pipe := &stubPipeline{
		decision: types.RiskDecision{Allowed: true, Quantity: decimal.NewFromInt(500), RiskFraction: 0.01},
		fill: &types.Fill{
			TradeID:  "trade-1",
			Symbol:   "BTCUSDT",
			Side:     types.SideBuy,
			Price:    100.15,
			Quantity: decimal.NewFromInt(500),
		},
	}
	srv := newTestServer(t, pipe)
	body := `{"symbol":"btcusdt","side":"BUY","entry":100.1,"stop":99.6,"target":101.2}`
	w := doRequest(srv, http.MethodPost, "/api/v1/intents", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "btcusdt", pipe.lastIntent.Symbol)
	assert.Equal(t, types.SideBuy, pipe.lastIntent.Side)
	assert.InDelta(t, 100.1, pipe.lastIntent.Entry, 1e-12)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Contains(t, out, "fill")
	decision := out["decision"].(map[string]any)
	assert.Equal(t, true, decision["allowed"])
}

func TestSubmitIntentRejectedByRisk(t *testing.T) {
	pipe := &stubPipeline{
		decision: types.RiskDecision{Allowed: false, Reason: "Daily stop reached"},
	}
	srv := newTestServer(t, pipe)
	body := `{"symbol":"BTCUSDT","side":"SELL","entry":107.0,"stop":108.0}`
	w := doRequest(srv, http.MethodPost, "/api/v1/intents", body)
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotContains(t, out, "fill")
	decision := out["decision"].(map[string]any)
	assert.Equal(t, false, decision["allowed"])
	assert.Equal(t, "Daily stop reached", decision["reason"])
}

func TestSubmitIntentSchemaValidation(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{})
	cases := map[string]string{
		"missing stop":     `{"symbol":"BTCUSDT","side":"BUY","entry":100.0}`,
		"bad side":         `{"symbol":"BTCUSDT","side":"HOLD","entry":100.0,"stop":99.0}`,
		"zero entry":       `{"symbol":"BTCUSDT","side":"BUY","entry":0,"stop":99.0}`,
		"unknown field":    `{"symbol":"BTCUSDT","side":"BUY","entry":100.0,"stop":99.0,"leverage":20}`,
		"not even JSON":    `{"symbol":`,
		"negative qty":     `{"symbol":"BTCUSDT","side":"BUY","entry":100.0,"stop":99.0,"quantity":-5}`,
		"empty symbol":     `{"symbol":"","side":"BUY","entry":100.0,"stop":99.0}`,
		"wrong entry type": `{"symbol":"BTCUSDT","side":"BUY","entry":"100","stop":99.0}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := doRequest(srv, http.MethodPost, "/api/v1/intents", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestSubmitIntentBrokerError(t *testing.T) {
	pipe := &stubPipeline{
		decision: types.RiskDecision{Allowed: true, Quantity: decimal.NewFromInt(10)},
		err:      assert.AnError,
	}
	srv := newTestServer(t, pipe)
	body := `{"symbol":"BTCUSDT","side":"BUY","entry":100.0,"stop":99.0}`
	w := doRequest(srv, http.MethodPost, "/api/v1/intents", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIndicatorsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{})
	w := doRequest(srv, http.MethodGet, "/api/v1/indicators/btcusdt", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap indicator.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "BTCUSDT", snap.Symbol)
}

func TestPositionDetailNotFound(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{})
	w := doRequest(srv, http.MethodGet, "/api/v1/positions/BTCUSDT", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
