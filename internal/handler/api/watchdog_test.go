package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/usecase"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type listData struct {
	Rows  json.RawMessage `json:"rows"`
	Total int             `json:"total"`
}

func newTestServer(t *testing.T, hub *AlertHub) (*echo.Echo, *usecase.Watchdog) {
	t.Helper()
	wd := usecase.NewWatchdog(
		usecase.WithSymbols("BTC"),
		usecase.WithClock(func() time.Time { return baseTime }),
	)
	e := echo.New()
	NewWatchdogHandler(nil, wd, nil, hub).RegisterRoutes(e)
	return e, wd
}

func do(t *testing.T, e *echo.Echo, method, target, body string) envelope {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func whaleSnapshot() string {
	return `{"symbol":"BTC","currentPrice":64000,"whaleIntel":{"netFlow":5000,"accumulationScore":90,"distributionScore":10,"largeTransactions":12,"activeWhales":["w1","w2"]}}`
}

func routeOneAlert(t *testing.T, wd *usecase.Watchdog) models.WatchdogAlert {
	t.Helper()
	_, err := wd.ScanInputs(context.Background(), models.MarketInputs{
		Symbol:       "BTC",
		CurrentPrice: 64000,
		WhaleIntel: &models.WhaleIntel{
			NetFlow:           5000,
			AccumulationScore: 90,
			DistributionScore: 10,
			LargeTransactions: 12,
			ActiveWhales:      []string{"w1", "w2"},
		},
	})
	require.NoError(t, err)
	active := wd.Router().ActiveAlerts()
	require.Len(t, active, 1)
	return active[0]
}

func TestSymbols(t *testing.T) {
	e, _ := newTestServer(t, nil)
	env := do(t, e, http.MethodGet, "/api/symbols", "")
	assert.Equal(t, http.StatusOK, env.Status)

	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)
	assert.JSONEq(t, `["BTC"]`, string(list.Rows))
}

func TestSynthesisNotFoundBeforeScan(t *testing.T) {
	e, _ := newTestServer(t, nil)
	env := do(t, e, http.MethodGet, "/api/synthesis?symbol=BTC", "")
	assert.Equal(t, http.StatusNotFound, env.Status)

	env = do(t, e, http.MethodGet, "/api/synthesis", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
	assert.Contains(t, string(env.Data), "symbol")
}

func TestIngestThenScan(t *testing.T) {
	e, wd := newTestServer(t, nil)

	env := do(t, e, http.MethodPost, "/api/snapshots", whaleSnapshot())
	assert.Equal(t, http.StatusCreated, env.Status)

	env = do(t, e, http.MethodPost, "/api/scan", `{"symbol":"BTC"}`)
	require.Equal(t, http.StatusOK, env.Status, string(env.Data))
	var syn models.Synthesis
	require.NoError(t, json.Unmarshal(env.Data, &syn))
	assert.Equal(t, "BTC", syn.Symbol)
	assert.Equal(t, 1, syn.AlertsRouted)

	env = do(t, e, http.MethodGet, "/api/synthesis?symbol=BTC", "")
	assert.Equal(t, http.StatusOK, env.Status)

	env = do(t, e, http.MethodGet, "/api/pressure?symbol=BTC", "")
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Contains(t, string(env.Data), `"averageScore"`)

	assert.Len(t, wd.Router().ActiveAlerts(), 1)
}

func TestIngestRejectsMissingSymbol(t *testing.T) {
	e, _ := newTestServer(t, nil)
	env := do(t, e, http.MethodPost, "/api/snapshots", `{"currentPrice":10}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = do(t, e, http.MethodPost, "/api/snapshots", `{"symbol":`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestDetectorRoutesUnknownSymbol(t *testing.T) {
	e, _ := newTestServer(t, nil)
	for _, path := range []string{
		"/api/pressure?symbol=DOGE",
		"/api/anomalies?symbol=DOGE",
		"/api/fragility?symbol=DOGE",
		"/api/fragility/zones?symbol=DOGE",
		"/api/manipulation?symbol=DOGE",
	} {
		env := do(t, e, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, env.Status, path)
	}
}

func TestDetectorListsEmptyForKnownSymbol(t *testing.T) {
	e, _ := newTestServer(t, nil)
	for _, path := range []string{
		"/api/anomalies?symbol=BTC&severity=high",
		"/api/fragility/zones?symbol=BTC",
		"/api/manipulation?symbol=BTC&entity=w1",
	} {
		env := do(t, e, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, env.Status, path)
		var list listData
		require.NoError(t, json.Unmarshal(env.Data, &list))
		assert.Zero(t, list.Total, path)
		assert.JSONEq(t, `[]`, string(list.Rows), path)
	}

	env := do(t, e, http.MethodGet, "/api/anomalies?symbol=BTC&severity=extreme", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestAlertCommands(t *testing.T) {
	e, wd := newTestServer(t, nil)
	alert := routeOneAlert(t, wd)

	env := do(t, e, http.MethodGet, "/api/alerts?unacknowledged=true", "")
	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)

	env = do(t, e, http.MethodPost, "/api/alerts/"+alert.ID+"/acknowledge", "")
	assert.Equal(t, http.StatusOK, env.Status)
	env = do(t, e, http.MethodPost, "/api/alerts/"+alert.ID+"/spoken", "")
	assert.Equal(t, http.StatusOK, env.Status)
	env = do(t, e, http.MethodPost, "/api/alerts/"+alert.ID+"/displayed", "")
	assert.Equal(t, http.StatusOK, env.Status)

	got := wd.Router().ActiveAlerts()[0]
	assert.True(t, got.Acknowledged)
	assert.True(t, got.Spoken)
	assert.True(t, got.Displayed)

	env = do(t, e, http.MethodGet, "/api/alerts?unacknowledged=true", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Zero(t, list.Total)

	env = do(t, e, http.MethodPost, "/api/alerts/missing/acknowledge", "")
	assert.Equal(t, http.StatusNotFound, env.Status)

	env = do(t, e, http.MethodDelete, "/api/alerts/"+alert.ID, "")
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Empty(t, wd.Router().ActiveAlerts())

	env = do(t, e, http.MethodDelete, "/api/alerts/"+alert.ID, "")
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestDismissAllAndHistory(t *testing.T) {
	e, wd := newTestServer(t, nil)
	routeOneAlert(t, wd)

	env := do(t, e, http.MethodDelete, "/api/alerts", "")
	assert.JSONEq(t, `{"dismissed":1}`, string(env.Data))

	env = do(t, e, http.MethodGet, "/api/alerts/history?limit=10", "")
	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)

	future := baseTime.Add(time.Hour).Format(time.RFC3339)
	env = do(t, e, http.MethodGet, "/api/alerts/history?since="+future, "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Zero(t, list.Total)

	env = do(t, e, http.MethodGet, "/api/alerts/history?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = do(t, e, http.MethodGet, "/api/alerts/history?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = do(t, e, http.MethodGet, "/api/alerts/stats", "")
	assert.Equal(t, http.StatusOK, env.Status)

	env = do(t, e, http.MethodGet, "/api/alerts/queue", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Zero(t, list.Total)
}

func TestRouterConfigPatch(t *testing.T) {
	e, wd := newTestServer(t, nil)

	env := do(t, e, http.MethodPatch, "/api/router/config", `{"minAlertIntervalMs":2500,"voiceEnabled":false}`)
	require.Equal(t, http.StatusOK, env.Status, string(env.Data))
	cfg := wd.Router().Config()
	assert.Equal(t, 2500*time.Millisecond, cfg.MinAlertInterval)
	assert.False(t, cfg.VoiceEnabled)

	env = do(t, e, http.MethodPatch, "/api/router/config", `{"highPriorityThreshold":10,"mediumPriorityThreshold":40}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = do(t, e, http.MethodPatch, "/api/router/config", `{"maxAlertsPerHour":0}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestNarrate(t *testing.T) {
	e, _ := newTestServer(t, nil)
	env := do(t, e, http.MethodPost, "/api/narrate",
		`{"type":"whale_accumulation","title":"Whales buying","message":"Large wallets are accumulating","severity":80,"length":"brief","priceLow":63000,"priceHigh":65000}`)
	require.Equal(t, http.StatusOK, env.Status, string(env.Data))
	assert.Contains(t, string(env.Data), `"speakableNarrative"`)

	env = do(t, e, http.MethodPost, "/api/narrate", `{"type":"x","message":"m","length":"epic"}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestAlertHubBroadcast(t *testing.T) {
	hub := NewAlertHub(nil, 4)
	e, wd := newTestServer(t, hub)
	wd.Router().Subscribe(hub)

	srv := httptest.NewServer(e)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello wsEnvelope
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Type)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	alert := routeOneAlert(t, wd)

	var msg struct {
		Type string               `json:"type"`
		Data models.AlertDelivery `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "alert", msg.Type)
	assert.Equal(t, alert.ID, msg.Data.Alert.ID)

	hub.Close()
	assert.Zero(t, hub.ClientCount())
}
