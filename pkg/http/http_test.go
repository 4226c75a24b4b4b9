package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=200"`
}

type probeHandler struct{}

func (probeHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/probe", func(c echo.Context) error {
		req := &probeRequest{}
		if verr := ReadAndValidateRequest(c, req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundErrorf("no data for %s", "BTC"))
	})
	e.GET("/panic", func(echo.Context) error { panic("boom") })
}

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewServer([]Handler{probeHandler{}}, WithPrometheus(reg, reg)), reg
}

func do(s *Server, method, target string) (*httptest.ResponseRecorder, APIResponse) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	var body APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestRequestDefaultsAndValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := do(s, http.MethodGet, "/probe?symbol=BTC")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, body.Status)
	data := body.Data.(map[string]any)
	assert.Equal(t, "BTC", data["symbol"])
	assert.Equal(t, 50.0, data["limit"])

	_, body = do(s, http.MethodGet, "/probe?limit=500")
	assert.Equal(t, http.StatusBadRequest, body.Status)
	errs := body.Data.([]any)
	require.Len(t, errs, 2)
	first := errs[0].(map[string]any)
	assert.Equal(t, "ERR_REQUIRED", first["code"])
	assert.Equal(t, "symbol", first["field"])
	second := errs[1].(map[string]any)
	assert.Equal(t, "ERR_LTE", second["code"])
	assert.Equal(t, "limit must be less than or equal to 200", second["message"])
}

func TestAppErrorEnvelope(t *testing.T) {
	s, _ := newTestServer(t)
	_, body := do(s, http.MethodGet, "/missing")
	assert.Equal(t, http.StatusNotFound, body.Status)
	assert.Equal(t, "Not Found", body.Message)
	errs := body.Data.([]any)
	assert.Equal(t, "ERR_NOT_FOUND", errs[0].(map[string]any)["code"])
	assert.Equal(t, "no data for BTC", errs[0].(map[string]any)["message"])
}

func TestRecoverAndMetrics(t *testing.T) {
	s, reg := newTestServer(t)

	rec, _ := do(s, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	do(s, http.MethodGet, "/healthz")
	do(s, http.MethodGet, "/healthz")

	count, err := testutil.GatherAndCount(reg, "watchdog_http_requests_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2)

	rec, _ = do(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `watchdog_http_requests_total{method="GET",route="/healthz",status="200"} 2`))
}

func TestTwoServersShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		NewServer(nil, WithPrometheus(reg, reg))
		NewServer(nil, WithPrometheus(reg, reg))
	})
}
