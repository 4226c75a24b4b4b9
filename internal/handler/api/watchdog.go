package api

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"Watchdog/internal/domain/models"
	mid "Watchdog/internal/middleware"
	"Watchdog/internal/services/narrator"
	"Watchdog/internal/usecase"
	xhttp "Watchdog/pkg/http"
	xlogger "Watchdog/pkg/logger"
)

// WatchdogHandler exposes syntheses, detector state, alert commands and ingest over Echo.
type WatchdogHandler struct {
	logger *xlogger.Logger
	wd     *usecase.Watchdog
	ingest usecase.SnapshotProcessor
	hub    *AlertHub
}

// NewWatchdogHandler builds the handler. ingest may be nil, in which case
// POST /api/snapshots writes straight to the watchdog. hub may be nil to
// disable /ws/alerts.
func NewWatchdogHandler(logger *xlogger.Logger, wd *usecase.Watchdog, ingest usecase.SnapshotProcessor, hub *AlertHub) *WatchdogHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &WatchdogHandler{logger: logger.With("api"), wd: wd, ingest: ingest, hub: hub}
}

func (h *WatchdogHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/symbols", h.Symbols)
	g.GET("/synthesis", h.Synthesis)
	g.GET("/pressure", h.Pressure)
	g.GET("/anomalies", h.Anomalies)
	g.GET("/fragility", h.Fragility)
	g.GET("/fragility/zones", h.Zones)
	g.GET("/manipulation", h.Manipulation)

	g.GET("/alerts", h.Alerts)
	g.GET("/alerts/history", h.AlertHistory)
	g.GET("/alerts/queue", h.AlertQueue)
	g.GET("/alerts/stats", h.AlertStats)
	g.POST("/alerts/:id/acknowledge", h.Acknowledge)
	g.POST("/alerts/:id/spoken", h.MarkSpoken)
	g.POST("/alerts/:id/displayed", h.MarkDisplayed)
	g.DELETE("/alerts/:id", h.Dismiss)
	g.DELETE("/alerts", h.DismissAll)
	g.GET("/router/config", h.RouterConfig)
	g.PATCH("/router/config", h.UpdateRouterConfig)

	g.POST("/snapshots", h.IngestSnapshot)
	g.POST("/scan", h.Scan)
	g.POST("/narrate", h.Narrate)

	if h.hub != nil {
		e.GET("/ws/alerts", h.hub.ServeWS)
	}
}

// errorResponse maps domain errors onto the response envelope.
func (h *WatchdogHandler) errorResponse(c echo.Context, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, models.ErrNoData):
		appErr = xhttp.NotFoundError("no data yet").WithError(err)
	case errors.Is(err, models.ErrAlertNotFound):
		appErr = xhttp.NotFoundErrorf("alert %s not found", c.Param("id"))
	case errors.Is(err, models.ErrInvalidConfig), errors.Is(err, mid.ErrInvalidSnapshot), errors.Is(err, usecase.ErrSymbolRequired):
		appErr = xhttp.BadRequestError(err.Error())
	default:
		h.logger.Error("request failed", xlogger.String("path", c.Path()), xlogger.Error(err))
		appErr = xhttp.InternalError("internal error").WithError(err)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *WatchdogHandler) detectors(symbol string) (*usecase.DetectorSet, error) {
	s, ok := h.wd.Detectors(symbol)
	if !ok {
		return nil, xhttp.NotFoundErrorf("unknown symbol %s", symbol)
	}
	return s, nil
}

func (h *WatchdogHandler) Symbols(c echo.Context) error {
	syms := h.wd.Symbols()
	return xhttp.ListResponse(c, syms, len(syms))
}

func (h *WatchdogHandler) Synthesis(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	syn, err := h.wd.Synthesis(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.errorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, syn)
}

type pressureResponse struct {
	Latest       models.PressureReading   `json:"latest"`
	AverageScore float64                  `json:"averageScore"`
	History      []models.PressureReading `json:"history"`
}

func (h *WatchdogHandler) Pressure(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.detectors(req.Symbol)
	if err != nil {
		return h.errorResponse(c, err)
	}
	latest, ok := s.Pressure.Latest()
	if !ok {
		return h.errorResponse(c, models.ErrNoData)
	}
	return xhttp.SuccessResponse(c, pressureResponse{
		Latest:       latest,
		AverageScore: s.Pressure.AverageScore(10),
		History:      s.Pressure.History(20),
	})
}

func (h *WatchdogHandler) Anomalies(c echo.Context) error {
	req := &models.AnomalyQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.detectors(req.Symbol)
	if err != nil {
		return h.errorResponse(c, err)
	}
	out := make([]models.Anomaly, 0)
	for _, a := range s.Anomaly.Active() {
		if req.Severity != "" && string(a.Severity) != req.Severity {
			continue
		}
		if req.Type != "" && string(a.Type) != req.Type {
			continue
		}
		if req.Source != "" && string(a.Source) != req.Source {
			continue
		}
		out = append(out, a)
	}
	return xhttp.ListResponse(c, out, len(out))
}

func (h *WatchdogHandler) Fragility(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.detectors(req.Symbol)
	if err != nil {
		return h.errorResponse(c, err)
	}
	alert, ok := s.Fragility.LatestAlert()
	if !ok {
		return h.errorResponse(c, models.ErrNoData)
	}
	return xhttp.SuccessResponse(c, alert)
}

func (h *WatchdogHandler) Zones(c echo.Context) error {
	req := &models.ZoneQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.detectors(req.Symbol)
	if err != nil {
		return h.errorResponse(c, err)
	}
	out := make([]models.FragilityZone, 0)
	for _, z := range s.Fragility.ActiveZones() {
		if req.Severity != "" && string(z.Severity) != req.Severity {
			continue
		}
		if req.Type != "" && string(z.Type) != req.Type {
			continue
		}
		out = append(out, z)
	}
	return xhttp.ListResponse(c, out, len(out))
}

func (h *WatchdogHandler) Manipulation(c echo.Context) error {
	req := &models.ManipulationQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.detectors(req.Symbol)
	if err != nil {
		return h.errorResponse(c, err)
	}
	signals := s.Manipulation.Active()
	if req.Entity != "" {
		signals = s.Manipulation.ByEntity(req.Entity)
	}
	out := make([]models.ManipulationSignal, 0, len(signals))
	for _, sig := range signals {
		if req.Severity != "" && string(sig.Severity) != req.Severity {
			continue
		}
		if req.Type != "" && string(sig.Type) != req.Type {
			continue
		}
		out = append(out, sig)
	}
	return xhttp.ListResponse(c, out, len(out))
}

func (h *WatchdogHandler) IngestSnapshot(c echo.Context) error {
	var in models.MarketInputs
	if err := c.Bind(&in); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("malformed snapshot").WithError(err))
	}
	in.Symbol = strings.TrimSpace(in.Symbol)

	var err error
	if h.ingest != nil {
		err = h.ingest.Process(c.Request().Context(), in)
	} else {
		err = h.wd.Ingest(in)
	}
	if err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, map[string]string{"symbol": in.Symbol})
}

func (h *WatchdogHandler) Scan(c echo.Context) error {
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	syn, err := h.wd.Scan(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, syn)
}

func (h *WatchdogHandler) Narrate(c echo.Context) error {
	req := &models.NarrateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	nc := narrator.Context{
		Type:            req.Type,
		Title:           req.Title,
		Message:         req.Message,
		Severity:        req.Severity,
		SuggestedAction: req.SuggestedAction,
		Metrics:         req.Metrics,
		EntityCount:     req.EntityCount,
	}
	if req.PriceLow > 0 || req.PriceHigh > 0 {
		low, high := req.PriceLow, req.PriceHigh
		if low == 0 {
			low = high
		}
		if high < low {
			low, high = high, low
		}
		nc.PriceRange = &models.PriceRange{Low: low, High: high}
	}
	opts := narrator.DefaultOptions()
	opts.Tone = models.Tone(req.Tone)
	opts.Length = narrator.Length(req.Length)
	opts.MaxLength = req.MaxLength
	return xhttp.SuccessResponse(c, h.wd.Narrator().Generate(nc, opts))
}
