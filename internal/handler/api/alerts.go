package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/router"
	xhttp "Watchdog/pkg/http"
	xlogger "Watchdog/pkg/logger"
)

func (h *WatchdogHandler) Alerts(c echo.Context) error {
	req := &models.AlertQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	r := h.wd.Router()
	var alerts []models.WatchdogAlert
	switch {
	case req.Priority != "":
		alerts = r.ByPriority(models.Priority(req.Priority))
	case req.Category != "":
		alerts = r.ByCategory(models.Category(req.Category))
	default:
		alerts = r.ActiveAlerts()
	}
	out := make([]models.WatchdogAlert, 0, len(alerts))
	for _, a := range alerts {
		if req.Category != "" && string(a.Category) != req.Category {
			continue
		}
		if req.Unacknowledged && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return xhttp.ListResponse(c, out, len(out))
}

func (h *WatchdogHandler) AlertHistory(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var since time.Time
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("since must be RFC3339, got %q", req.Since).WithParam("since", req.Since))
		}
		since = t
	}
	alerts := h.wd.Router().History(req.Limit)
	if !since.IsZero() {
		kept := alerts[:0]
		for _, a := range alerts {
			if !a.CreatedAt.Before(since) {
				kept = append(kept, a)
			}
		}
		alerts = kept
	}
	return xhttp.ListResponse(c, alerts, len(alerts))
}

func (h *WatchdogHandler) AlertQueue(c echo.Context) error {
	q := h.wd.Router().QueuedAlerts()
	return xhttp.ListResponse(c, q, len(q))
}

func (h *WatchdogHandler) AlertStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.wd.Router().Stats())
}

func (h *WatchdogHandler) alertCommand(c echo.Context, action string, fn func(string) error) error {
	id := c.Param("id")
	if err := fn(id); err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Debug("alert updated", xlogger.String("id", id), xlogger.String("action", action))
	return xhttp.SuccessResponse(c, map[string]string{"id": id, "action": action})
}

func (h *WatchdogHandler) Acknowledge(c echo.Context) error {
	return h.alertCommand(c, "acknowledge", h.wd.Router().Acknowledge)
}

func (h *WatchdogHandler) MarkSpoken(c echo.Context) error {
	return h.alertCommand(c, "spoken", h.wd.Router().MarkSpoken)
}

func (h *WatchdogHandler) MarkDisplayed(c echo.Context) error {
	return h.alertCommand(c, "displayed", h.wd.Router().MarkDisplayed)
}

func (h *WatchdogHandler) Dismiss(c echo.Context) error {
	return h.alertCommand(c, "dismiss", h.wd.Router().Dismiss)
}

func (h *WatchdogHandler) DismissAll(c echo.Context) error {
	n := h.wd.Router().DismissAll()
	return xhttp.SuccessResponse(c, map[string]int{"dismissed": n})
}

func (h *WatchdogHandler) RouterConfig(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.wd.Router().Config())
}

// routerConfigRequest mirrors router.ConfigPatch with the interval in milliseconds.
type routerConfigRequest struct {
	MinAlertIntervalMs      *int64   `json:"minAlertIntervalMs" validate:"omitempty,gte=0"`
	MaxAlertsPerHour        *int     `json:"maxAlertsPerHour" validate:"omitempty,gte=1"`
	HighPriorityThreshold   *float64 `json:"highPriorityThreshold" validate:"omitempty,gte=0,lte=100"`
	MediumPriorityThreshold *float64 `json:"mediumPriorityThreshold" validate:"omitempty,gte=0,lte=100"`
	VoiceEnabled            *bool    `json:"voiceEnabled"`
	MaxActiveAlerts         *int     `json:"maxActiveAlerts" validate:"omitempty,gte=1"`
	MaxQueueSize            *int     `json:"maxQueueSize" validate:"omitempty,gte=1"`
}

func (r routerConfigRequest) patch() router.ConfigPatch {
	p := router.ConfigPatch{
		MaxAlertsPerHour:        r.MaxAlertsPerHour,
		HighPriorityThreshold:   r.HighPriorityThreshold,
		MediumPriorityThreshold: r.MediumPriorityThreshold,
		VoiceEnabled:            r.VoiceEnabled,
		MaxActiveAlerts:         r.MaxActiveAlerts,
		MaxQueueSize:            r.MaxQueueSize,
	}
	if r.MinAlertIntervalMs != nil {
		d := time.Duration(*r.MinAlertIntervalMs) * time.Millisecond
		p.MinAlertInterval = &d
	}
	return p
}

func (h *WatchdogHandler) UpdateRouterConfig(c echo.Context) error {
	req := &routerConfigRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.wd.Router().UpdateConfig(req.patch()); err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info("router config updated")
	return xhttp.SuccessResponse(c, h.wd.Router().Config())
}
