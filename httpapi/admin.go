package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/monitor"
)

type unlockRequest struct {
	Reason string `json:"reason"`
}

// thresholdBody is the wire form of a monitor threshold. Window is a Go
// duration string such as "15m".
type thresholdBody struct {
	Name         string               `json:"name"`
	EventType    authshield.EventType `json:"eventType"`
	FailuresOnly bool                 `json:"failuresOnly"`
	Count        int                  `json:"count"`
	Window       string               `json:"window"`
	Severity     monitor.Severity     `json:"severity"`
}

type startMonitorRequest struct {
	Interval string `json:"interval"`
}

func (h *Handler) lockoutStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.GetAccountLockoutStatus(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, status)
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	user, err := h.engine.UnlockAccount(r.Context(), chi.URLParam(r, "userID"), sessionFrom(r).info.UserID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, user)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (h *Handler) lockedAccounts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, r, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		badRequest(w, r, "offset must be an integer")
		return
	}
	page, err := h.engine.GetLockedAccounts(r.Context(), sessionFrom(r).info.UserID, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, page)
}

func (h *Handler) securityReport(w http.ResponseWriter, r *http.Request) {
	ok(w, r, http.StatusOK, h.engine.SecurityReport())
}

func (h *Handler) maintenance(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunMaintenance(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, report)
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		ok(w, r, http.StatusOK, h.monitor.Alerts())
		return
	}
	ok(w, r, http.StatusOK, h.monitor.ActiveAlerts())
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := h.monitor.Acknowledge(chi.URLParam(r, "alertID"), sessionFrom(r).info.UserID)
	switch {
	case errors.Is(err, monitor.ErrAlertNotFound):
		fail(w, r, http.StatusNotFound, errorBody{Code: "alert_not_found", Message: "Alert not found"})
	case errors.Is(err, monitor.ErrAlreadyAcknowledged):
		fail(w, r, http.StatusConflict, errorBody{Code: "alert_acknowledged", Message: "Alert already acknowledged"})
	case err != nil:
		h.writeError(w, r, err)
	default:
		ok(w, r, http.StatusOK, a)
	}
}

func toThresholdBody(t monitor.Threshold) thresholdBody {
	return thresholdBody{
		Name:         t.Name,
		EventType:    t.EventType,
		FailuresOnly: t.FailuresOnly,
		Count:        t.Count,
		Window:       t.Window.String(),
		Severity:     t.Severity,
	}
}

func (h *Handler) thresholds(w http.ResponseWriter, r *http.Request) {
	ts := h.monitor.GetThresholds()
	out := make([]thresholdBody, 0, len(ts))
	for _, t := range ts {
		out = append(out, toThresholdBody(t))
	}
	ok(w, r, http.StatusOK, out)
}

func (h *Handler) setThresholds(w http.ResponseWriter, r *http.Request) {
	var req []thresholdBody
	if !decode(w, r, &req) {
		return
	}
	ts := make([]monitor.Threshold, 0, len(req))
	for _, b := range req {
		window, err := time.ParseDuration(b.Window)
		if err != nil {
			badRequest(w, r, "threshold "+b.Name+": window must be a duration such as 15m")
			return
		}
		ts = append(ts, monitor.Threshold{
			Name:         b.Name,
			EventType:    b.EventType,
			FailuresOnly: b.FailuresOnly,
			Count:        b.Count,
			Window:       window,
			Severity:     b.Severity,
		})
	}
	if err := h.monitor.SetThresholds(ts); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	h.thresholds(w, r)
}

func (h *Handler) detect(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.monitor.Detect(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, patterns)
}

func (h *Handler) runMonitor(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.RunNow(r.Context())
	if errors.Is(err, monitor.ErrAlreadyRunning) {
		fail(w, r, http.StatusConflict, errorBody{Code: "monitor_running", Message: "A monitor pass is already running"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, report)
}

// startMonitor launches the periodic scan detached from the request.
func (h *Handler) startMonitor(w http.ResponseWriter, r *http.Request) {
	var req startMonitorRequest
	if !decode(w, r, &req) {
		return
	}
	interval, err := time.ParseDuration(req.Interval)
	if err != nil || interval <= 0 {
		badRequest(w, r, "interval must be a positive duration such as 5m")
		return
	}
	err = h.monitor.Start(context.WithoutCancel(r.Context()), interval)
	if errors.Is(err, monitor.ErrAlreadyStarted) {
		fail(w, r, http.StatusConflict, errorBody{Code: "monitor_started", Message: "Monitor is already running"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusAccepted, map[string]string{"interval": interval.String()})
}

func (h *Handler) stopMonitor(w http.ResponseWriter, r *http.Request) {
	h.monitor.Stop()
	ok(w, r, http.StatusOK, messageResponse{Message: "Monitor stopped"})
}
