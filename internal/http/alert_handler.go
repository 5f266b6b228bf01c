package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"yield/internal/service"
)

// AlertHandler serves the alert board.
type AlertHandler struct {
	alertService service.AlertService
	logger       *zap.Logger
}

func NewAlertHandler(alertService service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alertService: alertService, logger: logger}
}

func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/alerts" && r.Method == http.MethodGet:
		h.ListAlerts(w, r)
	case r.Method == http.MethodPost:
		seg := pathSegments(path, "/api/v1/alerts/")
		if len(seg) != 2 || seg[0] == "" || seg[1] != "acknowledge" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Acknowledge(w, r, seg[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	alerts, err := h.alertService.ListAlerts(r.Context(), actor, service.ListAlertsRequest{
		Status:   strings.TrimSpace(q.Get("status")),
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Limit:    parseInt(q.Get("limit"), 0),
	})
	if err != nil {
		writeError(w, h.logger, "ListAlerts", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": alerts,
		"total": len(alerts),
	}))
}

type acknowledgeBody struct {
	Note string `json:"note" validate:"max=1000"`
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request, alertID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body acknowledgeBody
	// the note is optional, so is the body
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil && !errors.Is(err, errEmptyBody) {
			writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
			return
		}
	}
	resp, err := h.alertService.Acknowledge(r.Context(), actor, alertID, body.Note)
	if err != nil {
		writeError(w, h.logger, "Acknowledge", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
