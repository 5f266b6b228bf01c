package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"yield/internal/service"
)

type AuditHandler struct {
	auditService service.AuditService
	logger       *zap.Logger
}

func NewAuditHandler(auditService service.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, logger: logger}
}

func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/audit" || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	records, err := h.auditService.ListAudit(r.Context(), actor, service.ListAuditRequest{
		Operation:  q.Get("operation"),
		LocationID: q.Get("location_id"),
		Limit:      parseInt(q.Get("limit"), 0),
	})
	if err != nil {
		writeError(w, h.logger, "ListAudit", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": records,
		"total": len(records),
	}))
}
