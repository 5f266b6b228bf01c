package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"yield/internal/service"
)

// TrainingHandler serves training sessions.
type TrainingHandler struct {
	trainingService service.TrainingService
	logger          *zap.Logger
}

func NewTrainingHandler(trainingService service.TrainingService, logger *zap.Logger) *TrainingHandler {
	return &TrainingHandler{trainingService: trainingService, logger: logger}
}

func (h *TrainingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/training" {
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	seg := pathSegments(r.URL.Path, "/api/v1/training/")
	switch {
	case len(seg) == 1 && seg[0] != "" && r.Method == http.MethodPut:
		h.Update(w, r, seg[0])
	case len(seg) == 2 && seg[0] != "" && seg[1] == "complete" && r.Method == http.MethodPost:
		h.Complete(w, r, seg[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type trainingBody struct {
	LocationID string    `json:"location_id" validate:"omitempty,uuid"`
	EmployeeID string    `json:"employee_id" validate:"omitempty,uuid"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	EndsAt     time.Time `json:"ends_at" validate:"required"`
	Status     string    `json:"status" validate:"omitempty,oneof=assigned completed cancelled"`
	ItemIDs    []string  `json:"item_ids" validate:"required,min=1,dive,uuid"`
}

func (b trainingBody) request() service.TrainingRequest {
	return service.TrainingRequest{
		LocationID: b.LocationID,
		EmployeeID: b.EmployeeID,
		StartsAt:   b.StartsAt,
		EndsAt:     b.EndsAt,
		Status:     b.Status,
		ItemIDs:    b.ItemIDs,
	}
}

func (h *TrainingHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	list, err := h.trainingService.ListSessions(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, "ListSessions", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

func (h *TrainingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body trainingBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	if body.LocationID == "" || body.EmployeeID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("location_id and employee_id are required"))
		return
	}
	s, err := h.trainingService.CreateSession(r.Context(), actor, body.request())
	if err != nil {
		writeError(w, h.logger, "CreateSession", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(s))
}

func (h *TrainingHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body trainingBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	s, err := h.trainingService.UpdateSession(r.Context(), actor, id, body.request())
	if err != nil {
		writeError(w, h.logger, "UpdateSession", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(s))
}

func (h *TrainingHandler) Complete(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	resp, err := h.trainingService.CompleteSession(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.logger, "CompleteSession", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
