package httpapi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"yield/internal/service"
)

// CalibrationHandler serves calibration standards and checks.
type CalibrationHandler struct {
	calibrationService service.CalibrationService
	logger             *zap.Logger
}

func NewCalibrationHandler(calibrationService service.CalibrationService, logger *zap.Logger) *CalibrationHandler {
	return &CalibrationHandler{calibrationService: calibrationService, logger: logger}
}

func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/calibration" {
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
	seg := pathSegments(r.URL.Path, "/api/v1/calibration/")
	switch {
	case len(seg) == 1 && seg[0] != "" && r.Method == http.MethodPut:
		h.Update(w, r, seg[0])
	case len(seg) == 2 && seg[0] != "" && seg[1] == "check" && r.Method == http.MethodPost:
		h.Check(w, r, seg[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type calibrationValues struct {
	TargetValue *float64 `json:"target_value" validate:"required"`
	MinValue    *float64 `json:"min_value" validate:"required"`
	MaxValue    *float64 `json:"max_value" validate:"required"`
	Unit        string   `json:"unit" validate:"max=50"`
	Active      *bool    `json:"active"`
}

type createCalibrationBody struct {
	LocationID    string `json:"location_id" validate:"required,uuid"`
	TrackedItemID string `json:"tracked_item_id" validate:"required,uuid"`
	calibrationValues
}

func (v calibrationValues) request() service.CalibrationRequest {
	return service.CalibrationRequest{
		TargetValue: *v.TargetValue,
		MinValue:    *v.MinValue,
		MaxValue:    *v.MaxValue,
		Unit:        v.Unit,
		Active:      v.Active,
	}
}

func (h *CalibrationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	activeOnly, _ := strconv.ParseBool(q.Get("active"))
	list, err := h.calibrationService.ListStandards(r.Context(), actor, q.Get("location_id"), activeOnly)
	if err != nil {
		writeError(w, h.logger, "ListStandards", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

func (h *CalibrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body createCalibrationBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	req := body.request()
	req.LocationID = body.LocationID
	req.TrackedItemID = body.TrackedItemID
	c, err := h.calibrationService.CreateStandard(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, "CreateStandard", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(c))
}

func (h *CalibrationHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body calibrationValues
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	c, err := h.calibrationService.UpdateStandard(r.Context(), actor, id, body.request())
	if err != nil {
		writeError(w, h.logger, "UpdateStandard", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

type checkBody struct {
	Value *float64 `json:"value" validate:"required"`
}

func (h *CalibrationHandler) Check(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body checkBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	res, err := h.calibrationService.Check(r.Context(), actor, id, *body.Value)
	if err != nil {
		writeError(w, h.logger, "CheckCalibration", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}
