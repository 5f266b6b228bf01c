package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"yield/internal/service"
)

// ItemHandler serves tracked items, entries and location variance reports.
type ItemHandler struct {
	itemService service.TrackedItemService
	logger      *zap.Logger
}

func NewItemHandler(itemService service.TrackedItemService, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{itemService: itemService, logger: logger}
}

func (h *ItemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if seg := pathSegments(r.URL.Path, "/api/v1/locations/"); len(seg) == 2 && seg[0] != "" {
		locationID := seg[0]
		switch {
		case seg[1] == "items" && r.Method == http.MethodGet:
			h.ListItems(w, r, locationID)
		case seg[1] == "items" && r.Method == http.MethodPost:
			h.CreateItem(w, r, locationID)
		case seg[1] == "report" && r.Method == http.MethodGet:
			h.Report(w, r, locationID)
		case seg[1] == "report.xlsx" && r.Method == http.MethodGet:
			h.ReportXLSX(w, r, locationID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
		return
	}

	seg := pathSegments(r.URL.Path, "/api/v1/items/")
	if len(seg) == 0 || seg[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	itemID := seg[0]
	switch {
	case len(seg) == 1 && r.Method == http.MethodPut:
		h.UpdateItem(w, r, itemID)
	case len(seg) == 1 && r.Method == http.MethodDelete:
		h.DeleteItem(w, r, itemID)
	case len(seg) == 2 && seg[1] == "lock-baseline" && r.Method == http.MethodPost:
		h.LockBaseline(w, r, itemID)
	case len(seg) == 2 && seg[1] == "entries" && r.Method == http.MethodPost:
		h.AddEntry(w, r, itemID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type itemBody struct {
	Name            string   `json:"name" validate:"required,max=200"`
	Unit            string   `json:"unit" validate:"required,max=50"`
	SubLabel        string   `json:"sub_label" validate:"max=200"`
	ValuePerUnit    float64  `json:"value_per_unit" validate:"gte=0"`
	BaselineInput   *float64 `json:"baseline_input" validate:"omitempty,gte=0"`
	BaselineOutput  *float64 `json:"baseline_output" validate:"omitempty,gte=0"`
	ToleranceGreen  *float64 `json:"tolerance_green" validate:"omitempty,gte=0,lte=1"`
	ToleranceYellow *float64 `json:"tolerance_yellow" validate:"omitempty,gte=0,lte=1"`
}

func (b itemBody) request() service.ItemRequest {
	return service.ItemRequest{
		Name:            b.Name,
		Unit:            b.Unit,
		SubLabel:        b.SubLabel,
		ValuePerUnit:    b.ValuePerUnit,
		BaselineInput:   b.BaselineInput,
		BaselineOutput:  b.BaselineOutput,
		ToleranceGreen:  b.ToleranceGreen,
		ToleranceYellow: b.ToleranceYellow,
	}
}

func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request, locationID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	items, err := h.itemService.ListItems(r.Context(), actor, locationID)
	if err != nil {
		writeError(w, h.logger, "ListItems", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request, locationID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body itemBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	item, err := h.itemService.CreateItem(r.Context(), actor, locationID, body.request())
	if err != nil {
		writeError(w, h.logger, "CreateItem", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(item))
}

func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request, itemID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body itemBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	item, err := h.itemService.UpdateItem(r.Context(), actor, itemID, body.request())
	if err != nil {
		writeError(w, h.logger, "UpdateItem", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(item))
}

func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request, itemID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.itemService.DeleteItem(r.Context(), actor, itemID); err != nil {
		writeError(w, h.logger, "DeleteItem", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": itemID}))
}

func (h *ItemHandler) LockBaseline(w http.ResponseWriter, r *http.Request, itemID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	item, err := h.itemService.LockBaseline(r.Context(), actor, itemID)
	if err != nil {
		writeError(w, h.logger, "LockBaseline", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(item))
}

type entryBody struct {
	EntryDate   string     `json:"entry_date" validate:"omitempty,datetime=2006-01-02"`
	PeriodLabel string     `json:"period_label" validate:"max=100"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
	InputUsed   *float64   `json:"input_used" validate:"required,gte=0"`
	OutputCount *float64   `json:"output_count" validate:"required,gte=0"`
}

func (h *ItemHandler) AddEntry(w http.ResponseWriter, r *http.Request, itemID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body entryBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	req := service.AddEntryRequest{
		PeriodLabel: body.PeriodLabel,
		PeriodStart: body.PeriodStart,
		PeriodEnd:   body.PeriodEnd,
		InputUsed:   *body.InputUsed,
		OutputCount: *body.OutputCount,
	}
	if body.EntryDate != "" {
		// validated above
		req.EntryDate, _ = time.Parse(time.DateOnly, body.EntryDate)
	}
	entry, err := h.itemService.AddEntry(r.Context(), actor, itemID, req)
	if err != nil {
		writeError(w, h.logger, "AddEntry", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(entry))
}

func (h *ItemHandler) Report(w http.ResponseWriter, r *http.Request, locationID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	report, err := h.itemService.LocationReport(r.Context(), actor, locationID, parseInt(r.URL.Query().Get("limit"), 0))
	if err != nil {
		writeError(w, h.logger, "LocationReport", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}

func (h *ItemHandler) ReportXLSX(w http.ResponseWriter, r *http.Request, locationID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	report, err := h.itemService.LocationReport(r.Context(), actor, locationID, parseInt(r.URL.Query().Get("limit"), 0))
	if err != nil {
		writeError(w, h.logger, "LocationReport", err)
		return
	}
	data, err := GenerateLocationReportExcel(report)
	if err != nil {
		writeError(w, h.logger, "GenerateLocationReportExcel", err)
		return
	}

	name := strings.NewReplacer(" ", "_", "/", "_", `"`, "").Replace(report.LocationName)
	filename := fmt.Sprintf("variance_%s_%s.xlsx", name, report.GeneratedAt.Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
