package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"yield/internal/service"
)

// VehicleHandler serves the site / vehicle type / vehicle unit tree.
type VehicleHandler struct {
	vehicleService service.VehicleService
	logger         *zap.Logger
}

func NewVehicleHandler(vehicleService service.VehicleService, logger *zap.Logger) *VehicleHandler {
	return &VehicleHandler{vehicleService: vehicleService, logger: logger}
}

func (h *VehicleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/vehicles/")
	switch {
	case len(seg) == 1 && seg[0] == "sites" && r.Method == http.MethodGet:
		h.ListSites(w, r)
	case len(seg) == 1 && seg[0] == "sites" && r.Method == http.MethodPost:
		h.CreateSite(w, r)
	case len(seg) == 2 && seg[0] == "sites" && seg[1] != "" && r.Method == http.MethodPut:
		h.RenameSite(w, r, seg[1])
	case len(seg) == 2 && seg[0] == "sites" && seg[1] != "" && r.Method == http.MethodDelete:
		h.DeactivateSite(w, r, seg[1])
	case len(seg) == 1 && seg[0] == "types" && r.Method == http.MethodGet:
		h.ListTypes(w, r)
	case len(seg) == 1 && seg[0] == "units" && r.Method == http.MethodGet:
		h.ListUnits(w, r)
	case len(seg) == 2 && seg[0] == "units" && seg[1] == "next" && r.Method == http.MethodPost:
		h.CreateNextUnit(w, r)
	case len(seg) == 3 && seg[0] == "units" && seg[1] != "" && seg[2] == "status" && r.Method == http.MethodPost:
		h.SetStatus(w, r, seg[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *VehicleHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	sites, err := h.vehicleService.ListSites(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, "ListSites", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sites))
}

type createSiteBody struct {
	Name     string `json:"name" validate:"required,max=200"`
	RegionID string `json:"region_id" validate:"omitempty,uuid"`
}

func (h *VehicleHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body createSiteBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	site, err := h.vehicleService.CreateSite(r.Context(), actor, service.SiteRequest{Name: body.Name, RegionID: body.RegionID})
	if err != nil {
		writeError(w, h.logger, "CreateSite", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(site))
}

type renameSiteBody struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (h *VehicleHandler) RenameSite(w http.ResponseWriter, r *http.Request, siteID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body renameSiteBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	site, err := h.vehicleService.RenameSite(r.Context(), actor, siteID, body.Name)
	if err != nil {
		writeError(w, h.logger, "RenameSite", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(site))
}

func (h *VehicleHandler) DeactivateSite(w http.ResponseWriter, r *http.Request, siteID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	resp, err := h.vehicleService.DeactivateSite(r.Context(), actor, siteID)
	if err != nil {
		writeError(w, h.logger, "DeactivateSite", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *VehicleHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	siteID := r.URL.Query().Get("site_id")
	if siteID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}
	types, err := h.vehicleService.ListVehicleTypes(r.Context(), actor, siteID)
	if err != nil {
		writeError(w, h.logger, "ListVehicleTypes", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(types))
}

func (h *VehicleHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	typeID := r.URL.Query().Get("type_id")
	if typeID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("type_id is required"))
		return
	}
	units, err := h.vehicleService.ListVehicleUnits(r.Context(), actor, typeID)
	if err != nil {
		writeError(w, h.logger, "ListVehicleUnits", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(units))
}

type nextUnitBody struct {
	SiteID   string `json:"site_id" validate:"required,uuid"`
	TypeName string `json:"type_name" validate:"required,max=100"`
}

func (h *VehicleHandler) CreateNextUnit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body nextUnitBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	unit, err := h.vehicleService.CreateNextVehicleUnit(r.Context(), actor, body.SiteID, body.TypeName)
	if err != nil {
		writeError(w, h.logger, "CreateNextVehicleUnit", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(unit))
}

type setStatusBody struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=1000"`
}

func (h *VehicleHandler) SetStatus(w http.ResponseWriter, r *http.Request, unitID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body setStatusBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	resp, err := h.vehicleService.SetVehicleStatus(r.Context(), actor, service.SetVehicleStatusRequest{
		UnitID: unitID,
		Status: body.Status,
		Note:   body.Note,
	})
	if err != nil {
		writeError(w, h.logger, "SetVehicleStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
