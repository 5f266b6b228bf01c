package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/policy"
	"yield/internal/repository"
	"yield/internal/service"
)

// Stubs embed the service interface; calling an unstubbed method panics.

type stubUserService struct {
	service.UserService
	lastCreate service.CreateUserRequest
	createErr  error
}

func (s *stubUserService) CreateUser(_ context.Context, _ domain.Actor, req service.CreateUserRequest) (*service.UserDTO, error) {
	s.lastCreate = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &service.UserDTO{UserID: "new-user", Email: req.Email, Role: domain.Role(req.Role), IsActive: true}, nil
}

func (s *stubUserService) DeactivateUser(_ context.Context, _ domain.Actor, userID string) (*service.DeactivateUserResponse, error) {
	return &service.DeactivateUserResponse{UserID: userID}, nil
}

type stubVehicleService struct {
	service.VehicleService
	lastStatus service.SetVehicleStatusRequest
	lastSite   service.SiteRequest
	renamed    map[string]string
}

func (s *stubVehicleService) CreateSite(_ context.Context, actor domain.Actor, req service.SiteRequest) (*service.LocationDTO, error) {
	s.lastSite = req
	if actor.Role == domain.RoleLocalAdmin {
		return nil, &policy.Denial{Kind: policy.ErrForbidden, Reason: "Only regional or master admins can manage sites"}
	}
	return &service.LocationDTO{ID: "site-new", Name: req.Name, Kind: domain.LocationSite, RegionID: req.RegionID, Active: true}, nil
}

func (s *stubVehicleService) RenameSite(_ context.Context, _ domain.Actor, siteID, name string) (*service.LocationDTO, error) {
	if s.renamed == nil {
		s.renamed = map[string]string{}
	}
	s.renamed[siteID] = name
	return &service.LocationDTO{ID: siteID, Name: name, Kind: domain.LocationSite, Active: true}, nil
}

func (s *stubVehicleService) DeactivateSite(_ context.Context, _ domain.Actor, siteID string) (*service.DeactivateSiteResponse, error) {
	return &service.DeactivateSiteResponse{Site: &service.LocationDTO{ID: siteID, Kind: domain.LocationSite}}, nil
}

func (s *stubVehicleService) SetVehicleStatus(_ context.Context, actor domain.Actor, req service.SetVehicleStatusRequest) (*service.SetVehicleStatusResponse, error) {
	s.lastStatus = req
	if actor.Role == domain.RoleLocalAdmin {
		return nil, &policy.Denial{Kind: policy.ErrOutOfScope, Reason: "Vehicle not in your location"}
	}
	return &service.SetVehicleStatusResponse{Unit: &service.LocationDTO{ID: req.UnitID, Kind: domain.LocationVehicleUnit}}, nil
}

type stubItemService struct {
	service.TrackedItemService
	lastEntry service.AddEntryRequest
	updateErr error
}

func (s *stubItemService) AddEntry(_ context.Context, _ domain.Actor, itemID string, req service.AddEntryRequest) (*service.EntryDTO, error) {
	s.lastEntry = req
	return &service.EntryDTO{ID: "entry-1", TrackedItemID: itemID, InputUsed: req.InputUsed, OutputCount: req.OutputCount}, nil
}

func (s *stubItemService) UpdateItem(_ context.Context, _ domain.Actor, itemID string, _ service.ItemRequest) (*service.TrackedItemDTO, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return &service.TrackedItemDTO{ID: itemID}, nil
}

func TestUserHandler_CreateUser(t *testing.T) {
	router, _ := newTestRouter(t)
	users := &stubUserService{}
	router.RegisterUserRoutes(NewUserHandler(users, zap.NewNop()))

	t.Run("validation", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/users", testToken, map[string]any{
			"email": "not-an-email", "password": "short",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		msg := decodeEnvelope(t, w).Message
		assert.Contains(t, msg, "email must be a valid email address")
		assert.Contains(t, msg, "password must be at least 8 characters")
	})

	t.Run("empty body", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/users", testToken, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "request body required", decodeEnvelope(t, w).Message)
	})

	t.Run("created", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/users", testToken, map[string]any{
			"email":              "new@example.com",
			"password":           "long-enough",
			"role":               "local_admin",
			"target_location_id": testLocal.LocationID,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, testLocal.LocationID, users.lastCreate.LocationID)
		assert.Equal(t, "local_admin", users.lastCreate.Role)

		var user service.UserDTO
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Result, &user))
		assert.Equal(t, "new-user", user.UserID)
	})

	t.Run("denied", func(t *testing.T) {
		users.createErr = &policy.Denial{Kind: policy.ErrForbidden, Reason: "Local admin can only create employees"}
		defer func() { users.createErr = nil }()
		w := doRequest(t, router, http.MethodPost, "/api/v1/users", "local-token", map[string]any{
			"email": "boss@example.com", "password": "long-enough", "role": "master_admin",
		})
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Local admin can only create employees", decodeEnvelope(t, w).Message)
	})
}

type discardAudit struct{ repository.AuditRepository }

func (discardAudit) AppendAudit(context.Context, *domain.AuditRecord) error { return nil }

func TestUserHandler_DeactivateMalformedIDIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	users := service.NewUserService(
		repository.NewPostgresProfilesRepository(db),
		repository.NewPostgresLocationsRepository(db),
		nil, discardAudit{}, nil, zap.NewNop(),
	)
	router, _ := newTestRouter(t)
	router.RegisterUserRoutes(NewUserHandler(users, zap.NewNop()))

	w := doRequest(t, router, http.MethodDelete, "/api/v1/users/not-a-uuid", testToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", decodeEnvelope(t, w).Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserHandler_Routes(t *testing.T) {
	router, _ := newTestRouter(t)
	router.RegisterUserRoutes(NewUserHandler(&stubUserService{}, zap.NewNop()))

	w := doRequest(t, router, http.MethodDelete, "/api/v1/users/u-1", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u-1","already_inactive":false}`, string(decodeEnvelope(t, w).Result))

	w = doRequest(t, router, http.MethodDelete, "/api/v1/users/u-1/extra", testToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodPatch, "/api/v1/users", testToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVehicleHandler_SetStatus(t *testing.T) {
	router, _ := newTestRouter(t)
	vehicles := &stubVehicleService{}
	router.RegisterVehicleRoutes(NewVehicleHandler(vehicles, zap.NewNop()))

	w := doRequest(t, router, http.MethodPost, "/api/v1/vehicles/units/unit-9/status", testToken, map[string]any{
		"status": "out_of_commission", "note": "flat tire",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, service.SetVehicleStatusRequest{UnitID: "unit-9", Status: "out_of_commission", Note: "flat tire"}, vehicles.lastStatus)

	w = doRequest(t, router, http.MethodPost, "/api/v1/vehicles/units/unit-9/status", "local-token", map[string]any{"status": "in_service"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Vehicle not in your location", decodeEnvelope(t, w).Message)

	w = doRequest(t, router, http.MethodPost, "/api/v1/vehicles/units/unit-9/status", testToken, map[string]any{"note": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "status is required", decodeEnvelope(t, w).Message)

	w = doRequest(t, router, http.MethodGet, "/api/v1/vehicles/types", testToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "site_id is required", decodeEnvelope(t, w).Message)
}

func TestVehicleHandler_SiteRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	vehicles := &stubVehicleService{}
	router.RegisterVehicleRoutes(NewVehicleHandler(vehicles, zap.NewNop()))
	region := "7d4f3c1e-2a9b-4c6d-8e0f-1a2b3c4d5e6f"

	w := doRequest(t, router, http.MethodPost, "/api/v1/vehicles/sites", testToken, map[string]any{
		"name": "North Yard", "region_id": region,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, service.SiteRequest{Name: "North Yard", RegionID: region}, vehicles.lastSite)

	w = doRequest(t, router, http.MethodPost, "/api/v1/vehicles/sites", testToken, map[string]any{
		"name": "North Yard", "region_id": "north",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "region_id must be a UUID", decodeEnvelope(t, w).Message)

	w = doRequest(t, router, http.MethodPost, "/api/v1/vehicles/sites", testToken, map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "name is required", decodeEnvelope(t, w).Message)

	w = doRequest(t, router, http.MethodPost, "/api/v1/vehicles/sites", "local-token", map[string]any{"name": "Mine"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, router, http.MethodPut, "/api/v1/vehicles/sites/site-1", testToken, map[string]any{"name": "South Yard"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"site-1": "South Yard"}, vehicles.renamed)

	w = doRequest(t, router, http.MethodDelete, "/api/v1/vehicles/sites/site-1", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"site":{"id":"site-1","name":"","kind":"site","parent_id":null,"active":false},"already_inactive":false}`,
		string(decodeEnvelope(t, w).Result))

	w = doRequest(t, router, http.MethodDelete, "/api/v1/vehicles/sites", testToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestItemHandler_AddEntry(t *testing.T) {
	router, _ := newTestRouter(t)
	items := &stubItemService{}
	router.RegisterItemRoutes(NewItemHandler(items, zap.NewNop()))

	w := doRequest(t, router, http.MethodPost, "/api/v1/items/item-1/entries", testToken, map[string]any{
		"entry_date": "2026-03-14", "input_used": 10, "output_count": 0,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "2026-03-14", items.lastEntry.EntryDate.Format("2006-01-02"))
	assert.Equal(t, 10.0, items.lastEntry.InputUsed)
	assert.Equal(t, 0.0, items.lastEntry.OutputCount)

	w = doRequest(t, router, http.MethodPost, "/api/v1/items/item-1/entries", testToken, map[string]any{
		"entry_date": "14/03/2026", "input_used": 10,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	msg := decodeEnvelope(t, w).Message
	assert.Contains(t, msg, "entry_date must match 2006-01-02")
	assert.Contains(t, msg, "output_count is required")

	w = doRequest(t, router, http.MethodPost, "/api/v1/items/item-1/entries", testToken, map[string]any{
		"input_used": -1, "output_count": 2,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "input_used must be >= 0", decodeEnvelope(t, w).Message)
}

func TestItemHandler_LockedBaselineConflict(t *testing.T) {
	router, _ := newTestRouter(t)
	router.RegisterItemRoutes(NewItemHandler(&stubItemService{updateErr: service.ErrBaselineLocked}, zap.NewNop()))

	w := doRequest(t, router, http.MethodPut, "/api/v1/items/item-1", testToken, map[string]any{
		"name": "Flour", "unit": "kg", "baseline_input": 5,
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Baseline is locked", decodeEnvelope(t, w).Message)

	w = doRequest(t, router, http.MethodGet, "/api/v1/locations/loc-1/unknown", testToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_Instrument(t *testing.T) {
	router, metrics := newTestRouter(t)
	router.RegisterUserRoutes(NewUserHandler(&stubUserService{}, zap.NewNop()))

	doRequest(t, router, http.MethodDelete, "/api/v1/users/u-1", testToken, nil)
	doRequest(t, router, http.MethodDelete, "/api/v1/users/u-2", "", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/api/v1/users/", http.MethodDelete, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/api/v1/users/", http.MethodDelete, "401")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.RequestDuration))

	metrics.ObserveDecision("user.create", policy.Outcome(nil))
	metrics.ObserveDecision("user.create", policy.Outcome(&policy.Denial{Kind: policy.ErrOutOfScope}))
	metrics.ObserveDecision("user.create", "allow")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PolicyDecisions.WithLabelValues("user.create", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PolicyDecisions.WithLabelValues("user.create", "out_of_scope")))
}
