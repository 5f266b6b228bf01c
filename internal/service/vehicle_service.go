package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/notify"
	"yield/internal/policy"
	"yield/internal/repository"
)

// VehicleService manages the site -> vehicle type -> vehicle unit tree and unit status.
type VehicleService interface {
	ListSites(ctx context.Context, actor domain.Actor) ([]*LocationDTO, error)
	CreateSite(ctx context.Context, actor domain.Actor, req SiteRequest) (*LocationDTO, error)
	RenameSite(ctx context.Context, actor domain.Actor, siteID, name string) (*LocationDTO, error)
	// DeactivateSite keeps the site and its history but marks it inactive.
	DeactivateSite(ctx context.Context, actor domain.Actor, siteID string) (*DeactivateSiteResponse, error)
	ListVehicleTypes(ctx context.Context, actor domain.Actor, siteID string) ([]*LocationDTO, error)
	ListVehicleUnits(ctx context.Context, actor domain.Actor, typeID string) ([]*LocationDTO, error)
	CreateNextVehicleUnit(ctx context.Context, actor domain.Actor, siteID, typeName string) (*LocationDTO, error)
	SetVehicleStatus(ctx context.Context, actor domain.Actor, req SetVehicleStatusRequest) (*SetVehicleStatusResponse, error)
}

type vehicleService struct {
	locations repository.LocationsRepository
	scope     *scope
	alerts    AlertService
	publisher notify.Publisher
	audit     *auditor
	logger    *zap.Logger
}

func NewVehicleService(
	locations repository.LocationsRepository,
	profiles repository.ProfilesRepository,
	alerts AlertService,
	audit repository.AuditRepository,
	publisher notify.Publisher,
	decisions DecisionObserver,
	logger *zap.Logger,
) VehicleService {
	return &vehicleService{
		locations: locations,
		scope:     &scope{locations: locations, profiles: profiles},
		alerts:    alerts,
		publisher: publisherOrNop(publisher),
		audit:     newAuditor(audit, decisions, logger),
		logger:    logger,
	}
}

// ============================================
// Request/Response DTOs
// ============================================

type LocationDTO struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	Kind              domain.LocationKind      `json:"kind"`
	ParentID          *string                  `json:"parent_id"`
	RegionID          string                   `json:"region_id,omitempty"`
	Active            bool                     `json:"active"`
	SequenceNumber    *int64                   `json:"sequence_number,omitempty"`
	OperationalStatus domain.OperationalStatus `json:"operational_status,omitempty"`
	StatusNote        *string                  `json:"status_note,omitempty"`
	StatusChangedAt   *time.Time               `json:"status_changed_at,omitempty"`
}

func toLocationDTO(l *domain.Location) *LocationDTO {
	dto := &LocationDTO{
		ID:       l.ID,
		Name:     l.Name,
		Kind:     l.Kind,
		ParentID: strPtr(l.ParentID),
		RegionID: l.Ref().RegionID,
		Active:   l.Active,
	}
	if l.Kind == domain.LocationVehicleUnit {
		dto.OperationalStatus = l.OperationalStatus
		dto.StatusNote = strPtr(l.StatusNote)
		if l.StatusChangedAt.Valid {
			t := l.StatusChangedAt.Time
			dto.StatusChangedAt = &t
		}
	}
	if l.SequenceNumber.Valid {
		n := l.SequenceNumber.Int64
		dto.SequenceNumber = &n
	}
	return dto
}

func toLocationDTOs(locs []*domain.Location) []*LocationDTO {
	out := make([]*LocationDTO, 0, len(locs))
	for _, l := range locs {
		out = append(out, toLocationDTO(l))
	}
	return out
}

// SiteRequest creates a site. RegionID defaults to a regional admin's own region.
type SiteRequest struct {
	Name     string
	RegionID string
}

type DeactivateSiteResponse struct {
	Site            *LocationDTO `json:"site"`
	AlreadyInactive bool         `json:"already_inactive"`
}

type SetVehicleStatusRequest struct {
	UnitID string
	Status string
	Note   string
}

type SetVehicleStatusResponse struct {
	Unit  *LocationDTO `json:"unit"`
	Alert *AlertDTO    `json:"alert,omitempty"`
	// Unchanged is set when the unit already had the requested status.
	Unchanged bool `json:"unchanged"`
}

// ============================================
// Operations
// ============================================

func (s *vehicleService) ListSites(ctx context.Context, actor domain.Actor) ([]*LocationDTO, error) {
	filter := repository.LocationFilter{Kind: domain.LocationSite}
	switch actor.Role {
	case domain.RoleMasterAdmin:
	case domain.RoleRegionalAdmin:
		if actor.RegionID == "" {
			return nil, &policy.Denial{Kind: policy.ErrInvalidActorState, Reason: "Requester missing region_id"}
		}
		filter.RegionID = actor.RegionID
	default:
		ids, err := s.scope.visibleSiteIDs(ctx, actor)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []*LocationDTO{}, nil
		}
		filter.IDs = ids
	}
	sites, err := s.locations.ListLocations(ctx, filter)
	if err != nil {
		return nil, err
	}
	return toLocationDTOs(sites), nil
}

func (s *vehicleService) CreateSite(ctx context.Context, actor domain.Actor, req SiteRequest) (_ *LocationDTO, err error) {
	entry := s.audit.begin(actor, "site.create", domain.AuditInsert)
	defer func() { s.audit.finish(ctx, entry, err) }()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("Site name required")
	}
	entry.meta["name"] = name
	region := strings.TrimSpace(req.RegionID)
	if region == "" && actor.Role == domain.RoleRegionalAdmin {
		region = actor.RegionID
	}
	entry.meta["region_id"] = region

	if err := policy.AuthorizeSiteChange(actor, domain.LocationRef{RegionID: region}); err != nil {
		return nil, err
	}
	site, err := s.locations.CreateSite(ctx, name, region)
	if err != nil {
		return nil, err
	}
	entry.targetID = site.ID
	entry.locationID = site.ID
	s.logger.Info("site created",
		zap.String("site_id", site.ID),
		zap.String("region_id", region),
		zap.String("actor_id", actor.ID),
	)
	return toLocationDTO(site), nil
}

// managedSite loads siteID and checks actor may change it.
func (s *vehicleService) managedSite(ctx context.Context, actor domain.Actor, siteID string, entry *auditEntry) (*domain.Location, error) {
	site, err := s.locations.GetLocation(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site.Kind != domain.LocationSite {
		return nil, invalid("Location is not a site")
	}
	entry.locationID = site.ID
	if err := policy.AuthorizeSiteChange(actor, site.Ref()); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *vehicleService) RenameSite(ctx context.Context, actor domain.Actor, siteID, name string) (_ *LocationDTO, err error) {
	entry := s.audit.begin(actor, "site.update", domain.AuditUpdate)
	entry.targetID = siteID
	defer func() { s.audit.finish(ctx, entry, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("Site name required")
	}
	site, err := s.managedSite(ctx, actor, siteID, entry)
	if err != nil {
		return nil, err
	}
	entry.meta["previous"] = site.Name
	entry.meta["name"] = name
	if site.Name == name {
		entry.meta["noop"] = true
		return toLocationDTO(site), nil
	}
	if err := s.locations.RenameSite(ctx, site.ID, name); err != nil {
		return nil, err
	}
	site.Name = name
	return toLocationDTO(site), nil
}

func (s *vehicleService) DeactivateSite(ctx context.Context, actor domain.Actor, siteID string) (_ *DeactivateSiteResponse, err error) {
	entry := s.audit.begin(actor, "site.deactivate", domain.AuditUpdate)
	entry.targetID = siteID
	defer func() { s.audit.finish(ctx, entry, err) }()

	site, err := s.managedSite(ctx, actor, siteID, entry)
	if err != nil {
		return nil, err
	}
	changed, err := s.locations.DeactivateSite(ctx, site.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		entry.meta["noop"] = true
	}
	site.Active = false
	return &DeactivateSiteResponse{Site: toLocationDTO(site), AlreadyInactive: !changed}, nil
}

func (s *vehicleService) ListVehicleTypes(ctx context.Context, actor domain.Actor, siteID string) ([]*LocationDTO, error) {
	site, err := s.scope.access(ctx, actor, siteID, false)
	if err != nil {
		return nil, err
	}
	if site.Kind != domain.LocationSite {
		return nil, invalid("Location is not a site")
	}
	types, err := s.locations.ListLocations(ctx, repository.LocationFilter{Kind: domain.LocationVehicleType, ParentID: site.ID})
	if err != nil {
		return nil, err
	}
	return toLocationDTOs(types), nil
}

func (s *vehicleService) ListVehicleUnits(ctx context.Context, actor domain.Actor, typeID string) ([]*LocationDTO, error) {
	vt, err := s.scope.access(ctx, actor, typeID, false)
	if err != nil {
		return nil, err
	}
	if vt.Kind != domain.LocationVehicleType {
		return nil, invalid("Location is not a vehicle type")
	}
	units, err := s.locations.ListLocations(ctx, repository.LocationFilter{Kind: domain.LocationVehicleUnit, ParentID: vt.ID})
	if err != nil {
		return nil, err
	}
	return toLocationDTOs(units), nil
}

func (s *vehicleService) CreateNextVehicleUnit(ctx context.Context, actor domain.Actor, siteID, typeName string) (_ *LocationDTO, err error) {
	entry := s.audit.begin(actor, "vehicle.create_unit", domain.AuditInsert)
	entry.locationID = siteID
	defer func() { s.audit.finish(ctx, entry, err) }()

	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return nil, invalid("Vehicle type name required")
	}
	entry.meta["type_name"] = typeName

	site, err := s.scope.access(ctx, actor, siteID, true)
	if err != nil {
		return nil, err
	}
	if site.Kind != domain.LocationSite {
		return nil, invalid("Location is not a site")
	}

	unit, err := s.locations.CreateNextVehicleUnit(ctx, site.ID, typeName)
	if err != nil {
		return nil, err
	}
	entry.targetID = unit.ID
	entry.meta["name"] = unit.Name
	return toLocationDTO(unit), nil
}

func (s *vehicleService) SetVehicleStatus(ctx context.Context, actor domain.Actor, req SetVehicleStatusRequest) (_ *SetVehicleStatusResponse, err error) {
	entry := s.audit.begin(actor, "vehicle.set_status", domain.AuditUpdate)
	entry.targetID = req.UnitID
	entry.meta["status"] = req.Status
	defer func() { s.audit.finish(ctx, entry, err) }()

	unit, err := s.locations.GetLocation(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	if unit.Kind != domain.LocationVehicleUnit {
		return nil, invalid("Location is not a vehicle unit")
	}
	site, err := s.scope.site(ctx, unit)
	if err != nil {
		return nil, err
	}
	entry.locationID = site.ID

	decision, err := policy.AuthorizeVehicleStatusChange(actor, domain.VehicleUnit{
		ID:       unit.ID,
		RegionID: unit.Ref().RegionID,
		SiteID:   site.ID,
		Status:   unit.OperationalStatus,
	}, domain.OperationalStatus(req.Status))
	if err != nil {
		return nil, err
	}
	if decision.NoOp {
		entry.meta["noop"] = true
		return &SetVehicleStatusResponse{Unit: toLocationDTO(unit), Unchanged: true}, nil
	}

	next := domain.OperationalStatus(req.Status)
	note := strings.TrimSpace(req.Note)
	var alert *domain.Alert
	if decision.RaiseAlert {
		if alert, err = s.alerts.VehicleAlert(actor, unit, site.ID, note); err != nil {
			return nil, err
		}
	}
	if err := s.locations.SetOperationalStatus(ctx, unit.ID, next, note, actor.ID, alert); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		// another request set the same status first
		entry.meta["noop"] = true
		current, gerr := s.locations.GetLocation(ctx, unit.ID)
		if gerr != nil {
			return nil, gerr
		}
		return &SetVehicleStatusResponse{Unit: toLocationDTO(current), Unchanged: true}, nil
	}
	prev := unit.OperationalStatus
	unit.OperationalStatus = next
	unit.StatusNote = nullString(note)
	unit.StatusChangedAt.Time, unit.StatusChangedAt.Valid = time.Now().UTC(), true
	unit.StatusChangedBy = nullString(actor.ID)
	entry.meta["previous"] = string(prev)

	resp := &SetVehicleStatusResponse{Unit: toLocationDTO(unit)}
	if alert != nil {
		resp.Alert = s.alerts.Announce(ctx, actor, alert)
		entry.meta["alert_id"] = alert.ID
	}

	_ = s.publisher.Publish(ctx, notify.Event{
		Kind:       notify.KindVehicleStatus,
		Subject:    unit.ID,
		ActorID:    actor.ID,
		OccurredAt: unit.StatusChangedAt.Time,
		Data: map[string]any{
			"status":   string(next),
			"previous": string(prev),
			"site_id":  site.ID,
			"note":     note,
		},
	})
	return resp, nil
}
