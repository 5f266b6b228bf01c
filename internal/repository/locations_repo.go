package repository

import (
	"context"

	"yield/internal/domain"
)

// LocationsRepository is the location directory: the site -> vehicle_type ->
// vehicle_unit tree with each node's effective region resolved.
type LocationsRepository interface {
	GetLocation(ctx context.Context, id string) (*domain.Location, error)
	ListLocations(ctx context.Context, filter LocationFilter) ([]*domain.Location, error)
	CreateSite(ctx context.Context, name, regionID string) (*domain.Location, error)
	RenameSite(ctx context.Context, id, name string) error
	// DeactivateSite reports false when the site was already inactive.
	DeactivateSite(ctx context.Context, id string) (bool, error)
	// CreateNextVehicleUnit creates the vehicle_type under siteID when missing
	// and appends a unit with the next sequence number.
	CreateNextVehicleUnit(ctx context.Context, siteID, typeName string) (*domain.Location, error)
	// SetOperationalStatus moves a unit to status and, when alert is non-nil,
	// inserts the alert in the same transaction. It returns ErrConflict when
	// the unit already had status.
	SetOperationalStatus(ctx context.Context, unitID string, status domain.OperationalStatus, note, actorID string, alert *domain.Alert) error
}

// LocationFilter restricts ListLocations; zero fields do not filter.
type LocationFilter struct {
	Kind     domain.LocationKind
	ParentID string
	RegionID string // effective region
	IDs      []string
}
