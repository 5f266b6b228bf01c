package domain

import (
	"database/sql"
	"fmt"
	"time"
)

// LocationKind places a location in the site -> vehicle_type -> vehicle_unit tree.
type LocationKind string

const (
	LocationSite        LocationKind = "site"
	LocationVehicleType LocationKind = "vehicle_type"
	LocationVehicleUnit LocationKind = "vehicle_unit"
)

// OperationalStatus applies to vehicle units only.
type OperationalStatus string

const (
	StatusInService       OperationalStatus = "in_service"
	StatusOutOfCommission OperationalStatus = "out_of_commission"
)

func ParseOperationalStatus(s string) (OperationalStatus, error) {
	switch OperationalStatus(s) {
	case StatusInService, StatusOutOfCommission:
		return OperationalStatus(s), nil
	}
	return "", fmt.Errorf("unknown operational status %q", s)
}

// Location maps the locations table.
type Location struct {
	ID                string            `db:"id"`
	Name              string            `db:"name"`
	RegionID          sql.NullString    `db:"region_id"`
	ParentID          sql.NullString    `db:"parent_id"`
	Kind              LocationKind      `db:"kind"`
	Active            bool              `db:"active"`
	SequenceNumber    sql.NullInt64     `db:"sequence_number"`
	OperationalStatus OperationalStatus `db:"operational_status"` // vehicle units only
	StatusNote        sql.NullString    `db:"status_note"`
	StatusChangedAt   sql.NullTime      `db:"status_changed_at"`
	StatusChangedBy   sql.NullString    `db:"status_changed_by"`
	CreatedAt         time.Time         `db:"created_at"`

	// ResolvedRegionID is the region inherited through the parent chain. Not a column.
	ResolvedRegionID string `db:"-"`
}

func (l *Location) Ref() LocationRef {
	region := l.ResolvedRegionID
	if region == "" {
		region = l.RegionID.String
	}
	return LocationRef{ID: l.ID, RegionID: region}
}

// VehicleUnit is the policy view of a vehicle_unit location.
type VehicleUnit struct {
	ID       string
	RegionID string
	SiteID   string
	Status   OperationalStatus
}
