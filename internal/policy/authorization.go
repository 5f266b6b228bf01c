// Package policy holds the pure decision rules of the dashboard: who may do
// what to whom, and how a production entry is classified against its baseline.
//
// Every function takes an explicit domain.Actor. Nothing here performs I/O;
// callers resolve locations and regions before asking.
package policy

import (
	"slices"

	"yield/internal/domain"
)

// ============================================
// Create user
// ============================================

// CreateUserInput describes a requested account creation.
// TargetLocation is the resolved form of TargetLocationID, or nil when the id
// was empty or did not resolve.
type CreateUserInput struct {
	TargetRole       domain.Role
	TargetLocationID string
	TargetLocation   *domain.LocationRef
	TargetRegionID   string
}

// CreateUserGrant is the constrained parameter set the new user is stamped with.
type CreateUserGrant struct {
	Role       domain.Role
	LocationID string
	RegionID   string
}

// AuthorizeCreateUser decides whether actor may create a user with the given
// role and scope, and returns the scope the new profile must carry.
func AuthorizeCreateUser(actor domain.Actor, in CreateUserInput) (CreateUserGrant, error) {
	if !in.TargetRole.Valid() {
		return CreateUserGrant{}, deny(ErrInvalidTarget, "Invalid role")
	}
	if in.TargetRole == domain.RoleMasterAdmin {
		return CreateUserGrant{}, deny(ErrForbidden, "Creating master admin is not allowed in app. Assign master admin out of band.")
	}

	switch actor.Role {
	case domain.RoleLocalAdmin:
		return createByLocalAdmin(actor, in)
	case domain.RoleRegionalAdmin:
		return createByRegionalAdmin(actor, in)
	case domain.RoleMasterAdmin:
		return createByMasterAdmin(in)
	default:
		return CreateUserGrant{}, deny(ErrForbidden, "Access denied")
	}
}

func createByLocalAdmin(actor domain.Actor, in CreateUserInput) (CreateUserGrant, error) {
	if in.TargetRole != domain.RoleEmployee {
		return CreateUserGrant{}, deny(ErrForbidden, "Local admin can only create employees")
	}
	if actor.LocationID == "" {
		return CreateUserGrant{}, deny(ErrInvalidActorState, "Requester missing location_id")
	}
	if in.TargetLocationID != actor.LocationID {
		return CreateUserGrant{}, deny(ErrForbidden, "Local admin must assign their own location")
	}

	region := actor.RegionID
	if in.TargetLocation != nil && in.TargetLocation.ID == actor.LocationID && in.TargetLocation.RegionID != "" {
		region = in.TargetLocation.RegionID
	}
	return CreateUserGrant{Role: in.TargetRole, LocationID: actor.LocationID, RegionID: region}, nil
}

func createByRegionalAdmin(actor domain.Actor, in CreateUserInput) (CreateUserGrant, error) {
	if in.TargetRole != domain.RoleEmployee && in.TargetRole != domain.RoleLocalAdmin {
		return CreateUserGrant{}, deny(ErrForbidden, "Regional admin cannot create regional admins")
	}
	if actor.RegionID == "" {
		return CreateUserGrant{}, deny(ErrInvalidActorState, "Requester missing region_id")
	}
	loc, err := requireLocation(in)
	if err != nil {
		return CreateUserGrant{}, err
	}
	if loc.RegionID != actor.RegionID {
		return CreateUserGrant{}, deny(ErrOutOfScope, "Location not in your region")
	}
	if in.TargetRegionID != "" && in.TargetRegionID != actor.RegionID {
		return CreateUserGrant{}, deny(ErrOutOfScope, "Region is outside your scope")
	}
	return CreateUserGrant{Role: in.TargetRole, LocationID: loc.ID, RegionID: actor.RegionID}, nil
}

func createByMasterAdmin(in CreateUserInput) (CreateUserGrant, error) {
	grant := CreateUserGrant{Role: in.TargetRole, RegionID: in.TargetRegionID}

	switch in.TargetRole {
	case domain.RoleEmployee, domain.RoleLocalAdmin:
		loc, err := requireLocation(in)
		if err != nil {
			return CreateUserGrant{}, err
		}
		grant.LocationID = loc.ID
		if grant.RegionID == "" {
			grant.RegionID = loc.RegionID
		}
	case domain.RoleRegionalAdmin:
		if in.TargetRegionID == "" {
			return CreateUserGrant{}, deny(ErrInvalidTarget, "Region required for regional admin")
		}
		if in.TargetLocationID != "" {
			if in.TargetLocation == nil {
				return CreateUserGrant{}, deny(ErrInvalidTarget, "Location not found")
			}
			grant.LocationID = in.TargetLocation.ID
		}
	}
	return grant, nil
}

func requireLocation(in CreateUserInput) (domain.LocationRef, error) {
	if in.TargetLocationID == "" {
		return domain.LocationRef{}, deny(ErrInvalidTarget, "Location required for this role")
	}
	if in.TargetLocation == nil {
		return domain.LocationRef{}, deny(ErrInvalidTarget, "Location not found")
	}
	return *in.TargetLocation, nil
}

// ============================================
// Deactivate / list users
// ============================================

// AuthorizeDeactivateUser decides whether actor may deactivate target.
// The caller resolves target.RegionID through its location when the profile carries none.
func AuthorizeDeactivateUser(actor domain.Actor, target domain.TargetUser) error {
	switch actor.Role {
	case domain.RoleRegionalAdmin, domain.RoleMasterAdmin:
	default:
		return deny(ErrForbidden, "Not allowed to deactivate users")
	}
	if target.Role == domain.RoleMasterAdmin {
		return deny(ErrForbidden, "master_admin cannot be deactivated")
	}
	if target.ID == actor.ID {
		return deny(ErrForbidden, "You cannot deactivate yourself")
	}
	if actor.Role == domain.RoleRegionalAdmin {
		if actor.RegionID == "" {
			return deny(ErrInvalidActorState, "Requester missing region_id")
		}
		if target.RegionID != actor.RegionID {
			return deny(ErrOutOfScope, "User is outside your region")
		}
	}
	return nil
}

// UserScope is the filter applied to the user list.
// All wins; otherwise LocationID or RegionID is set. A region filter also
// matches users whose location lies in that region.
type UserScope struct {
	All        bool
	LocationID string
	RegionID   string
}

func UserListScope(actor domain.Actor) (UserScope, error) {
	switch actor.Role {
	case domain.RoleMasterAdmin:
		return UserScope{All: true}, nil
	case domain.RoleRegionalAdmin:
		if actor.RegionID == "" {
			return UserScope{}, deny(ErrInvalidActorState, "Requester missing region_id")
		}
		return UserScope{RegionID: actor.RegionID}, nil
	case domain.RoleLocalAdmin:
		if actor.LocationID == "" {
			return UserScope{}, deny(ErrInvalidActorState, "Requester missing location_id")
		}
		return UserScope{LocationID: actor.LocationID}, nil
	default:
		return UserScope{}, deny(ErrForbidden, "Not allowed to list users")
	}
}

// ============================================
// Alerts, vehicles, audit
// ============================================

func CanViewAlerts(actor domain.Actor) error {
	if !actor.Role.AtLeast(domain.RoleRegionalAdmin) {
		return deny(ErrForbidden, "Alerts are visible to regional and master admins only")
	}
	return nil
}

// AckDecision.NoOp is set when the alert is already acknowledged.
type AckDecision struct {
	NoOp bool
}

func AuthorizeAcknowledge(actor domain.Actor, alert *domain.Alert) (AckDecision, error) {
	if err := CanViewAlerts(actor); err != nil {
		return AckDecision{}, err
	}
	if alert == nil {
		return AckDecision{}, deny(ErrInvalidTarget, "Alert not found")
	}
	return AckDecision{NoOp: alert.Status == domain.AlertAcknowledged}, nil
}

// VehicleStatusDecision tells the caller what to do after an allowed change.
// RaiseAlert obliges the caller to emit exactly one open alert for the unit.
type VehicleStatusDecision struct {
	NoOp       bool
	RaiseAlert bool
}

func AuthorizeVehicleStatusChange(actor domain.Actor, unit domain.VehicleUnit, next domain.OperationalStatus) (VehicleStatusDecision, error) {
	if !actor.Role.AtLeast(domain.RoleRegionalAdmin) {
		return VehicleStatusDecision{}, deny(ErrForbidden, "Only regional or master admins can change vehicle status")
	}
	if _, err := domain.ParseOperationalStatus(string(next)); err != nil {
		return VehicleStatusDecision{}, deny(ErrInvalidTarget, "Invalid status")
	}
	if actor.Role == domain.RoleRegionalAdmin {
		if actor.RegionID == "" {
			return VehicleStatusDecision{}, deny(ErrInvalidActorState, "Requester missing region_id")
		}
		if unit.RegionID != actor.RegionID {
			return VehicleStatusDecision{}, deny(ErrOutOfScope, "Vehicle is outside your region")
		}
	}
	if unit.Status == next {
		return VehicleStatusDecision{NoOp: true}, nil
	}
	return VehicleStatusDecision{RaiseAlert: next == domain.StatusOutOfCommission}, nil
}

// AuthorizeSiteChange gates creating, renaming and deactivating sites. For a
// new site, site carries the requested region.
func AuthorizeSiteChange(actor domain.Actor, site domain.LocationRef) error {
	switch actor.Role {
	case domain.RoleMasterAdmin:
		return nil
	case domain.RoleRegionalAdmin:
		if actor.RegionID == "" {
			return deny(ErrInvalidActorState, "Requester missing region_id")
		}
		if site.RegionID != actor.RegionID {
			return deny(ErrOutOfScope, "Site is outside your region")
		}
		return nil
	default:
		return deny(ErrForbidden, "Only regional or master admins can manage sites")
	}
}

func CanReadAudit(actor domain.Actor) error {
	if actor.Role != domain.RoleMasterAdmin {
		return deny(ErrForbidden, "Audit log is restricted to master admins")
	}
	return nil
}

// ============================================
// Location scoping
// ============================================

// LocationAccess decides whether actor may read or write data belonging to loc.
// assigned lists the actor's employee_location_assignments.
func LocationAccess(actor domain.Actor, loc domain.LocationRef, assigned []string) error {
	switch actor.Role {
	case domain.RoleMasterAdmin:
		return nil
	case domain.RoleRegionalAdmin:
		if actor.RegionID == "" {
			return deny(ErrInvalidActorState, "Requester missing region_id")
		}
		if loc.RegionID != actor.RegionID {
			return deny(ErrOutOfScope, "Location not in your region")
		}
		return nil
	case domain.RoleLocalAdmin, domain.RoleEmployee:
		if (actor.LocationID != "" && loc.ID == actor.LocationID) || slices.Contains(assigned, loc.ID) {
			return nil
		}
		return deny(ErrOutOfScope, "Location is outside your assignments")
	default:
		return deny(ErrForbidden, "Not allowed")
	}
}

// CanManageLocation is LocationAccess restricted to admin roles; it gates
// configuration changes such as tracked items, calibration and training.
func CanManageLocation(actor domain.Actor, loc domain.LocationRef, assigned []string) error {
	if !actor.Role.IsAdmin() {
		return deny(ErrForbidden, "Admin role required")
	}
	return LocationAccess(actor, loc, assigned)
}
