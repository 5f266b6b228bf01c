package domain

// Actor is the authenticated caller with its resolved scope.
// Empty LocationID / RegionID mean "not set".
type Actor struct {
	ID         string `json:"id"`
	Email      string `json:"email,omitempty"`
	Role       Role   `json:"role"`
	LocationID string `json:"location_id,omitempty"`
	RegionID   string `json:"region_id,omitempty"`
}

// TargetUser is the subject of a deactivate decision.
type TargetUser struct {
	ID         string
	Role       Role
	LocationID string
	RegionID   string
}

// LocationRef is a location whose effective region has already been resolved
// through the parent chain.
type LocationRef struct {
	ID       string
	RegionID string
}
