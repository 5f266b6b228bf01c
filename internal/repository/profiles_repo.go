package repository

import (
	"context"

	"yield/internal/domain"
)

// ProfilesRepository reads and writes user profiles and their employee rows.
type ProfilesRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	ListProfiles(ctx context.Context, filter ProfileFilter, limit int) ([]*domain.Profile, error)
	UpsertProfile(ctx context.Context, p *domain.Profile) error
	// DeactivateProfile marks the employee inactive and removes its location
	// assignments. changed is false when the user was already inactive.
	DeactivateProfile(ctx context.Context, userID string) (changed bool, err error)
	AssignedLocationIDs(ctx context.Context, userID string) ([]string, error)
}

// ProfileFilter restricts ListProfiles. All wins; RegionID matches both
// region-stamped users and users whose location lies in the region.
type ProfileFilter struct {
	All        bool
	LocationID string
	RegionID   string
}

const MaxUserListLimit = 500
