package domain

import (
	"database/sql"
	"time"
)

// Profile maps the profiles table joined with employees.
type Profile struct {
	UserID     string         `db:"user_id"`
	Email      sql.NullString `db:"email"`
	FullName   sql.NullString `db:"full_name"`
	Role       Role           `db:"role"`
	LocationID sql.NullString `db:"location_id"`
	RegionID   sql.NullString `db:"region_id"`
	IsActive   bool           `db:"is_active"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (p *Profile) Actor() Actor {
	return Actor{
		ID:         p.UserID,
		Email:      p.Email.String,
		Role:       p.Role,
		LocationID: p.LocationID.String,
		RegionID:   p.RegionID.String,
	}
}

func (p *Profile) Target() TargetUser {
	return TargetUser{
		ID:         p.UserID,
		Role:       p.Role,
		LocationID: p.LocationID.String,
		RegionID:   p.RegionID.String,
	}
}
