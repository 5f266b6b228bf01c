package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/repository"
)

const (
	profileKeyPrefix     = "yield:profile:"
	assignmentsKeyPrefix = "yield:assignments:"
)

// CachedProfiles fronts a ProfilesRepository with a KV cache for the
// per-request lookups (profile and assigned locations). Misses and cache
// errors fall through to the repository; "not found" is never cached.
type CachedProfiles struct {
	repository.ProfilesRepository
	kv     KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProfiles(inner repository.ProfilesRepository, kv KV, ttl time.Duration, logger *zap.Logger) *CachedProfiles {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProfiles{ProfilesRepository: inner, kv: kv, ttl: ttl, logger: logger}
}

var _ repository.ProfilesRepository = (*CachedProfiles)(nil)

type cachedProfile struct {
	UserID     string      `json:"user_id"`
	Email      string      `json:"email,omitempty"`
	FullName   string      `json:"full_name,omitempty"`
	Role       domain.Role `json:"role"`
	LocationID string      `json:"location_id,omitempty"`
	RegionID   string      `json:"region_id,omitempty"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
}

func toCached(p *domain.Profile) cachedProfile {
	return cachedProfile{
		UserID: p.UserID, Email: p.Email.String, FullName: p.FullName.String, Role: p.Role,
		LocationID: p.LocationID.String, RegionID: p.RegionID.String, IsActive: p.IsActive, CreatedAt: p.CreatedAt,
	}
}

func (c cachedProfile) profile() *domain.Profile {
	ns := func(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }
	return &domain.Profile{
		UserID: c.UserID, Email: ns(c.Email), FullName: ns(c.FullName), Role: c.Role,
		LocationID: ns(c.LocationID), RegionID: ns(c.RegionID), IsActive: c.IsActive, CreatedAt: c.CreatedAt,
	}
}

func (c *CachedProfiles) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	key := profileKeyPrefix + userID
	if raw, err := c.kv.Get(ctx, key); err == nil {
		var cp cachedProfile
		if err := json.Unmarshal([]byte(raw), &cp); err == nil && cp.Role.Valid() {
			return cp.profile(), nil
		}
	} else if !errors.Is(err, ErrMiss) {
		c.logger.Warn("profile cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	p, err := c.ProfilesRepository.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(toCached(p)); err == nil {
		if err := c.kv.Set(ctx, key, string(b), c.ttl); err != nil {
			c.logger.Warn("profile cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return p, nil
}

func (c *CachedProfiles) AssignedLocationIDs(ctx context.Context, userID string) ([]string, error) {
	key := assignmentsKeyPrefix + userID
	if raw, err := c.kv.Get(ctx, key); err == nil {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			return ids, nil
		}
	} else if !errors.Is(err, ErrMiss) {
		c.logger.Warn("assignment cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	ids, err := c.ProfilesRepository.AssignedLocationIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(ids); err == nil {
		_ = c.kv.Set(ctx, key, string(b), c.ttl)
	}
	return ids, nil
}

func (c *CachedProfiles) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	if err := c.ProfilesRepository.UpsertProfile(ctx, p); err != nil {
		return err
	}
	c.Invalidate(ctx, p.UserID)
	return nil
}

func (c *CachedProfiles) DeactivateProfile(ctx context.Context, userID string) (bool, error) {
	changed, err := c.ProfilesRepository.DeactivateProfile(ctx, userID)
	if err != nil {
		return false, err
	}
	c.Invalidate(ctx, userID)
	return changed, nil
}

// Invalidate drops every cached entry for userID.
func (c *CachedProfiles) Invalidate(ctx context.Context, userID string) {
	if err := c.kv.Del(ctx, profileKeyPrefix+userID, assignmentsKeyPrefix+userID); err != nil {
		c.logger.Warn("profile cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
