package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/repository"
)

// fakeKV is an in-memory KV with TTL, for unit tests only.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]fakeKVItem
}

type fakeKVItem struct {
	value   string
	expires time.Time
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string]fakeKVItem)} }

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.data[key]
	if !ok {
		return "", ErrMiss
	}
	if !item.expires.IsZero() && time.Now().After(item.expires) {
		delete(f.data, key)
		return "", ErrMiss
	}
	return item.value, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	f.data[key] = fakeKVItem{value: value, expires: exp}
	return nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

type countingProfiles struct {
	repository.ProfilesRepository
	profiles map[string]*domain.Profile
	gets     int
	assigns  int
}

func (c *countingProfiles) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	c.gets++
	p, ok := c.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (c *countingProfiles) AssignedLocationIDs(ctx context.Context, userID string) ([]string, error) {
	c.assigns++
	return []string{"loc-1"}, nil
}

func (c *countingProfiles) DeactivateProfile(ctx context.Context, userID string) (bool, error) {
	return true, nil
}

func TestCachedProfiles_HitsCacheAfterFirstLoad(t *testing.T) {
	inner := &countingProfiles{profiles: map[string]*domain.Profile{
		"u-1": {
			UserID:   "u-1",
			Role:     domain.RoleRegionalAdmin,
			RegionID: sql.NullString{String: "reg-1", Valid: true},
			Email:    sql.NullString{String: "r@example.com", Valid: true},
			IsActive: true,
		},
	}}
	c := NewCachedProfiles(inner, newFakeKV(), time.Minute, zap.NewNop())
	ctx := context.Background()

	p, err := c.GetProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleRegionalAdmin, p.Role)

	p, err = c.GetProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.gets)
	assert.Equal(t, "reg-1", p.RegionID.String)
	assert.False(t, p.LocationID.Valid)
	assert.Equal(t, "r@example.com", p.Actor().Email)
}

func TestCachedProfiles_NotFoundIsNotCached(t *testing.T) {
	inner := &countingProfiles{profiles: map[string]*domain.Profile{}}
	c := NewCachedProfiles(inner, newFakeKV(), time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := c.GetProfile(context.Background(), "ghost")
		assert.True(t, errors.Is(err, repository.ErrNotFound))
	}
	assert.Equal(t, 2, inner.gets)
}

func TestCachedProfiles_DeactivateInvalidates(t *testing.T) {
	inner := &countingProfiles{profiles: map[string]*domain.Profile{
		"u-1": {UserID: "u-1", Role: domain.RoleEmployee, IsActive: true},
	}}
	c := NewCachedProfiles(inner, newFakeKV(), time.Minute, nil)
	ctx := context.Background()

	_, _ = c.GetProfile(ctx, "u-1")
	_, _ = c.AssignedLocationIDs(ctx, "u-1")
	_, _ = c.AssignedLocationIDs(ctx, "u-1")
	assert.Equal(t, 1, inner.assigns)

	changed, err := c.DeactivateProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, changed)

	_, _ = c.GetProfile(ctx, "u-1")
	_, _ = c.AssignedLocationIDs(ctx, "u-1")
	assert.Equal(t, 2, inner.gets)
	assert.Equal(t, 2, inner.assigns)
}

func TestCachedProfiles_CorruptEntryFallsThrough(t *testing.T) {
	kv := newFakeKV()
	_ = kv.Set(context.Background(), profileKeyPrefix+"u-1", "{not json", 0)
	inner := &countingProfiles{profiles: map[string]*domain.Profile{
		"u-1": {UserID: "u-1", Role: domain.RoleMasterAdmin},
	}}
	c := NewCachedProfiles(inner, kv, time.Minute, nil)

	p, err := c.GetProfile(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMasterAdmin, p.Role)
	assert.Equal(t, 1, inner.gets)
}
