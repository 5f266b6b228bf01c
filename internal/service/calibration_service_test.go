package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yield/internal/policy"
)

func newTestCalibrationService(w *world) CalibrationService {
	return NewCalibrationService(w.calibration, w.items, w.locations, w.profiles, w.audit, w.decisions, zap.NewNop())
}

func TestCalibrationService_CreateAndCheck(t *testing.T) {
	w := newWorld()
	w.addItem("sugar", "site-a", 100, 50)
	w.addItem("salt", "site-b", 100, 50)
	svc := newTestCalibrationService(w)
	ctx := context.Background()

	c, err := svc.CreateStandard(ctx, local, CalibrationRequest{
		LocationID: "site-a", TrackedItemID: "sugar", MinValue: 1, TargetValue: 2, MaxValue: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "kg", c.Unit)
	assert.True(t, c.Active)

	check, err := svc.Check(ctx, employee, c.ID, 3.5)
	require.NoError(t, err)
	assert.Equal(t, policy.AboveRange, check.Result)
	assert.Equal(t, 1.5, check.Deviation)

	check, err = svc.Check(ctx, employee, c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, policy.InRange, check.Result)

	_, err = svc.CreateStandard(ctx, local, CalibrationRequest{
		LocationID: "site-a", TrackedItemID: "sugar", MinValue: 3, TargetValue: 2, MaxValue: 4,
	})
	assert.ErrorIs(t, err, policy.ErrInvalidTarget)

	_, err = svc.CreateStandard(ctx, local, CalibrationRequest{
		LocationID: "site-a", TrackedItemID: "salt", MinValue: 1, TargetValue: 2, MaxValue: 3,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateStandard(ctx, employee, CalibrationRequest{
		LocationID: "site-a", TrackedItemID: "sugar", MinValue: 1, TargetValue: 2, MaxValue: 3,
	})
	assert.ErrorIs(t, err, policy.ErrForbidden)
}

func TestCalibrationService_UpdateStandard(t *testing.T) {
	w := newWorld()
	w.addItem("sugar", "site-a", 100, 50)
	svc := newTestCalibrationService(w)
	ctx := context.Background()

	c, err := svc.CreateStandard(ctx, master, CalibrationRequest{
		LocationID: "site-a", TrackedItemID: "sugar", MinValue: 1, TargetValue: 2, MaxValue: 3, Unit: "g",
	})
	require.NoError(t, err)

	off := false
	updated, err := svc.UpdateStandard(ctx, local, c.ID, CalibrationRequest{MinValue: 0, TargetValue: 5, MaxValue: 10, Active: &off})
	require.NoError(t, err)
	assert.Equal(t, 5.0, updated.TargetValue)
	assert.Equal(t, "g", updated.Unit)
	assert.False(t, updated.Active)

	_, err = svc.UpdateStandard(ctx, local, c.ID, CalibrationRequest{MinValue: 0, TargetValue: 11, MaxValue: 10})
	assert.ErrorIs(t, err, policy.ErrInvalidTarget)

	active, err := svc.ListStandards(ctx, local, "site-a", true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCalibrationService_ListScope(t *testing.T) {
	w := newWorld()
	svc := newTestCalibrationService(w)
	ctx := context.Background()

	_, err := svc.ListStandards(ctx, master, "", false)
	require.NoError(t, err)
	assert.Nil(t, w.calibration.lastIDs)

	_, err = svc.ListStandards(ctx, employee, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"site-a"}, w.calibration.lastIDs)

	_, err = svc.ListStandards(ctx, regional, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"site-a"}, w.calibration.lastIDs)

	_, err = svc.ListStandards(ctx, employee, "site-b", false)
	assert.ErrorIs(t, err, policy.ErrOutOfScope)
}
