package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/policy"
)

func newTestTrackedItemService(w *world) *trackedItemService {
	svc := NewTrackedItemService(w.items, w.locations, w.profiles, w.audit, w.decisions, zap.NewNop()).(*trackedItemService)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	return svc
}

func f64(v float64) *float64 { return &v }

func TestTrackedItemService_CreateItem(t *testing.T) {
	w := newWorld()
	svc := newTestTrackedItemService(w)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, local, "site-a", ItemRequest{
		Name: " Flour ", Unit: "kg", ValuePerUnit: 1.5, BaselineInput: f64(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "Flour", item.Name)
	assert.Equal(t, domain.DefaultToleranceGreen, item.ToleranceGreen)
	assert.Equal(t, domain.DefaultToleranceYellow, item.ToleranceYellow)
	require.NotNil(t, item.BaselineInput)
	assert.Nil(t, item.BaselineOutput)

	_, err = svc.CreateItem(ctx, employee, "site-a", ItemRequest{Name: "x", Unit: "kg"})
	assert.ErrorIs(t, err, policy.ErrForbidden)

	_, err = svc.CreateItem(ctx, local, "site-b", ItemRequest{Name: "x", Unit: "kg"})
	assert.ErrorIs(t, err, policy.ErrOutOfScope)

	_, err = svc.CreateItem(ctx, local, "site-a", ItemRequest{
		Name: "x", Unit: "kg", ToleranceGreen: f64(0.1), ToleranceYellow: f64(0.05),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateItem(ctx, local, "site-a", ItemRequest{Name: "x", Unit: "kg", BaselineOutput: f64(-1)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTrackedItemService_LockBaseline(t *testing.T) {
	w := newWorld()
	w.addItem("flour", "site-a", 100, 0)
	w.addItem("sugar", "site-a", 100, 50)
	svc := newTestTrackedItemService(w)
	ctx := context.Background()

	_, err := svc.LockBaseline(ctx, local, "flour")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.LockBaseline(ctx, employee, "sugar")
	assert.ErrorIs(t, err, policy.ErrForbidden)

	item, err := svc.LockBaseline(ctx, local, "sugar")
	require.NoError(t, err)
	assert.True(t, item.BaselineLocked)
	require.NotNil(t, item.BaselineLockedAt)

	_, err = svc.LockBaseline(ctx, local, "sugar")
	assert.ErrorIs(t, err, ErrBaselineLocked)
}

func TestTrackedItemService_UpdateItem_LockedBaseline(t *testing.T) {
	w := newWorld()
	w.addItem("sugar", "site-a", 100, 50).BaselineLocked = true
	svc := newTestTrackedItemService(w)
	ctx := context.Background()

	_, err := svc.UpdateItem(ctx, local, "sugar", ItemRequest{
		Name: "Sugar", Unit: "kg", BaselineInput: f64(120), BaselineOutput: f64(50),
	})
	assert.ErrorIs(t, err, ErrBaselineLocked)

	// omitting the baselines keeps them and other fields may still change
	item, err := svc.UpdateItem(ctx, local, "sugar", ItemRequest{Name: "Sugar", Unit: "kg", ValuePerUnit: 3})
	require.NoError(t, err)
	assert.Equal(t, "Sugar", item.Name)
	assert.Equal(t, 3.0, item.ValuePerUnit)
	require.NotNil(t, item.BaselineInput)
	assert.Equal(t, 100.0, *item.BaselineInput)
	assert.True(t, item.BaselineLocked)
}

func TestTrackedItemService_UpdateItem_Unlocked(t *testing.T) {
	w := newWorld()
	w.addItem("sugar", "site-a", 100, 50)
	svc := newTestTrackedItemService(w)

	item, err := svc.UpdateItem(context.Background(), regional, "sugar", ItemRequest{
		Name: "Sugar", Unit: "kg", BaselineInput: f64(120), BaselineOutput: f64(60),
	})
	require.NoError(t, err)
	assert.Equal(t, 120.0, *item.BaselineInput)
	assert.Equal(t, 60.0, w.items.items["sugar"].BaselineOutput.Float64)
}

func TestTrackedItemService_DeleteItem(t *testing.T) {
	w := newWorld()
	w.addItem("sugar", "site-a", 100, 50)
	svc := newTestTrackedItemService(w)
	ctx := context.Background()

	err := svc.DeleteItem(ctx, employee, "sugar")
	assert.ErrorIs(t, err, policy.ErrForbidden)

	require.NoError(t, svc.DeleteItem(ctx, local, "sugar"))
	assert.Empty(t, w.items.items)
	assert.Equal(t, domain.AuditDelete, w.audit.last().Operation)
}

func TestTrackedItemService_AddEntry(t *testing.T) {
	w := newWorld()
	w.addItem("sugar", "site-a", 100, 50)
	w.addItem("salt", "site-b", 100, 50)
	svc := newTestTrackedItemService(w)
	ctx := context.Background()

	e, err := svc.AddEntry(ctx, employee, "sugar", AddEntryRequest{InputUsed: 100, OutputCount: 45})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", e.EntryDate)
	assert.Equal(t, employee.ID, e.EnteredBy)
	assert.Equal(t, policy.Red, e.Variance.Classification)
	assert.Equal(t, policy.Measure{Value: 20, Known: true}, e.Variance.WasteCost)

	_, err = svc.AddEntry(ctx, employee, "sugar", AddEntryRequest{InputUsed: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.AddEntry(ctx, employee, "sugar", AddEntryRequest{PeriodStart: &start, PeriodEnd: &end})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddEntry(ctx, employee, "salt", AddEntryRequest{InputUsed: 1, OutputCount: 1})
	assert.ErrorIs(t, err, policy.ErrOutOfScope)

	assert.Len(t, w.items.entries, 1)
}

func TestTrackedItemService_LocationReport(t *testing.T) {
	w := newWorld()
	w.addItem("sugar", "site-a", 100, 50)
	w.addItem("flour", "site-a", 0, 0)
	svc := newTestTrackedItemService(w)
	ctx := context.Background()

	for _, r := range []AddEntryRequest{
		{InputUsed: 100, OutputCount: 50},
		{InputUsed: 100, OutputCount: 45},
	} {
		_, err := svc.AddEntry(ctx, employee, "sugar", r)
		require.NoError(t, err)
	}
	_, err := svc.AddEntry(ctx, employee, "flour", AddEntryRequest{InputUsed: 10, OutputCount: 10})
	require.NoError(t, err)

	report, err := svc.LocationReport(ctx, local, "site-a", 0)
	require.NoError(t, err)
	assert.Equal(t, "Site A", report.LocationName)
	require.Len(t, report.Items, 2)

	byID := map[string]*ItemReport{}
	for _, ir := range report.Items {
		byID[ir.Item.ID] = ir
	}
	sugar := byID["sugar"].Summary
	assert.Equal(t, 2, sugar.Entries)
	assert.Equal(t, 1, sugar.Green)
	assert.Equal(t, 1, sugar.Red)
	assert.Equal(t, 20.0, sugar.WasteCost)
	assert.Equal(t, 0, sugar.CostUnknown)

	flour := byID["flour"].Summary
	assert.Equal(t, 1, flour.Unknown)
	assert.Equal(t, 1, flour.CostUnknown)

	_, err = svc.LocationReport(ctx, local, "site-b", 0)
	assert.ErrorIs(t, err, policy.ErrOutOfScope)
}

func TestTrackedItemService_LocationReport_SummaryCoversUnlistedEntries(t *testing.T) {
	w := newWorld()
	w.addItem("sugar", "site-a", 100, 50)
	w.addItem("flour", "site-a", 0, 0)
	svc := newTestTrackedItemService(w)
	ctx := context.Background()

	// the oldest entry is the only red one
	reqs := []AddEntryRequest{{InputUsed: 100, OutputCount: 45}}
	for i := 0; i < 4; i++ {
		reqs = append(reqs, AddEntryRequest{InputUsed: 100, OutputCount: 50})
	}
	for _, r := range reqs {
		_, err := svc.AddEntry(ctx, employee, "sugar", r)
		require.NoError(t, err)
	}
	_, err := svc.AddEntry(ctx, employee, "flour", AddEntryRequest{InputUsed: 10, OutputCount: 10})
	require.NoError(t, err)

	report, err := svc.LocationReport(ctx, local, "site-a", 2)
	require.NoError(t, err)
	byID := map[string]*ItemReport{}
	for _, ir := range report.Items {
		byID[ir.Item.ID] = ir
	}

	sugar := byID["sugar"]
	assert.Len(t, sugar.Entries, 2)
	assert.True(t, sugar.EntriesTruncated)
	assert.Equal(t, 5, sugar.Summary.Entries)
	assert.Equal(t, 4, sugar.Summary.Green)
	assert.Equal(t, 1, sugar.Summary.Red)
	assert.Equal(t, 20.0, sugar.Summary.WasteCost)

	flour := byID["flour"]
	assert.Len(t, flour.Entries, 1)
	assert.False(t, flour.EntriesTruncated)
}
