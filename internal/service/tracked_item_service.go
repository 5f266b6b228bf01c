package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/policy"
	"yield/internal/repository"
)

// TrackedItemService manages tracked items, their baselines and daily entries.
type TrackedItemService interface {
	ListItems(ctx context.Context, actor domain.Actor, locationID string) ([]*TrackedItemDTO, error)
	CreateItem(ctx context.Context, actor domain.Actor, locationID string, req ItemRequest) (*TrackedItemDTO, error)
	UpdateItem(ctx context.Context, actor domain.Actor, itemID string, req ItemRequest) (*TrackedItemDTO, error)
	DeleteItem(ctx context.Context, actor domain.Actor, itemID string) error
	LockBaseline(ctx context.Context, actor domain.Actor, itemID string) (*TrackedItemDTO, error)
	AddEntry(ctx context.Context, actor domain.Actor, itemID string, req AddEntryRequest) (*EntryDTO, error)
	// LocationReport summarizes every entry; limit caps the entries listed per item.
	LocationReport(ctx context.Context, actor domain.Actor, locationID string, limit int) (*LocationReport, error)
}

type trackedItemService struct {
	items  repository.TrackedItemsRepository
	scope  *scope
	audit  *auditor
	logger *zap.Logger
	now    func() time.Time
}

func NewTrackedItemService(
	items repository.TrackedItemsRepository,
	locations repository.LocationsRepository,
	profiles repository.ProfilesRepository,
	audit repository.AuditRepository,
	decisions DecisionObserver,
	logger *zap.Logger,
) TrackedItemService {
	return &trackedItemService{
		items:  items,
		scope:  &scope{locations: locations, profiles: profiles},
		audit:  newAuditor(audit, decisions, logger),
		logger: logger,
		now:    time.Now,
	}
}

// ============================================
// Request/Response DTOs
// ============================================

// ItemRequest creates or replaces a tracked item. Nil tolerances take the defaults.
type ItemRequest struct {
	Name            string
	Unit            string
	SubLabel        string
	ValuePerUnit    float64
	BaselineInput   *float64
	BaselineOutput  *float64
	ToleranceGreen  *float64
	ToleranceYellow *float64
}

type TrackedItemDTO struct {
	ID               string     `json:"id"`
	LocationID       string     `json:"location_id"`
	Name             string     `json:"name"`
	Unit             string     `json:"unit"`
	SubLabel         *string    `json:"sub_label"`
	ValuePerUnit     float64    `json:"value_per_unit"`
	BaselineInput    *float64   `json:"baseline_input"`
	BaselineOutput   *float64   `json:"baseline_output"`
	ToleranceGreen   float64    `json:"tolerance_green"`
	ToleranceYellow  float64    `json:"tolerance_yellow"`
	BaselineLocked   bool       `json:"baseline_locked"`
	BaselineLockedAt *time.Time `json:"baseline_locked_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toTrackedItemDTO(t *domain.TrackedItem) *TrackedItemDTO {
	dto := &TrackedItemDTO{
		ID:              t.ID,
		LocationID:      t.LocationID,
		Name:            t.Name,
		Unit:            t.Unit,
		SubLabel:        strPtr(t.SubLabel),
		ValuePerUnit:    t.ValuePerUnit,
		BaselineInput:   floatPtr(t.BaselineInput),
		BaselineOutput:  floatPtr(t.BaselineOutput),
		ToleranceGreen:  t.ToleranceGreen,
		ToleranceYellow: t.ToleranceYellow,
		BaselineLocked:  t.BaselineLocked,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.BaselineLockedAt.Valid {
		ts := t.BaselineLockedAt.Time
		dto.BaselineLockedAt = &ts
	}
	return dto
}

type AddEntryRequest struct {
	EntryDate   time.Time // zero means today
	PeriodLabel string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	InputUsed   float64
	OutputCount float64
}

type EntryDTO struct {
	ID            string          `json:"id"`
	TrackedItemID string          `json:"tracked_item_id"`
	EnteredBy     string          `json:"entered_by"`
	EntryDate     string          `json:"entry_date"`
	PeriodLabel   *string         `json:"period_label,omitempty"`
	InputUsed     float64         `json:"input_used"`
	OutputCount   float64         `json:"output_count"`
	CreatedAt     time.Time       `json:"created_at"`
	Variance      policy.Variance `json:"variance"`
}

func toEntryDTO(e *domain.Entry, v policy.Variance) *EntryDTO {
	return &EntryDTO{
		ID:            e.ID,
		TrackedItemID: e.TrackedItemID,
		EnteredBy:     e.EnteredBy,
		EntryDate:     e.EntryDate.Format(time.DateOnly),
		PeriodLabel:   strPtr(e.PeriodLabel),
		InputUsed:     e.InputUsed,
		OutputCount:   e.OutputCount,
		CreatedAt:     e.CreatedAt,
		Variance:      v,
	}
}

// LocationReport is the variance report for every tracked item of a location.
type LocationReport struct {
	LocationID   string        `json:"location_id"`
	LocationName string        `json:"location_name"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Items        []*ItemReport `json:"items"`
}

// ItemReport summarizes every entry of the item. Entries lists the newest
// ones and EntriesTruncated is set when older entries were left out.
type ItemReport struct {
	Item             *TrackedItemDTO    `json:"item"`
	Summary          policy.ItemSummary `json:"summary"`
	Entries          []*EntryDTO        `json:"entries"`
	EntriesTruncated bool               `json:"entries_truncated"`
}

// ============================================
// Operations
// ============================================

func (s *trackedItemService) ListItems(ctx context.Context, actor domain.Actor, locationID string) ([]*TrackedItemDTO, error) {
	if _, err := s.scope.access(ctx, actor, locationID, false); err != nil {
		return nil, err
	}
	items, err := s.items.ListItems(ctx, locationID)
	if err != nil {
		return nil, err
	}
	out := make([]*TrackedItemDTO, 0, len(items))
	for _, t := range items {
		out = append(out, toTrackedItemDTO(t))
	}
	return out, nil
}

func validateItem(req ItemRequest) (*domain.TrackedItem, error) {
	name := strings.TrimSpace(req.Name)
	unit := strings.TrimSpace(req.Unit)
	if name == "" {
		return nil, invalid("Item name required")
	}
	if unit == "" {
		return nil, invalid("Unit required")
	}
	if req.ValuePerUnit < 0 {
		return nil, invalid("value_per_unit must be >= 0")
	}
	for _, b := range []*float64{req.BaselineInput, req.BaselineOutput} {
		if b != nil && *b < 0 {
			return nil, invalid("Baselines must be >= 0")
		}
	}
	green, yellow := domain.DefaultToleranceGreen, domain.DefaultToleranceYellow
	if req.ToleranceGreen != nil {
		green = *req.ToleranceGreen
	}
	if req.ToleranceYellow != nil {
		yellow = *req.ToleranceYellow
	}
	if green < 0 || yellow < green || yellow > 1 {
		return nil, invalid("Tolerances must satisfy 0 <= green <= yellow <= 1")
	}
	return &domain.TrackedItem{
		Name:            name,
		Unit:            unit,
		SubLabel:        nullString(strings.TrimSpace(req.SubLabel)),
		ValuePerUnit:    req.ValuePerUnit,
		BaselineInput:   nullFloat(req.BaselineInput),
		BaselineOutput:  nullFloat(req.BaselineOutput),
		ToleranceGreen:  green,
		ToleranceYellow: yellow,
	}, nil
}

func (s *trackedItemService) CreateItem(ctx context.Context, actor domain.Actor, locationID string, req ItemRequest) (_ *TrackedItemDTO, err error) {
	entry := s.audit.begin(actor, "item.create", domain.AuditInsert)
	entry.locationID = locationID
	defer func() { s.audit.finish(ctx, entry, err) }()

	if _, err := s.scope.access(ctx, actor, locationID, true); err != nil {
		return nil, err
	}
	item, err := validateItem(req)
	if err != nil {
		return nil, err
	}
	item.LocationID = locationID
	now := s.now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now

	id, err := s.items.CreateItem(ctx, item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	entry.targetID = id
	entry.meta["name"] = item.Name
	return toTrackedItemDTO(item), nil
}

func (s *trackedItemService) UpdateItem(ctx context.Context, actor domain.Actor, itemID string, req ItemRequest) (_ *TrackedItemDTO, err error) {
	entry := s.audit.begin(actor, "item.update", domain.AuditUpdate)
	entry.targetID = itemID
	defer func() { s.audit.finish(ctx, entry, err) }()

	current, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	entry.locationID = current.LocationID
	if _, err := s.scope.access(ctx, actor, current.LocationID, true); err != nil {
		return nil, err
	}
	next, err := validateItem(req)
	if err != nil {
		return nil, err
	}
	if current.BaselineLocked {
		// omitted baselines keep the locked values
		if req.BaselineInput == nil {
			next.BaselineInput = current.BaselineInput
		}
		if req.BaselineOutput == nil {
			next.BaselineOutput = current.BaselineOutput
		}
		if next.BaselineInput != current.BaselineInput || next.BaselineOutput != current.BaselineOutput {
			return nil, ErrBaselineLocked
		}
	}

	next.ID = current.ID
	next.LocationID = current.LocationID
	next.CreatedAt = current.CreatedAt
	next.BaselineLocked = current.BaselineLocked
	next.BaselineLockedAt = current.BaselineLockedAt
	next.BaselineLockedBy = current.BaselineLockedBy
	if err := s.items.UpdateItem(ctx, next); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrBaselineLocked
		}
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()
	return toTrackedItemDTO(next), nil
}

func (s *trackedItemService) DeleteItem(ctx context.Context, actor domain.Actor, itemID string) (err error) {
	entry := s.audit.begin(actor, "item.delete", domain.AuditDelete)
	entry.targetID = itemID
	defer func() { s.audit.finish(ctx, entry, err) }()

	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	entry.locationID = item.LocationID
	entry.meta["name"] = item.Name
	if _, err := s.scope.access(ctx, actor, item.LocationID, true); err != nil {
		return err
	}
	return s.items.DeleteItem(ctx, itemID)
}

func (s *trackedItemService) LockBaseline(ctx context.Context, actor domain.Actor, itemID string) (_ *TrackedItemDTO, err error) {
	entry := s.audit.begin(actor, "item.lock_baseline", domain.AuditUpdate)
	entry.targetID = itemID
	defer func() { s.audit.finish(ctx, entry, err) }()

	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	entry.locationID = item.LocationID
	if _, err := s.scope.access(ctx, actor, item.LocationID, true); err != nil {
		return nil, err
	}
	if item.BaselineLocked {
		return nil, ErrBaselineLocked
	}
	if !item.BaselineInput.Valid || !item.BaselineOutput.Valid ||
		item.BaselineInput.Float64 <= 0 || item.BaselineOutput.Float64 <= 0 {
		return nil, invalid("Both baselines must be greater than 0 before locking")
	}

	in, out := item.BaselineInput.Float64, item.BaselineOutput.Float64
	if err := s.items.LockBaseline(ctx, itemID, in, out, actor.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrBaselineLocked
		}
		return nil, err
	}
	entry.meta["baseline_input"] = in
	entry.meta["baseline_output"] = out

	item.BaselineLocked = true
	item.BaselineLockedAt.Time, item.BaselineLockedAt.Valid = s.now().UTC(), true
	item.BaselineLockedBy = nullString(actor.ID)
	s.logger.Info("baseline locked",
		zap.String("item_id", itemID),
		zap.String("actor_id", actor.ID),
	)
	return toTrackedItemDTO(item), nil
}

func (s *trackedItemService) AddEntry(ctx context.Context, actor domain.Actor, itemID string, req AddEntryRequest) (_ *EntryDTO, err error) {
	audit := s.audit.begin(actor, "entry.create", domain.AuditInsert)
	defer func() { s.audit.finish(ctx, audit, err) }()

	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	audit.locationID = item.LocationID
	audit.meta["item_id"] = itemID
	if _, err := s.scope.access(ctx, actor, item.LocationID, false); err != nil {
		return nil, err
	}
	if req.InputUsed < 0 || req.OutputCount < 0 {
		return nil, invalid("input_used and output_count must be >= 0")
	}
	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.Before(*req.PeriodStart) {
		return nil, invalid("Period end must not be before period start")
	}

	now := s.now().UTC()
	e := &domain.Entry{
		TrackedItemID: itemID,
		EnteredBy:     actor.ID,
		EntryDate:     req.EntryDate,
		PeriodLabel:   nullString(strings.TrimSpace(req.PeriodLabel)),
		InputUsed:     req.InputUsed,
		OutputCount:   req.OutputCount,
		CreatedAt:     now,
	}
	if e.EntryDate.IsZero() {
		e.EntryDate = now.Truncate(24 * time.Hour)
	}
	if req.PeriodStart != nil {
		e.PeriodStart.Time, e.PeriodStart.Valid = *req.PeriodStart, true
	}
	if req.PeriodEnd != nil {
		e.PeriodEnd.Time, e.PeriodEnd.Valid = *req.PeriodEnd, true
	}

	id, err := s.items.AddEntry(ctx, e)
	if err != nil {
		return nil, err
	}
	e.ID = id
	audit.targetID = id

	v := policy.Evaluate(item.Baseline(), e.Reading())
	audit.meta["classification"] = string(v.Classification)
	return toEntryDTO(e, v), nil
}

func (s *trackedItemService) LocationReport(ctx context.Context, actor domain.Actor, locationID string, limit int) (*LocationReport, error) {
	loc, err := s.scope.access(ctx, actor, locationID, false)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListItems(ctx, locationID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, t := range items {
		ids = append(ids, t.ID)
	}
	entries, err := s.items.ListEntries(ctx, ids, limit)
	if err != nil {
		return nil, err
	}
	readings, err := s.items.ListReadings(ctx, ids)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string][]*domain.Entry, len(items))
	for _, e := range entries {
		byItem[e.TrackedItemID] = append(byItem[e.TrackedItemID], e)
	}

	report := &LocationReport{
		LocationID:   loc.ID,
		LocationName: loc.Name,
		GeneratedAt:  s.now().UTC(),
		Items:        make([]*ItemReport, 0, len(items)),
	}
	for _, t := range items {
		b := t.Baseline()
		rows := byItem[t.ID]
		dtos := make([]*EntryDTO, 0, len(rows))
		for _, e := range rows {
			dtos = append(dtos, toEntryDTO(e, policy.Evaluate(b, e.Reading())))
		}
		summary := policy.Summarize(b, readings[t.ID])
		report.Items = append(report.Items, &ItemReport{
			Item:             toTrackedItemDTO(t),
			Summary:          summary,
			Entries:          dtos,
			EntriesTruncated: len(dtos) < summary.Entries,
		})
	}
	return report, nil
}
