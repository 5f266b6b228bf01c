package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/policy"
	"yield/internal/repository"
)

// CalibrationService manages per-item calibration standards and checks readings against them.
type CalibrationService interface {
	ListStandards(ctx context.Context, actor domain.Actor, locationID string, activeOnly bool) ([]*CalibrationDTO, error)
	CreateStandard(ctx context.Context, actor domain.Actor, req CalibrationRequest) (*CalibrationDTO, error)
	UpdateStandard(ctx context.Context, actor domain.Actor, id string, req CalibrationRequest) (*CalibrationDTO, error)
	Check(ctx context.Context, actor domain.Actor, id string, value float64) (*CalibrationCheck, error)
}

type calibrationService struct {
	standards repository.CalibrationRepository
	items     repository.TrackedItemsRepository
	scope     *scope
	audit     *auditor
	logger    *zap.Logger
}

func NewCalibrationService(
	standards repository.CalibrationRepository,
	items repository.TrackedItemsRepository,
	locations repository.LocationsRepository,
	profiles repository.ProfilesRepository,
	audit repository.AuditRepository,
	decisions DecisionObserver,
	logger *zap.Logger,
) CalibrationService {
	return &calibrationService{
		standards: standards,
		items:     items,
		scope:     &scope{locations: locations, profiles: profiles},
		audit:     newAuditor(audit, decisions, logger),
		logger:    logger,
	}
}

// CalibrationRequest creates or updates a standard. LocationID and TrackedItemID
// are fixed after creation.
type CalibrationRequest struct {
	LocationID    string
	TrackedItemID string
	TargetValue   float64
	MinValue      float64
	MaxValue      float64
	Unit          string
	Active        *bool
}

type CalibrationDTO struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	TrackedItemID string    `json:"tracked_item_id"`
	TargetValue   float64   `json:"target_value"`
	MinValue      float64   `json:"min_value"`
	MaxValue      float64   `json:"max_value"`
	Unit          string    `json:"unit"`
	Active        bool      `json:"active"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CalibrationCheck struct {
	StandardID string                   `json:"standard_id"`
	Value      float64                  `json:"value"`
	Result     policy.CalibrationResult `json:"result"`
	Deviation  float64                  `json:"deviation"`
}

func toCalibrationDTO(c *domain.CalibrationStandard) *CalibrationDTO {
	return &CalibrationDTO{
		ID:            c.ID,
		LocationID:    c.LocationID,
		TrackedItemID: c.TrackedItemID,
		TargetValue:   c.TargetValue,
		MinValue:      c.MinValue,
		MaxValue:      c.MaxValue,
		Unit:          c.Unit,
		Active:        c.Active,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (s *calibrationService) ListStandards(ctx context.Context, actor domain.Actor, locationID string, activeOnly bool) ([]*CalibrationDTO, error) {
	var ids []string
	if locationID != "" {
		if _, err := s.scope.access(ctx, actor, locationID, false); err != nil {
			return nil, err
		}
		ids = []string{locationID}
	} else {
		visible, err := s.scope.visibleSiteIDs(ctx, actor)
		if err != nil {
			return nil, err
		}
		if visible != nil && len(visible) == 0 {
			return []*CalibrationDTO{}, nil
		}
		ids = visible
	}

	list, err := s.standards.ListStandards(ctx, ids, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]*CalibrationDTO, 0, len(list))
	for _, c := range list {
		out = append(out, toCalibrationDTO(c))
	}
	return out, nil
}

func (s *calibrationService) CreateStandard(ctx context.Context, actor domain.Actor, req CalibrationRequest) (_ *CalibrationDTO, err error) {
	entry := s.audit.begin(actor, "calibration.create", domain.AuditInsert)
	entry.locationID = req.LocationID
	defer func() { s.audit.finish(ctx, entry, err) }()

	if _, err := s.scope.access(ctx, actor, req.LocationID, true); err != nil {
		return nil, err
	}
	item, err := s.items.GetItem(ctx, req.TrackedItemID)
	if err != nil {
		return nil, err
	}
	if item.LocationID != req.LocationID {
		return nil, invalid("Tracked item does not belong to this location")
	}
	if err := policy.ValidateCalibrationBounds(req.MinValue, req.TargetValue, req.MaxValue); err != nil {
		return nil, err
	}
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = item.Unit
	}

	now := time.Now().UTC()
	c := &domain.CalibrationStandard{
		LocationID:    req.LocationID,
		TrackedItemID: item.ID,
		TargetValue:   req.TargetValue,
		MinValue:      req.MinValue,
		MaxValue:      req.MaxValue,
		Unit:          unit,
		Active:        req.Active == nil || *req.Active,
		UpdatedBy:     nullString(actor.ID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	id, err := s.standards.CreateStandard(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	entry.targetID = id
	return toCalibrationDTO(c), nil
}

func (s *calibrationService) UpdateStandard(ctx context.Context, actor domain.Actor, id string, req CalibrationRequest) (_ *CalibrationDTO, err error) {
	entry := s.audit.begin(actor, "calibration.update", domain.AuditUpdate)
	entry.targetID = id
	defer func() { s.audit.finish(ctx, entry, err) }()

	c, err := s.standards.GetStandard(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.locationID = c.LocationID
	if _, err := s.scope.access(ctx, actor, c.LocationID, true); err != nil {
		return nil, err
	}
	if err := policy.ValidateCalibrationBounds(req.MinValue, req.TargetValue, req.MaxValue); err != nil {
		return nil, err
	}

	c.TargetValue, c.MinValue, c.MaxValue = req.TargetValue, req.MinValue, req.MaxValue
	if unit := strings.TrimSpace(req.Unit); unit != "" {
		c.Unit = unit
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	c.UpdatedBy = nullString(actor.ID)
	if err := s.standards.UpdateStandard(ctx, c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()
	return toCalibrationDTO(c), nil
}

func (s *calibrationService) Check(ctx context.Context, actor domain.Actor, id string, value float64) (*CalibrationCheck, error) {
	c, err := s.standards.GetStandard(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.scope.access(ctx, actor, c.LocationID, false); err != nil {
		return nil, err
	}
	return &CalibrationCheck{
		StandardID: c.ID,
		Value:      value,
		Result:     policy.CalibrationFeedback(value, c.MinValue, c.MaxValue),
		Deviation:  value - c.TargetValue,
	}, nil
}
