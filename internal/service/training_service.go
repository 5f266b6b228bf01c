package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/repository"
)

// TrainingService schedules training sessions and records completions.
type TrainingService interface {
	ListSessions(ctx context.Context, actor domain.Actor) ([]*TrainingSessionDTO, error)
	CreateSession(ctx context.Context, actor domain.Actor, req TrainingRequest) (*TrainingSessionDTO, error)
	UpdateSession(ctx context.Context, actor domain.Actor, id string, req TrainingRequest) (*TrainingSessionDTO, error)
	CompleteSession(ctx context.Context, actor domain.Actor, id string) (*CompleteTrainingResponse, error)
}

type trainingService struct {
	sessions repository.TrainingRepository
	items    repository.TrackedItemsRepository
	profiles repository.ProfilesRepository
	scope    *scope
	audit    *auditor
	logger   *zap.Logger
}

func NewTrainingService(
	sessions repository.TrainingRepository,
	items repository.TrackedItemsRepository,
	locations repository.LocationsRepository,
	profiles repository.ProfilesRepository,
	audit repository.AuditRepository,
	decisions DecisionObserver,
	logger *zap.Logger,
) TrainingService {
	return &trainingService{
		sessions: sessions,
		items:    items,
		profiles: profiles,
		scope:    &scope{locations: locations, profiles: profiles},
		audit:    newAuditor(audit, decisions, logger),
		logger:   logger,
	}
}

// TrainingRequest creates or reschedules a session. On update LocationID and
// EmployeeID are ignored; an empty Status keeps the current one.
type TrainingRequest struct {
	LocationID string
	EmployeeID string
	StartsAt   time.Time
	EndsAt     time.Time
	Status     string
	ItemIDs    []string
}

type TrainingSessionDTO struct {
	ID         string                `json:"id"`
	LocationID string                `json:"location_id"`
	EmployeeID string                `json:"employee_id"`
	AssignedBy string                `json:"assigned_by"`
	StartsAt   time.Time             `json:"starts_at"`
	EndsAt     time.Time             `json:"ends_at"`
	Status     domain.TrainingStatus `json:"status"`
	ItemIDs    []string              `json:"item_ids"`
	CreatedAt  time.Time             `json:"created_at"`
}

type CompleteTrainingResponse struct {
	SessionID string `json:"session_id"`
	// AlreadyCompleted is set when the employee had completed it before.
	AlreadyCompleted bool `json:"already_completed"`
}

func toTrainingDTO(s *domain.TrainingSession) *TrainingSessionDTO {
	items := s.ItemIDs
	if items == nil {
		items = []string{}
	}
	return &TrainingSessionDTO{
		ID:         s.ID,
		LocationID: s.LocationID,
		EmployeeID: s.EmployeeID,
		AssignedBy: s.AssignedBy,
		StartsAt:   s.StartsAt,
		EndsAt:     s.EndsAt,
		Status:     s.Status,
		ItemIDs:    items,
		CreatedAt:  s.CreatedAt,
	}
}

// normalizeItems trims, drops blanks and de-duplicates, keeping order.
func normalizeItems(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *trainingService) checkSchedule(ctx context.Context, locationID string, req TrainingRequest) ([]string, error) {
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() {
		return nil, invalid("starts_at and ends_at required")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, invalid("End time must be after start time")
	}
	items := normalizeItems(req.ItemIDs)
	if len(items) == 0 {
		return nil, invalid("Select at least one tracked item")
	}
	for _, id := range items {
		item, err := s.items.GetItem(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("Tracked item %s not found", id)
		}
		if err != nil {
			return nil, err
		}
		if item.LocationID != locationID {
			return nil, invalid("Tracked item %s does not belong to this location", id)
		}
	}
	return items, nil
}

func (s *trainingService) ListSessions(ctx context.Context, actor domain.Actor) ([]*TrainingSessionDTO, error) {
	var filter repository.TrainingFilter
	if actor.Role == domain.RoleEmployee {
		filter.EmployeeID = actor.ID
	} else {
		ids, err := s.scope.visibleSiteIDs(ctx, actor)
		if err != nil {
			return nil, err
		}
		if ids != nil && len(ids) == 0 {
			return []*TrainingSessionDTO{}, nil
		}
		filter.LocationIDs = ids
	}

	list, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*TrainingSessionDTO, 0, len(list))
	for _, ts := range list {
		out = append(out, toTrainingDTO(ts))
	}
	return out, nil
}

func (s *trainingService) CreateSession(ctx context.Context, actor domain.Actor, req TrainingRequest) (_ *TrainingSessionDTO, err error) {
	entry := s.audit.begin(actor, "training.create", domain.AuditInsert)
	entry.locationID = req.LocationID
	defer func() { s.audit.finish(ctx, entry, err) }()

	if _, err := s.scope.access(ctx, actor, req.LocationID, true); err != nil {
		return nil, err
	}
	employee, err := s.profiles.GetProfile(ctx, req.EmployeeID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !employee.IsActive) {
		return nil, invalid("Employee not found")
	}
	if err != nil {
		return nil, err
	}
	items, err := s.checkSchedule(ctx, req.LocationID, req)
	if err != nil {
		return nil, err
	}

	ts := &domain.TrainingSession{
		LocationID: req.LocationID,
		EmployeeID: employee.UserID,
		AssignedBy: actor.ID,
		StartsAt:   req.StartsAt.UTC(),
		EndsAt:     req.EndsAt.UTC(),
		Status:     domain.TrainingAssigned,
		ItemIDs:    items,
	}
	id, err := s.sessions.CreateSession(ctx, ts)
	if err != nil {
		return nil, err
	}
	ts.ID = id
	entry.targetID = id
	entry.meta["employee_id"] = ts.EmployeeID
	entry.meta["items"] = len(items)
	return toTrainingDTO(ts), nil
}

func (s *trainingService) UpdateSession(ctx context.Context, actor domain.Actor, id string, req TrainingRequest) (_ *TrainingSessionDTO, err error) {
	entry := s.audit.begin(actor, "training.update", domain.AuditUpdate)
	entry.targetID = id
	defer func() { s.audit.finish(ctx, entry, err) }()

	ts, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.locationID = ts.LocationID
	if _, err := s.scope.access(ctx, actor, ts.LocationID, true); err != nil {
		return nil, err
	}
	items, err := s.checkSchedule(ctx, ts.LocationID, req)
	if err != nil {
		return nil, err
	}
	if req.Status != "" {
		st, perr := domain.ParseTrainingStatus(req.Status)
		if perr != nil {
			return nil, invalid("Invalid status")
		}
		ts.Status = st
	}

	ts.StartsAt, ts.EndsAt = req.StartsAt.UTC(), req.EndsAt.UTC()
	ts.ItemIDs = items
	if err := s.sessions.UpdateSession(ctx, ts); err != nil {
		return nil, err
	}
	entry.meta["status"] = string(ts.Status)
	return toTrainingDTO(ts), nil
}

func (s *trainingService) CompleteSession(ctx context.Context, actor domain.Actor, id string) (_ *CompleteTrainingResponse, err error) {
	entry := s.audit.begin(actor, "training.complete", domain.AuditInsert)
	entry.targetID = id
	defer func() { s.audit.finish(ctx, entry, err) }()

	ts, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.locationID = ts.LocationID
	if ts.EmployeeID != actor.ID {
		return nil, forbidden("Only the assigned employee can complete this session")
	}
	if ts.Status == domain.TrainingCancelled {
		return nil, invalid("Session was cancelled")
	}

	created, err := s.sessions.CompleteSession(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}
	entry.meta["noop"] = !created
	return &CompleteTrainingResponse{SessionID: id, AlreadyCompleted: !created}, nil
}
