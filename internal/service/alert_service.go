package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/notify"
	"yield/internal/policy"
	"yield/internal/repository"
)

const defaultAlertListLimit = 50

// AlertService serves the alert board for regional and master admins.
type AlertService interface {
	ListAlerts(ctx context.Context, actor domain.Actor, req ListAlertsRequest) ([]*AlertDTO, error)
	Acknowledge(ctx context.Context, actor domain.Actor, alertID, note string) (*AcknowledgeResponse, error)
	// VehicleAlert builds the open alert for a unit taken out of commission.
	// The caller stores it together with the status change.
	VehicleAlert(actor domain.Actor, unit *domain.Location, siteID, note string) (*domain.Alert, error)
	// Announce publishes an alert that has been stored.
	Announce(ctx context.Context, actor domain.Actor, alert *domain.Alert) *AlertDTO
}

type alertService struct {
	alerts    repository.AlertsRepository
	publisher notify.Publisher
	audit     *auditor
	logger    *zap.Logger
}

func NewAlertService(
	alerts repository.AlertsRepository,
	audit repository.AuditRepository,
	publisher notify.Publisher,
	decisions DecisionObserver,
	logger *zap.Logger,
) AlertService {
	return &alertService{
		alerts:    alerts,
		publisher: publisherOrNop(publisher),
		audit:     newAuditor(audit, decisions, logger),
		logger:    logger,
	}
}

// ============================================
// Request/Response DTOs
// ============================================

type ListAlertsRequest struct {
	Status   string // open (default) or acknowledged
	Category string
	Search   string
	Limit    int
}

type AlertDTO struct {
	ID              string               `json:"id"`
	CreatedAt       time.Time            `json:"created_at"`
	Severity        domain.AlertSeverity `json:"severity"`
	Category        string               `json:"category"`
	Status          domain.AlertStatus   `json:"status"`
	Message         string               `json:"message"`
	Metadata        json.RawMessage      `json:"metadata,omitempty"`
	LocationID      *string              `json:"location_id"`
	VehicleUnitID   *string              `json:"vehicle_unit_id"`
	EmployeeID      *string              `json:"employee_id"`
	AcknowledgedAt  *time.Time           `json:"acknowledged_at"`
	AcknowledgedBy  *string              `json:"acknowledged_by"`
	AcknowledgeNote *string              `json:"acknowledged_note"`
}

type AcknowledgeResponse struct {
	Alert *AlertDTO `json:"alert"`
	// AlreadyAcknowledged is set when the call changed nothing.
	AlreadyAcknowledged bool `json:"already_acknowledged"`
}

func toAlertDTO(a *domain.Alert) *AlertDTO {
	dto := &AlertDTO{
		ID:              a.ID,
		CreatedAt:       a.CreatedAt,
		Severity:        a.Severity,
		Category:        a.Category,
		Status:          a.Status,
		Message:         a.Message,
		Metadata:        a.Metadata,
		LocationID:      strPtr(a.LocationID),
		VehicleUnitID:   strPtr(a.VehicleUnitID),
		EmployeeID:      strPtr(a.EmployeeID),
		AcknowledgedBy:  strPtr(a.AcknowledgedBy),
		AcknowledgeNote: strPtr(a.AcknowledgeNote),
	}
	if a.AcknowledgedAt.Valid {
		t := a.AcknowledgedAt.Time
		dto.AcknowledgedAt = &t
	}
	return dto
}

// ============================================
// Operations
// ============================================

func (s *alertService) ListAlerts(ctx context.Context, actor domain.Actor, req ListAlertsRequest) ([]*AlertDTO, error) {
	err := policy.CanViewAlerts(actor)
	s.audit.decide("alert.list", err)
	if err != nil {
		return nil, err
	}

	status := domain.AlertOpen
	if req.Status != "" {
		st, perr := domain.ParseAlertStatus(req.Status)
		if perr != nil {
			return nil, invalid("Invalid status filter")
		}
		status = st
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultAlertListLimit
	}
	if limit > repository.MaxAlertListLimit {
		limit = repository.MaxAlertListLimit
	}

	alerts, err := s.alerts.ListAlerts(ctx, repository.AlertFilter{
		Status:   status,
		Category: strings.TrimSpace(req.Category),
		Search:   strings.TrimSpace(req.Search),
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*AlertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertDTO(a))
	}
	return out, nil
}

func (s *alertService) Acknowledge(ctx context.Context, actor domain.Actor, alertID, note string) (_ *AcknowledgeResponse, err error) {
	entry := s.audit.begin(actor, "alert.acknowledge", domain.AuditUpdate)
	entry.targetID = alertID
	defer func() { s.audit.finish(ctx, entry, err) }()

	// non-admins are refused before the alert id is resolved
	if err := policy.CanViewAlerts(actor); err != nil {
		return nil, err
	}
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	entry.locationID = alert.LocationID.String

	decision, err := policy.AuthorizeAcknowledge(actor, alert)
	if err != nil {
		return nil, err
	}
	if decision.NoOp {
		entry.meta["noop"] = true
		return &AcknowledgeResponse{Alert: toAlertDTO(alert), AlreadyAcknowledged: true}, nil
	}

	note = strings.TrimSpace(note)
	if err := s.alerts.AcknowledgeAlert(ctx, alertID, actor.ID, note); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		// acknowledged concurrently
		entry.meta["noop"] = true
		current, gerr := s.alerts.GetAlert(ctx, alertID)
		if gerr != nil {
			return nil, gerr
		}
		return &AcknowledgeResponse{Alert: toAlertDTO(current), AlreadyAcknowledged: true}, nil
	}

	current, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	_ = s.publisher.Publish(ctx, notify.Event{
		Kind:       notify.KindAlertAcknowledged,
		Subject:    alertID,
		ActorID:    actor.ID,
		OccurredAt: time.Now().UTC(),
		Data:       map[string]any{"note": note},
	})
	return &AcknowledgeResponse{Alert: toAlertDTO(current)}, nil
}

func (s *alertService) VehicleAlert(actor domain.Actor, unit *domain.Location, siteID, note string) (*domain.Alert, error) {
	meta, err := json.Marshal(map[string]any{
		"vehicle_name": unit.Name,
		"changed_by":   actor.ID,
		"note":         note,
	})
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("%s is out of commission", unit.Name)
	if note != "" {
		msg += ": " + note
	}
	return &domain.Alert{
		CreatedAt:     time.Now().UTC(),
		Severity:      domain.SeverityWarning,
		Category:      domain.AlertCategoryVehicle,
		Status:        domain.AlertOpen,
		Message:       msg,
		Metadata:      meta,
		VehicleUnitID: nullString(unit.ID),
		LocationID:    nullString(siteID),
	}, nil
}

func (s *alertService) Announce(ctx context.Context, actor domain.Actor, alert *domain.Alert) *AlertDTO {
	_ = s.publisher.Publish(ctx, notify.Event{
		Kind:       notify.KindAlertRaised,
		Subject:    alert.ID,
		ActorID:    actor.ID,
		OccurredAt: alert.CreatedAt,
		Data: map[string]any{
			"category":        alert.Category,
			"severity":        string(alert.Severity),
			"vehicle_unit_id": alert.VehicleUnitID.String,
			"message":         alert.Message,
		},
	})
	s.logger.Info("alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("category", alert.Category),
		zap.String("vehicle_unit_id", alert.VehicleUnitID.String),
		zap.String("actor_id", actor.ID),
	)
	return toAlertDTO(alert)
}
