package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/policy"
	"yield/internal/repository"
)

// AuditService reads the audit log.
type AuditService interface {
	ListAudit(ctx context.Context, actor domain.Actor, req ListAuditRequest) ([]*AuditRecordDTO, error)
}

type auditService struct {
	repo   repository.AuditRepository
	audit  *auditor
	logger *zap.Logger
}

func NewAuditService(repo repository.AuditRepository, decisions DecisionObserver, logger *zap.Logger) AuditService {
	return &auditService{repo: repo, audit: newAuditor(repo, decisions, logger), logger: logger}
}

type ListAuditRequest struct {
	Operation  string // INSERT, UPDATE or DELETE; empty for all
	LocationID string
	Limit      int
}

type AuditRecordDTO struct {
	ID         string                `json:"id"`
	CreatedAt  time.Time             `json:"created_at"`
	Action     string                `json:"action"`
	Operation  domain.AuditOperation `json:"operation"`
	ActorID    string                `json:"actor_id"`
	TargetID   *string               `json:"target_id"`
	LocationID *string               `json:"location_id"`
	OK         bool                  `json:"ok"`
	Error      *string               `json:"error,omitempty"`
	Metadata   json.RawMessage       `json:"metadata,omitempty"`
}

func (s *auditService) ListAudit(ctx context.Context, actor domain.Actor, req ListAuditRequest) ([]*AuditRecordDTO, error) {
	err := policy.CanReadAudit(actor)
	s.audit.decide("audit.list", err)
	if err != nil {
		return nil, err
	}

	var op domain.AuditOperation
	switch o := domain.AuditOperation(strings.ToUpper(strings.TrimSpace(req.Operation))); o {
	case "":
	case domain.AuditInsert, domain.AuditUpdate, domain.AuditDelete:
		op = o
	default:
		return nil, invalid("Operation must be one of INSERT, UPDATE, DELETE")
	}

	recs, err := s.repo.ListAudit(ctx, repository.AuditFilter{
		Operation:  op,
		LocationID: strings.TrimSpace(req.LocationID),
		Limit:      req.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*AuditRecordDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, &AuditRecordDTO{
			ID:         r.ID,
			CreatedAt:  r.CreatedAt,
			Action:     r.Action,
			Operation:  r.Operation,
			ActorID:    r.ActorID,
			TargetID:   strPtr(r.TargetID),
			LocationID: strPtr(r.LocationID),
			OK:         r.OK,
			Error:      strPtr(r.Error),
			Metadata:   r.Metadata,
		})
	}
	return out, nil
}
