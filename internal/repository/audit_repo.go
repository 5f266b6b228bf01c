package repository

import (
	"context"

	"yield/internal/domain"
)

// AuditRepository is the append-only audit log.
type AuditRepository interface {
	AppendAudit(ctx context.Context, rec *domain.AuditRecord) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*domain.AuditRecord, error)
}

type AuditFilter struct {
	Operation  domain.AuditOperation
	LocationID string
	Limit      int
}

// AuditPageSizes are the accepted list sizes; anything else falls back to the first.
var AuditPageSizes = []int{25, 50, 100, 250}
