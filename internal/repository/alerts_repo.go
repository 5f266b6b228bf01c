package repository

import (
	"context"

	"yield/internal/domain"
)

// AlertsRepository stores alerts raised for higher admins.
type AlertsRepository interface {
	GetAlert(ctx context.Context, id string) (*domain.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*domain.Alert, error)
	CreateAlert(ctx context.Context, a *domain.Alert) (string, error)
	// AcknowledgeAlert moves an open alert to acknowledged. It returns
	// ErrConflict when the alert was no longer open.
	AcknowledgeAlert(ctx context.Context, id, actorID, note string) error
}

type AlertFilter struct {
	Status   domain.AlertStatus
	Category string
	Search   string
	Limit    int
}

const MaxAlertListLimit = 200
