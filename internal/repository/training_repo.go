package repository

import (
	"context"

	"yield/internal/domain"
)

type TrainingRepository interface {
	GetSession(ctx context.Context, id string) (*domain.TrainingSession, error)
	ListSessions(ctx context.Context, filter TrainingFilter) ([]*domain.TrainingSession, error)
	// CreateSession inserts the session and its items in one transaction.
	CreateSession(ctx context.Context, s *domain.TrainingSession) (string, error)
	// UpdateSession rewrites the schedule, status and item set.
	UpdateSession(ctx context.Context, s *domain.TrainingSession) error
	// CompleteSession records a completion. created is false when the
	// employee had already completed the session.
	CompleteSession(ctx context.Context, sessionID, employeeID string) (created bool, err error)
}

// TrainingFilter: nil LocationIDs means every location.
type TrainingFilter struct {
	LocationIDs []string
	EmployeeID  string
}
