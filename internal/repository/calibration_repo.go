package repository

import (
	"context"

	"yield/internal/domain"
)

type CalibrationRepository interface {
	GetStandard(ctx context.Context, id string) (*domain.CalibrationStandard, error)
	// ListStandards returns standards for locationIDs; nil means every location.
	ListStandards(ctx context.Context, locationIDs []string, activeOnly bool) ([]*domain.CalibrationStandard, error)
	CreateStandard(ctx context.Context, s *domain.CalibrationStandard) (string, error)
	UpdateStandard(ctx context.Context, s *domain.CalibrationStandard) error
}
