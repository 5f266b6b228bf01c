package domain

import (
	"fmt"
	"time"
)

type TrainingStatus string

const (
	TrainingAssigned  TrainingStatus = "assigned"
	TrainingCompleted TrainingStatus = "completed"
	TrainingCancelled TrainingStatus = "cancelled"
)

func ParseTrainingStatus(s string) (TrainingStatus, error) {
	switch TrainingStatus(s) {
	case TrainingAssigned, TrainingCompleted, TrainingCancelled:
		return TrainingStatus(s), nil
	}
	return "", fmt.Errorf("unknown training status %q", s)
}

// TrainingSession maps training_sessions; ItemIDs comes from training_session_items.
type TrainingSession struct {
	ID         string         `db:"id"`
	LocationID string         `db:"location_id"`
	EmployeeID string         `db:"employee_id"`
	AssignedBy string         `db:"assigned_by"`
	StartsAt   time.Time      `db:"starts_at"`
	EndsAt     time.Time      `db:"ends_at"`
	Status     TrainingStatus `db:"status"`
	CreatedAt  time.Time      `db:"created_at"`
	ItemIDs    []string       `db:"-"`
}

// TrainingCompletion maps training_completions.
type TrainingCompletion struct {
	ID                string    `db:"id"`
	TrainingSessionID string    `db:"training_session_id"`
	EmployeeID        string    `db:"employee_id"`
	CompletedAt       time.Time `db:"completed_at"`
}
