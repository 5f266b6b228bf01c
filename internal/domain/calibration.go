package domain

import (
	"database/sql"
	"time"
)

// CalibrationStandard maps calibration_standards. MinValue <= TargetValue <= MaxValue.
type CalibrationStandard struct {
	ID            string         `db:"id"`
	LocationID    string         `db:"location_id"`
	TrackedItemID string         `db:"tracked_item_id"`
	TargetValue   float64        `db:"target_value"`
	MinValue      float64        `db:"min_value"`
	MaxValue      float64        `db:"max_value"`
	Unit          string         `db:"unit"`
	Active        bool           `db:"active"`
	UpdatedBy     sql.NullString `db:"updated_by"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}
