package domain

import (
	"database/sql"
	"time"
)

const (
	DefaultToleranceGreen  = 0.03
	DefaultToleranceYellow = 0.06
)

// TrackedItem maps tracked_items. Baseline fields are immutable once BaselineLocked is set.
type TrackedItem struct {
	ID               string          `db:"id"`
	LocationID       string          `db:"location_id"`
	Name             string          `db:"name"`
	Unit             string          `db:"unit"`
	SubLabel         sql.NullString  `db:"sub_label"`
	ValuePerUnit     float64         `db:"value_per_unit"`
	BaselineInput    sql.NullFloat64 `db:"baseline_input"`
	BaselineOutput   sql.NullFloat64 `db:"baseline_output"`
	ToleranceGreen   float64         `db:"tolerance_green"`
	ToleranceYellow  float64         `db:"tolerance_yellow"`
	BaselineLocked   bool            `db:"baseline_locked"`
	BaselineLockedAt sql.NullTime    `db:"baseline_locked_at"`
	BaselineLockedBy sql.NullString  `db:"baseline_locked_by"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// Baseline is the variance-relevant slice of a tracked item.
type Baseline struct {
	Input           sql.NullFloat64
	Output          sql.NullFloat64
	ValuePerUnit    float64
	ToleranceGreen  float64
	ToleranceYellow float64
}

func (t *TrackedItem) Baseline() Baseline {
	return Baseline{
		Input:           t.BaselineInput,
		Output:          t.BaselineOutput,
		ValuePerUnit:    t.ValuePerUnit,
		ToleranceGreen:  t.ToleranceGreen,
		ToleranceYellow: t.ToleranceYellow,
	}
}

// Entry maps daily_entries. Rows are append-only.
type Entry struct {
	ID            string         `db:"id"`
	TrackedItemID string         `db:"tracked_item_id"`
	EnteredBy     string         `db:"entered_by"`
	EntryDate     time.Time      `db:"entry_date"`
	PeriodLabel   sql.NullString `db:"period_label"`
	PeriodStart   sql.NullTime   `db:"period_start"`
	PeriodEnd     sql.NullTime   `db:"period_end"`
	InputUsed     float64        `db:"input_used"`
	OutputCount   float64        `db:"output_count"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Reading is the measured part of an entry.
type Reading struct {
	InputUsed   float64
	OutputCount float64
}

func (e *Entry) Reading() Reading {
	return Reading{InputUsed: e.InputUsed, OutputCount: e.OutputCount}
}
