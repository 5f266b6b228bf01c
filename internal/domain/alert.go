package domain

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
)

func ParseAlertStatus(s string) (AlertStatus, error) {
	switch AlertStatus(s) {
	case AlertOpen, AlertAcknowledged:
		return AlertStatus(s), nil
	}
	return "", fmt.Errorf("unknown alert status %q", s)
}

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertCategoryVehicle marks alerts raised by vehicle status changes.
const AlertCategoryVehicle = "vehicle"

// Alert maps the alerts table.
type Alert struct {
	ID              string          `db:"id"`
	CreatedAt       time.Time       `db:"created_at"`
	Severity        AlertSeverity   `db:"severity"`
	Category        string          `db:"category"`
	Status          AlertStatus     `db:"status"`
	Message         string          `db:"message"`
	Metadata        json.RawMessage `db:"metadata"`
	LocationID      sql.NullString  `db:"location_id"`
	VehicleUnitID   sql.NullString  `db:"vehicle_unit_id"`
	EmployeeID      sql.NullString  `db:"employee_id"`
	AcknowledgedAt  sql.NullTime    `db:"acknowledged_at"`
	AcknowledgedBy  sql.NullString  `db:"acknowledged_by"`
	AcknowledgeNote sql.NullString  `db:"acknowledged_note"`
}
