package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"yield/internal/domain"
)

type PostgresAlertsRepository struct {
	db *sql.DB
}

func NewPostgresAlertsRepository(db *sql.DB) *PostgresAlertsRepository {
	return &PostgresAlertsRepository{db: db}
}

var _ AlertsRepository = (*PostgresAlertsRepository)(nil)

const alertColumns = `
	id::text,
	created_at,
	severity,
	category,
	status,
	message,
	COALESCE(metadata::text, '{}'),
	location_id::text,
	vehicle_unit_id::text,
	employee_id::text,
	acknowledged_at,
	acknowledged_by::text,
	acknowledged_note`

func scanAlert(s rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var severity, status string
	var meta []byte
	err := s.Scan(
		&a.ID, &a.CreatedAt, &severity, &a.Category, &status, &a.Message, &meta,
		&a.LocationID, &a.VehicleUnitID, &a.EmployeeID,
		&a.AcknowledgedAt, &a.AcknowledgedBy, &a.AcknowledgeNote,
	)
	if err != nil {
		return nil, err
	}
	st, err := domain.ParseAlertStatus(status)
	if err != nil {
		return nil, fmt.Errorf("alert %s: %w", a.ID, err)
	}
	a.Status = st
	a.Severity = domain.AlertSeverity(severity)
	a.Metadata = json.RawMessage(meta)
	return &a, nil
}

func (r *PostgresAlertsRepository) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	a, err := scanAlert(r.db.QueryRowContext(ctx,
		`SELECT`+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *PostgresAlertsRepository) ListAlerts(ctx context.Context, filter AlertFilter) ([]*domain.Alert, error) {
	limit := filter.Limit
	if limit <= 0 || limit > MaxAlertListLimit {
		limit = MaxAlertListLimit
	}

	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(message ILIKE $%d OR category ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresAlertsRepository) CreateAlert(ctx context.Context, a *domain.Alert) (string, error) {
	return insertAlert(ctx, r.db, a)
}

// insertAlert fills in a.ID, a.Status and a.CreatedAt.
func insertAlert(ctx context.Context, q queryer, a *domain.Alert) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.AlertOpen
	}
	meta := a.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO alerts (id, severity, category, status, message, metadata, location_id, vehicle_unit_id, employee_id)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)
		RETURNING created_at`,
		a.ID, string(a.Severity), a.Category, string(a.Status), a.Message, string(meta),
		a.LocationID, a.VehicleUnitID, a.EmployeeID,
	).Scan(&a.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("create alert: %w", err)
	}
	return a.ID, nil
}

func (r *PostgresAlertsRepository) AcknowledgeAlert(ctx context.Context, id, actorID, note string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = 'acknowledged', acknowledged_at = now(), acknowledged_by = $2, acknowledged_note = $3
		WHERE id = $1 AND status = 'open'`,
		id, actorID, nullString(note),
	)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
