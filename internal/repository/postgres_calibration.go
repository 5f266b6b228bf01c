package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"yield/internal/domain"
)

type PostgresCalibrationRepository struct {
	db *sql.DB
}

func NewPostgresCalibrationRepository(db *sql.DB) *PostgresCalibrationRepository {
	return &PostgresCalibrationRepository{db: db}
}

var _ CalibrationRepository = (*PostgresCalibrationRepository)(nil)

const calibrationColumns = `
	id::text, location_id::text, tracked_item_id::text,
	target_value, min_value, max_value, unit, active,
	updated_by::text, created_at, updated_at`

func scanCalibration(s rowScanner) (*domain.CalibrationStandard, error) {
	var c domain.CalibrationStandard
	err := s.Scan(&c.ID, &c.LocationID, &c.TrackedItemID, &c.TargetValue, &c.MinValue, &c.MaxValue,
		&c.Unit, &c.Active, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresCalibrationRepository) GetStandard(ctx context.Context, id string) (*domain.CalibrationStandard, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	c, err := scanCalibration(r.db.QueryRowContext(ctx,
		`SELECT`+calibrationColumns+` FROM calibration_standards WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (r *PostgresCalibrationRepository) ListStandards(ctx context.Context, locationIDs []string, activeOnly bool) ([]*domain.CalibrationStandard, error) {
	query := `SELECT` + calibrationColumns + ` FROM calibration_standards
		WHERE ($1::text[] IS NULL OR location_id::text = ANY($1))
		  AND (NOT $2 OR active)
		ORDER BY updated_at DESC`

	var ids any
	if locationIDs != nil {
		ids = pq.Array(locationIDs)
	}
	rows, err := r.db.QueryContext(ctx, query, ids, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list calibration standards: %w", err)
	}
	defer rows.Close()

	var out []*domain.CalibrationStandard
	for rows.Next() {
		c, err := scanCalibration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCalibrationRepository) CreateStandard(ctx context.Context, c *domain.CalibrationStandard) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO calibration_standards
			(id, location_id, tracked_item_id, target_value, min_value, max_value, unit, active, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		c.ID, c.LocationID, c.TrackedItemID, c.TargetValue, c.MinValue, c.MaxValue, c.Unit, c.Active, c.UpdatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("create calibration standard: %w", err)
	}
	return c.ID, nil
}

func (r *PostgresCalibrationRepository) UpdateStandard(ctx context.Context, c *domain.CalibrationStandard) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE calibration_standards
		SET target_value = $2, min_value = $3, max_value = $4, unit = $5, active = $6,
			updated_by = $7, updated_at = now()
		WHERE id = $1`,
		c.ID, c.TargetValue, c.MinValue, c.MaxValue, c.Unit, c.Active, c.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("update calibration standard: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
