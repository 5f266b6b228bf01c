package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"yield/common/database"
	"yield/internal/domain"
)

type PostgresProfilesRepository struct {
	db *sql.DB
}

func NewPostgresProfilesRepository(db *sql.DB) *PostgresProfilesRepository {
	return &PostgresProfilesRepository{db: db}
}

var _ ProfilesRepository = (*PostgresProfilesRepository)(nil)

const profileColumns = `
	p.user_id::text,
	e.email,
	p.full_name,
	p.role,
	p.location_id::text,
	p.region_id::text,
	COALESCE(e.is_active, false),
	p.created_at`

func scanProfile(s rowScanner) (*domain.Profile, error) {
	var p domain.Profile
	var role string
	if err := s.Scan(&p.UserID, &p.Email, &p.FullName, &role, &p.LocationID, &p.RegionID, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.UserID, err)
	}
	p.Role = r
	return &p, nil
}

func (r *PostgresProfilesRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT` + profileColumns + `
		FROM profiles p
		LEFT JOIN employees e ON e.id = p.user_id
		WHERE p.user_id = $1`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PostgresProfilesRepository) ListProfiles(ctx context.Context, filter ProfileFilter, limit int) ([]*domain.Profile, error) {
	if limit <= 0 || limit > MaxUserListLimit {
		limit = MaxUserListLimit
	}

	query := `SELECT` + profileColumns + `
		FROM profiles p
		JOIN employees e ON e.id = p.user_id
		WHERE e.is_active = true`
	var args []any

	switch {
	case filter.All:
	case filter.LocationID != "":
		args = append(args, filter.LocationID)
		query += ` AND p.location_id = $1`
	case filter.RegionID != "":
		args = append(args, filter.RegionID)
		query += ` AND (p.region_id = $1 OR p.location_id IN (SELECT id FROM locations WHERE region_id = $1))`
	default:
		return nil, fmt.Errorf("empty profile filter")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY p.created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresProfilesRepository) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (user_id, full_name, role, location_id, region_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE SET
				full_name = EXCLUDED.full_name,
				role = EXCLUDED.role,
				location_id = EXCLUDED.location_id,
				region_id = EXCLUDED.region_id`,
			p.UserID, p.FullName, string(p.Role), p.LocationID, p.RegionID,
		)
		if err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO employees (id, email, display_name, is_active)
			VALUES ($1, $2, $3, true)
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				display_name = COALESCE(EXCLUDED.display_name, employees.display_name),
				is_active = true`,
			p.UserID, p.Email, p.FullName,
		)
		if err != nil {
			return fmt.Errorf("upsert employee: %w", err)
		}

		if !p.LocationID.Valid {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO employee_location_assignments (employee_id, location_id)
			VALUES ($1, $2)
			ON CONFLICT (employee_id, location_id) DO NOTHING`,
			p.UserID, p.LocationID.String,
		)
		if err != nil {
			return fmt.Errorf("assign location: %w", err)
		}
		return nil
	})
}

func (r *PostgresProfilesRepository) DeactivateProfile(ctx context.Context, userID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE employees SET is_active = false WHERE id = $1 AND is_active = true`, userID)
	if err != nil {
		return false, fmt.Errorf("deactivate employee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM employee_location_assignments WHERE employee_id = $1`, userID); err != nil {
		return false, fmt.Errorf("remove assignments: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresProfilesRepository) AssignedLocationIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT location_id::text FROM employee_location_assignments WHERE employee_id = $1 ORDER BY location_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
