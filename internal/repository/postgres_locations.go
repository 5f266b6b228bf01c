package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"yield/common/database"
	"yield/internal/domain"
)

type PostgresLocationsRepository struct {
	db *sql.DB
}

func NewPostgresLocationsRepository(db *sql.DB) *PostgresLocationsRepository {
	return &PostgresLocationsRepository{db: db}
}

var _ LocationsRepository = (*PostgresLocationsRepository)(nil)

// resolvedLocations walks each node up to the nearest ancestor carrying a region.
const resolvedLocations = `
	WITH RECURSIVE chain AS (
		SELECT id AS node_id, id, parent_id, region_id, 0 AS depth FROM locations
		UNION ALL
		SELECT c.node_id, l.id, l.parent_id, l.region_id, c.depth + 1
		FROM chain c
		JOIN locations l ON l.id = c.parent_id
		WHERE c.region_id IS NULL AND c.depth < 8
	),
	effective AS (
		SELECT DISTINCT ON (node_id) node_id, region_id
		FROM chain
		WHERE region_id IS NOT NULL
		ORDER BY node_id, depth
	)`

const locationColumns = `
	l.id::text,
	l.name,
	l.region_id::text,
	l.parent_id::text,
	l.kind,
	l.active,
	l.sequence_number,
	l.operational_status,
	l.status_note,
	l.status_changed_at,
	l.status_changed_by::text,
	l.created_at,
	COALESCE(ef.region_id::text, '')`

func scanLocation(s rowScanner) (*domain.Location, error) {
	var l domain.Location
	var kind string
	var status sql.NullString
	err := s.Scan(
		&l.ID, &l.Name, &l.RegionID, &l.ParentID, &kind, &l.Active, &l.SequenceNumber,
		&status, &l.StatusNote, &l.StatusChangedAt, &l.StatusChangedBy, &l.CreatedAt,
		&l.ResolvedRegionID,
	)
	if err != nil {
		return nil, err
	}
	switch k := domain.LocationKind(kind); k {
	case domain.LocationSite, domain.LocationVehicleType, domain.LocationVehicleUnit:
		l.Kind = k
	default:
		return nil, fmt.Errorf("location %s: unknown kind %q", l.ID, kind)
	}
	if status.Valid {
		st, err := domain.ParseOperationalStatus(status.String)
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", l.ID, err)
		}
		l.OperationalStatus = st
	}
	return &l, nil
}

func (r *PostgresLocationsRepository) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := resolvedLocations + `
		SELECT` + locationColumns + `
		FROM locations l
		LEFT JOIN effective ef ON ef.node_id = l.id
		WHERE l.id = $1`

	l, err := scanLocation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (r *PostgresLocationsRepository) ListLocations(ctx context.Context, filter LocationFilter) ([]*domain.Location, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Kind != "" {
		add("l.kind = $%d", string(filter.Kind))
	}
	if filter.ParentID != "" {
		add("l.parent_id = $%d", filter.ParentID)
	}
	if filter.RegionID != "" {
		add("ef.region_id = $%d", filter.RegionID)
	}
	if filter.IDs != nil {
		add("l.id::text = ANY($%d)", pq.Array(filter.IDs))
	}

	query := resolvedLocations + `
		SELECT` + locationColumns + `
		FROM locations l
		LEFT JOIN effective ef ON ef.node_id = l.id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY l.sequence_number NULLS LAST, l.name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresLocationsRepository) CreateSite(ctx context.Context, name, regionID string) (*domain.Location, error) {
	site := &domain.Location{
		ID:       uuid.NewString(),
		Name:     name,
		RegionID: nullString(regionID),
		Kind:     domain.LocationSite,
		Active:   true,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO locations (id, name, region_id, kind, active)
		VALUES ($1, $2, $3, 'site', true)
		RETURNING created_at`,
		site.ID, site.Name, site.RegionID,
	).Scan(&site.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	site.ResolvedRegionID = regionID
	return site, nil
}

func (r *PostgresLocationsRepository) RenameSite(ctx context.Context, id, name string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE locations SET name = $2 WHERE id = $1 AND kind = 'site'`, id, name)
	if err != nil {
		return fmt.Errorf("rename site: %w", err)
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

func (r *PostgresLocationsRepository) DeactivateSite(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, ErrNotFound
	}
	var changed bool
	err := r.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE locations SET active = false
			WHERE id = $1 AND kind = 'site' AND active = true
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM updated)
		FROM locations WHERE id = $1 AND kind = 'site'`, id).Scan(&changed)
	if err != nil {
		return false, notFound(err)
	}
	return changed, nil
}

func (r *PostgresLocationsRepository) CreateNextVehicleUnit(ctx context.Context, siteID, typeName string) (*domain.Location, error) {
	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return nil, fmt.Errorf("vehicle type name is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize unit numbering per site.
	var siteKind string
	err = tx.QueryRowContext(ctx,
		`SELECT kind FROM locations WHERE id = $1 FOR UPDATE`, siteID).Scan(&siteKind)
	if err != nil {
		return nil, notFound(err)
	}
	if siteKind != string(domain.LocationSite) {
		return nil, fmt.Errorf("location %s is not a site", siteID)
	}

	var typeID string
	err = tx.QueryRowContext(ctx, `
		SELECT id::text FROM locations
		WHERE parent_id = $1 AND kind = 'vehicle_type' AND lower(name) = lower($2)
		LIMIT 1`, siteID, typeName).Scan(&typeID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		typeID = uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO locations (id, name, parent_id, kind, active)
			VALUES ($1, $2, $3, 'vehicle_type', true)`, typeID, typeName, siteID); err != nil {
			return nil, fmt.Errorf("create vehicle type: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("find vehicle type: %w", err)
	}

	var next int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM locations
		WHERE parent_id = $1 AND kind = 'vehicle_unit'`, typeID).Scan(&next); err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}

	unit := &domain.Location{
		ID:                uuid.NewString(),
		Name:              fmt.Sprintf("%s %d", typeName, next),
		ParentID:          sql.NullString{String: typeID, Valid: true},
		Kind:              domain.LocationVehicleUnit,
		Active:            true,
		SequenceNumber:    sql.NullInt64{Int64: next, Valid: true},
		OperationalStatus: domain.StatusInService,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO locations (id, name, parent_id, kind, active, sequence_number, operational_status)
		VALUES ($1, $2, $3, 'vehicle_unit', true, $4, 'in_service')
		RETURNING created_at`,
		unit.ID, unit.Name, typeID, next,
	).Scan(&unit.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create vehicle unit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return unit, nil
}

func (r *PostgresLocationsRepository) SetOperationalStatus(ctx context.Context, unitID string, status domain.OperationalStatus, note, actorID string, alert *domain.Alert) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE locations
			SET operational_status = $2, status_note = $3, status_changed_at = now(), status_changed_by = $4
			WHERE id = $1 AND kind = 'vehicle_unit' AND operational_status IS DISTINCT FROM $2`,
			unitID, string(status), nullString(note), actorID,
		)
		if err != nil {
			return fmt.Errorf("set operational status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1 AND kind = 'vehicle_unit')`,
				unitID).Scan(&exists); err != nil {
				return fmt.Errorf("check vehicle unit: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}
		if alert == nil {
			return nil
		}
		_, err = insertAlert(ctx, tx, alert)
		return err
	})
}
