package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"yield/internal/domain"
)

type PostgresTrackedItemsRepository struct {
	db *sql.DB
}

func NewPostgresTrackedItemsRepository(db *sql.DB) *PostgresTrackedItemsRepository {
	return &PostgresTrackedItemsRepository{db: db}
}

var _ TrackedItemsRepository = (*PostgresTrackedItemsRepository)(nil)

const trackedItemColumns = `
	id::text,
	location_id::text,
	name,
	unit,
	sub_label,
	value_per_unit,
	baseline_input,
	baseline_output,
	tolerance_green,
	tolerance_yellow,
	baseline_locked,
	baseline_locked_at,
	baseline_locked_by::text,
	created_at,
	updated_at`

func scanTrackedItem(s rowScanner) (*domain.TrackedItem, error) {
	var t domain.TrackedItem
	err := s.Scan(
		&t.ID, &t.LocationID, &t.Name, &t.Unit, &t.SubLabel, &t.ValuePerUnit,
		&t.BaselineInput, &t.BaselineOutput, &t.ToleranceGreen, &t.ToleranceYellow,
		&t.BaselineLocked, &t.BaselineLockedAt, &t.BaselineLockedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresTrackedItemsRepository) GetItem(ctx context.Context, id string) (*domain.TrackedItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	t, err := scanTrackedItem(r.db.QueryRowContext(ctx,
		`SELECT`+trackedItemColumns+` FROM tracked_items WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *PostgresTrackedItemsRepository) ListItems(ctx context.Context, locationID string) ([]*domain.TrackedItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+trackedItemColumns+` FROM tracked_items WHERE location_id = $1 ORDER BY created_at DESC`, locationID)
	if err != nil {
		return nil, fmt.Errorf("list tracked items: %w", err)
	}
	defer rows.Close()

	var out []*domain.TrackedItem
	for rows.Next() {
		t, err := scanTrackedItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresTrackedItemsRepository) CreateItem(ctx context.Context, t *domain.TrackedItem) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tracked_items
			(id, location_id, name, unit, sub_label, value_per_unit, baseline_input, baseline_output, tolerance_green, tolerance_yellow)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		t.ID, t.LocationID, t.Name, t.Unit, t.SubLabel, t.ValuePerUnit,
		t.BaselineInput, t.BaselineOutput, t.ToleranceGreen, t.ToleranceYellow,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("create tracked item: %w", err)
	}
	return t.ID, nil
}

func (r *PostgresTrackedItemsRepository) UpdateItem(ctx context.Context, t *domain.TrackedItem) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tracked_items
		SET name = $2, unit = $3, sub_label = $4, value_per_unit = $5,
			baseline_input = $6, baseline_output = $7,
			tolerance_green = $8, tolerance_yellow = $9, updated_at = now()
		WHERE id = $1
		  AND (NOT baseline_locked
		       OR (baseline_input IS NOT DISTINCT FROM $6 AND baseline_output IS NOT DISTINCT FROM $7))`,
		t.ID, t.Name, t.Unit, t.SubLabel, t.ValuePerUnit,
		t.BaselineInput, t.BaselineOutput, t.ToleranceGreen, t.ToleranceYellow,
	)
	if err != nil {
		return fmt.Errorf("update tracked item: %w", err)
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

func (r *PostgresTrackedItemsRepository) DeleteItem(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tracked_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tracked item: %w", err)
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

func (r *PostgresTrackedItemsRepository) LockBaseline(ctx context.Context, id string, input, output float64, actorID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tracked_items
		SET baseline_input = $2, baseline_output = $3, baseline_locked = true,
			baseline_locked_at = now(), baseline_locked_by = $4, updated_at = now()
		WHERE id = $1 AND NOT baseline_locked`,
		id, input, output, actorID,
	)
	if err != nil {
		return fmt.Errorf("lock baseline: %w", err)
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

func (r *PostgresTrackedItemsRepository) AddEntry(ctx context.Context, e *domain.Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO daily_entries
			(id, tracked_item_id, entered_by, entry_date, period_label, period_start, period_end, input_used, output_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		e.ID, e.TrackedItemID, e.EnteredBy, e.EntryDate, e.PeriodLabel, e.PeriodStart, e.PeriodEnd,
		e.InputUsed, e.OutputCount,
	).Scan(&e.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("add entry: %w", err)
	}
	return e.ID, nil
}

func (r *PostgresTrackedItemsRepository) ListEntries(ctx context.Context, itemIDs []string, perItem int) ([]*domain.Entry, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	if perItem <= 0 || perItem > MaxEntryListLimit {
		perItem = MaxEntryListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tracked_item_id, entered_by, entry_date, period_label,
			period_start, period_end, input_used, output_count, created_at
		FROM (
			SELECT id::text, tracked_item_id::text, entered_by::text, entry_date, period_label,
				period_start, period_end, input_used, output_count, created_at,
				row_number() OVER (PARTITION BY tracked_item_id ORDER BY created_at DESC) AS rn
			FROM daily_entries
			WHERE tracked_item_id::text = ANY($1)
		) e
		WHERE rn <= $2
		ORDER BY created_at DESC`,
		pq.Array(itemIDs), perItem,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.TrackedItemID, &e.EnteredBy, &e.EntryDate, &e.PeriodLabel,
			&e.PeriodStart, &e.PeriodEnd, &e.InputUsed, &e.OutputCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *PostgresTrackedItemsRepository) ListReadings(ctx context.Context, itemIDs []string) (map[string][]domain.Reading, error) {
	out := make(map[string][]domain.Reading, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT tracked_item_id::text, input_used, output_count
		FROM daily_entries
		WHERE tracked_item_id::text = ANY($1)`,
		pq.Array(itemIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var rd domain.Reading
		if err := rows.Scan(&id, &rd.InputUsed, &rd.OutputCount); err != nil {
			return nil, err
		}
		out[id] = append(out[id], rd)
	}
	return out, rows.Err()
}
