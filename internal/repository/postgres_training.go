package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"yield/internal/domain"
)

type PostgresTrainingRepository struct {
	db *sql.DB
}

func NewPostgresTrainingRepository(db *sql.DB) *PostgresTrainingRepository {
	return &PostgresTrainingRepository{db: db}
}

var _ TrainingRepository = (*PostgresTrainingRepository)(nil)

const trainingColumns = `
	s.id::text, s.location_id::text, s.employee_id::text, s.assigned_by::text,
	s.starts_at, s.ends_at, s.status, s.created_at,
	COALESCE(array_agg(i.tracked_item_id::text ORDER BY i.created_at) FILTER (WHERE i.id IS NOT NULL), '{}')`

func scanTraining(sc rowScanner) (*domain.TrainingSession, error) {
	var s domain.TrainingSession
	var status string
	var items pq.StringArray
	if err := sc.Scan(&s.ID, &s.LocationID, &s.EmployeeID, &s.AssignedBy, &s.StartsAt, &s.EndsAt,
		&status, &s.CreatedAt, &items); err != nil {
		return nil, err
	}
	st, err := domain.ParseTrainingStatus(status)
	if err != nil {
		return nil, fmt.Errorf("training session %s: %w", s.ID, err)
	}
	s.Status = st
	s.ItemIDs = []string(items)
	return &s, nil
}

func (r *PostgresTrainingRepository) GetSession(ctx context.Context, id string) (*domain.TrainingSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	s, err := scanTraining(r.db.QueryRowContext(ctx, `
		SELECT`+trainingColumns+`
		FROM training_sessions s
		LEFT JOIN training_session_items i ON i.training_session_id = s.id
		WHERE s.id = $1
		GROUP BY s.id`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *PostgresTrainingRepository) ListSessions(ctx context.Context, filter TrainingFilter) ([]*domain.TrainingSession, error) {
	var ids any
	if filter.LocationIDs != nil {
		ids = pq.Array(filter.LocationIDs)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+trainingColumns+`
		FROM training_sessions s
		LEFT JOIN training_session_items i ON i.training_session_id = s.id
		WHERE ($1::text[] IS NULL OR s.location_id::text = ANY($1))
		  AND ($2 = '' OR s.employee_id::text = $2)
		GROUP BY s.id
		ORDER BY s.starts_at DESC`,
		ids, filter.EmployeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list training sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.TrainingSession
	for rows.Next() {
		s, err := scanTraining(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresTrainingRepository) CreateSession(ctx context.Context, s *domain.TrainingSession) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO training_sessions (id, location_id, employee_id, assigned_by, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		s.ID, s.LocationID, s.EmployeeID, s.AssignedBy, s.StartsAt, s.EndsAt, string(s.Status),
	).Scan(&s.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("create training session: %w", err)
	}
	if err := insertTrainingItems(ctx, tx, s.ID, s.ItemIDs); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return s.ID, nil
}

func (r *PostgresTrainingRepository) UpdateSession(ctx context.Context, s *domain.TrainingSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE training_sessions SET starts_at = $2, ends_at = $3, status = $4
		WHERE id = $1`,
		s.ID, s.StartsAt, s.EndsAt, string(s.Status),
	)
	if err != nil {
		return fmt.Errorf("update training session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM training_session_items
		WHERE training_session_id = $1 AND NOT (tracked_item_id::text = ANY($2))`,
		s.ID, pq.Array(s.ItemIDs)); err != nil {
		return fmt.Errorf("prune training items: %w", err)
	}
	if err := insertTrainingItems(ctx, tx, s.ID, s.ItemIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTrainingItems(ctx context.Context, tx *sql.Tx, sessionID string, itemIDs []string) error {
	for _, itemID := range itemIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO training_session_items (id, training_session_id, tracked_item_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (training_session_id, tracked_item_id) DO NOTHING`,
			uuid.NewString(), sessionID, itemID); err != nil {
			return fmt.Errorf("add training item: %w", err)
		}
	}
	return nil
}

func (r *PostgresTrainingRepository) CompleteSession(ctx context.Context, sessionID, employeeID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO training_completions (id, training_session_id, employee_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (training_session_id, employee_id) DO NOTHING`,
		uuid.NewString(), sessionID, employeeID,
	)
	if err != nil {
		return false, fmt.Errorf("complete training: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE training_sessions SET status = 'completed' WHERE id = $1`, sessionID); err != nil {
			return false, fmt.Errorf("mark session completed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return n > 0, nil
}
