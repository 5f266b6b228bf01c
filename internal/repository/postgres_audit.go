package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"yield/internal/domain"
)

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

func (r *PostgresAuditRepository) AppendAudit(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	meta := rec.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, operation, actor_id, target_id, location_id, ok, error, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)`,
		rec.ID, rec.Action, string(rec.Operation), rec.ActorID, rec.TargetID, rec.LocationID,
		rec.OK, rec.Error, string(meta),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepository) ListAudit(ctx context.Context, filter AuditFilter) ([]*domain.AuditRecord, error) {
	limit := filter.Limit
	if !slices.Contains(AuditPageSizes, limit) {
		limit = AuditPageSizes[0]
	}

	var where []string
	var args []any
	if filter.Operation != "" {
		args = append(args, string(filter.Operation))
		where = append(where, fmt.Sprintf("operation = $%d", len(args)))
	}
	if filter.LocationID != "" {
		args = append(args, filter.LocationID)
		where = append(where, fmt.Sprintf("location_id = $%d", len(args)))
	}

	query := `
		SELECT id::text, created_at, action, operation, actor_id::text, target_id, location_id::text,
			ok, error, COALESCE(metadata::text, '{}')
		FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var op string
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Action, &op, &rec.ActorID, &rec.TargetID,
			&rec.LocationID, &rec.OK, &rec.Error, &meta); err != nil {
			return nil, err
		}
		rec.Operation = domain.AuditOperation(op)
		rec.Metadata = json.RawMessage(meta)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
