package domain

import (
	"database/sql"
	"encoding/json"
	"time"
)

// AuditOperation is the coarse kind of mutation, used for filtering.
type AuditOperation string

const (
	AuditInsert AuditOperation = "INSERT"
	AuditUpdate AuditOperation = "UPDATE"
	AuditDelete AuditOperation = "DELETE"
)

// AuditRecord maps audit_log. Written for every mutating call, failures included.
type AuditRecord struct {
	ID         string          `db:"id"`
	CreatedAt  time.Time       `db:"created_at"`
	Action     string          `db:"action"`
	Operation  AuditOperation  `db:"operation"`
	ActorID    string          `db:"actor_id"`
	TargetID   sql.NullString  `db:"target_id"`
	LocationID sql.NullString  `db:"location_id"`
	OK         bool            `db:"ok"`
	Error      sql.NullString  `db:"error"`
	Metadata   json.RawMessage `db:"metadata"`
}
