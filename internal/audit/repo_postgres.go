package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists audit events in Postgres. INSERT-only by contract;
// retention is an ops concern, not an API.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_events (
  id         TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL,
  type       TEXT NOT NULL,
  session_id TEXT,
  message    TEXT,
  metadata   TEXT,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_user_idx ON audit_events (user_id, created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, user_id, type, session_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		string(e.Type),
		e.SessionID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
