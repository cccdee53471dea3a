package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-copilot/internal/calls"
	"voice-copilot/pkg/utils"
)

// PostgresRepo is the production Repository backed by Postgres through
// database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// EnsureSchema creates the tables if they do not exist. Deployments with a
// real migration pipeline can skip this and own the schema themselves.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id              TEXT PRIMARY KEY,
  user_id         TEXT NOT NULL,
  context         TEXT NOT NULL,
  started_at      TIMESTAMPTZ NOT NULL,
  ended_at        TIMESTAMPTZ,
  logging_enabled BOOLEAN NOT NULL,
  summary_status  TEXT NOT NULL DEFAULT 'none'
);
CREATE INDEX IF NOT EXISTS sessions_user_started_idx ON sessions (user_id, started_at DESC);

CREATE TABLE IF NOT EXISTS turns (
  id         TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  ts         TIMESTAMPTZ NOT NULL,
  speaker    TEXT NOT NULL,
  text       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_session_ts_idx ON turns (session_id, ts);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *PostgresRepo) CreateSession(ctx context.Context, s Session) error {
	const q = `
INSERT INTO sessions (id, user_id, context, started_at, ended_at, logging_enabled, summary_status)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.UserID,
		string(s.Context),
		s.StartedAt,
		s.EndedAt,
		s.LoggingEnabled,
		string(s.SummaryStatus),
	)
	return err
}

func (r *PostgresRepo) GetSession(ctx context.Context, userID, id string) (Session, error) {
	const q = `
SELECT id, user_id, context, started_at, ended_at, logging_enabled, summary_status
FROM sessions
WHERE user_id = $1 AND id = $2
`
	return scanSession(r.db.QueryRowContext(ctx, q, userID, id))
}

func (r *PostgresRepo) EndSession(ctx context.Context, userID, id string, endedAt time.Time, status SummaryStatus) (Session, error) {
	var out Session
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row to serialize a concurrent end against appends.
		const sel = `
SELECT id, user_id, context, started_at, ended_at, logging_enabled, summary_status
FROM sessions
WHERE user_id = $1 AND id = $2
FOR UPDATE
`
		s, err := scanSession(tx.QueryRowContext(ctx, sel, userID, id))
		if err != nil {
			return err
		}
		if !s.Open() {
			return ErrSessionEnded
		}

		const upd = `
UPDATE sessions SET ended_at = $1, summary_status = $2
WHERE user_id = $3 AND id = $4
`
		if _, err := tx.ExecContext(ctx, upd, endedAt, string(status), userID, id); err != nil {
			return err
		}
		s.EndedAt = &endedAt
		s.SummaryStatus = status
		out = s
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return out, nil
}

func (r *PostgresRepo) ListSessions(ctx context.Context, userID string, limit, offset int) ([]Session, error) {
	const q = `
SELECT id, user_id, context, started_at, ended_at, logging_enabled, summary_status
FROM sessions
WHERE user_id = $1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) AppendTurn(ctx context.Context, userID string, t Turn) (Turn, error) {
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const sel = `
SELECT id, user_id, context, started_at, ended_at, logging_enabled, summary_status
FROM sessions
WHERE user_id = $1 AND id = $2
FOR UPDATE
`
		s, err := scanSession(tx.QueryRowContext(ctx, sel, userID, t.SessionID))
		if err != nil {
			return err
		}
		if !s.Open() {
			return ErrSessionEnded
		}

		const ins = `
INSERT INTO turns (id, session_id, ts, speaker, text)
VALUES ($1,$2,$3,$4,$5)
`
		_, err = tx.ExecContext(ctx, ins, t.ID, t.SessionID, t.Timestamp, string(t.Speaker), t.Text)
		return err
	})
	if err != nil {
		return Turn{}, err
	}
	return t, nil
}

func (r *PostgresRepo) ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	// Join through sessions so ownership is enforced in one query.
	const q = `
SELECT t.id, t.session_id, t.ts, t.speaker, t.text
FROM turns t
JOIN sessions s ON s.id = t.session_id
WHERE s.user_id = $1 AND t.session_id = $2
ORDER BY t.ts ASC
`
	rows, err := r.db.QueryContext(ctx, q, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Turn{}
	for rows.Next() {
		var t Turn
		var speaker string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Timestamp, &speaker, &t.Text); err != nil {
			return nil, err
		}
		t.Speaker = calls.Speaker(speaker)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		// Distinguish "no turns" from "not your session".
		if _, err := r.GetSession(ctx, userID, sessionID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PostgresRepo) DeleteSession(ctx context.Context, userID, id string) error {
	const q = `DELETE FROM sessions WHERE user_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, userID, id)
	if err != nil {
		return err
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

func (r *PostgresRepo) DeleteAllSessions(ctx context.Context, userID string) error {
	const q = `DELETE FROM sessions WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, q, userID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var context, status string
	var endedAt sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &context, &s.StartedAt, &endedAt, &s.LoggingEnabled, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	s.Context = calls.Context(context)
	s.SummaryStatus = SummaryStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return s, nil
}
