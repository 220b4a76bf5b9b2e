package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Tiliavir/study-timer/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS study_sessions (
    id uuid PRIMARY KEY,
    shadow_id text NOT NULL,
    subject text NOT NULL DEFAULT '',
    started_at timestamptz NOT NULL,
    ended_at timestamptz
);

CREATE INDEX IF NOT EXISTS study_sessions_started_at_idx
ON study_sessions (started_at DESC);

CREATE INDEX IF NOT EXISTS study_sessions_shadow_id_idx
ON study_sessions (shadow_id);

CREATE INDEX IF NOT EXISTS study_sessions_open_idx
ON study_sessions (started_at DESC) WHERE ended_at IS NULL;
`

// PostgresStore keeps sessions in a PostgreSQL table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to dsn and ensures the sessions table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("connecting", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating study_sessions: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, subject string, startedAt time.Time) (model.Session, error) {
	sess := newSession(subject, startedAt)
	if err := s.Insert(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, sess model.Session) error {
	var ended sql.NullTime
	if sess.EndedAt != nil {
		ended = sql.NullTime{Time: *sess.EndedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO study_sessions (id, shadow_id, subject, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			shadow_id = EXCLUDED.shadow_id,
			subject = EXCLUDED.subject,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at
	`,
		sess.ID,
		sess.ShadowID,
		sess.Subject,
		sess.StartedAt,
		ended,
	)
	if err != nil {
		return unavailable("inserting session", err)
	}
	return nil
}

// postgresCloseQuery builds the locking select-and-update for f. $1 is the
// end time. Open-only selections skip rows locked by a concurrent stop so
// that racing callers move on to a different open session.
func postgresCloseQuery(f Filter, endedAt time.Time) (string, []any) {
	where, args := whereClause(f, func(n int) string { return fmt.Sprintf("$%d", n+1) })
	lock := "FOR UPDATE"
	if f.OpenOnly {
		lock += " SKIP LOCKED"
	}
	q := `
		WITH target AS (
			SELECT id, ended_at IS NULL AS was_open
			FROM study_sessions
			WHERE ` + where + `
			ORDER BY started_at DESC
			LIMIT 1
			` + lock + `
		)
		UPDATE study_sessions AS s
		SET ended_at = COALESCE(s.ended_at, $1)
		FROM target
		WHERE s.id = target.id
		RETURNING s.id, s.shadow_id, s.subject, s.started_at, s.ended_at, target.was_open
	`
	return q, append([]any{endedAt}, args...)
}

// CloseOne implements Store.
func (s *PostgresStore) CloseOne(ctx context.Context, f Filter, endedAt time.Time) (model.Session, bool, error) {
	f, ok := f.canonical()
	if !ok {
		return model.Session{}, false, ErrNoMatch
	}

	q, args := postgresCloseQuery(f, endedAt.UTC())
	var (
		sess    model.Session
		ended   sql.NullTime
		changed bool
	)
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&sess.ID, &sess.ShadowID, &sess.Subject, &sess.StartedAt, &ended, &changed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, false, ErrNoMatch
	}
	if err != nil {
		return model.Session{}, false, unavailable("closing session", err)
	}
	sess.StartedAt = sess.StartedAt.UTC()
	if ended.Valid {
		t := ended.Time.UTC()
		sess.EndedAt = &t
	}
	return sess, changed, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]model.Session, error) {
	q := `SELECT id, shadow_id, subject, started_at, ended_at FROM study_sessions ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanPostgresSession(rows)
		if err != nil {
			return nil, unavailable("listing sessions", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("listing sessions", err)
	}
	return sessions, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanPostgresSession(row rowScanner) (model.Session, error) {
	var (
		sess  model.Session
		ended sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.ShadowID, &sess.Subject, &sess.StartedAt, &ended); err != nil {
		return model.Session{}, err
	}
	sess.StartedAt = sess.StartedAt.UTC()
	if ended.Valid {
		t := ended.Time.UTC()
		sess.EndedAt = &t
	}
	return sess, nil
}
