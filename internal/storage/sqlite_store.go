package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tiliavir/study-timer/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  shadow_id TEXT NOT NULL,
  subject TEXT NOT NULL DEFAULT '',
  started_at INTEGER NOT NULL,
  ended_at INTEGER
);
CREATE INDEX IF NOT EXISTS sessions_started_at_idx ON sessions (started_at);
CREATE INDEX IF NOT EXISTS sessions_shadow_id_idx ON sessions (shadow_id);
`

const sqliteColumns = `id, shadow_id, subject, started_at, ended_at`

// SQLiteStore keeps sessions in an embedded SQLite database. Timestamps are
// stored as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes all statements of this process.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, subject string, startedAt time.Time) (model.Session, error) {
	sess := newSession(subject, startedAt)
	if err := s.Insert(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, sess model.Session) error {
	const stmt = `
INSERT INTO sessions (id, shadow_id, subject, started_at, ended_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  shadow_id=excluded.shadow_id,
  subject=excluded.subject,
  started_at=excluded.started_at,
  ended_at=excluded.ended_at;
`
	var ended sql.NullInt64
	if sess.EndedAt != nil {
		ended = sql.NullInt64{Int64: sess.EndedAt.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, stmt,
		sess.ID,
		sess.ShadowID,
		sess.Subject,
		sess.StartedAt.UnixNano(),
		ended,
	)
	if err != nil {
		return unavailable("inserting session", err)
	}
	return nil
}

// sqliteCloseQuery builds the single-statement close for f. It only touches
// the latest matching session while that one is still open. The first
// argument is the end time.
func sqliteCloseQuery(f Filter, endedAt time.Time) (string, []any) {
	where, args := whereClause(f, func(int) string { return "?" })
	q := `UPDATE sessions SET ended_at = ?
WHERE id = (SELECT id FROM sessions WHERE ` + where + ` ORDER BY started_at DESC LIMIT 1)
  AND ended_at IS NULL
RETURNING ` + sqliteColumns
	return q, append([]any{endedAt.UnixNano()}, args...)
}

// sqliteLatestQuery selects the latest session matching f.
func sqliteLatestQuery(f Filter) (string, []any) {
	where, args := whereClause(f, func(int) string { return "?" })
	return `SELECT ` + sqliteColumns + ` FROM sessions WHERE ` + where + ` ORDER BY started_at DESC LIMIT 1`, args
}

// CloseOne implements Store. When the latest match is already closed the
// update affects no row and the session is read back unchanged.
func (s *SQLiteStore) CloseOne(ctx context.Context, f Filter, endedAt time.Time) (model.Session, bool, error) {
	f, ok := f.canonical()
	if !ok {
		return model.Session{}, false, ErrNoMatch
	}

	q, args := sqliteCloseQuery(f, endedAt.UTC())
	sess, err := scanSQLiteSession(s.db.QueryRowContext(ctx, q, args...))
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, false, unavailable("closing session", err)
	}

	q, args = sqliteLatestQuery(f)
	sess, err = scanSQLiteSession(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, false, ErrNoMatch
	}
	if err != nil {
		return model.Session{}, false, unavailable("reading session", err)
	}
	return sess, false, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSQLiteSession(rows)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteSession(row rowScanner) (model.Session, error) {
	var (
		sess    model.Session
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.ShadowID, &sess.Subject, &started, &ended); err != nil {
		return model.Session{}, err
	}
	sess.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		sess.EndedAt = &t
	}
	return sess, nil
}
