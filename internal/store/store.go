// Package store persists audit sessions in SQLite so later commands can act
// on the working discrepancy set of a prior run.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/syncshop/catalog-audit/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = errors.New("store: session not found")

// Store is a session store backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect %s: %w", path, err)
	}

	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSession inserts the session or replaces the stored copy with the same id.
func (s *Store) SaveSession(ctx context.Context, sess domain.AuditSession) error {
	if err := domain.ValidateSession(sess); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("store: encode session %s: %w", sess.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at, feed_file, clearance_feed, mode, discrepancies, missing, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at    = excluded.updated_at,
			discrepancies = excluded.discrepancies,
			missing       = excluded.missing,
			payload       = excluded.payload`,
		sess.ID, sess.CreatedAt, time.Now().UTC().Format(time.RFC3339Nano),
		sess.FeedFile, sess.ClearanceFeed, string(sess.Mode),
		len(sess.Discrepancies), len(sess.Missing), string(payload),
	)
	if err != nil {
		return fmt.Errorf("store: save session %s: %w", sess.ID, err)
	}
	return nil
}

// LoadSession returns the stored session, or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, id string) (domain.AuditSession, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuditSession{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.AuditSession{}, fmt.Errorf("store: load session %s: %w", id, err)
	}
	var sess domain.AuditSession
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return domain.AuditSession{}, fmt.Errorf("store: decode session %s: %w", id, err)
	}
	return sess, nil
}

// Latest returns the most recently created session, or ErrNotFound.
func (s *Store) Latest(ctx context.Context) (domain.AuditSession, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuditSession{}, ErrNotFound
	}
	if err != nil {
		return domain.AuditSession{}, fmt.Errorf("store: latest session: %w", err)
	}
	return s.LoadSession(ctx, id)
}

// Listing is one row of ListSessions.
type Listing struct {
	ID            string           `json:"id"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
	FeedFile      string           `json:"feed_file"`
	ClearanceFeed bool             `json:"clearance_feed"`
	Mode          domain.FetchMode `json:"mode"`
	Discrepancies int              `json:"discrepancies"`
	Missing       int              `json:"missing"`
}

// ListSessions returns up to limit sessions, newest first. limit <= 0 means all.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Listing, error) {
	q := `SELECT id, created_at, updated_at, feed_file, clearance_feed, mode, discrepancies, missing
		FROM sessions ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		var l Listing
		var mode string
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt, &l.FeedFile, &l.ClearanceFeed, &mode, &l.Discrepancies, &l.Missing); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		l.Mode = domain.FetchMode(mode)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	return out, nil
}

// DeleteSession removes a session. Deleting an unknown id is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete session %s: %w", id, err)
	}
	return nil
}
