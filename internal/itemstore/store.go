// Package itemstore persists queue items in SQLite. It implements the
// speech.ItemStore contract consumed by the playback controller.
package itemstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/voicedeck/voicedeck/speech"
)

const schema = `
CREATE TABLE IF NOT EXISTS speech_items (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid          TEXT NOT NULL UNIQUE,
    session_id    TEXT NOT NULL,
    text          TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending',
    position      INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL,
    started_at    TEXT,
    completed_at  TEXT,
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    voice_id      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_speech_items_status ON speech_items(status);
CREATE INDEX IF NOT EXISTS idx_speech_items_session ON speech_items(session_id);
`

// Store manages queue item persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the item database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Add inserts a new pending item at the end of the pending block and returns
// it with its server-assigned id and UUID.
func (s *Store) Add(ctx context.Context, text, sessionID string) (*speech.QueueItem, error) {
	now := time.Now().UTC()

	var position sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM speech_items WHERE status = ?`, speech.StatusPending,
	).Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("next position: %w", err)
	}
	next := 0
	if position.Valid {
		next = int(position.Int64) + 1
	}

	itemUUID := uuid.NewString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO speech_items (uuid, session_id, text, status, position, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		itemUUID, sessionID, text, speech.StatusPending, next, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.getByID(ctx, id)
}

// List returns items ordered by position then id, optionally filtered by
// status.
func (s *Store) List(ctx context.Context, statuses ...speech.Status) ([]speech.QueueItem, error) {
	query := `SELECT id, uuid, session_id, text, status, position, created_at,
                     started_at, completed_at, duration_ms, error_message, voice_id
              FROM speech_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (?" + strings.Repeat(",?", len(statuses)-1) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY position ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]speech.QueueItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// UpdateStatus persists a status transition. Playing stamps started_at,
// terminal statuses stamp completed_at; resetting to pending clears both.
func (s *Store) UpdateStatus(ctx context.Context, itemUUID string, status speech.Status, durationMs int64, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var res sql.Result
	var err error
	switch status {
	case speech.StatusPlaying:
		res, err = s.db.ExecContext(ctx,
			`UPDATE speech_items SET status = ?, started_at = ?, error_message = '' WHERE uuid = ?`,
			status, now, itemUUID)
	case speech.StatusCompleted, speech.StatusFailed:
		res, err = s.db.ExecContext(ctx,
			`UPDATE speech_items SET status = ?, completed_at = ?, duration_ms = ?, error_message = ? WHERE uuid = ?`,
			status, now, durationMs, errorMessage, itemUUID)
	case speech.StatusPending:
		res, err = s.db.ExecContext(ctx,
			`UPDATE speech_items
             SET status = ?, started_at = NULL, completed_at = NULL, duration_ms = 0, error_message = ''
             WHERE uuid = ?`,
			status, itemUUID)
	default:
		res, err = s.db.ExecContext(ctx,
			`UPDATE speech_items SET status = ? WHERE uuid = ?`, status, itemUUID)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireRow(res)
}

// Remove deletes a single item by UUID.
func (s *Store) Remove(ctx context.Context, itemUUID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM speech_items WHERE uuid = ?`, itemUUID)
	if err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return requireRow(res)
}

// Reorder moves a pending item to a new position, shifting the items between
// the old and new slots.
func (s *Store) Reorder(ctx context.Context, itemUUID string, newPosition int) error {
	if newPosition < 0 {
		newPosition = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldPosition int
	err = tx.QueryRowContext(ctx,
		`SELECT position FROM speech_items WHERE uuid = ?`, itemUUID,
	).Scan(&oldPosition)
	if err == sql.ErrNoRows {
		return speech.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}
	if oldPosition == newPosition {
		return tx.Commit()
	}

	if newPosition > oldPosition {
		_, err = tx.ExecContext(ctx,
			`UPDATE speech_items SET position = position - 1
             WHERE status = ? AND position > ? AND position <= ?`,
			speech.StatusPending, oldPosition, newPosition)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE speech_items SET position = position + 1
             WHERE status = ? AND position >= ? AND position < ?`,
			speech.StatusPending, newPosition, oldPosition)
	}
	if err != nil {
		return fmt.Errorf("shift positions: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE speech_items SET position = ? WHERE uuid = ?`, newPosition, itemUUID); err != nil {
		return fmt.Errorf("move item: %w", err)
	}
	return tx.Commit()
}

// ClearCompleted removes completed items older than the given number of days
// (zero removes all completed items) and reports how many were removed.
func (s *Store) ClearCompleted(ctx context.Context, olderThanDays int) (int64, error) {
	var res sql.Result
	var err error
	if olderThanDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(time.RFC3339Nano)
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM speech_items WHERE status = ? AND completed_at < ?`,
			speech.StatusCompleted, cutoff)
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM speech_items WHERE status = ?`, speech.StatusCompleted)
	}
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}

func (s *Store) getByID(ctx context.Context, id int64) (*speech.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, session_id, text, status, position, created_at,
                started_at, completed_at, duration_ms, error_message, voice_id
         FROM speech_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, speech.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (speech.QueueItem, error) {
	var item speech.QueueItem
	var status, createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(
		&item.ID, &item.UUID, &item.SessionID, &item.Text, &status, &item.Position,
		&createdAt, &startedAt, &completedAt, &item.DurationMs, &item.ErrorMessage,
		&item.VoiceID,
	)
	if err != nil {
		return speech.QueueItem{}, err
	}

	parsed, ok := speech.ParseStatus(status)
	if !ok {
		return speech.QueueItem{}, fmt.Errorf("unknown status %q for item %d", status, item.ID)
	}
	item.Status = parsed
	item.CreatedAt = parseTime(createdAt)
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		item.StartedAt = &t
	}
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		item.CompletedAt = &t
	}
	return item, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return speech.ErrItemNotFound
	}
	return nil
}
