package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no archived match has the requested id.
var ErrNotFound = errors.New("match not found in history")

// MatchRow is the archived view of one lobby match.
type MatchRow struct {
	ID        string     `json:"id"`
	SlotA     string     `json:"slotA"`
	SlotB     string     `json:"slotB"`
	Status    string     `json:"status"`
	Winner    string     `json:"winner,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	RemovedAt *time.Time `json:"removedAt,omitempty"`
}

// EventRow is one lifecycle transition of a match.
type EventRow struct {
	ID      int64     `json:"id"`
	MatchID string    `json:"matchId"`
	Kind    string    `json:"kind"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

// Store is an append-only history of match lifecycles. It is never read
// back into the live registry.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: sqlite serializes writers anyway, and every
	// ":memory:" connection would otherwise be its own database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS matches (
			id         TEXT PRIMARY KEY,
			slot_a     TEXT NOT NULL DEFAULT '',
			slot_b     TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL,
			winner     TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			removed_at DATETIME
		);
		CREATE TABLE IF NOT EXISTS match_events (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT NOT NULL,
			kind     TEXT NOT NULL,
			detail   TEXT NOT NULL DEFAULT '',
			at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS match_events_match ON match_events(match_id, id);
	`)
	return err
}

// SaveMatch upserts the latest snapshot of a match.
func (s *Store) SaveMatch(m MatchRow) error {
	_, err := s.db.Exec(`
		INSERT INTO matches (id, slot_a, slot_b, status, winner, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slot_a = excluded.slot_a,
			slot_b = excluded.slot_b,
			status = excluded.status,
			winner = excluded.winner,
			updated_at = excluded.updated_at
	`, m.ID, m.SlotA, m.SlotB, m.Status, m.Winner, m.CreatedAt.UTC(), m.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save match %s: %w", m.ID, err)
	}
	return nil
}

// MarkRemoved stamps the time a match left the live registry.
func (s *Store) MarkRemoved(matchID string, at time.Time) error {
	res, err := s.db.Exec("UPDATE matches SET removed_at = ? WHERE id = ?", at.UTC(), matchID)
	if err != nil {
		return fmt.Errorf("mark removed %s: %w", matchID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordEvent appends one lifecycle transition.
func (s *Store) RecordEvent(matchID, kind, detail string, at time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO match_events (match_id, kind, detail, at) VALUES (?, ?, ?, ?)",
		matchID, kind, detail, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record event %s/%s: %w", matchID, kind, err)
	}
	return nil
}

// GetMatch retrieves one archived match.
func (s *Store) GetMatch(matchID string) (MatchRow, error) {
	row := s.db.QueryRow(`
		SELECT id, slot_a, slot_b, status, winner, created_at, updated_at, removed_at
		FROM matches WHERE id = ?`, matchID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MatchRow{}, ErrNotFound
	}
	return m, err
}

// ListMatches returns archived matches, newest first. limit <= 0 means all.
func (s *Store) ListMatches(limit int) ([]MatchRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, slot_a, slot_b, status, winner, created_at, updated_at, removed_at
		FROM matches ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []MatchRow{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// Events returns a match's transitions in the order they were recorded.
func (s *Store) Events(matchID string) ([]EventRow, error) {
	rows, err := s.db.Query(
		"SELECT id, match_id, kind, detail, at FROM match_events WHERE match_id = ? ORDER BY id",
		matchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []EventRow{}
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.ID, &e.MatchID, &e.Kind, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(sc scanner) (MatchRow, error) {
	var (
		m       MatchRow
		removed sql.NullTime
	)
	if err := sc.Scan(&m.ID, &m.SlotA, &m.SlotB, &m.Status, &m.Winner, &m.CreatedAt, &m.UpdatedAt, &removed); err != nil {
		return MatchRow{}, err
	}
	if removed.Valid {
		t := removed.Time
		m.RemovedAt = &t
	}
	return m, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
