package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore keeps membership states in a local SQLite file so a
// single-node deployment without Postgres survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the state database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "lumra-state.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the tracker already serializes per pair.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS membership_states (
		elderly_id        TEXT NOT NULL,
		geofence_id       TEXT NOT NULL,
		inside            INTEGER NOT NULL,
		last_changed_at   TEXT NOT NULL,
		last_observed_at  TEXT NOT NULL,
		confidence_streak INTEGER NOT NULL DEFAULT 0,
		updated_at        TEXT NOT NULL,
		PRIMARY KEY (elderly_id, geofence_id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create membership_states table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_membership_geofence ON membership_states (geofence_id)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create geofence index: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key PairKey) (State, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT elderly_id, geofence_id, inside, last_changed_at,
		last_observed_at, confidence_streak, updated_at
		FROM membership_states WHERE elderly_id = ? AND geofence_id = ?`,
		key.ElderlyID, key.GeofenceID)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, state State) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO membership_states
		(elderly_id, geofence_id, inside, last_changed_at, last_observed_at, confidence_streak, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(elderly_id, geofence_id) DO UPDATE SET
			inside = excluded.inside,
			last_changed_at = excluded.last_changed_at,
			last_observed_at = excluded.last_observed_at,
			confidence_streak = excluded.confidence_streak,
			updated_at = excluded.updated_at`,
		state.ElderlyID, state.GeofenceID, boolToInt(state.Inside),
		formatTime(state.LastChangedAt), formatTime(state.LastObservedAt),
		state.ConfidenceStreak, formatTime(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert membership state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, elderlyID string) ([]State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT elderly_id, geofence_id, inside, last_changed_at,
		last_observed_at, confidence_streak, updated_at
		FROM membership_states WHERE elderly_id = ?`, elderlyID)
	if err != nil {
		return nil, fmt.Errorf("select membership states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []State{}
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteGeofence(ctx context.Context, geofenceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM membership_states WHERE geofence_id = ?`, geofenceID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (State, error) {
	var st State
	var inside int
	var changed, observed, updatedAt string
	if err := row.Scan(&st.ElderlyID, &st.GeofenceID, &inside, &changed, &observed, &st.ConfidenceStreak, &updatedAt); err != nil {
		return State{}, err
	}
	st.Inside = inside != 0
	var err error
	if st.LastChangedAt, err = parseTime(changed); err != nil {
		return State{}, err
	}
	if st.LastObservedAt, err = parseTime(observed); err != nil {
		return State{}, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return State{}, err
	}
	return st, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
