package recovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/live-logic-core/internal/infrastructure/database"
)

// snapshotKeep bounds the session_snapshots table. Snapshots are only
// useful for the most recent crash, so older rows are pruned on save.
const snapshotKeep = 20

// SessionSnapshot captures the minimal session state worth carrying
// across a workstation restart: tempo plus per-track name and volume.
// Device chains are rebuilt by replaying plans, not from snapshots.
type SessionSnapshot struct {
	SavedAt time.Time       `json:"saved_at"`
	Reason  string          `json:"reason"`
	Tempo   float64         `json:"tempo"`
	Tracks  []TrackSnapshot `json:"tracks"`
}

// TrackSnapshot is one track's mixer state at capture time.
type TrackSnapshot struct {
	Index  int     `json:"index"`
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
}

// SnapshotStore persists session snapshots across daemon restarts.
type SnapshotStore interface {
	// SaveSnapshot records a snapshot, pruning old rows.
	SaveSnapshot(ctx context.Context, snap SessionSnapshot) error
	// LatestSnapshot returns the most recent snapshot.
	// Returns ErrNoSnapshot when none has been saved.
	LatestSnapshot(ctx context.Context) (SessionSnapshot, error)
}

// SQLiteSnapshotStore implements SnapshotStore using SQLite. The full
// snapshot is stored as a JSON blob alongside summary columns.
type SQLiteSnapshotStore struct {
	db *database.DB
}

// NewSQLiteSnapshotStore creates a SQLite-backed snapshot store.
func NewSQLiteSnapshotStore(db *database.DB) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{db: db}
}

// SaveSnapshot implements SnapshotStore.
func (s *SQLiteSnapshotStore) SaveSnapshot(ctx context.Context, snap SessionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	query := `INSERT INTO session_snapshots (saved_at, reason, payload_json) VALUES (?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		snap.SavedAt.UTC().Format(time.RFC3339),
		snap.Reason,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	// Prune in the same call so the table stays bounded without a
	// separate maintenance path. Best effort: a failed prune never
	// fails the save.
	prune := `
		DELETE FROM session_snapshots WHERE id NOT IN (
			SELECT id FROM session_snapshots ORDER BY id DESC LIMIT ?
		)`
	_, _ = s.db.ExecContext(ctx, prune, snapshotKeep)
	return nil
}

// LatestSnapshot implements SnapshotStore.
func (s *SQLiteSnapshotStore) LatestSnapshot(ctx context.Context) (SessionSnapshot, error) {
	var payload string
	query := `SELECT payload_json FROM session_snapshots ORDER BY id DESC LIMIT 1`

	err := s.db.QueryRowContext(ctx, query).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionSnapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var snap SessionSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return SessionSnapshot{}, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return snap, nil
}
