package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/live-logic-core/internal/infrastructure/database"
)

const defaultListLimit = 50

// RunStore persists completed run reports.
type RunStore interface {
	// SaveRun records a completed run.
	SaveRun(ctx context.Context, result Result) error
	// GetRun returns the full report for a run ID.
	// Returns ErrRunNotFound when no such run exists.
	GetRun(ctx context.Context, runID string) (Result, error)
	// ListRuns returns summaries of the most recent runs, newest
	// first. A limit of 0 or less selects the default of 50.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary is the list-view projection of a stored run.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	TrackIndex     int       `json:"track_index"`
	Description    string    `json:"description,omitempty"`
	Success        bool      `json:"success"`
	DryRun         bool      `json:"dry_run"`
	Phase          Phase     `json:"phase_reached"`
	DevicesPlanned int       `json:"devices_planned"`
	DevicesLoaded  int       `json:"devices_loaded"`
	DurationMS     float64   `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// SQLiteRunStore implements RunStore using SQLite. The full report is
// stored as a JSON blob alongside indexed summary columns.
type SQLiteRunStore struct {
	db *database.DB
}

// NewSQLiteRunStore creates a SQLite-backed run store.
func NewSQLiteRunStore(db *database.DB) *SQLiteRunStore {
	return &SQLiteRunStore{db: db}
}

// SaveRun implements RunStore.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling run result: %w", err)
	}

	query := `
		INSERT INTO pipeline_runs (
			run_id, track_index, description, success, dry_run, phase_reached,
			devices_planned, devices_loaded, params_planned, params_set,
			params_verified, params_skipped, advisory_calls, error_count,
			warning_count, duration_ms, result_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		result.RunID,
		result.TrackIndex,
		result.Description,
		boolToInt(result.Success),
		boolToInt(result.DryRun),
		string(result.Phase),
		result.TotalDevicesPlanned,
		result.TotalDevicesLoaded,
		result.TotalParamsPlanned,
		result.TotalParamsSet,
		result.TotalParamsVerified,
		result.TotalParamsSkipped,
		result.AdvisoryCallsUsed,
		len(result.Errors),
		len(result.Warnings),
		result.TotalTimeMS,
		string(payload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", result.RunID, err)
	}
	return nil
}

// GetRun implements RunStore.
func (s *SQLiteRunStore) GetRun(ctx context.Context, runID string) (Result, error) {
	var payload string
	query := `SELECT result_json FROM pipeline_runs WHERE run_id = ?`

	err := s.db.QueryRowContext(ctx, query, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("querying run %s: %w", runID, err)
	}

	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return Result{}, fmt.Errorf("unmarshaling run %s: %w", runID, err)
	}
	return result, nil
}

// ListRuns implements RunStore.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT run_id, track_index, description, success, dry_run, phase_reached,
			devices_planned, devices_loaded, duration_ms, created_at
		FROM pipeline_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r         RunSummary
			success   int
			dryRun    int
			phase     string
			createdAt string
		)
		if err := rows.Scan(&r.RunID, &r.TrackIndex, &r.Description, &success, &dryRun,
			&phase, &r.DevicesPlanned, &r.DevicesLoaded, &r.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Success = success != 0
		r.DryRun = dryRun != 0
		r.Phase = Phase(phase)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
