package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-cube-export/internal/model"
)

// StartRun records a new run in the running state.
func (s *SQLStore) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, exported, started_at) VALUES (?, ?, 0, ?)`,
		runID, string(model.RunRunning), startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stores the final status of a run.
func (s *SQLStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, exported int, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, exported = ?, finished_at = ? WHERE id = ?`,
		string(status), exported, finishedAt.UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	return nil
}

func scanRun(row rowScanner) (model.RunRecord, error) {
	var (
		rec      model.RunRecord
		status   string
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&rec.ID, &status, &rec.Exported, &started, &finished); err != nil {
		return rec, err
	}
	rec.Status = model.RunStatus(status)
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return rec, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	rec.StartedAt = t
	if finished.Valid && finished.String != "" {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return rec, fmt.Errorf("invalid finished_at %q: %w", finished.String, err)
		}
		rec.FinishedAt = &t
	}
	return rec, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, exported, started_at, finished_at FROM runs
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun loads one run.
func (s *SQLStore) GetRun(ctx context.Context, runID string) (model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, exported, started_at, finished_at FROM runs WHERE id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	return rec, nil
}
