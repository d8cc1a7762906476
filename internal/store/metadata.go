package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-cube-export/internal/model"
)

// UnsortedGroup is the directory used for processes whose group is unknown.
const UnsortedGroup = "Unsorted"

// UpsertGroup inserts the group if its id is unknown. Existing rows are left alone.
func (s *SQLStore) UpsertGroup(ctx context.Context, g model.Group) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO "groups" (ID, Name) VALUES (?, ?)`, g.ID, g.Name)
	if err != nil {
		return fmt.Errorf("failed to insert group %d: %w", g.ID, err)
	}
	return nil
}

// UpsertProcess inserts the process if its id is unknown. Enabled keeps whatever
// the operator set on an existing row.
func (s *SQLStore) UpsertProcess(ctx context.Context, p model.Process) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processes
			(ProcessID, Process, Enabled, GroupID, Archived, Fields, RepeatingFields, Added, Modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, bool(p.Enabled), p.GroupID, bool(p.Archived),
		string(p.Fields), string(p.RepeatingFields), string(p.Added), string(p.Modified))
	if err != nil {
		return fmt.Errorf("failed to insert process %d: %w", p.ID, err)
	}
	return nil
}

// UpsertForm inserts the form if (ProcessID, ID) is unknown. Completed is never
// touched here.
func (s *SQLStore) UpsertForm(ctx context.Context, f model.Form) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO forms (ProcessID, Form, Archived, Completed) VALUES (?, ?, ?, 0)`,
		f.ProcessID, f.ID, bool(f.Archived))
	if err != nil {
		return fmt.Errorf("failed to insert form %d: %w", f.ID, err)
	}
	return nil
}

// GroupName resolves a group id, falling back to UnsortedGroup.
func (s *SQLStore) GroupName(ctx context.Context, groupID int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT Name FROM "groups" WHERE ID = ?`, groupID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return UnsortedGroup, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query group %d: %w", groupID, err)
	}
	return name, nil
}

const processColumns = `ProcessID, Process, Enabled, COALESCE(GroupID, 0), Archived,
	COALESCE(Fields, ''), COALESCE(RepeatingFields, ''), COALESCE(Added, ''), COALESCE(Modified, '')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProcess(row rowScanner) (model.Process, error) {
	var (
		p                 model.Process
		enabled, archived bool
		fields, repeating string
		added, modified   string
	)
	if err := row.Scan(&p.ID, &p.Name, &enabled, &p.GroupID, &archived,
		&fields, &repeating, &added, &modified); err != nil {
		return p, err
	}
	p.Enabled = model.Flag(enabled)
	p.Archived = model.Flag(archived)
	p.Fields = model.Text(fields)
	p.RepeatingFields = model.Text(repeating)
	p.Added = model.Text(added)
	p.Modified = model.Text(modified)
	return p, nil
}

// GetProcess loads one process.
func (s *SQLStore) GetProcess(ctx context.Context, processID int64) (model.Process, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+processColumns+` FROM processes WHERE ProcessID = ?`, processID)
	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("process %d: %w", processID, model.ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("failed to query process %d: %w", processID, err)
	}
	return p, nil
}

// ProcessEnabled reports the Enabled flag. Unknown processes are disabled.
func (s *SQLStore) ProcessEnabled(ctx context.Context, processID int64) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		`SELECT Enabled FROM processes WHERE ProcessID = ?`, processID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query process %d: %w", processID, err)
	}
	return enabled, nil
}

// SetProcessEnabled flips the operator freeze toggle.
func (s *SQLStore) SetProcessEnabled(ctx context.Context, processID int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processes SET Enabled = ? WHERE ProcessID = ?`, enabled, processID)
	if err != nil {
		return fmt.Errorf("failed to update process %d: %w", processID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("process %d: %w", processID, model.ErrNotFound)
	}
	return nil
}

// ListEnabledProcesses returns enabled processes in ascending id order.
func (s *SQLStore) ListEnabledProcesses(ctx context.Context) ([]model.Process, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+processColumns+` FROM processes WHERE Enabled = 1 ORDER BY ProcessID ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	defer rows.Close()

	var out []model.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResetProcess marks every form of the process as not completed.
func (s *SQLStore) ResetProcess(ctx context.Context, processID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE forms SET Completed = 0 WHERE ProcessID = ?`, processID); err != nil {
		return fmt.Errorf("failed to reset process %d: %w", processID, err)
	}
	return nil
}

// PendingForms returns the ids of forms not yet completed, oldest first.
func (s *SQLStore) PendingForms(ctx context.Context, processID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT Form FROM forms WHERE ProcessID = ? AND Completed = 0 ORDER BY Form ASC`, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending forms: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan form id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const progressQuery = `
	SELECT p.ProcessID, p.Process, p.Enabled,
		COALESCE(SUM(f.Completed), 0), COUNT(f.Form)
	FROM processes p
	LEFT JOIN forms f ON f.ProcessID = p.ProcessID`

func scanProgress(row rowScanner) (model.ProcessProgress, error) {
	var pp model.ProcessProgress
	err := row.Scan(&pp.ProcessID, &pp.Name, &pp.Enabled, &pp.Completed, &pp.Total)
	return pp, err
}

// ListProgress returns completed/total counts for every process.
func (s *SQLStore) ListProgress(ctx context.Context) ([]model.ProcessProgress, error) {
	rows, err := s.db.QueryContext(ctx, progressQuery+` GROUP BY p.ProcessID ORDER BY p.ProcessID ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	var out []model.ProcessProgress
	for rows.Next() {
		pp, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

// ProcessProgress returns completed/total counts for one process.
func (s *SQLStore) ProcessProgress(ctx context.Context, processID int64) (model.ProcessProgress, error) {
	row := s.db.QueryRowContext(ctx,
		progressQuery+` WHERE p.ProcessID = ? GROUP BY p.ProcessID`, processID)
	pp, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pp, fmt.Errorf("process %d: %w", processID, model.ErrNotFound)
	}
	if err != nil {
		return pp, fmt.Errorf("failed to query progress of %d: %w", processID, err)
	}
	return pp, nil
}
