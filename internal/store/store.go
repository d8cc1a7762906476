// Package store persists sync and export tracking state in SQLite.
//
// Three tables mirror the remote service: groups, processes and forms. A fourth,
// runs, records the history of export runs. All mutation is single-row
// insert-if-absent or update statements.
package store

import (
	"context"
	"time"

	"go-cube-export/internal/model"
)

// MetadataStore is the tracking store used by sync and export.
type MetadataStore interface {
	UpsertGroup(ctx context.Context, g model.Group) error
	UpsertProcess(ctx context.Context, p model.Process) error
	UpsertForm(ctx context.Context, f model.Form) error

	GroupName(ctx context.Context, groupID int64) (string, error)
	GetProcess(ctx context.Context, processID int64) (model.Process, error)
	ProcessEnabled(ctx context.Context, processID int64) (bool, error)
	ListEnabledProcesses(ctx context.Context) ([]model.Process, error)

	// ResetProcess sets Completed back to false for every form of the process.
	ResetProcess(ctx context.Context, processID int64) error
	// PendingForms lists the ids of forms not yet completed.
	PendingForms(ctx context.Context, processID int64) ([]int64, error)

	// Session hands out a dedicated connection for one export worker.
	Session(ctx context.Context) (FormSession, error)
}

// FormSession is a worker-owned connection. Close releases it.
type FormSession interface {
	MarkFormComplete(ctx context.Context, processID, formID int64) error
	Close() error
}

// RunLog records run history.
type RunLog interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, exported int, finishedAt time.Time) error
}

// StatusReader serves the read side of the status surface.
type StatusReader interface {
	ListProgress(ctx context.Context) ([]model.ProcessProgress, error)
	ProcessProgress(ctx context.Context, processID int64) (model.ProcessProgress, error)
	SetProcessEnabled(ctx context.Context, processID int64, enabled bool) error
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	GetRun(ctx context.Context, runID string) (model.RunRecord, error)
}

var (
	_ MetadataStore = (*SQLStore)(nil)
	_ RunLog        = (*SQLStore)(nil)
	_ StatusReader  = (*SQLStore)(nil)
)
