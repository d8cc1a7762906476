package model

import (
	"fmt"
	"time"
)

// SkipKind classifies why a process, form or attachment was not exported.
type SkipKind string

const (
	SkipProcessDisabled  SkipKind = "process_disabled"
	SkipPermissionDenied SkipKind = "permission_denied"
	SkipFormUnavailable  SkipKind = "form_unavailable"
	SkipFormFailed       SkipKind = "form_failed"
	SkipDownloadFailed   SkipKind = "download_failed"
)

// SkipRecord is an end-of-run diagnostic. It is never persisted.
type SkipRecord struct {
	Kind      SkipKind `json:"kind" yaml:"kind"`
	ProcessID int64    `json:"process_id" yaml:"process_id"`
	FormID    int64    `json:"form_id,omitempty" yaml:"form_id,omitempty"`
	Reason    string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (s SkipRecord) String() string {
	if s.FormID != 0 {
		return fmt.Sprintf("%s: process %d form %d: %s", s.Kind, s.ProcessID, s.FormID, s.Reason)
	}
	return fmt.Sprintf("%s: process %d: %s", s.Kind, s.ProcessID, s.Reason)
}

// ExportJob is one worker's unit of work.
type ExportJob struct {
	FormID      int64
	ProcessID   int64
	ProcessName string
	GroupName   string
	OutputDir   string
}

// FormState is the terminal state of one ExportJob.
type FormState string

const (
	FormCompleted FormState = "completed"
	FormSkipped   FormState = "skipped"
	// FormAborted means the job never started because the run was rate limited.
	FormAborted FormState = "aborted"
)

// RunStatus is the lifecycle status recorded for a run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunRateLimited RunStatus = "rate_limited"
	RunFailed      RunStatus = "failed"
)

// SyncResult summarizes the metadata sync phase.
type SyncResult struct {
	Groups    int     `json:"groups" yaml:"groups"`
	Processes int     `json:"processes" yaml:"processes"`
	Forms     int     `json:"forms" yaml:"forms"`
	Archived  []int64 `json:"archived,omitempty" yaml:"archived,omitempty"`
}

// ProcessSummary is the export outcome for one process.
type ProcessSummary struct {
	ProcessID int64         `json:"process_id" yaml:"process_id"`
	Name      string        `json:"name" yaml:"name"`
	Backlog   int           `json:"backlog" yaml:"backlog"`
	Completed int           `json:"completed" yaml:"completed"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Aborted   int           `json:"aborted" yaml:"aborted"`
	Reset     bool          `json:"reset" yaml:"reset"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// RunSummary is returned by a full run.
type RunSummary struct {
	RunID       string           `json:"run_id" yaml:"run_id"`
	StartedAt   time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time        `json:"finished_at" yaml:"finished_at"`
	Status      RunStatus        `json:"status" yaml:"status"`
	RateLimited bool             `json:"rate_limited" yaml:"rate_limited"`
	Sync        *SyncResult      `json:"sync,omitempty" yaml:"sync,omitempty"`
	Processes   []ProcessSummary `json:"processes" yaml:"processes"`
	Skips       []SkipRecord     `json:"skips,omitempty" yaml:"skips,omitempty"`
}

// Exported counts forms completed during the run.
func (s *RunSummary) Exported() int {
	n := 0
	for _, p := range s.Processes {
		n += p.Completed
	}
	return n
}

// SkipsOf filters the skip records by kind.
func (s *RunSummary) SkipsOf(kind SkipKind) []SkipRecord {
	var out []SkipRecord
	for _, rec := range s.Skips {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// RunRecord is the persisted run history row.
type RunRecord struct {
	ID         string     `json:"id" yaml:"id"`
	Status     RunStatus  `json:"status" yaml:"status"`
	Exported   int        `json:"exported" yaml:"exported"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// ProcessProgress is the completed/total form count of one process.
type ProcessProgress struct {
	ProcessID int64  `json:"process_id" yaml:"process_id"`
	Name      string `json:"name" yaml:"name"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Completed int    `json:"completed" yaml:"completed"`
	Total     int    `json:"total" yaml:"total"`
}
