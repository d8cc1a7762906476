package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"go-cube-export/internal/model"
)

// ProcessMetrics tracks one process's pool as it drains.
type ProcessMetrics struct {
	ProcessID int64
	Name      string
	Position  int
	Total     int
	StartTime time.Time
	EndTime   *time.Time
	Backlog   int
	Completed int
	Skipped   int
	Aborted   int
	Reset     bool
}

// ProgressTracker records completed/backlog counts per process and logs them
// at every tenth of a backlog.
type ProgressTracker struct {
	Mutex     sync.RWMutex
	processes map[int64]*ProcessMetrics
	order     []int64
	logger    *zap.Logger
}

func NewProgressTracker(logger *zap.Logger) *ProgressTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressTracker{
		processes: make(map[int64]*ProcessMetrics),
		logger:    logger,
	}
}

// StartProcess begins tracking a process pool.
func (pt *ProgressTracker) StartProcess(p model.Process, position, total, backlog int, reset bool) {
	pt.Mutex.Lock()
	defer pt.Mutex.Unlock()

	if _, ok := pt.processes[p.ID]; !ok {
		pt.order = append(pt.order, p.ID)
	}
	pt.processes[p.ID] = &ProcessMetrics{
		ProcessID: p.ID,
		Name:      p.Name,
		Position:  position,
		Total:     total,
		StartTime: time.Now(),
		Backlog:   backlog,
		Reset:     reset,
	}
	pt.logger.Info("exporting process",
		zap.Int64("process_id", p.ID),
		zap.String("process", p.Name),
		zap.Int("position", position),
		zap.Int("of", total),
		zap.Int("backlog", backlog),
	)
}

// Record counts one finished form.
func (pt *ProgressTracker) Record(processID int64, state model.FormState) {
	pt.Mutex.Lock()
	defer pt.Mutex.Unlock()

	m, ok := pt.processes[processID]
	if !ok {
		return
	}
	switch state {
	case model.FormCompleted:
		m.Completed++
	case model.FormSkipped:
		m.Skipped++
	case model.FormAborted:
		m.Aborted++
	}

	step := m.Backlog / 10
	if step == 0 {
		step = 1
	}
	if m.Completed > 0 && state == model.FormCompleted && (m.Completed%step == 0 || m.Completed == m.Backlog) {
		pt.logger.Info("progress",
			zap.String("process", m.Name),
			zap.Int("completed", m.Completed),
			zap.Int("backlog", m.Backlog),
		)
	}
}

// EndProcess closes a process and returns its summary. Forms never dispatched
// count as aborted.
func (pt *ProgressTracker) EndProcess(processID int64) model.ProcessSummary {
	pt.Mutex.Lock()
	defer pt.Mutex.Unlock()

	m, ok := pt.processes[processID]
	if !ok {
		return model.ProcessSummary{ProcessID: processID}
	}
	now := time.Now()
	m.EndTime = &now
	if rest := m.Backlog - m.Completed - m.Skipped - m.Aborted; rest > 0 {
		m.Aborted += rest
	}
	return model.ProcessSummary{
		ProcessID: m.ProcessID,
		Name:      m.Name,
		Backlog:   m.Backlog,
		Completed: m.Completed,
		Skipped:   m.Skipped,
		Aborted:   m.Aborted,
		Reset:     m.Reset,
		Duration:  now.Sub(m.StartTime),
	}
}

// GetMetrics returns a copy of every tracked process in start order.
func (pt *ProgressTracker) GetMetrics() []ProcessMetrics {
	pt.Mutex.RLock()
	defer pt.Mutex.RUnlock()

	out := make([]ProcessMetrics, 0, len(pt.order))
	for _, id := range pt.order {
		out = append(out, *pt.processes[id])
	}
	return out
}
