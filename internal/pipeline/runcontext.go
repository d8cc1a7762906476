package pipeline

import (
	"sync"
	"sync/atomic"

	"go-cube-export/internal/model"
)

// RunContext is the state shared by every worker of one run: the rate-limit
// halt flag, the skip records, and the lock that serializes sink writes and
// completion marks.
type RunContext struct {
	ID string

	rateLimited atomic.Bool

	mu    sync.Mutex
	skips []model.SkipRecord
}

func NewRunContext(id string) *RunContext {
	return &RunContext{ID: id}
}

// TripRateLimit sets the halt flag. It reports true only for the call that
// performed the transition.
func (rc *RunContext) TripRateLimit() bool {
	return rc.rateLimited.CompareAndSwap(false, true)
}

// RateLimited reports whether the run has been halted.
func (rc *RunContext) RateLimited() bool {
	return rc.rateLimited.Load()
}

// Skip records a diagnostic for the end-of-run report.
func (rc *RunContext) Skip(rec model.SkipRecord) {
	rc.mu.Lock()
	rc.skips = append(rc.skips, rec)
	rc.mu.Unlock()
}

// Skips returns a copy of the recorded skips.
func (rc *RunContext) Skips() []model.SkipRecord {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]model.SkipRecord, len(rc.skips))
	copy(out, rc.skips)
	return out
}

// Lock and Unlock expose the run lock to the aggregator.
func (rc *RunContext) Lock()   { rc.mu.Lock() }
func (rc *RunContext) Unlock() { rc.mu.Unlock() }
