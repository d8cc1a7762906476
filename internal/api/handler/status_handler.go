package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"go-cube-export/internal/model"
	"go-cube-export/internal/store"
	"go-cube-export/pkg/router"
)

const defaultRunsLimit = 20

// StatusHandler serves export progress and run history from the tracking store.
type StatusHandler struct {
	store  store.StatusReader
	logger *zap.Logger
}

func NewStatusHandler(s store.StatusReader, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{store: s, logger: logger}
}

// ListProcesses returns progress for every known process
// @Summary List processes
// @Description Completed and total form counts for every synced process
// @Tags processes
// @Produce json
// @Success 200 {array} model.ProcessProgress "Process progress"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /processes [get]
func (h *StatusHandler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	progress, err := h.store.ListProgress(r.Context())
	if err != nil {
		h.fail(w, "Failed to fetch processes", err)
		return
	}
	if progress == nil {
		progress = []model.ProcessProgress{}
	}
	writeJSON(w, http.StatusOK, progress)
}

// GetProcessProgress returns progress for one process
// @Summary Get process progress
// @Description Completed and total form counts for one process
// @Tags processes
// @Produce json
// @Param id path int true "Process ID"
// @Success 200 {object} model.ProcessProgress "Process progress"
// @Failure 400 {object} map[string]interface{} "Invalid process ID"
// @Failure 404 {object} map[string]interface{} "Process not found"
// @Router /processes/{id}/progress [get]
func (h *StatusHandler) GetProcessProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := processID(w, r)
	if !ok {
		return
	}
	progress, err := h.store.ProcessProgress(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to fetch progress", err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// EnableProcess marks a process for export
// @Summary Enable process
// @Tags processes
// @Produce json
// @Param id path int true "Process ID"
// @Success 200 {object} map[string]interface{} "Process enabled"
// @Failure 404 {object} map[string]interface{} "Process not found"
// @Router /processes/{id}/enable [post]
func (h *StatusHandler) EnableProcess(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// DisableProcess freezes a process so sync and export leave it alone
// @Summary Disable process
// @Tags processes
// @Produce json
// @Param id path int true "Process ID"
// @Success 200 {object} map[string]interface{} "Process disabled"
// @Failure 404 {object} map[string]interface{} "Process not found"
// @Router /processes/{id}/disable [post]
func (h *StatusHandler) DisableProcess(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *StatusHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := processID(w, r)
	if !ok {
		return
	}
	if err := h.store.SetProcessEnabled(r.Context(), id, enabled); err != nil {
		h.fail(w, "Failed to update process", err)
		return
	}
	h.logger.Info("process toggled", zap.Int64("process_id", id), zap.Bool("enabled", enabled))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"process_id": id,
		"enabled":    enabled,
	})
}

// ListRuns returns the most recent export runs
// @Summary List runs
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs" default(20)
// @Success 200 {object} map[string]interface{} "Run history"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *StatusHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to fetch runs", err)
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"limit": limit,
	})
}

// GetRun returns one export run
// @Summary Get run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.RunRecord "Run"
// @Failure 400 {object} map[string]interface{} "Run ID is required"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *StatusHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := router.Segment(r.URL.Path, 3)
	if runID == "" {
		writeError(w, http.StatusBadRequest, "Run ID is required")
		return
	}
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		h.fail(w, "Failed to fetch run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// processID reads the id from /api/v1/processes/{id}/...
func processID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(router.Segment(r.URL.Path, 3), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid process ID")
		return 0, false
	}
	return id, true
}

func (h *StatusHandler) fail(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]interface{}{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
