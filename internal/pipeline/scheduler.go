package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-cube-export/internal/model"
	"go-cube-export/internal/remote"
	"go-cube-export/internal/store"
	"go-cube-export/pkg/utils"
)

// DefaultSheetSplitThreshold is the backlog size above which sheets are
// bucketed per month instead of per year.
const DefaultSheetSplitThreshold = 5000

// OutputTarget is where one process's artifacts go.
type OutputTarget struct {
	GroupName string
	Dir       string
}

// OutputResolver locates the output directory of a process.
type OutputResolver func(ctx context.Context, p model.Process) (OutputTarget, error)

// DefinitionsResolver loads the export definitions of a process.
type DefinitionsResolver func(p model.Process) (*model.Definitions, error)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	MaxWorkers          int
	SheetSplitThreshold int
}

// Scheduler drains per-process form backlogs through a bounded worker pool,
// one process at a time.
type Scheduler struct {
	client     RemoteClient
	store      store.MetadataStore
	rc         *RunContext
	aggregator *ReportAggregator
	templater  *Templater
	layout     *utils.OutputManager
	tracker    *ProgressTracker
	opts       SchedulerOptions
	logger     *zap.Logger
}

// SchedulerDeps are the collaborators of a Scheduler.
type SchedulerDeps struct {
	Client    RemoteClient
	Store     store.MetadataStore
	Sink      TabularSink
	Templater *Templater
	Extractor *Extractor
	Layout    *utils.OutputManager
	Tracker   *ProgressTracker
	Logger    *zap.Logger
}

// NewScheduler builds a scheduler bound to rc. Sink writes, completion marks
// and skips all go through rc.
func NewScheduler(deps SchedulerDeps, rc *RunContext, opts SchedulerOptions) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if rc == nil {
		rc = NewRunContext("")
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.SheetSplitThreshold <= 0 {
		opts.SheetSplitThreshold = DefaultSheetSplitThreshold
	}
	extract := deps.Extractor
	if extract == nil {
		extract = NewExtractor(logger)
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = NewProgressTracker(logger)
	}
	layout := deps.Layout
	if layout == nil {
		layout = utils.NewOutputManager(".")
	}
	return &Scheduler{
		client:     deps.Client,
		store:      deps.Store,
		rc:         rc,
		aggregator: NewReportAggregator(deps.Sink, extract, rc),
		templater:  deps.Templater,
		layout:     layout,
		tracker:    tracker,
		opts:       opts,
		logger:     logger,
	}
}

// formTask is one ExportJob plus the per-process settings its worker needs.
type formTask struct {
	model.ExportJob
	defs    *model.Definitions
	byMonth bool
}

type formResult struct {
	formID int64
	state  model.FormState
}

// SheetName buckets a form by the month or year it was started.
func SheetName(started time.Time, byMonth bool) string {
	if byMonth {
		return fmt.Sprintf("%d-%d", started.Year(), int(started.Month()))
	}
	return fmt.Sprintf("%d", started.Year())
}

// Run exports every process in order. It stops after the pool of the process
// during which the rate limit tripped has drained. Only store failures are
// returned as errors.
func (s *Scheduler) Run(ctx context.Context, processes []model.Process, outputs OutputResolver, defs DefinitionsResolver) ([]model.ProcessSummary, error) {
	rc := s.rc
	var summaries []model.ProcessSummary
	for i, p := range processes {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		sum, ok, err := s.runProcess(ctx, rc, p, i+1, len(processes), outputs, defs)
		if err != nil {
			return summaries, err
		}
		if ok {
			summaries = append(summaries, sum)
		}
		if rc.RateLimited() {
			s.logger.Warn("api daily limit reached, stopping export")
			break
		}
	}
	return summaries, nil
}

func (s *Scheduler) runProcess(ctx context.Context, rc *RunContext, p model.Process, position, total int, outputs OutputResolver, defsFor DefinitionsResolver) (model.ProcessSummary, bool, error) {
	log := s.logger.With(zap.Int64("process_id", p.ID), zap.String("process", p.Name))

	target, err := outputs(ctx, p)
	if err != nil {
		log.Error("failed to resolve output directory", zap.Error(err))
		return model.ProcessSummary{}, false, nil
	}
	if err := os.MkdirAll(target.Dir, 0755); err != nil {
		log.Error("failed to create output directory", zap.String("dir", target.Dir), zap.Error(err))
		return model.ProcessSummary{}, false, nil
	}

	defs, err := defsFor(p)
	if err != nil {
		log.Error("failed to load export definitions", zap.Error(err))
		return model.ProcessSummary{}, false, nil
	}

	reset := false
	if defs.Present && !s.layout.HasWorkbook(target.Dir) {
		if err := s.store.ResetProcess(ctx, p.ID); err != nil {
			return model.ProcessSummary{}, false, err
		}
		reset = true
		log.Info("definitions added to process, form statuses reset")
	}

	pending, err := s.store.PendingForms(ctx, p.ID)
	if err != nil {
		return model.ProcessSummary{}, false, err
	}
	if len(pending) == 0 {
		return model.ProcessSummary{}, false, nil
	}

	s.tracker.StartProcess(p, position, total, len(pending), reset)
	byMonth := len(pending) > s.opts.SheetSplitThreshold
	newTask := func(formID int64) formTask {
		return formTask{
			ExportJob: model.ExportJob{
				FormID:      formID,
				ProcessID:   p.ID,
				ProcessName: p.Name,
				GroupName:   target.GroupName,
				OutputDir:   target.Dir,
			},
			defs:    defs,
			byMonth: byMonth,
		}
	}

	err = s.drain(ctx, rc, p.ID, pending, newTask)
	return s.tracker.EndProcess(p.ID), true, err
}

// drain runs one pool over pending. The dispatcher stops handing out work once
// the rate limit trips; workers finish the form they hold.
func (s *Scheduler) drain(ctx context.Context, rc *RunContext, processID int64, pending []int64, newTask func(int64) formTask) error {
	workers := s.opts.MaxWorkers
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan formTask)
	results := make(chan formResult, workers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, id := range pending {
			if rc.RateLimited() {
				return nil
			}
			select {
			case jobs <- newTask(id):
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			sess, err := s.store.Session(gctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			for task := range jobs {
				results <- formResult{formID: task.FormID, state: s.processForm(gctx, rc, sess, task)}
			}
			return nil
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		s.tracker.Record(processID, r.state)
	}
	return g.Wait()
}

// processForm takes one form from fetched to completed or skipped. Errors stay
// inside the worker as skip records.
func (s *Scheduler) processForm(ctx context.Context, rc *RunContext, sess store.FormSession, task formTask) (state model.FormState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("form export panicked", zap.Int64("form_id", task.FormID), zap.Any("panic", r))
			rc.Skip(model.SkipRecord{Kind: model.SkipFormFailed, ProcessID: task.ProcessID, FormID: task.FormID, Reason: fmt.Sprint(r)})
			state = model.FormSkipped
		}
	}()

	if rc.RateLimited() {
		return model.FormAborted
	}

	payload, err := s.client.FetchForm(ctx, task.FormID)
	if err != nil {
		rc.Skip(model.SkipRecord{Kind: model.SkipFormUnavailable, ProcessID: task.ProcessID, FormID: task.FormID, Reason: err.Error()})
		return model.FormSkipped
	}

	if msg := payload.ErrorMessage(); msg != "" {
		if errors.Is(remote.Classify(msg), model.ErrRateLimitExceeded) {
			s.tripRateLimit(rc, task.FormID)
			return model.FormAborted
		}
		rc.Skip(model.SkipRecord{Kind: model.SkipFormUnavailable, ProcessID: task.ProcessID, FormID: task.FormID, Reason: msg})
		return model.FormSkipped
	}

	if err := s.exportForm(ctx, rc, task, payload); err != nil {
		if errors.Is(err, model.ErrRateLimitExceeded) {
			s.tripRateLimit(rc, task.FormID)
			return model.FormAborted
		}
		rc.Skip(model.SkipRecord{Kind: model.SkipFormFailed, ProcessID: task.ProcessID, FormID: task.FormID, Reason: err.Error()})
		return model.FormSkipped
	}

	rc.Lock()
	err = sess.MarkFormComplete(ctx, task.ProcessID, task.FormID)
	rc.Unlock()
	if err != nil {
		rc.Skip(model.SkipRecord{Kind: model.SkipFormFailed, ProcessID: task.ProcessID, FormID: task.FormID, Reason: err.Error()})
		return model.FormSkipped
	}
	return model.FormCompleted
}

func (s *Scheduler) tripRateLimit(rc *RunContext, formID int64) {
	if rc.TripRateLimit() {
		s.logger.Warn("api daily limit reached", zap.Int64("form_id", formID))
	}
}

// exportForm writes the snapshot, attachments, sheet rows and report of one form.
func (s *Scheduler) exportForm(ctx context.Context, rc *RunContext, task formTask, payload model.Payload) error {
	var hdr model.FormHeader
	if err := payload.Decode(&hdr, "Result", "Form"); err != nil {
		return err
	}
	started, err := time.Parse(model.RemoteTimeLayout, string(hdr.Started))
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", hdr.Started, err)
	}
	sheet := SheetName(started, task.byMonth)
	number := utils.SanitizeName(string(hdr.Number))

	formDir, err := s.layout.CreateFormDir(task.OutputDir, number)
	if err != nil {
		return err
	}
	if err := writeSnapshot(filepath.Join(formDir, number+".json"), payload); err != nil {
		return err
	}

	for _, f := range hdr.Files {
		if err := s.downloadAttachment(ctx, formDir, f); err != nil {
			if errors.Is(err, model.ErrRateLimitExceeded) {
				return err
			}
			s.logger.Warn("attachment download failed",
				zap.Int64("form_id", task.FormID),
				zap.String("file", f.FileName),
				zap.Error(err))
			rc.Skip(model.SkipRecord{
				Kind:      model.SkipDownloadFailed,
				ProcessID: task.ProcessID,
				FormID:    task.FormID,
				Reason:    fmt.Sprintf("%s: %v", f.FileName, err),
			})
		}
	}

	workbook := s.layout.WorkbookPath(task.OutputDir)
	if task.defs.TOC != nil {
		row := s.aggregator.BuildRow(payload, number, task.defs.TOC)
		if err := s.aggregator.Append(workbook, row, sheet+" TOC"); err != nil {
			return err
		}
	}
	if task.defs.Report != nil {
		row := s.aggregator.BuildRow(payload, number, task.defs.Report)
		if err := s.aggregator.Append(workbook, row, sheet); err != nil {
			return err
		}
	}

	if task.defs.HTML != nil && s.templater != nil {
		_, err := s.templater.Render(ctx, RenderInput{
			Payload:     payload,
			Definition:  task.defs.HTML,
			FormDir:     formDir,
			FormNumber:  number,
			GroupName:   task.GroupName,
			ProcessName: task.ProcessName,
			Attachments: hdr.Files,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeSnapshot stores the raw payload, replacing any earlier snapshot.
func writeSnapshot(path string, payload model.Payload) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		file.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return file.Close()
}

func (s *Scheduler) downloadAttachment(ctx context.Context, dir string, f model.Attachment) error {
	u, err := s.client.FetchDownloadURL(ctx, f.FileID)
	if err != nil {
		return err
	}
	body, err := s.client.Download(ctx, u)
	if err != nil {
		return err
	}
	defer body.Close()

	path := filepath.Join(dir, utils.SanitizeFileName(f.FileName))
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return fmt.Errorf("%w: %v", model.ErrAttachmentDownloadFailed, err)
	}
	return out.Close()
}
