// Package pipeline syncs Cube metadata into the tracking store and exports
// each pending form: JSON snapshot, attachments, workbook rows and an HTML/PDF
// report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-cube-export/internal/model"
	"go-cube-export/internal/store"
	"go-cube-export/pkg/utils"
)

// Deps are the external collaborators of a run.
type Deps struct {
	Client   RemoteClient
	Store    store.MetadataStore
	Runs     store.RunLog
	Sink     TabularSink
	Renderer ReportRenderer
	Logger   *zap.Logger
}

// Options are the per-run settings.
type Options struct {
	// NoSync skips the metadata sync phase.
	NoSync bool
	// SyncProcess limits form sync to one process. Zero syncs every enabled process.
	SyncProcess int64
	// NoCloud skips the remote report variant.
	NoCloud bool

	Endpoints           model.Endpoints
	OutputRoot          string
	DefinitionsRoot     string
	AssetsDir           string
	SharePoint          string
	SharePointAssets    string
	MaxWorkers          int
	SheetSplitThreshold int
}

// Run performs one full sync-and-export run and records it in deps.Runs.
// Hitting the daily call limit ends the run early without an error.
func Run(ctx context.Context, deps Deps, opts Options) (summary *model.RunSummary, err error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", runID))

	rc := NewRunContext(runID)
	summary = &model.RunSummary{RunID: runID, StartedAt: start, Status: model.RunRunning}

	if deps.Runs != nil {
		if err := deps.Runs.StartRun(ctx, runID, start); err != nil {
			return summary, err
		}
	}
	defer func() {
		summary.FinishedAt = time.Now()
		summary.Skips = rc.Skips()
		summary.RateLimited = rc.RateLimited()
		switch {
		case err != nil:
			summary.Status = model.RunFailed
		case summary.RateLimited:
			summary.Status = model.RunRateLimited
		default:
			summary.Status = model.RunCompleted
		}
		if deps.Runs != nil {
			ferr := deps.Runs.FinishRun(context.WithoutCancel(ctx), runID, summary.Status, summary.Exported(), summary.FinishedAt)
			if ferr != nil {
				logger.Error("failed to record run result", zap.Error(ferr))
			}
		}
		logger.Info("run finished",
			zap.String("status", string(summary.Status)),
			zap.Int("exported", summary.Exported()),
			zap.Int("skips", len(summary.Skips)),
			zap.Duration("duration", summary.FinishedAt.Sub(start)),
		)
	}()

	if !opts.NoSync {
		logger.Info("synchronizing cube indexes")
		sc := NewSyncCoordinator(deps.Client, deps.Store, opts.Endpoints, logger)
		res, err := sc.SyncAll(ctx, rc, opts.SyncProcess)
		summary.Sync = res
		if errors.Is(err, model.ErrRateLimitExceeded) {
			rc.TripRateLimit()
			logger.Warn("api daily limit reached during sync, stopping")
			return summary, nil
		}
		if err != nil {
			return summary, fmt.Errorf("sync failed: %w", err)
		}
	} else {
		logger.Info("sync skipped")
	}

	processes, err := deps.Store.ListEnabledProcesses(ctx)
	if err != nil {
		return summary, err
	}
	logger.Info("processes to export", zap.Int("count", len(processes)))
	logDefinitionsBanner(logger, opts.DefinitionsRoot, processes)

	layout := utils.NewOutputManager(opts.OutputRoot)
	if err := layout.EnsureOutputDirExists(); err != nil {
		return summary, fmt.Errorf("failed to create output root: %w", err)
	}

	extractor := NewExtractor(logger)
	templater := NewTemplater(TemplaterOptions{
		AssetsDir:        opts.AssetsDir,
		SharePoint:       opts.SharePoint,
		SharePointAssets: opts.SharePointAssets,
		NoCloud:          opts.NoCloud,
	}, deps.Renderer, extractor, logger)

	sched := NewScheduler(SchedulerDeps{
		Client:    deps.Client,
		Store:     deps.Store,
		Sink:      deps.Sink,
		Templater: templater,
		Extractor: extractor,
		Layout:    layout,
		Logger:    logger,
	}, rc, SchedulerOptions{
		MaxWorkers:          opts.MaxWorkers,
		SheetSplitThreshold: opts.SheetSplitThreshold,
	})

	outputs := func(ctx context.Context, p model.Process) (OutputTarget, error) {
		group, err := deps.Store.GroupName(ctx, p.GroupID)
		if err != nil {
			return OutputTarget{}, err
		}
		return OutputTarget{GroupName: group, Dir: layout.ProcessDir(group, p.Name)}, nil
	}
	definitions := func(p model.Process) (*model.Definitions, error) {
		return LoadDefinitions(opts.DefinitionsRoot, p.ID, logger)
	}

	summary.Processes, err = sched.Run(ctx, processes, outputs, definitions)
	return summary, err
}

func logDefinitionsBanner(logger *zap.Logger, root string, processes []model.Process) {
	for _, p := range processes {
		if info, err := os.Stat(DefinitionsDir(root, p.ID)); err == nil && info.IsDir() {
			logger.Info("definition files detected", zap.Int64("process_id", p.ID), zap.String("process", p.Name))
		}
	}
}
