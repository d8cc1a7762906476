package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"go-cube-export/internal/model"
	"go-cube-export/internal/remote"
	"go-cube-export/internal/store"
	"go-cube-export/pkg/utils"
)

// SyncCoordinator mirrors remote groups, processes and forms into the store.
// Every write is insert-if-absent, so re-running it never regresses state.
type SyncCoordinator struct {
	client RemoteClient
	store  store.MetadataStore
	urls   model.Endpoints
	logger *zap.Logger
}

func NewSyncCoordinator(client RemoteClient, st store.MetadataStore, urls model.Endpoints, logger *zap.Logger) *SyncCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncCoordinator{client: client, store: st, urls: urls, logger: logger}
}

// SyncAll runs the three sync steps in order. target limits form sync to one
// process; zero means every enabled process.
func (s *SyncCoordinator) SyncAll(ctx context.Context, rc *RunContext, target int64) (*model.SyncResult, error) {
	res := &model.SyncResult{}
	var err error
	if res.Groups, err = s.SyncGroups(ctx); err != nil {
		return res, err
	}
	if res.Processes, err = s.SyncProcesses(ctx); err != nil {
		return res, err
	}
	if err = s.SyncForms(ctx, rc, target, res); err != nil {
		return res, err
	}
	return res, nil
}

// SyncGroups upserts every remote group and returns how many were listed.
func (s *SyncCoordinator) SyncGroups(ctx context.Context) (int, error) {
	payload, err := s.fetchListing(ctx, s.urls.Groups, map[string]interface{}{})
	if err != nil {
		return 0, fmt.Errorf("groups: %w", err)
	}
	var groups []model.Group
	if err := payload.Decode(&groups, "Result", "Groups"); err != nil {
		return 0, fmt.Errorf("groups: %w", err)
	}
	for _, g := range groups {
		g.Name = utils.SanitizeName(g.Name)
		if err := s.store.UpsertGroup(ctx, g); err != nil {
			return 0, err
		}
	}
	s.logger.Info("groups synced", zap.Int("count", len(groups)))
	return len(groups), nil
}

// SyncProcesses upserts every remote process and returns how many were listed.
func (s *SyncCoordinator) SyncProcesses(ctx context.Context) (int, error) {
	payload, err := s.fetchListing(ctx, s.urls.Processes, map[string]interface{}{})
	if err != nil {
		return 0, fmt.Errorf("processes: %w", err)
	}
	var procs []model.Process
	if err := payload.Decode(&procs, "Result", "Procs"); err != nil {
		return 0, fmt.Errorf("processes: %w", err)
	}
	for _, p := range procs {
		if err := s.store.UpsertProcess(ctx, p); err != nil {
			return 0, err
		}
	}
	s.logger.Info("processes synced", zap.Int("count", len(procs)))
	return len(procs), nil
}

// SyncForms upserts the form listing of target, or of every enabled process
// when target is zero. Disabled and permission-denied processes are recorded
// on rc; archived ones are only logged and listed in res.
func (s *SyncCoordinator) SyncForms(ctx context.Context, rc *RunContext, target int64, res *model.SyncResult) error {
	var procs []model.Process
	if target != 0 {
		p, err := s.store.GetProcess(ctx, target)
		if err != nil {
			return err
		}
		procs = []model.Process{p}
	} else {
		var err error
		if procs, err = s.store.ListEnabledProcesses(ctx); err != nil {
			return err
		}
	}

	for i, p := range procs {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := s.logger.With(
			zap.Int64("process_id", p.ID),
			zap.String("process", p.Name),
			zap.String("position", fmt.Sprintf("%d of %d", i+1, len(procs))),
		)

		enabled, err := s.store.ProcessEnabled(ctx, p.ID)
		if err != nil {
			return err
		}
		if !enabled {
			log.Info("process disabled, skipping form sync")
			rc.Skip(model.SkipRecord{Kind: model.SkipProcessDisabled, ProcessID: p.ID, Reason: "disabled"})
			continue
		}

		payload, err := s.client.Fetch(ctx, s.urls.Forms, map[string]interface{}{"ProcessID": p.ID})
		if err != nil {
			return fmt.Errorf("forms of process %d: %w", p.ID, err)
		}
		if msg := payload.ErrorMessage(); msg != "" {
			cerr := remote.Classify(msg)
			switch {
			case errors.Is(cerr, model.ErrRateLimitExceeded):
				return fmt.Errorf("forms of process %d: %w", p.ID, cerr)
			case errors.Is(cerr, model.ErrProcessArchived):
				log.Warn("process is archived, skipping")
				res.Archived = append(res.Archived, p.ID)
				continue
			case errors.Is(cerr, model.ErrPermissionDenied):
				log.Warn("permission denied, skipping", zap.String("message", msg))
				rc.Skip(model.SkipRecord{Kind: model.SkipPermissionDenied, ProcessID: p.ID, Reason: msg})
				continue
			}
		}

		var forms []model.Form
		if err := payload.Decode(&forms, "Result", "Forms"); err != nil {
			return fmt.Errorf("forms of process %d: %w", p.ID, err)
		}
		for _, f := range forms {
			f.ProcessID = p.ID
			if err := s.store.UpsertForm(ctx, f); err != nil {
				return err
			}
		}
		res.Forms += len(forms)
		log.Info("forms synced", zap.Int("count", len(forms)))
	}
	return nil
}

// fetchListing fetches a metadata listing, turning the rate-limit message into
// model.ErrRateLimitExceeded. Other embedded errors fall through to the
// structure check of the caller.
func (s *SyncCoordinator) fetchListing(ctx context.Context, url string, body interface{}) (model.Payload, error) {
	payload, err := s.client.Fetch(ctx, url, body)
	if err != nil {
		return nil, err
	}
	if msg := payload.ErrorMessage(); msg != "" {
		if cerr := remote.Classify(msg); errors.Is(cerr, model.ErrRateLimitExceeded) {
			return nil, cerr
		}
		s.logger.Warn("listing returned an error", zap.String("url", url), zap.String("message", msg))
	}
	return payload, nil
}
