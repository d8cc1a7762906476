// Command cube-export mirrors Cube forms to disk: JSON snapshots, attachments,
// per-process workbooks and HTML/PDF reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-cube-export/internal/config"
	"go-cube-export/internal/logging"
	"go-cube-export/internal/pipeline"
	"go-cube-export/internal/remote"
	"go-cube-export/internal/report"
	"go-cube-export/internal/sink"
	"go-cube-export/internal/store"
)

// rootOptions holds flags shared by all commands.
type rootOptions struct {
	ConfigPath  string
	NoSync      bool
	SyncProcess int64
	NoCloud     bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cube-export",
		Short: "Export Cube forms to disk",
		Long: `Synchronize Cube groups, processes and forms into the local tracking
store, then export every pending form of every enabled process.

Example:
  cube-export --config config.json
  cube-export --nosync --nocloud
  cube-export --sync 42`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (json, yaml or toml)")
	cmd.Flags().BoolVar(&opts.NoSync, "nosync", false, "skip the metadata sync phase")
	cmd.Flags().Int64Var(&opts.SyncProcess, "sync", 0, "sync forms of this process id only")
	cmd.Flags().BoolVar(&opts.NoCloud, "nocloud", false, "skip the SharePoint report variant")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newProcessCommand(opts))

	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "run",
		Short:         "Sync and export (default)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.NoSync, "nosync", false, "skip the metadata sync phase")
	cmd.Flags().Int64Var(&opts.SyncProcess, "sync", 0, "sync forms of this process id only")
	cmd.Flags().BoolVar(&opts.NoCloud, "nocloud", false, "skip the SharePoint report variant")
	return cmd
}

// app bundles what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.SQLStore
}

func setup(ctx context.Context, opts *rootOptions, validate bool) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	logger := logging.New(cfg.Log)

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	logger.Info("database opened", zap.String("driver", st.Driver()), zap.String("path", cfg.Store.DSN))
	return &app{cfg: cfg, logger: logger, store: st}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func runExport(cmd *cobra.Command, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	client := remote.New(remote.Options{
		APIKey:    cfg.API.Key,
		Endpoints: cfg.API.URLs,
		MaxCalls:  cfg.API.MaxCalls,
		Timeout:   cfg.API.Timeout,
		Logger:    a.logger,
	})
	renderer := report.New(report.Options{
		BrowserBin: cfg.Report.BrowserBin,
		Timeout:    cfg.Report.Timeout,
		Logger:     a.logger,
	})
	defer func() {
		if err := renderer.Close(); err != nil {
			a.logger.Warn("failed to close pdf browser", zap.Error(err))
		}
	}()

	summary, err := pipeline.Run(ctx, pipeline.Deps{
		Client:   client,
		Store:    a.store,
		Runs:     a.store,
		Sink:     sink.New(),
		Renderer: renderer,
		Logger:   a.logger,
	}, pipeline.Options{
		NoSync:              opts.NoSync,
		SyncProcess:         opts.SyncProcess,
		NoCloud:             opts.NoCloud,
		Endpoints:           cfg.API.URLs,
		OutputRoot:          cfg.Export.Files,
		DefinitionsRoot:     cfg.Export.Definitions,
		AssetsDir:           cfg.Export.Assets,
		SharePoint:          cfg.Export.SharePoint,
		SharePointAssets:    cfg.Export.SharePointAssets,
		MaxWorkers:          cfg.Export.MaxWorkers,
		SheetSplitThreshold: cfg.Export.SheetSplitThreshold,
	})
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary, client.Calls())
	}
	return err
}
