// Command cube-export-api serves the status API of the tracking store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-cube-export/internal/api"
	"go-cube-export/internal/config"
	"go-cube-export/internal/logging"
	"go-cube-export/internal/store"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "cube-export-api",
		Short:         "Serve cube-export progress and run history over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (json, yaml or toml)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log)
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info("status api starting", zap.String("addr", cfg.APIServer.Addr), zap.String("db", cfg.Store.DSN))
	return api.NewRouter(st, logger).Start(ctx, cfg.APIServer.Addr)
}
