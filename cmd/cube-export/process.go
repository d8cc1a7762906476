package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProcessCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Enable or disable export of a process",
	}
	cmd.AddCommand(newToggleCommand(opts, "enable", true))
	cmd.AddCommand(newToggleCommand(opts, "disable", false))
	return cmd
}

func newToggleCommand(opts *rootOptions, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <process-id>",
		Short:         fmt.Sprintf("%s a process for sync and export", verb),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid process id %q", args[0])
			}

			a, err := setup(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.SetProcessEnabled(cmd.Context(), id, enabled); err != nil {
				return err
			}
			a.logger.Info("process toggled", zap.Int64("process_id", id), zap.Bool("enabled", enabled))
			fmt.Fprintf(cmd.OutOrStdout(), "process %d %sd\n", id, verb)
			return nil
		},
	}
}
