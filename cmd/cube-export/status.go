package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"go-cube-export/internal/model"
)

// statusOutputs are the accepted --output values.
var statusOutputs = []string{"table", "yaml", "json"}

type statusReport struct {
	Processes []model.ProcessProgress `json:"processes" yaml:"processes"`
	Runs      []model.RunRecord       `json:"runs" yaml:"runs"`
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var output string
	var runs int

	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show export progress and recent runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for _, o := range statusOutputs {
				if o == output {
					return nil
				}
			}
			return fmt.Errorf("invalid output %q: must be one of %v", output, statusOutputs)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var rep statusReport
			if rep.Processes, err = a.store.ListProgress(cmd.Context()); err != nil {
				return err
			}
			if rep.Runs, err = a.store.ListRuns(cmd.Context(), runs); err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), rep, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table|yaml|json)")
	cmd.Flags().IntVar(&runs, "runs", 5, "number of recent runs to show")
	return cmd
}

func writeStatus(w io.Writer, rep statusReport, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	}

	procs := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "PROCESS", "ENABLED", "COMPLETED", "TOTAL")
	for _, p := range rep.Processes {
		procs.Row(
			strconv.FormatInt(p.ProcessID, 10),
			p.Name,
			strconv.FormatBool(p.Enabled),
			strconv.Itoa(p.Completed),
			strconv.Itoa(p.Total),
		)
	}
	fmt.Fprintln(w, procs.String())

	if len(rep.Runs) == 0 {
		return nil
	}
	history := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "STATUS", "EXPORTED", "STARTED")
	for _, r := range rep.Runs {
		history.Row(r.ID, string(r.Status), strconv.Itoa(r.Exported), r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w, history.String())
	return nil
}
