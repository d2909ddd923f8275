package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autocron/internal/preflight"
	"autocron/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store health, monitor state, and task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			var st *store.Store
			var openErr error
			if st, openErr = store.Open(cfg); openErr == nil {
				defer st.Close()
			}

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, res := range preflight.RunAll(cmd.Context(), cfg, st) {
				kind := statusOK
				if !res.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(res.Name, kind, res.Detail, colorize))
			}
			if openErr != nil {
				fmt.Fprintln(stdout, renderStatusLine("Database", statusError, openErr.Error(), colorize))
				return nil
			}

			settings, err := st.Settings(cmd.Context())
			if err != nil {
				return fmt.Errorf("read settings: %w", err)
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Execution", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Mode", statusInfo, executionModeLabel(settings), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Workers", statusInfo,
				fmt.Sprintf("%d configured, %d running", settings.MaxWorkers, settings.RunningWorkers), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Worker pids", statusInfo, formatPIDs(settings.WorkerPIDs), colorize))

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("read stats: %w", err)
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Tasks", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildTaskStatusRows(stats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No tasks")
			} else {
				fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(stdout, "%d delayed, %d cron\n", stats.DelayedTasks, stats.CronTasks)
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Results", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if stats.ResultsTotal == 0 {
				fmt.Fprintln(stdout, "No results")
				return nil
			}
			fmt.Fprintf(stdout, "%d ready, %d pending, %d total\n",
				stats.ResultsReady, stats.ResultsPending, stats.ResultsTotal)
			return nil
		},
	}
}
