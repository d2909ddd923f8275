package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"autocron/internal/logging"
	"autocron/internal/logs"
)

const logsFollowInterval = 500 * time.Millisecond

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display the shared process log",
		Long: "Display the tail of the log file every autocron process appends to.\n" +
			"Records carry component and pid fields, so one file covers the monitor\n" +
			"and all workers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.LogDir, logging.LogFileName)
			out := cmd.OutOrStdout()

			tail, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(tail.Lines) == 0 {
					fmt.Fprintln(out, "No log entries available")
				}
				return nil
			}

			return logs.Follow(cmd.Context(), path, tail.Offset, logsFollowInterval, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show (0 for none)")
	return cmd
}
