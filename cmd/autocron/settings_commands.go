package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"autocron/internal/store"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and tune the shared settings row",
	}

	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))
	settingsCmd.AddCommand(newSettingsResetCommand(ctx))

	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the settings row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				settings, err := st.Settings(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"max_workers", strconv.Itoa(settings.MaxWorkers)},
					{"worker_idle_time", formatSeconds(settings.WorkerIdleTime)},
					{"monitor_idle_time", formatSeconds(settings.MonitorIdleTime)},
					{"result_ttl", formatSeconds(settings.ResultTTL)},
					{"autocron_lock", strconv.FormatBool(settings.AutocronLock)},
					{"monitor_lock", strconv.FormatBool(settings.MonitorLock)},
					{"blocking_mode", strconv.FormatBool(settings.BlockingMode)},
					{"monitor_pid", strconv.Itoa(settings.MonitorPID)},
					{"worker_pids", formatPIDs(settings.WorkerPIDs)},
					{"running_workers", strconv.Itoa(settings.RunningWorkers)},
				}
				table := renderTable([]string{"Key", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting",
		Long: "Change one setting. Tunables (max_workers, worker_idle_time, monitor_idle_time,\n" +
			"result_ttl) take integers; the coordination flags (autocron_lock, blocking_mode,\n" +
			"monitor_lock) take booleans. Clearing monitor_lock by hand is the recovery path\n" +
			"after a crashed monitor.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				if err := st.SetSetting(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
				return nil
			})
		},
	}
}

func newSettingsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore default settings and clear locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				if err := st.ResetSettings(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Settings restored to defaults")
				return nil
			})
		},
	}
}
