package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autocron/internal/store"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var waiting, due, cronOnly bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List task rows in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.FilterAll
			switch {
			case waiting:
				filter = store.FilterWaiting
			case due:
				filter = store.FilterDue
			case cronOnly:
				filter = store.FilterCron
			}
			return ctx.withStore(func(st *store.Store) error {
				tasks, err := st.Tasks(cmd.Context(), filter)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(stdout, "No tasks")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Kind", "Target", "Status", "Due (UTC)", "Schedule", "Arguments"},
					buildTaskRows(tasks),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&waiting, "waiting", false, "Only tasks waiting to run")
	cmd.Flags().BoolVar(&due, "due", false, "Only waiting tasks that are due now")
	cmd.Flags().BoolVar(&cronOnly, "cron", false, "Only recurring tasks")
	cmd.MarkFlagsMutuallyExclusive("waiting", "due", "cron")

	return cmd
}
