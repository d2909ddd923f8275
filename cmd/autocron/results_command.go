package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autocron/internal/store"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List result rows, pending ones included",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				stdout := cmd.OutOrStdout()
				if cleanup {
					removed, err := st.CleanupExpiredResults(cmd.Context(), time.Now())
					if err != nil {
						return err
					}
					fmt.Fprintf(stdout, "Removed %d expired results\n", removed)
				}
				results, err := st.Results(cmd.Context())
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintln(stdout, "No results")
					return nil
				}
				table := renderTable(
					[]string{"Handle", "Target", "Ready", "Value", "Error", "Expires (UTC)"},
					buildResultRows(results),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove expired results before listing")

	return cmd
}
