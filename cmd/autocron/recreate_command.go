package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"autocron/internal/store"
)

func newRecreateCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "recreate",
		Short: "Delete the database and rebuild it with default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()

			if !force {
				fmt.Fprintf(stdout, "This deletes every task and result in %s.\n", cfg.DatabasePath())
				fmt.Fprint(stdout, "Proceed? [y/N]: ")
				reader := bufio.NewReader(cmd.InOrStdin())
				line, _ := reader.ReadString('\n')
				answer := strings.ToLower(strings.TrimSpace(line))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(stdout, "Aborted")
					return nil
				}
			}

			if err := store.Recreate(cfg); err != nil {
				if errors.Is(err, store.ErrMaintenanceLocked) {
					return errors.New("another maintenance command holds the database; retry in a moment")
				}
				return err
			}
			fmt.Fprintf(stdout, "Recreated %s\n", cfg.DatabasePath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}
