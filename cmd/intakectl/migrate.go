package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carepay/internal/platform/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := postgres.Migrate(ctx, deps.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
