package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/summitlabs/summit-api/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger(loadedCfg)

			// Open runs all pending migrations as a side effect.
			st, err := store.Open(cmd.Context(), loadedCfg.Database.Path, logger)
			if err != nil {
				return err
			}

			if err := st.Close(); err != nil {
				return err
			}

			fmt.Printf("Database %s is up to date\n", loadedCfg.Database.Path)

			return nil
		},
	}
}
