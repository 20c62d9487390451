package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFromCmd(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel, os.Stderr)

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open %s store: %w", cfg.Store, err)
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store migrated\n", cfg.Store)
			return nil
		},
	}
}
