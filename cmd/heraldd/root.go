package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// flag names
const (
	flagEnvFile = "env-file"
	flagStore   = "store"
	flagAddr    = "addr"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "heraldd",
		Short: "Herald - persistent job queue for notifications and automation triggers",
		Long: `heraldd delivers Discord/AMQP notifications and Home Assistant automation
triggers from a persistent job queue with retries and scheduling.

Configuration is read from the environment (HERALD_*, DATABASE_URL, ...),
optionally seeded from a .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing default .env is fine; an explicit one must exist.
			if cmd.Flags().Changed(flagEnvFile) {
				return godotenv.Load(envFile)
			}
			_ = godotenv.Load()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, flagEnvFile, ".env", "Path to a .env file")
	root.PersistentFlags().String(flagStore, "", "Store backend: memory, postgres, sqlite or redis (env: HERALD_STORE)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadFromCmd reads the environment and applies flag overrides.
func loadFromCmd(cmd *cobra.Command) (Config, error) {
	cfg, err := LoadConfig(lookupEnv)
	if err != nil {
		return Config{}, err
	}
	if f := cmd.Flag(flagStore); f != nil && f.Changed {
		cfg.Store = f.Value.String()
	}
	if f := cmd.Flag(flagAddr); f != nil && f.Changed {
		cfg.HTTPAddr = f.Value.String()
	}
	return cfg, cfg.Validate()
}
