package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/pkg/config"
	"github.com/noah-isme/sortify-api/pkg/logger"
)

// cli carries what every subcommand needs.
type cli struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	app := &cli{}
	root := &cobra.Command{
		Use:           "sortifyctl",
		Short:         "Operator tooling for the Sortify API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logr, err := logger.New(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			app.cfg = cfg
			app.logger = logr
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}
	root.AddCommand(
		app.migrateCommand(),
		app.verifiersCommand(),
		app.binsCommand(),
		app.ratesCommand(),
		app.cacheCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
