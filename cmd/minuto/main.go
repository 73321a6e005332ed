package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"minuto/config"
	"minuto/internal/db"
	"minuto/internal/di"
	"minuto/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "minuto",
		Short:         "Devotional progress service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, reminders and the Telegram listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrate && cfg.DB.Driver == "postgres" {
				if err := runMigrations(ctx, cfg); err != nil {
					return err
				}
			}

			application, cleanup, err := di.InitApp(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer cleanup()

			return application.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending database migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DB.Driver != "postgres" {
				return fmt.Errorf("migrate requires the postgres driver, got %q", cfg.DB.Driver)
			}
			return runMigrations(cmd.Context(), cfg)
		},
	}
}

func runMigrations(ctx context.Context, cfg *config.Config) error {
	l := logger.New(cfg.Log.Level).Named("migrate")

	store, err := db.NewPostgresDB(cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.RunMigrations(ctx, l)
}
