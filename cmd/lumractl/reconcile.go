package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/db"
	"github.com/lumra/lumra-backend/internal/notify"
	"github.com/lumra/lumra-backend/internal/profiles"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
)

func newReconcileCmd() *cobra.Command {
	var (
		dsn   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Redeliver recorded notification failures",
		Long: `Retries every open delivery failure through the configured channel
(LUMRA_NOTIFY_CHANNEL, LUMRA_WEBHOOK_URL, LUMRA_WEBHOOK_SECRET). Failures
that go through are marked resolved.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				dsn = os.Getenv(config.EnvDatabaseURL)
			}
			if dsn == "" {
				return errors.New("--db or DATABASE_URL is required")
			}

			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sqlDB, err := sql.Open("pgx", dsn)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer sqlDB.Close()

			gdb, err := db.Wrap(postgres.New(postgres.Config{Conn: sqlDB}))
			if err != nil {
				return fmt.Errorf("open gorm: %w", err)
			}
			if err := notify.Init(gdb); err != nil {
				return err
			}

			channel, err := notify.NewChannel(cfg.Notify, logger)
			if err != nil {
				return err
			}
			opts := notify.OptionsFromConfig(cfg.Notify)
			opts.Channel = channel
			opts.Guardians = profiles.NewService(profiles.NewGormStore(gdb), logger)
			opts.Failures = notify.NewGormFailureStore(gdb)
			opts.Logger = logger
			n := notify.New(opts)
			defer func() { _ = n.Close(cmd.Context()) }()

			resolved, remaining, err := n.Reconcile(cmd.Context(), limit)
			fmt.Fprintf(cmd.OutOrStdout(), "%d resolved, %d still failing\n", resolved, remaining)
			return err
		},
	}

	cmd.Flags().StringVar(&dsn, "db", "", "Postgres DSN (defaults to DATABASE_URL)")
	cmd.Flags().IntVar(&limit, "limit", 500, "Maximum failures to retry in one run")
	return cmd
}
