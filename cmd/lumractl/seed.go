package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lumra/lumra-backend/internal/app"
	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/seeds"
	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a linked demo household with two geofences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				dsn = os.Getenv(config.EnvDatabaseURL)
			}
			if dsn == "" {
				return errors.New("--db or DATABASE_URL is required")
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg := config.Default()
			cfg.Store = config.StorePostgres
			cfg.DatabaseURL = dsn
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Close(ctx)
			}()

			res, err := seeds.SeedAll(cmd.Context(), a.Profiles, a.Fences, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.ElderlyID == "" {
				fmt.Fprintln(out, "demo household already present")
				return nil
			}
			fmt.Fprintf(out, "elderly  %s\nguardian %s\nfences   %v\npassword %s\n",
				res.ElderlyID, res.GuardianID, res.FenceIDs, seeds.DemoPassword)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "db", "", "Postgres DSN (defaults to DATABASE_URL)")
	return cmd
}
