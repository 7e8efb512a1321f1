// Command lumractl is the operator tool for the Lumra geofence service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/lumra/lumra-backend/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lumractl",
		Short:         "Operate the Lumra geofence service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newReplayCmd())
	root.AddCommand(newReconcileCmd())
	root.AddCommand(newSeedCmd())
	return root
}

func newLogger() (*zap.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logging.New(level, true)
}

func main() {
	_ = godotenv.Load(".env.local")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
