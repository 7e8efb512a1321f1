package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/replay"
	"github.com/spf13/cobra"
)

func newReplayCmd() *cobra.Command {
	var (
		cfg    replay.Config
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run a recorded fix trace through an in-memory engine",
		Long: `Loads geofences from a YAML file and fixes from a CSV file
(elderly_id,lat,lon,accuracy_meters,observed_at), replays the fixes in
observed_at order and prints every confirmed transition. Nothing is stored
or delivered.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			rep, err := replay.Run(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tKIND\tELDERLY\tGEOFENCE\tDISTANCE_M")
			for _, ev := range rep.Events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\n",
					ev.At.Format(time.RFC3339), ev.Kind, ev.ElderlyID, ev.GeofenceID, ev.DistanceMeters)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d fixes, %d accepted, %d rejected, %d stale, %d events\n",
				rep.Fixes, rep.Accepted, len(rep.Rejected), rep.Stale, len(rep.Events))
			for _, r := range rep.Rejected {
				fmt.Fprintf(out, "  row %d: %s\n", r.Index+2, r.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.FencesPath, "fences", "", "YAML file with the fence set (required)")
	cmd.Flags().StringVar(&cfg.FixesPath, "fixes", "", "CSV file with the fix trace (required)")
	cmd.Flags().IntVar(&cfg.RequiredStreak, "streak", config.DefaultRequiredStreak, "Consecutive disagreeing fixes needed to confirm a transition")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	_ = cmd.MarkFlagRequired("fences")
	_ = cmd.MarkFlagRequired("fixes")
	return cmd
}
