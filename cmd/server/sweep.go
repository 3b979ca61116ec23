package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marketslip/internal/platform/config"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass over orphaned objects and pending events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, config.FromEnv())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.sweeper().Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"orphans deleted=%d adopted=%d failed=%d, events republished=%d failed=%d\n",
				report.OrphansDeleted, report.OrphansAdopted, report.OrphansFailed,
				report.EventsRepublished, report.EventsFailed,
			)
			return nil
		},
	}
}
