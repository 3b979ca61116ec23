package main

import (
	"github.com/spf13/cobra"

	"marketslip/internal/platform/config"
)

func topologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Declare the broker exchange, queue and binding, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, config.FromEnv())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.publisher.EnsureTopology(ctx); err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "broker topology declared", "driver", a.cfg.Broker.Driver)
			return nil
		},
	}
}
