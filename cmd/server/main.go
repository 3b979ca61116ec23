package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

// main wires the CLI. Each subcommand builds its dependencies from the
// environment; business logic lives in the internal packages.
func main() {
	rootCmd := &cobra.Command{
		Use:           "slip-service",
		Short:         "Market slip upload service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(topologyCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
