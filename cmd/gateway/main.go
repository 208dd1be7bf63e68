package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/gateway.local.yaml"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Sharded gateway connection engine",
		Long: `gateway keeps a set of shards connected to the real-time gateway.

It discovers the recommended shard count and identify limits, admits
shards through a shared identify budget, keeps each connection alive
with heartbeats, and resumes sessions across disconnects and restarts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	rootCmd.AddCommand(
		runCmd(&configPath),
		discoverCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
