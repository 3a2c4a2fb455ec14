package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "retain",
	Short: "Decay and lifecycle maintenance for agent memory stores",
	Long:  "Retain continuously re-scores stored knowledge items by recency and significance, walks them through a retention lifecycle, and exposes aggregate health for scraping.",
}

var configPath string

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.retain/retain.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(statsCmd)
}
