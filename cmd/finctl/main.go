package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level from the config")
}

var rootCmd = &cobra.Command{
	Use:          "finctl",
	Short:        "Finance data layer CLI",
	Long:         "Inspect and drive the offline-capable finance data layer: read and write resources,\nlist pending operations and replay them against the backend.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
