package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:          "hydration",
	Short:        "Water consumption log with a live seven-day summary",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/hydration/config.toml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthorizeCmd())
	rootCmd.AddCommand(newLogCmd())
	rootCmd.AddCommand(newTodayCmd())
	rootCmd.AddCommand(newWeekCmd())
	rootCmd.AddCommand(newRecentCmd())
	rootCmd.AddCommand(newUnitCmd())
	rootCmd.AddCommand(newConfigCmd())
}
