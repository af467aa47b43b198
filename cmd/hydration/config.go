package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hydration/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolvedConfigPath()
			cfg := config.Default()
			if err := config.Init(path, cfg); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "Repository: %s (%s)\n", cfg.Repository.Type, cfg.Repository.Path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "View the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolvedConfigPath()
			cfg, err := config.Load(path, os.Getenv)
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			if cfg.HTTP.PasswordHash != "" {
				cfg.HTTP.PasswordHash = "(set)"
			}
			if cfg.Repository.DSN != "" {
				cfg.Repository.DSN = "(set)"
			}

			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
			m := &config.Manager{}
			return m.Write(cmd.OutOrStdout(), cfg)
		},
	}
}
