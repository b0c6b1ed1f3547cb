package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/makr-code/themis/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective tunables configuration",
	}
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective tunables (defaults overridden by --config)",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigShow()
		},
	}
	return cmd
}

func runConfigShow() error {
	tunables, err := config.LoadFile(globalFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	enc := toml.NewEncoder(os.Stdout)
	return enc.Encode(tunables)
}
