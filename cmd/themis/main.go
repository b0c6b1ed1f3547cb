// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "themis",
		Short: "Multi-model query and indexing engine",
	}

	rootCmd.PersistentFlags().StringVar(&globalFlags.configPath, "config", "themis.toml", "Path to tunables config file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.catalogPath, "catalog", "", "Path to a catalog descriptor snapshot (TOML) to preload")
	rootCmd.PersistentFlags().StringVar(&globalFlags.seedPath, "seed", "", "Path to a JSON entity seed file to preload")

	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// rootFlags are the persistent flags shared by every subcommand,
// describing how to assemble the embedded store for this invocation.
type rootFlags struct {
	configPath  string
	catalogPath string
	seedPath    string
}

var globalFlags rootFlags
