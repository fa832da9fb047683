package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var (
	outputFmt string
	typesFile string
)

var rootCmd = &cobra.Command{
	Use:   "petctl",
	Short: "Offline tools for petward world data",
	Long: `petctl reads region containers directly, without a running server.

It can inspect a single container and search a whole world directory for the
companions of one owner, using the same decoder and filters as the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&typesFile, "types", "data/yaml/companion_types.yaml", "Companion type table (YAML)")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the petctl version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "petctl "+version)
	},
}
