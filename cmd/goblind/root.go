package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes, matching common CLI convention.
const (
	exitSuccess = 0
	exitError   = 1
)

var rootCmd = &cobra.Command{
	Use:   "goblind",
	Short: "goblin MCP gateway daemon",
	Long: `goblind aggregates a set of MCP backend servers behind a single
MCP endpoint: one catalog of namespaced tools, prompts and resources,
circuit-broken per backend, with a small set of built-in meta-tools for
discovering what is available.`,
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI and exits the process with the appropriate code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "goblind version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
