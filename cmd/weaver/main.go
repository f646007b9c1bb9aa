// Weaver turns discovered software resources into validated, applied
// integrations. It analyzes each resource with a staged inference pipeline,
// gates the resulting plan on a human decision, and executes accepted plans
// through registered tool providers with rollback on failure.
//
// Usage:
//
//	# Process a discovery manifest
//	weaver run --resources discovered.json --intent "add retry support"
//
//	# Configure via file and environment
//	weaver run --config weaver.yaml --resources discovered.json
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "weaver",
	Short: "Orchestrates software resource integration",
	Long: `Weaver drives discovered resources through analysis, human
confirmation, and plan execution against registered tool providers.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("weaver\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
}
