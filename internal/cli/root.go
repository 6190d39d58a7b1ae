package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "wrkr",
	Short:   "A scriptable load generator",
	Version: version,
	Long: `wrkr drives HTTP and gRPC workloads against a target across many
virtual users, with configurable open- and closed-model executors,
tagged metrics, checks, and threshold verdicts.`,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Add subcommands to root command
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(scenarioCmd)
	RootCmd.AddCommand(initCmd)
}
