package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nogcio/wrkr/internal/config"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Inspect and manipulate scenario files",
}

var scenarioValidateCmd = &cobra.Command{
	Use:   "validate <scenario-file>",
	Short: "Parse and validate a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := config.Load(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "wrkr: %v\n", err)
			os.Exit(30)
		}
		scenarios := doc.AllScenarios()
		if len(scenarios) == 0 {
			fmt.Fprintf(os.Stderr, "wrkr: %s declares no scenarios\n", args[0])
			os.Exit(30)
		}
		var errs config.ValidationErrors
		for i := range scenarios {
			if err := scenarios[i].Validate(); err != nil {
				if ve, ok := err.(config.ValidationErrors); ok {
					errs = append(errs, ve...)
				} else {
					fmt.Fprintf(os.Stderr, "wrkr: %v\n", err)
					os.Exit(30)
				}
			}
		}
		if len(errs) > 0 {
			fmt.Fprintln(os.Stderr, errs.Error())
			os.Exit(30)
		}
		fmt.Printf("%s: %d scenario(s) valid\n", args[0], len(scenarios))
	},
}

// scenarioExportCmd re-serializes a parsed scenario document back to
// canonical camelCase YAML, exercising the parse(export(options)) ≡
// options round-trip invariant.
var scenarioExportCmd = &cobra.Command{
	Use:   "export <scenario-file>",
	Short: "Re-export a scenario file in canonical form",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := config.Load(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "wrkr: %v\n", err)
			os.Exit(30)
		}
		out, err := config.Export(doc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wrkr: %v\n", err)
			os.Exit(40)
		}
		os.Stdout.Write(out)
	},
}

func init() {
	scenarioCmd.AddCommand(scenarioValidateCmd)
	scenarioCmd.AddCommand(scenarioExportCmd)
}
