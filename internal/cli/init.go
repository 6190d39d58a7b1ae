package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const starterScenario = `name: starter
executor: constant-vus
vus: 10
duration: 30s
execFn: starter
requests:
  - name: homepage
    method: GET
    url: http://localhost:8080/hello
    expectStatus: 200
thresholds:
  # http_req_duration samples are recorded in microseconds.
  http_req_duration:
    - "p95 < 500000"
  http_req_failed:
    - "rate < 0.01"
`

var initCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Scaffold a starter scenario file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "scenario.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			fmt.Fprintf(os.Stderr, "wrkr: %s already exists; pass --force to overwrite\n", path)
			os.Exit(30)
		}
		if err := os.WriteFile(path, []byte(starterScenario), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "wrkr: %v\n", err)
			os.Exit(40)
		}
		fmt.Printf("wrote %s\n", path)
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
}
