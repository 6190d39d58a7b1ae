package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nogcio/wrkr/internal/config"
	"github.com/nogcio/wrkr/internal/declarative"
	"github.com/nogcio/wrkr/internal/httpclient"
	"github.com/nogcio/wrkr/internal/output"
	"github.com/nogcio/wrkr/internal/runtime"
	"github.com/nogcio/wrkr/internal/threshold"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <scenario-file>",
	Short: "Run a scenario file",
	Long: `Run executes the scenarios declared in a YAML or JSON scenario file
against their configured executors, streaming progress and a final summary
to stdout, and exits with the run's verdict code.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runScenarioFile(cmd, args[0]))
	},
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "suppress live progress output; print only the final summary")
	runCmd.Flags().String("out", "", "path to write NDJSON events to, in addition to the human summary (\"-\" for stdout)")
	runCmd.Flags().Duration("progress-interval", time.Second, "interval between progress events")
	runCmd.Flags().Bool("insecure-skip-tls-verify", false, "disable TLS certificate verification for HTTP requests")
	runCmd.Flags().Duration("http-timeout", 30*time.Second, "default per-request HTTP timeout")
	runCmd.Flags().StringArray("threshold", nil, "additional threshold in \"metric{selector}: expr\" form, repeatable")
}

// runScenarioFile loads path, builds the run Options, executes it, and
// returns the process exit code, mirroring the teacher's runPerfTest except
// that this engine's Run already computes the verdict and exit code
// itself (spec §6's exit code table), so the CLI layer only wires and
// reports.
func runScenarioFile(cmd *cobra.Command, path string) int {
	quiet, _ := cmd.Flags().GetBool("quiet")
	outPath, _ := cmd.Flags().GetString("out")
	progressInterval, _ := cmd.Flags().GetDuration("progress-interval")
	insecureSkipVerify, _ := cmd.Flags().GetBool("insecure-skip-tls-verify")
	httpTimeout, _ := cmd.Flags().GetDuration("http-timeout")
	extraThresholds, _ := cmd.Flags().GetStringArray("threshold")

	doc, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wrkr: %v\n", err)
		return runtime.ExitInvalidOptions
	}

	scenarios := doc.AllScenarios()
	if len(scenarios) == 0 {
		fmt.Fprintf(os.Stderr, "wrkr: %s declares no scenarios\n", path)
		return runtime.ExitInvalidOptions
	}
	for i := range scenarios {
		scenarios[i].ExecFn = scenarios[i].Name
	}

	specs, err := buildThresholdSpecs(doc.Thresholds, extraThresholds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wrkr: %v\n", err)
		return runtime.ExitInvalidOptions
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = httpTimeout
	clientCfg.InsecureSkipVerify = insecureSkipVerify
	host := declarative.New(scenarios, clientCfg)

	sinks := []output.Sink{output.NewHumanSink(os.Stdout, quiet)}
	if outPath != "" {
		w, closeFn, err := openOutputWriter(outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wrkr: %v\n", err)
			return runtime.ExitInvalidOptions
		}
		defer closeFn()
		sinks = append(sinks, output.NewNDJSONSink(w))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	result := runtime.Run(ctx, runtime.Options{
		Scenarios:      scenarios,
		ThresholdSpecs: specs,
		Host:           host,
		Sink:           output.NewMultiSink(sinks...),
		ProgressPeriod: progressInterval,
	})
	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "wrkr: %v\n", result.Err)
	}
	return result.ExitCode
}

// buildThresholdSpecs merges a scenario document's "thresholds" map with
// any --threshold flags, which take the "metric{sel}: expr" shorthand
// instead of the document's metric-keyed list shape.
func buildThresholdSpecs(docThresholds map[string][]string, extra []string) ([]threshold.Spec, error) {
	var specs []threshold.Spec
	for key, exprs := range docThresholds {
		for _, expr := range exprs {
			abort := false
			specs = append(specs, threshold.Spec{Key: key, Expr: expr, AbortOnFail: abort})
		}
	}
	for _, raw := range extra {
		key, expr, err := splitThresholdFlag(raw)
		if err != nil {
			return nil, err
		}
		specs = append(specs, threshold.Spec{Key: key, Expr: expr})
	}
	return specs, nil
}

func splitThresholdFlag(raw string) (key, expr string, err error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			return raw[:i], raw[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid --threshold %q: expected \"metric{sel}: expr\"", raw)
}

func openOutputWriter(path string) (w io.Writer, closeFn func(), err error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
