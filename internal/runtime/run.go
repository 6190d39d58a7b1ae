package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nogcio/wrkr/internal/config"
	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/output"
	"github.com/nogcio/wrkr/internal/scheduler"
	"github.com/nogcio/wrkr/internal/scripthost"
	"github.com/nogcio/wrkr/internal/threshold"
	"github.com/nogcio/wrkr/internal/value"
)

// Exit codes, per the run's error-handling design: 0 success, 10 checks
// failed, 11 thresholds failed, 12 both, 20 script error, 30 invalid
// CLI/config, 40 internal error.
const (
	ExitOK               = 0
	ExitChecksFailed     = 10
	ExitThresholdsFailed = 11
	ExitChecksAndThresholds = 12
	ExitScriptError      = 20
	ExitInvalidOptions   = 30
	ExitFatal            = 40
)

// Options configure one run.
type Options struct {
	Scenarios       []config.Scenario
	ThresholdSpecs  []threshold.Spec
	Host            scripthost.Host
	Sink            output.Sink
	ProgressPeriod  time.Duration
}

// Result is the outcome of Run, including the exit code to return from the
// CLI.
type Result struct {
	ExitCode int
	Summary  output.Summary
	Err      error
}

// Run executes every declared scenario concurrently against a shared
// Metrics Engine, evaluates thresholds against the final snapshot, emits
// progress/summary events to sink, and derives the process exit code.
// Grounded on the teacher's engine.Run: setup -> run scenarios -> evaluate
// thresholds -> summarize, generalized from a single HTTP-request list to
// arbitrary executors and a script host.
func Run(ctx context.Context, opts Options) Result {
	if len(opts.Scenarios) == 0 {
		return Result{ExitCode: ExitInvalidOptions, Err: fmt.Errorf("runtime: no scenarios declared")}
	}
	for i := range opts.Scenarios {
		if err := opts.Scenarios[i].Validate(); err != nil {
			return Result{ExitCode: ExitInvalidOptions, Err: err}
		}
	}

	evaluator, err := threshold.Build(opts.ThresholdSpecs)
	if err != nil {
		return Result{ExitCode: ExitInvalidOptions, Err: err}
	}

	eng := metrics.NewEngine()
	defer eng.Stop()

	if sink, ok := opts.Host.(scripthost.MetricsSink); ok {
		sink.BindMetrics(eng)
	}

	if err := opts.Host.Setup(ctx); err != nil {
		return Result{ExitCode: ExitFatal, Err: fmt.Errorf("runtime: setup: %w", err)}
	}

	hosts := make(map[string]*scenarioHost, len(opts.Scenarios))
	executors := make(map[string]scheduler.Executor, len(opts.Scenarios))

	for i := range opts.Scenarios {
		sc := &opts.Scenarios[i]
		execCfg, err := toExecutorConfig(sc)
		if err != nil {
			return Result{ExitCode: ExitInvalidOptions, Err: err}
		}

		ex, err := scheduler.New(execCfg.Type)
		if err != nil {
			return Result{ExitCode: ExitInvalidOptions, Err: err}
		}
		if err := ex.Init(ctx, execCfg); err != nil {
			return Result{ExitCode: ExitInvalidOptions, Err: err}
		}

		executors[sc.Name] = ex
		hosts[sc.Name] = newScenarioHost(sc, opts.Host, eng)
	}

	eng.SetPhase(metrics.PhaseRampUp)

	var ticker *output.Ticker
	if opts.Sink != nil {
		period := opts.ProgressPeriod
		if period <= 0 {
			period = time.Second
		}
		ticker = output.NewTicker(eng, opts.Sink, period, func() map[string]output.ScenarioProgress {
			return scenarioProgress(executors, hosts)
		})
		ticker.Start()
	}

	start := time.Now()

	var wg sync.WaitGroup
	var runErrMu sync.Mutex
	var runErr error
	for name, ex := range executors {
		wg.Add(1)
		go func(name string, ex scheduler.Executor) {
			defer wg.Done()
			if err := ex.Run(ctx, hosts[name]); err != nil {
				runErrMu.Lock()
				if runErr == nil {
					runErr = fmt.Errorf("runtime: scenario %s: %w", name, err)
				}
				runErrMu.Unlock()
			}
		}(name, ex)
	}
	wg.Wait()
	duration := time.Since(start)

	eng.SetPhase(metrics.PhaseDone)

	if ticker != nil {
		ticker.Stop()
	}

	if err := opts.Host.Teardown(ctx); err != nil {
		return Result{ExitCode: ExitFatal, Err: fmt.Errorf("runtime: teardown: %w", err)}
	}
	if runErr != nil {
		return Result{ExitCode: ExitFatal, Err: runErr}
	}

	results, err := evaluator.Evaluate(eng)
	if err != nil {
		return Result{ExitCode: ExitInvalidOptions, Err: err}
	}
	thresholdsFailed := threshold.AnyFailed(results)

	checks, checksFailed := summarizeChecks(eng)

	names := make([]string, 0, len(opts.Scenarios))
	for _, sc := range opts.Scenarios {
		names = append(names, sc.Name)
	}

	summary := output.Summary{
		Passed:     !thresholdsFailed && !checksFailed,
		Duration:   duration,
		Scenarios:  names,
		Metrics:    eng.AllSeries(),
		Checks:     checks,
		Thresholds: results,
	}

	if opts.Sink != nil {
		opts.Sink.Summary(summary)
		opts.Sink.Close()
	}

	exitCode := ExitOK
	switch {
	case checksFailed && thresholdsFailed:
		exitCode = ExitChecksAndThresholds
	case thresholdsFailed:
		exitCode = ExitThresholdsFailed
	case checksFailed:
		exitCode = ExitChecksFailed
	}

	return Result{ExitCode: exitCode, Summary: summary}
}

func scenarioProgress(executors map[string]scheduler.Executor, hosts map[string]*scenarioHost) map[string]output.ScenarioProgress {
	out := make(map[string]output.ScenarioProgress, len(executors))
	for name, ex := range executors {
		stats := ex.Stats()
		out[name] = output.ScenarioProgress{
			Name:         name,
			ActiveVUs:    stats.ActiveVUs,
			TargetVUs:    stats.TargetVUs,
			Iterations:   hosts[name].ActiveIterations(),
			CurrentStage: stats.CurrentStage,
			TotalStages:  stats.TotalStages,
		}
	}
	return out
}

func summarizeChecks(eng *metrics.Engine) ([]output.CheckSummary, bool) {
	byName := map[string]*output.CheckSummary{}
	anyFailed := false
	for _, s := range eng.AllSeries() {
		if s.Name != "checks" {
			continue
		}
		name, _ := s.Tags.Get("check")
		key := name.String()
		cs, ok := byName[key]
		if !ok {
			cs = &output.CheckSummary{Name: key}
			byName[key] = cs
		}
		passed := int64(float64(s.Count) * s.Rate)
		cs.Passed += passed
		cs.Failed += s.Count - passed
	}
	out := make([]output.CheckSummary, 0, len(byName))
	for _, cs := range byName {
		if cs.Failed > 0 {
			anyFailed = true
		}
		out = append(out, *cs)
	}
	return out, anyFailed
}

func toExecutorConfig(sc *config.Scenario) (*scheduler.Config, error) {
	typ := scheduler.Type(sc.Executor)
	stages := make([]scheduler.Stage, len(sc.Stages))
	for i, s := range sc.Stages {
		stages[i] = scheduler.Stage{Duration: s.Duration.Go(), Target: s.Target, Name: s.Name}
	}
	tags := value.NewTags()
	for k, v := range sc.Tags {
		tags = tags.With(k, value.TagString(v))
	}
	timeUnit := sc.TimeUnit.Go()
	if timeUnit <= 0 {
		timeUnit = time.Second
	}
	return &scheduler.Config{
		Name:            sc.Name,
		Type:            typ,
		VUs:             sc.VUs,
		Duration:        sc.Duration.Go(),
		Iterations:      int(sc.Iterations),
		StartRate:       sc.StartRate,
		TimeUnit:        timeUnit,
		PreAllocatedVUs: sc.PreAllocatedVUs,
		MaxVUs:          sc.MaxVUs,
		Stages:          stages,
		GracefulStop:    sc.GracefulStop.Go(),
		ExecFn:          sc.ExecFn,
		Tags:            tags,
	}, nil
}
