// Package scripthost defines the boundary the engine consumes: an opaque
// scripting runtime exposing option parsing, setup/teardown hooks, and the
// per-iteration entry point. The engine never inspects a host's internals;
// it only calls this interface. Concrete embedded-language VMs are out of
// scope (spec §1) — this package also provides NativeHost, a minimal
// in-process reference host whose scenarios are Go closures; nothing else in
// this module constructs one.
package scripthost

import (
	"context"

	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/value"
)

// VUContext is the capability handle the engine passes into Iteration: the
// calling VU's identity, group stack, per-VU data store, and check
// recording, without exposing the full vu.VU type (which depends on this
// package and would otherwise create an import cycle). Every Host
// implementation — native, declarative, or a future embedded-script host —
// gets the same handle, so group()/check() calls make it onto VU.Tags()
// regardless of which Host is driving the iteration (spec §4.4).
type VUContext interface {
	ID() int
	PushGroup(name string) (string, error)
	PopGroup()
	ActiveGroup() string
	RecordCheck(name string, passed bool)
	SetData(key string, val value.Value)
	GetData(key string) (value.Value, bool)
}

// RunDefaults are top-level script-declared defaults (e.g. a default
// duration or VU count applied when the CLI doesn't override them).
type RunDefaults struct {
	VUs      int
	Duration string
}

// ScenarioSpec is the host's declaration of one scenario, resolved from
// script-level `export const options`-style configuration before the engine
// builds its internal Scenario value.
type ScenarioSpec struct {
	Name            string
	Executor        string
	ExecFn          string
	VUs             int
	Duration        string
	Iterations      int
	StartVUs        int
	StartRate       float64
	TimeUnit        string
	PreAllocatedVUs int
	MaxVUs          int
	Stages          []StageSpec
	Tags            map[string]string
}

type StageSpec struct {
	Duration string
	Target   int
}

// ParseResult is what parse_options returns.
type ParseResult struct {
	TopLevel  RunDefaults
	Scenarios []ScenarioSpec
}

// IterationResult is what the host returns from one call to Iteration.
// ScriptErr is non-nil when the user script raised inside this iteration;
// the VU Runner aborts only that iteration and preserves metrics recorded
// up to the point of failure.
type IterationResult struct {
	ScriptErr error
}

// Summary is passed to HandleSummary at the end of a run.
type Summary struct {
	Passed bool
	Data   value.Value
}

// Host is the ScriptHost interface the engine consumes. Implementations
// must be safe to call concurrently across distinct VU ids, but the engine
// never calls Iteration concurrently for the *same* vuID (spec §4.3 Common
// scheduler guarantees).
type Host interface {
	ParseOptions(ctx context.Context, scriptPath string) (ParseResult, error)
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
	Iteration(ctx context.Context, fnName string, vu VUContext) (IterationResult, error)
	HandleSummary(ctx context.Context, summary Summary) (map[string][]byte, error)
}

// MetricsSink is an optional capability a Host may implement when it needs
// to record protocol-level samples itself rather than delegating to a
// scripted call into the HTTP/gRPC clients (for example, a declarative host
// with no embedded scripting VM behind it). If implemented, the runtime
// calls BindMetrics once, right after constructing the run's Metrics
// Engine and before Setup.
type MetricsSink interface {
	BindMetrics(m *metrics.Engine)
}
