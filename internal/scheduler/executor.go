// Package scheduler implements the Scenario Scheduler: executor state
// machines for constant-vus, ramping-vus, constant-arrival-rate, and
// ramping-arrival-rate (spec §4.3).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/value"
)

// Type names an executor kind.
type Type string

const (
	TypeConstantVUs         Type = "constant-vus"
	TypeRampingVUs          Type = "ramping-vus"
	TypeConstantArrivalRate Type = "constant-arrival-rate"
	TypeRampingArrivalRate  Type = "ramping-arrival-rate"
)

// Stage is one piecewise-linear segment of a ramping executor.
type Stage struct {
	Duration time.Duration
	Target   int // VU count for ramping-vus, rate for ramping-arrival-rate
	Name     string
}

// Config is the fully-resolved, type-checked configuration for one
// scenario's executor, bridged from config.Scenario by the runtime package's
// toExecutorConfig.
type Config struct {
	Name string
	Type Type

	VUs        int
	Duration   time.Duration
	Iterations int

	StartRate       float64
	TimeUnit        time.Duration
	PreAllocatedVUs int
	MaxVUs          int

	Stages []Stage

	GracefulStop time.Duration

	ExecFn string
	Tags   value.Tags
}

// TotalDuration returns the executor's overall wall-clock budget: Duration
// for constant types, the sum of stage durations for ramping types.
func (c *Config) TotalDuration() time.Duration {
	if len(c.Stages) > 0 {
		var total time.Duration
		for _, s := range c.Stages {
			total += s.Duration
		}
		return total
	}
	return c.Duration
}

// ValidationError reports a single config validation failure; multiple may
// accumulate via ValidationErrors.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 0 {
		return ""
	}
	msg := es[0].Error()
	for _, e := range es[1:] {
		msg += "; " + e.Error()
	}
	return msg
}

// Validate checks the per-executor-type required fields named in spec §4.3.
func (c *Config) Validate() error {
	var errs ValidationErrors
	switch c.Type {
	case TypeConstantVUs:
		if c.VUs < 1 {
			errs = append(errs, &ValidationError{"vus", "must be >= 1"})
		}
		hasDuration := c.Duration > 0
		hasIterations := c.Iterations > 0
		if hasDuration == hasIterations {
			errs = append(errs, &ValidationError{"duration/iterations", "exactly one of duration or iterations is required"})
		}
	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			errs = append(errs, &ValidationError{"stages", "at least one stage is required"})
		}
		for i, s := range c.Stages {
			if s.Target < 0 {
				errs = append(errs, &ValidationError{fmt.Sprintf("stages[%d].target", i), "must be >= 0"})
			}
		}
	case TypeConstantArrivalRate:
		if c.StartRate <= 0 {
			errs = append(errs, &ValidationError{"rate", "must be > 0"})
		}
		if c.Duration <= 0 {
			errs = append(errs, &ValidationError{"duration", "is required"})
		}
		if c.TimeUnit <= 0 {
			errs = append(errs, &ValidationError{"timeUnit", "must be > 0"})
		}
		if c.PreAllocatedVUs < 1 {
			errs = append(errs, &ValidationError{"preAllocatedVUs", "must be >= 1"})
		}
		if c.MaxVUs < c.PreAllocatedVUs {
			errs = append(errs, &ValidationError{"maxVUs", "must be >= preAllocatedVUs"})
		}
	case TypeRampingArrivalRate:
		if len(c.Stages) == 0 {
			errs = append(errs, &ValidationError{"stages", "at least one stage is required"})
		}
		if c.TimeUnit <= 0 {
			errs = append(errs, &ValidationError{"timeUnit", "must be > 0"})
		}
		if c.PreAllocatedVUs < 1 {
			errs = append(errs, &ValidationError{"preAllocatedVUs", "must be >= 1"})
		}
		if c.MaxVUs < c.PreAllocatedVUs {
			errs = append(errs, &ValidationError{"maxVUs", "must be >= preAllocatedVUs"})
		}
	default:
		errs = append(errs, &ValidationError{"type", fmt.Sprintf("unknown executor type %q", c.Type)})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Stats is a point-in-time read of an executor's progress, surfaced through
// the runtime to the output sink.
type Stats struct {
	Elapsed         time.Duration
	TotalDuration   time.Duration
	ActiveVUs       int
	TargetVUs       int
	Iterations      int64
	CurrentStage    int
	TotalStages     int
	CurrentRate     float64
	TargetRate      float64
	DroppedIterations int64
}

// Host is what an executor needs from the runtime to do its job: a way to
// spawn/stop VUs and run their iterations, and the metrics engine to report
// vu_active/vu_active_max/dropped_iterations into.
type Host interface {
	SpawnVU() VUHandle
	Metrics() *metrics.Engine
}

// VUHandle is the minimal VU surface an executor needs: run one iteration,
// request cooperative stop, and observe whether stop has been requested.
type VUHandle interface {
	RunIteration(ctx context.Context) error
	RequestStop()
	Stopped() bool
}

// Executor is the common interface every scheduling policy implements.
type Executor interface {
	Type() Type
	Init(ctx context.Context, cfg *Config) error
	Run(ctx context.Context, host Host) error
	Stats() Stats
	Stop(ctx context.Context) error
}
