// Package config loads and validates scenario configuration: duration
// strings, camelCase/snake_case key aliasing, and per-executor field
// requirements. Grounded on the teacher's performance/v2/config package,
// generalized from HTTP-request-list scenarios to the full executor set.
package config

import (
	"fmt"
)

// RequestSpec declares one HTTP call, executed in order, for scenarios that
// carry no embedded script (spec §1 excludes a scripting VM from the core).
// Mirrors the teacher's RequestConfig shape, generalized with an optional
// status-code check so a scenario file alone can drive checks_failed
// accounting without any script host beyond the declarative one.
type RequestSpec struct {
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method       string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL          string            `json:"url" yaml:"url"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	QueryParams  map[string]string `json:"queryParams,omitempty" yaml:"queryParams,omitempty"`
	Body         string            `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectStatus int               `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`
	JSONSchema   string            `json:"jsonSchema,omitempty" yaml:"jsonSchema,omitempty"`
	Timeout      Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Stage is one piecewise-linear ramp stage.
type Stage struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// Scenario is one executor's full declaration. Field presence requirements
// vary by Executor and are checked in Validate, not via struct tags, since
// the required set differs per executor type.
type Scenario struct {
	Name     string `json:"name" yaml:"name"`
	Executor string `json:"executor" yaml:"executor"`
	ExecFn   string `json:"execFn" yaml:"execFn"`

	VUs        int      `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration   Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Iterations int64    `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	StartVUs  int      `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	StartRate float64  `json:"startRate,omitempty" yaml:"startRate,omitempty"`
	TimeUnit  Duration `json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`

	PreAllocatedVUs int `json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`
	MaxVUs          int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	Stages []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	GracefulStop Duration          `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
	Tags         map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Requests is populated for scenario files with no backing script; see
	// RequestSpec. Leave empty when exec_fn is resolved by a real
	// scripthost.Host instead.
	Requests []RequestSpec `json:"requests,omitempty" yaml:"requests,omitempty"`
}

// Document is the top-level scenario file shape: either a single flat
// scenario, or a list of named scenarios under "scenarios". The flat form's
// fields are Scenario's own (vus, duration, ...), promoted directly onto
// Document by embedding.
type Document struct {
	Scenario `yaml:",inline" json:",inline"`

	Scenarios []Scenario `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`

	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// AllScenarios normalizes a Document's flat-or-list shape into one slice.
func (d *Document) AllScenarios() []Scenario {
	if len(d.Scenarios) > 0 {
		return d.Scenarios
	}
	if d.Scenario.Executor != "" {
		return []Scenario{d.Scenario}
	}
	return nil
}

// ValidationError reports one malformed scenario field; exit code 30.
type ValidationError struct {
	Scenario string
	Field    string
	Msg      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scenario %q: field %q: %s", e.Scenario, e.Field, e.Msg)
}

// ValidationErrors collects every ValidationError found during Validate.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	msg := fmt.Sprintf("%d invalid scenario fields:", len(es))
	for _, e := range es {
		msg += "\n  " + e.Error()
	}
	return msg
}

var validExecutors = map[string]bool{
	"constant-vus":          true,
	"ramping-vus":           true,
	"constant-arrival-rate": true,
	"ramping-arrival-rate":  true,
}

// Validate checks one scenario's required fields per its executor type,
// mirroring scheduler.Config.Validate's per-type rules (spec §4.3) at the
// config layer so malformed scenario files fail fast with exit code 30
// before a scheduler is ever constructed.
func (s *Scenario) Validate() error {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, &ValidationError{Scenario: s.Name, Field: field, Msg: msg})
	}

	if s.Name == "" {
		add("name", "must not be empty")
	}
	if s.ExecFn == "" && len(s.Requests) == 0 {
		add("execFn", "must not be empty")
	}
	if !validExecutors[s.Executor] {
		add("executor", fmt.Sprintf("unknown executor %q", s.Executor))
	}

	switch s.Executor {
	case "constant-vus":
		if s.VUs < 1 {
			add("vus", "must be >= 1")
		}
		hasDuration := s.Duration.Go() > 0
		hasIterations := s.Iterations > 0
		if hasDuration == hasIterations {
			add("duration/iterations", "exactly one of duration or iterations is required")
		}
	case "ramping-vus":
		if len(s.Stages) == 0 {
			add("stages", "at least one stage is required")
		}
		for i, st := range s.Stages {
			if st.Target < 0 {
				add(fmt.Sprintf("stages[%d].target", i), "must be >= 0")
			}
		}
	case "constant-arrival-rate":
		if s.StartRate <= 0 {
			add("startRate", "must be > 0")
		}
		if s.Duration.Go() <= 0 {
			add("duration", "must be > 0")
		}
		// Zero means "not set"; runtime.toExecutorConfig defaults it to one
		// second before the scheduler ever sees it, which is where the
		// strict time_unit > 0 invariant is actually enforced.
		if s.TimeUnit.Go() < 0 {
			add("timeUnit", "must be > 0")
		}
		if s.PreAllocatedVUs < 1 {
			add("preAllocatedVUs", "must be >= 1")
		}
		if s.MaxVUs < s.PreAllocatedVUs {
			add("maxVUs", "must be >= preAllocatedVUs")
		}
	case "ramping-arrival-rate":
		if len(s.Stages) == 0 {
			add("stages", "at least one stage is required")
		}
		// See the constant-arrival-rate case above: zero defers to the
		// runtime default instead of being rejected here.
		if s.TimeUnit.Go() < 0 {
			add("timeUnit", "must be > 0")
		}
		if s.PreAllocatedVUs < 1 {
			add("preAllocatedVUs", "must be >= 1")
		}
		if s.MaxVUs < s.PreAllocatedVUs {
			add("maxVUs", "must be >= preAllocatedVUs")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
