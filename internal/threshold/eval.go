package threshold

import (
	"fmt"

	"github.com/nogcio/wrkr/internal/metrics"
)

// Result is the evaluated outcome of one threshold.
type Result struct {
	Threshold *Threshold
	Observed  float64
	Passed    bool
	Abort     bool // this threshold carries "abortOnFail" and failed
}

// Spec pairs a parsed threshold with its config-level abort flag.
type Spec struct {
	Key         string
	Expr        string
	AbortOnFail bool
}

// Evaluator holds parsed thresholds ready to be checked against an engine.
type Evaluator struct {
	thresholds []*Threshold
	abort      []bool
}

// Build parses every (key, expr) pair in specs, returning a ParseError for
// the first malformed one.
func Build(specs []Spec) (*Evaluator, error) {
	ev := &Evaluator{}
	for _, s := range specs {
		t, err := Parse(s.Key, s.Expr)
		if err != nil {
			return nil, err
		}
		ev.thresholds = append(ev.thresholds, t)
		ev.abort = append(ev.abort, s.AbortOnFail)
	}
	return ev, nil
}

// Evaluate checks every threshold against the current engine snapshot. A
// threshold whose aggregation cannot apply to its metric's recorded kind
// (e.g. p(95) against a Counter) aborts evaluation with a KindMismatchError,
// distinct from a threshold that simply has no matching samples yet.
func (ev *Evaluator) Evaluate(eng *metrics.Engine) ([]Result, error) {
	results := make([]Result, 0, len(ev.thresholds))
	for i, t := range ev.thresholds {
		observed, ok, err := evalOne(eng, t)
		if err != nil {
			return nil, err
		}
		passed := ok && compare(observed, t.Expr.Op, t.Expr.RHS)
		results = append(results, Result{
			Threshold: t,
			Observed:  observed,
			Passed:    passed,
			Abort:     ev.abort[i] && !passed,
		})
	}
	return results, nil
}

// AnyFailed reports whether any evaluated threshold failed.
func AnyFailed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// AnyAbort reports whether any failed threshold carries abortOnFail.
func AnyAbort(results []Result) bool {
	for _, r := range results {
		if r.Abort {
			return true
		}
	}
	return false
}

// aggKinds lists which metrics.Kind values an aggregation is defined over.
// A metric matched by name/selector but recorded under a kind outside this
// set is a KindMismatchError, not a "no samples yet" empty match.
func aggKinds(agg Aggregation) []metrics.Kind {
	switch agg {
	case AggRate:
		return []metrics.Kind{metrics.Rate}
	case AggPercentile, AggAvg, AggMin, AggMax:
		return []metrics.Kind{metrics.Trend}
	case AggCount:
		return nil // count is defined over every kind
	default:
		return nil
	}
}

func evalOne(eng *metrics.Engine, t *Threshold) (float64, bool, error) {
	matched := eng.SeriesMatching(t.MetricName, t.Selector)
	if len(matched) == 0 {
		return 0, false, nil
	}

	if want := aggKinds(t.Expr.Agg); want != nil {
		ok := false
		for _, s := range matched {
			for _, k := range want {
				if s.Kind == k {
					ok = true
				}
			}
		}
		if !ok {
			return 0, false, &KindMismatchError{MetricName: t.MetricName, Agg: t.Expr.Agg, Kind: matched[0].Kind.String()}
		}
	}

	switch t.Expr.Agg {
	case AggCount:
		var n int64
		for _, s := range matched {
			n += s.Count
		}
		return float64(n), true, nil
	case AggRate:
		var trues, total int64
		for _, s := range matched {
			trues += int64(s.Rate * float64(s.Count))
			total += s.Count
		}
		if total == 0 {
			return 0, false, nil
		}
		return float64(trues) / float64(total), true, nil
	case AggAvg:
		var sum float64
		var n int64
		for _, s := range matched {
			sum += s.Mean * float64(s.Count)
			n += s.Count
		}
		if n == 0 {
			return 0, false, nil
		}
		return sum / float64(n), true, nil
	case AggMin:
		min := matched[0].Min
		for _, s := range matched[1:] {
			if s.Min < min {
				min = s.Min
			}
		}
		return min, true, nil
	case AggMax:
		max := matched[0].Max
		for _, s := range matched[1:] {
			if s.Max > max {
				max = s.Max
			}
		}
		return max, true, nil
	case AggPercentile:
		p, n := eng.PercentileMatching(t.MetricName, t.Selector, t.Expr.Percentile)
		return p, n > 0, nil
	default:
		return 0, false, nil
	}
}

func compare(observed float64, op Op, rhs float64) bool {
	switch op {
	case OpLT:
		return observed < rhs
	case OpLE:
		return observed <= rhs
	case OpGT:
		return observed > rhs
	case OpGE:
		return observed >= rhs
	case OpEQ:
		return observed == rhs
	default:
		return false
	}
}

func (r Result) String() string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	sel := r.Threshold.Selector.Signature()
	if sel != "" {
		return fmt.Sprintf("[%s] %s{%s} %s (observed=%.4f)", status, r.Threshold.MetricName, sel, r.Threshold.Expr.Raw, r.Observed)
	}
	return fmt.Sprintf("[%s] %s %s (observed=%.4f)", status, r.Threshold.MetricName, r.Threshold.Expr.Raw, r.Observed)
}
