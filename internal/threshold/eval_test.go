package threshold

import (
	"testing"

	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/value"
)

func TestEvaluatePercentileAgainstCounterIsKindMismatch(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()
	eng.Record("http_reqs", metrics.Counter, value.NewTags(), 1)

	ev, err := Build([]Spec{{Key: "http_reqs", Expr: "p(95) < 500"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err = ev.Evaluate(eng)
	if err == nil {
		t.Fatal("expected a KindMismatchError for p(95) against a Counter")
	}
	if _, ok := err.(*KindMismatchError); !ok {
		t.Errorf("expected *KindMismatchError, got %T: %v", err, err)
	}
}

func TestEvaluateRateAgainstTrendIsKindMismatch(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()
	eng.Record("http_req_duration", metrics.Trend, value.NewTags(), 100)

	ev, err := Build([]Spec{{Key: "http_req_duration", Expr: "rate < 0.01"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := ev.Evaluate(eng); err == nil {
		t.Fatal("expected a KindMismatchError for rate against a Trend")
	}
}

func TestEvaluatePercentileAgainstTrendPasses(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()
	eng.Record("http_req_duration", metrics.Trend, value.NewTags(), 100)

	ev, err := Build([]Spec{{Key: "http_req_duration", Expr: "p(95) < 1000"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	results, err := ev.Evaluate(eng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].Passed {
		t.Errorf("expected the threshold to pass, got %+v", results)
	}
}

func TestCanonicalExprStripsSpacing(t *testing.T) {
	th, err := Parse("avg_iteration_duration", "avg < 0")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if th.Expr.Raw != "avg<0" {
		t.Errorf("Expr.Raw = %q, want %q", th.Expr.Raw, "avg<0")
	}
}
