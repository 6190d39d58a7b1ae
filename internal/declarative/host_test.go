package declarative

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nogcio/wrkr/internal/config"
	"github.com/nogcio/wrkr/internal/httpclient"
	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/value"
	"github.com/nogcio/wrkr/internal/vu"
)

func TestIterationTagsRequestsWithScenarioGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := New([]config.Scenario{{
		Name: "checkout",
		Requests: []config.RequestSpec{
			{Method: "GET", URL: srv.URL, ExpectStatus: http.StatusOK},
		},
	}}, httpclient.DefaultConfig())

	eng := metrics.NewEngine()
	defer eng.Stop()
	h.BindMetrics(eng)

	v := vu.New(1, "checkout", h, eng, value.NewTags())
	if err := v.RunIteration(context.Background(), "checkout"); err != nil {
		t.Fatalf("RunIteration: %v", err)
	}

	var sawGroup, sawCheck bool
	for _, s := range eng.AllSeries() {
		if g, ok := s.Tags.Get("group"); ok && g.String() == "checkout" {
			sawGroup = true
		}
		if s.Name == "checks" {
			if passed := s.Rate; passed != 1 {
				t.Errorf("checks rate = %v, want 1 (the request matched ExpectStatus)", passed)
			}
			sawCheck = true
		}
	}
	if !sawGroup {
		t.Error("expected a metric series tagged group=checkout; Iteration should push a group scoped to the scenario name")
	}
	if !sawCheck {
		t.Error("expected a checks series; Iteration should record the ExpectStatus check via VUContext.RecordCheck")
	}
}
