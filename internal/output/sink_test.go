package output

import (
	"testing"
	"time"

	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/value"
)

func TestBuildProgressFailedRequestsTotalUsesRate(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()

	tags := value.NewTags()
	for i := 0; i < 10; i++ {
		eng.Record("http_req_failed", metrics.Rate, tags, 0)
	}

	p := BuildProgress(eng, time.Second, nil)
	if p.RequestsTotal != 0 {
		t.Fatalf("RequestsTotal = %d, want 0 (no http_reqs recorded)", p.RequestsTotal)
	}
	if p.FailedRequestsTotal != 0 {
		t.Errorf("FailedRequestsTotal = %d, want 0 for an all-pass rate series", p.FailedRequestsTotal)
	}
}

func TestBuildProgressFailedRequestsTotalCountsOnlyFailures(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()

	tags := value.NewTags()
	eng.Record("http_req_failed", metrics.Rate, tags, 1)
	for i := 0; i < 9; i++ {
		eng.Record("http_req_failed", metrics.Rate, tags, 0)
	}

	p := BuildProgress(eng, time.Second, nil)
	if p.FailedRequestsTotal != 1 {
		t.Errorf("FailedRequestsTotal = %d, want 1 for one failure out of ten", p.FailedRequestsTotal)
	}
}

func TestBuildProgressLatencyIsMicroseconds(t *testing.T) {
	eng := metrics.NewEngine()
	defer eng.Stop()

	tags := value.NewTags()
	eng.Record("http_req_duration", metrics.Trend, tags, 500000) // 500ms in microseconds

	p := BuildProgress(eng, time.Second, nil)
	if p.LatencyP50 < 400000 || p.LatencyP50 > 600000 {
		t.Errorf("LatencyP50 = %v, want roughly 500000 (microseconds)", p.LatencyP50)
	}
}
