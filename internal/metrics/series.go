package metrics

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/nogcio/wrkr/internal/value"
)

// Kind identifies a MetricSeries' aggregation semantics.
type Kind int

const (
	Trend Kind = iota
	Counter
	Gauge
	Rate
)

func (k Kind) String() string {
	switch k {
	case Trend:
		return "trend"
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Rate:
		return "rate"
	default:
		return "unknown"
	}
}

// builtinMetricNames are engine built-ins; user metric names must not
// begin with an underscore, which is reserved for these.
var builtinMetricNames = map[string]bool{
	"http_req_duration":  true,
	"http_req_failed":    true,
	"http_reqs":          true,
	"iterations":         true,
	"iterations_errored": true,
	"vu_active":          true,
	"vu_active_max":      true,
	"data_received":      true,
	"data_sent":          true,
	"checks":             true,
	"checks_failed":      true,
	"dropped_iterations": true,
	"grpc_req_duration":  true,
	"grpc_reqs":          true,
	"grpc_req_failed":    true,
	"metrics_dropped":    true,
}

// series holds one MetricSeries' mutable aggregation state. Identity is
// (name, kind, canonical tag signature); callers reach a series only
// through the Engine's series map, never directly.
type series struct {
	name      string
	kind      Kind
	tags      value.Tags
	signature string

	mu sync.Mutex

	// Trend
	hist *hdrhistogram.Histogram

	// Counter / Gauge
	sum  float64
	last float64
	set  bool

	// Rate
	trues int64
	total int64
}

func newSeries(name string, kind Kind, tags value.Tags) *series {
	return &series{
		name:      name,
		kind:      kind,
		tags:      tags,
		signature: tags.Signature(),
	}
}

func (s *series) record(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.kind {
	case Trend:
		if s.hist == nil {
			s.hist = hdrhistogram.New(1, 3600000000, 3)
		}
		clamped := int64(v)
		if clamped < s.hist.LowestTrackableValue() {
			clamped = s.hist.LowestTrackableValue()
		}
		if clamped > s.hist.HighestTrackableValue() {
			clamped = s.hist.HighestTrackableValue()
		}
		_ = s.hist.RecordValue(clamped)
	case Counter:
		s.sum += v
	case Gauge:
		s.last = v
		s.set = true
	case Rate:
		s.total++
		if v != 0 {
			s.trues++
		}
	}
}

// SeriesSummary is a point-in-time read of one series, used by snapshots,
// threshold evaluation, and NDJSON summary output.
type SeriesSummary struct {
	Name      string
	Kind      Kind
	Tags      value.Tags
	Count     int64
	Min       float64
	Max       float64
	Mean      float64
	StdDev    float64
	Sum       float64
	Last      float64
	Rate      float64
	Percentiles map[int]float64
}

func (s *series) summary() SeriesSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := SeriesSummary{Name: s.name, Kind: s.kind, Tags: s.tags}
	switch s.kind {
	case Trend:
		if s.hist != nil {
			sum.Count = s.hist.TotalCount()
			sum.Min = float64(s.hist.Min())
			sum.Max = float64(s.hist.Max())
			sum.Mean = s.hist.Mean()
			sum.StdDev = s.hist.StdDev()
			sum.Percentiles = map[int]float64{
				50: float64(s.hist.ValueAtQuantile(50)),
				75: float64(s.hist.ValueAtQuantile(75)),
				90: float64(s.hist.ValueAtQuantile(90)),
				95: float64(s.hist.ValueAtQuantile(95)),
				99: float64(s.hist.ValueAtQuantile(99)),
			}
		}
	case Counter:
		sum.Sum = s.sum
		sum.Count = int64(s.sum)
	case Gauge:
		sum.Last = s.last
	case Rate:
		sum.Count = s.total
		if s.total > 0 {
			sum.Rate = float64(s.trues) / float64(s.total)
		}
	}
	return sum
}

// percentile returns the Trend series' value at the given percentile
// (1..100), used by the threshold evaluator's p(N) aggregation.
func (s *series) percentile(n int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != Trend || s.hist == nil {
		return 0
	}
	return float64(s.hist.ValueAtQuantile(float64(n)))
}
