// Package output implements the Summary / Event Bus: a ticker that turns
// metrics snapshots into progress events, and the two OutputSink
// implementations (human console, NDJSON) that consume them.
package output

import (
	"time"

	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/threshold"
)

// ScenarioProgress is one scenario's contribution to a Progress event.
type ScenarioProgress struct {
	Name          string
	ActiveVUs     int
	TargetVUs     int
	Iterations    int64
	CurrentStage  int
	TotalStages   int
}

// Progress is emitted on a fixed tick (default 1s) while a run is active.
type Progress struct {
	ElapsedSeconds      float64
	IntervalSeconds     float64
	RequestsTotal       int64
	FailedRequestsTotal int64
	ChecksFailedTotal   int64
	BytesReceivedTotal  int64
	BytesSentTotal      int64
	VUsActive           int
	RPS                 float64
	IterationsPerSec    float64
	// LatencyP50..P99 are in microseconds, matching the Trend series'
	// internal recording unit; sinks convert to whatever unit they display.
	LatencyP50  float64
	LatencyP90  float64
	LatencyP95  float64
	LatencyP99  float64
	PerScenario map[string]ScenarioProgress
}

// CheckSummary is one named check's pass/fail tally in the final summary.
type CheckSummary struct {
	Name   string
	Passed int64
	Failed int64
}

// Summary is the terminal event: full metrics plus threshold verdicts.
type Summary struct {
	Passed      bool
	Duration    time.Duration
	Scenarios   []string
	Metrics     []metrics.SeriesSummary
	Checks      []CheckSummary
	Thresholds  []threshold.Result
}

// Event is a free-form, named occurrence outside the progress/summary
// cadence (e.g. a scenario starting or stopping).
type Event struct {
	Name string
	Data map[string]interface{}
}

// Sink receives typed output events from the run. Implementations must not
// block the caller for long: the engine treats a slow sink as a dropped
// frame, not a reason to stall the schedule.
type Sink interface {
	Progress(p Progress)
	Event(e Event)
	Summary(s Summary)
	Close() error
}

// MultiSink fans one stream of events out to several sinks, e.g. human
// output to stderr and NDJSON to a file simultaneously.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

func (m *MultiSink) Progress(p Progress) {
	for _, s := range m.sinks {
		s.Progress(p)
	}
}

func (m *MultiSink) Event(e Event) {
	for _, s := range m.sinks {
		s.Event(e)
	}
}

func (m *MultiSink) Summary(s Summary) {
	for _, sink := range m.sinks {
		sink.Summary(s)
	}
}

func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildProgress assembles a Progress event from the current engine state.
// interval is the time since the previous tick and is reported as
// IntervalSeconds; RPS and IterationsPerSec are run totals divided by the
// elapsed run time (both 0 when interval is 0).
func BuildProgress(eng *metrics.Engine, interval time.Duration, perScenario map[string]ScenarioProgress) Progress {
	elapsed := time.Since(eng.StartTime())
	all := eng.AllSeries()

	var reqsTotal, failedTotal, checksFailedTotal, bytesRecv, bytesSent int64
	var p50, p90, p95, p99 float64
	for _, s := range all {
		switch s.Name {
		case "http_reqs", "grpc_reqs":
			reqsTotal += s.Count
		case "http_req_failed", "grpc_req_failed":
			// Rate series: Count is the total sample count, Rate is the
			// fraction that were true. Round to the nearest whole failure.
			failedTotal += int64(s.Rate*float64(s.Count) + 0.5)
		case "checks_failed":
			checksFailedTotal += s.Count
		case "data_received":
			bytesRecv += int64(s.Sum)
		case "data_sent":
			bytesSent += int64(s.Sum)
		case "http_req_duration", "grpc_req_duration":
			if s.Percentiles != nil {
				if s.Percentiles[50] > p50 {
					p50 = s.Percentiles[50]
				}
				if s.Percentiles[90] > p90 {
					p90 = s.Percentiles[90]
				}
				if s.Percentiles[95] > p95 {
					p95 = s.Percentiles[95]
				}
				if s.Percentiles[99] > p99 {
					p99 = s.Percentiles[99]
				}
			}
		}
	}

	var iterations int64
	for _, s := range all {
		if s.Name == "iterations" {
			iterations += s.Count
		}
	}

	intervalSec := interval.Seconds()
	rps, ips := 0.0, 0.0
	if intervalSec > 0 {
		rps = float64(reqsTotal) / elapsed.Seconds()
		ips = float64(iterations) / elapsed.Seconds()
	}

	return Progress{
		ElapsedSeconds:      elapsed.Seconds(),
		IntervalSeconds:     intervalSec,
		RequestsTotal:       reqsTotal,
		FailedRequestsTotal: failedTotal,
		ChecksFailedTotal:   checksFailedTotal,
		BytesReceivedTotal:  bytesRecv,
		BytesSentTotal:      bytesSent,
		VUsActive:           int(eng.ActiveVUsMax()),
		RPS:                 rps,
		IterationsPerSec:    ips,
		LatencyP50:          p50,
		LatencyP90:          p90,
		LatencyP95:          p95,
		LatencyP99:          p99,
		PerScenario:         perScenario,
	}
}

// Ticker drives periodic Progress events into a Sink until stopped.
type Ticker struct {
	eng      *metrics.Engine
	sink     Sink
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}

	scenariosFn func() map[string]ScenarioProgress
}

// NewTicker creates a Ticker. scenariosFn is polled on every tick to build
// the PerScenario breakdown; it may be nil.
func NewTicker(eng *metrics.Engine, sink Sink, interval time.Duration, scenariosFn func() map[string]ScenarioProgress) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{
		eng:         eng,
		sink:        sink,
		interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		scenariosFn: scenariosFn,
	}
}

// Start runs the ticker loop in a new goroutine.
func (t *Ticker) Start() {
	go func() {
		defer close(t.doneCh)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				var per map[string]ScenarioProgress
				if t.scenariosFn != nil {
					per = t.scenariosFn()
				}
				t.sink.Progress(BuildProgress(t.eng, t.interval, per))
			}
		}
	}()
}

// Stop halts the ticker and waits for its goroutine to exit.
func (t *Ticker) Stop() {
	close(t.stopCh)
	<-t.doneCh
}
