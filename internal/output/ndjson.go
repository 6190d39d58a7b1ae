package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/nogcio/wrkr/internal/value"
)

const ndjsonSchema = "wrkr.ndjson.v1"

// NDJSONSink writes one JSON object per line for every event, per the
// schema documented for script-host consumption. Field names are camelCase
// to match the scenario-config alias convention.
type NDJSONSink struct {
	w   io.Writer
	mu  sync.Mutex
	enc *json.Encoder
}

func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{w: w, enc: json.NewEncoder(w)}
}

func (n *NDJSONSink) write(kind string, ts float64, body map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(map[string]interface{}, len(body)+3)
	out["schema"] = ndjsonSchema
	out["kind"] = kind
	out["ts"] = ts
	for k, v := range body {
		out[k] = v
	}
	_ = n.enc.Encode(out)
}

func (n *NDJSONSink) Progress(p Progress) {
	perScenario := make(map[string]interface{}, len(p.PerScenario))
	for name, sp := range p.PerScenario {
		perScenario[name] = map[string]interface{}{
			"activeVUs":    sp.ActiveVUs,
			"targetVUs":    sp.TargetVUs,
			"iterations":   sp.Iterations,
			"currentStage": sp.CurrentStage,
			"totalStages":  sp.TotalStages,
		}
	}

	n.write("progress", p.ElapsedSeconds, map[string]interface{}{
		"requestsTotal":       p.RequestsTotal,
		"failedRequestsTotal": p.FailedRequestsTotal,
		"checksFailedTotal":   p.ChecksFailedTotal,
		"bytesReceivedTotal":  p.BytesReceivedTotal,
		"bytesSentTotal":      p.BytesSentTotal,
		"vusActive":           p.VUsActive,
		"elapsedSeconds":      p.ElapsedSeconds,
		"intervalSeconds":     p.IntervalSeconds,
		"rps":                 p.RPS,
		"iterationsPerSec":    p.IterationsPerSec,
		"latencySecondsP50":   p.LatencyP50 / 1e6,
		"latencySecondsP90":   p.LatencyP90 / 1e6,
		"latencySecondsP95":   p.LatencyP95 / 1e6,
		"latencySecondsP99":   p.LatencyP99 / 1e6,
		"perScenario":         perScenario,
	})
}

func (n *NDJSONSink) Event(e Event) {
	n.write("event", 0, map[string]interface{}{
		"name": e.Name,
		"data": e.Data,
	})
}

func (n *NDJSONSink) Summary(s Summary) {
	metricsOut := make([]map[string]interface{}, 0, len(s.Metrics))
	for _, m := range s.Metrics {
		entry := map[string]interface{}{
			"name": m.Name,
			"kind": m.Kind.String(),
			"tags": tagsToMap(m.Tags),
		}
		switch m.Kind.String() {
		case "trend":
			entry["count"] = m.Count
			entry["min"] = m.Min
			entry["max"] = m.Max
			entry["mean"] = m.Mean
			entry["stdDev"] = m.StdDev
			entry["percentiles"] = m.Percentiles
		case "counter":
			entry["sum"] = m.Sum
		case "gauge":
			entry["last"] = m.Last
		case "rate":
			entry["count"] = m.Count
			entry["rate"] = m.Rate
		}
		metricsOut = append(metricsOut, entry)
	}

	checksOut := make([]map[string]interface{}, 0, len(s.Checks))
	for _, c := range s.Checks {
		checksOut = append(checksOut, map[string]interface{}{
			"name":   c.Name,
			"passed": c.Passed,
			"failed": c.Failed,
		})
	}

	violations := make([]map[string]interface{}, 0)
	for _, t := range s.Thresholds {
		if t.Passed {
			continue
		}
		violations = append(violations, map[string]interface{}{
			"metric":   t.Threshold.MetricName,
			"selector": tagsToMap(t.Threshold.Selector),
			"expr":     t.Threshold.Expr.Raw,
			"observed": t.Observed,
		})
	}

	n.write("summary", s.Duration.Seconds(), map[string]interface{}{
		"passed":    s.Passed,
		"scenarios": s.Scenarios,
		"metrics":   metricsOut,
		"checks":    checksOut,
		"thresholds": map[string]interface{}{
			"violations": violations,
		},
	})
}

func (n *NDJSONSink) Close() error { return nil }

func tagsToMap(t value.Tags) map[string]interface{} {
	out := map[string]interface{}{}
	t.Each(func(k string, v value.TagValue) { out[k] = v.String() })
	return out
}
