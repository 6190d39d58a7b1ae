// Package metrics implements the Metrics Engine: a tagged-series store with
// streaming aggregation and consistent snapshotting, tolerant of many
// concurrent writers (one per VU).
package metrics

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nogcio/wrkr/internal/value"
)

// Phase is the current lifecycle phase of the run, surfaced in progress
// snapshots and time buckets.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDone     Phase = "done"
)

// shardCount controls how many independent series-map shards the engine
// keeps, each guarded by its own mutex, so that concurrent writers from
// different VUs rarely contend on the same lock.
var shardCount = func() int {
	n := runtime.GOMAXPROCS(0) * 2
	if n < 8 {
		n = 8
	}
	return n
}()

type shard struct {
	mu     sync.RWMutex
	series map[string]*series // keyed by name + "\x00" + tag signature
}

// IsBuiltinName reports whether name is a reserved engine built-in metric.
func IsBuiltinName(name string) bool { return builtinMetricNames[name] }

// Engine is the run-scoped metrics store. It must never be shared between
// two concurrent runs in the same process.
type Engine struct {
	shards []shard

	startTime time.Time

	currentPhase atomic.Value // Phase
	metricsDropped atomic.Int64
	activeVUsMax   atomic.Int64

	bucketStore *BucketStore

	emitterCancel context.CancelFunc
	emitterWG     sync.WaitGroup
}

// NewEngine creates a run-scoped Engine and starts its background
// time-bucket emitter.
func NewEngine() *Engine {
	e := &Engine{
		shards:      make([]shard, shardCount),
		startTime:   time.Now(),
		bucketStore: NewBucketStore(3600),
	}
	for i := range e.shards {
		e.shards[i].series = make(map[string]*series)
	}
	e.currentPhase.Store(PhaseInit)

	ctx, cancel := context.WithCancel(context.Background())
	e.emitterCancel = cancel
	e.emitterWG.Add(1)
	go e.runEmitter(ctx)

	return e
}

func shardFor(shards []shard, sig string) *shard {
	h := fnv32(sig)
	return &shards[int(h)%len(shards)]
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

func (e *Engine) getOrCreate(name string, kind Kind, tags value.Tags) *series {
	sig := tags.Signature()
	key := name + "\x00" + sig
	sh := shardFor(e.shards, key)

	sh.mu.RLock()
	s, ok := sh.series[key]
	sh.mu.RUnlock()
	if ok {
		return s
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok = sh.series[key]; ok {
		return s
	}
	s = newSeries(name, kind, tags)
	sh.series[key] = s
	return s
}

// Record ingests one sample. It is non-blocking from the caller's view:
// series creation takes a brief per-shard lock, and the value update takes
// a brief per-series lock, but neither ever waits on network I/O or another
// VU's work.
func (e *Engine) Record(name string, kind Kind, tags value.Tags, v float64) {
	s := e.getOrCreate(name, kind, tags)
	if s.kind != kind {
		// A caller asked for the same (name, tags) under a different kind
		// than it was first created with: drop the sample visibly rather
		// than corrupting the existing series, per the Failure clause.
		e.metricsDropped.Add(1)
		return
	}
	s.record(v)
}

// AllSeries returns a summary of every series currently tracked, used by
// Snapshot, the threshold evaluator, and the final summary output.
func (e *Engine) AllSeries() []SeriesSummary {
	var out []SeriesSummary
	for i := range e.shards {
		sh := &e.shards[i]
		sh.mu.RLock()
		for _, s := range sh.series {
			out = append(out, s.summary())
		}
		sh.mu.RUnlock()
	}
	return out
}

// SeriesMatching returns every series whose tags are a superset of sel and
// whose name equals name, for threshold/selector resolution (spec §4.7).
func (e *Engine) SeriesMatching(name string, sel value.Tags) []SeriesSummary {
	var out []SeriesSummary
	for i := range e.shards {
		sh := &e.shards[i]
		sh.mu.RLock()
		for _, s := range sh.series {
			if s.name == name && s.tags.Superset(sel) {
				out = append(out, s.summary())
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// PercentileMatching returns the p(N) value merged across every Trend
// series matching name/sel. Exact cross-histogram merge is approximated by
// taking the maximum of each matched series' own p(N): this is exact when
// only one series matches (the common case) and conservative otherwise.
func (e *Engine) PercentileMatching(name string, sel value.Tags, n int) (float64, int) {
	var matched int
	var best float64
	for i := range e.shards {
		sh := &e.shards[i]
		sh.mu.RLock()
		for _, s := range sh.series {
			if s.name == name && s.kind == Trend && s.tags.Superset(sel) {
				matched++
				if p := s.percentile(n); p > best {
					best = p
				}
			}
		}
		sh.mu.RUnlock()
	}
	return best, matched
}

func (e *Engine) SetPhase(p Phase) { e.currentPhase.Store(p) }
func (e *Engine) Phase() Phase     { return e.currentPhase.Load().(Phase) }

// SetActiveVUs records the instantaneous vu_active gauge and advances
// vu_active_max if n is a new high, per spec §4.3's common scheduler
// guarantees.
func (e *Engine) SetActiveVUs(n int) {
	e.Record("vu_active", Gauge, value.NewTags(), float64(n))
	for {
		cur := e.activeVUsMax.Load()
		if int64(n) <= cur {
			return
		}
		if e.activeVUsMax.CompareAndSwap(cur, int64(n)) {
			e.Record("vu_active_max", Gauge, value.NewTags(), float64(n))
			return
		}
	}
}

// ActiveVUsMax returns the run max of vu_active observed so far.
func (e *Engine) ActiveVUsMax() int64 { return e.activeVUsMax.Load() }

// RecordDroppedIteration records one dropped_iterations sample, used by the
// open-model executors when no VU is available (spec §4.3).
func (e *Engine) RecordDroppedIteration(tags value.Tags) {
	e.Record("dropped_iterations", Counter, tags, 1)
}

// MetricsDropped returns the metrics_dropped counter value.
func (e *Engine) MetricsDropped() int64 { return e.metricsDropped.Load() }

func (e *Engine) runEmitter(ctx context.Context) {
	defer e.emitterWG.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.emitBucket()
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	var totalReqs, totalBytes int64
	var p50, p95, p99 float64
	for _, s := range e.AllSeries() {
		switch s.Name {
		case "http_reqs", "grpc_reqs":
			totalReqs += s.Count
		case "data_received":
			totalBytes += int64(s.Sum)
		case "http_req_duration":
			if s.Percentiles != nil {
				p50, p95, p99 = s.Percentiles[50], s.Percentiles[95], s.Percentiles[99]
			}
		}
	}
	e.bucketStore.Append(Bucket{
		Timestamp:    time.Now(),
		TotalReqs:    totalReqs,
		TotalBytes:   totalBytes,
		LatencyP50:   p50,
		LatencyP95:   p95,
		LatencyP99:   p99,
		Phase:        e.Phase(),
	})
}

// Buckets returns the recorded time-series buckets for the run.
func (e *Engine) Buckets() []Bucket { return e.bucketStore.All() }

// Stop halts the background emitter, flushing one final bucket.
func (e *Engine) Stop() {
	e.emitterCancel()
	e.emitterWG.Wait()
}

// StartTime is when the engine (and therefore the run) began.
func (e *Engine) StartTime() time.Time { return e.startTime }
