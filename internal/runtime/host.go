package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/nogcio/wrkr/internal/config"
	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/scheduler"
	"github.com/nogcio/wrkr/internal/scripthost"
	"github.com/nogcio/wrkr/internal/value"
	"github.com/nogcio/wrkr/internal/vu"
)

// scenarioHost implements scheduler.Host for one scenario: it spawns VUs
// bound to the scenario's name/tags/exec_fn and the run-wide ScriptHost and
// Metrics Engine.
type scenarioHost struct {
	scenario *config.Scenario
	sh       scripthost.Host
	eng      *metrics.Engine

	nextID atomic.Int64

	spawnedMu sync.Mutex
	spawned   []*vu.VU
}

func newScenarioHost(sc *config.Scenario, sh scripthost.Host, eng *metrics.Engine) *scenarioHost {
	return &scenarioHost{scenario: sc, sh: sh, eng: eng}
}

func (h *scenarioHost) SpawnVU() scheduler.VUHandle {
	id := int(h.nextID.Add(1))
	tags := value.NewTags()
	for k, v := range h.scenario.Tags {
		tags = tags.With(k, value.TagString(v))
	}
	one := vu.New(id, h.scenario.Name, h.sh, h.eng, tags)
	h.spawnedMu.Lock()
	h.spawned = append(h.spawned, one)
	h.spawnedMu.Unlock()
	return &vuHandle{v: one, execFn: h.scenario.ExecFn}
}

func (h *scenarioHost) Metrics() *metrics.Engine { return h.eng }

// ActiveIterations sums Iteration() across every VU this host has spawned,
// used for per-scenario progress reporting.
func (h *scenarioHost) ActiveIterations() int64 {
	h.spawnedMu.Lock()
	defer h.spawnedMu.Unlock()
	var total int64
	for _, v := range h.spawned {
		total += v.Iteration()
	}
	return total
}
