// Package vu implements the VU Runner: the per-virtual-user iteration loop,
// its group stack, and cancellation semantics (spec §4.4).
package vu

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/scripthost"
	"github.com/nogcio/wrkr/internal/value"
)

// State mirrors the teacher's VUState enum: a VU is Idle between
// iterations, Running during one, and transitions through Stopping to
// Stopped on cooperative shutdown.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// maxGroupDepth bounds nested group() calls; exceeding it is an
// InvalidUsage error per spec §4.4.
const maxGroupDepth = 64

// InvalidUsageError marks caller misuse of a VU operation.
type InvalidUsageError struct{ Msg string }

func (e *InvalidUsageError) Error() string { return "invalid usage: " + e.Msg }

// VU is one virtual user: one ScriptHost instance owned exclusively for the
// run, plus the active group stack and scenario-scoped tags.
type VU struct {
	ScenarioName string
	Host         scripthost.Host
	Metrics      *metrics.Engine
	UserTags     value.Tags

	id int

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once

	groupMu    sync.Mutex
	groupStack []string

	iterationCount atomic.Int64

	dataMu sync.RWMutex
	data   map[string]value.Value
}

func New(id int, scenarioName string, host scripthost.Host, m *metrics.Engine, tags value.Tags) *VU {
	return &VU{
		id:           id,
		ScenarioName: scenarioName,
		Host:         host,
		Metrics:      m,
		UserTags:     tags,
		stopCh:       make(chan struct{}),
		data:         make(map[string]value.Value),
	}
}

// ID returns the VU's stable identity, as passed to scripthost.Host.Iteration
// via the scripthost.VUContext interface VU implements.
func (v *VU) ID() int { return v.id }

func (v *VU) State() State { return State(v.state.Load()) }

func (v *VU) Iteration() int64 { return v.iterationCount.Load() }

// RequestStop cooperatively asks the VU to exit at the next iteration
// boundary. It is safe to call multiple times and from any goroutine.
func (v *VU) RequestStop() {
	for {
		cur := State(v.state.Load())
		if cur == StateStopping || cur == StateStopped {
			return
		}
		if v.state.CompareAndSwap(int32(cur), int32(StateStopping)) {
			v.stopOnce.Do(func() { close(v.stopCh) })
			return
		}
	}
}

// Stopped reports whether RequestStop has been observed.
func (v *VU) Stopped() bool {
	select {
	case <-v.stopCh:
		return true
	default:
		return false
	}
}

func (v *VU) MarkStopped() { v.state.Store(int32(StateStopped)) }

// PushGroup enters a nested group scope, returning the full dotted name and
// an error if the stack would exceed maxGroupDepth.
func (v *VU) PushGroup(name string) (string, error) {
	v.groupMu.Lock()
	defer v.groupMu.Unlock()
	if len(v.groupStack) >= maxGroupDepth {
		return "", &InvalidUsageError{Msg: fmt.Sprintf("group stack depth exceeds %d", maxGroupDepth)}
	}
	v.groupStack = append(v.groupStack, name)
	return strings.Join(v.groupStack, "."), nil
}

func (v *VU) PopGroup() {
	v.groupMu.Lock()
	defer v.groupMu.Unlock()
	if len(v.groupStack) > 0 {
		v.groupStack = v.groupStack[:len(v.groupStack)-1]
	}
}

// ActiveGroup returns the current dotted group name, or "" if no group is
// active.
func (v *VU) ActiveGroup() string {
	v.groupMu.Lock()
	defer v.groupMu.Unlock()
	return strings.Join(v.groupStack, ".")
}

// Group runs fn with name pushed onto the group stack, guaranteeing the pop
// happens even if fn panics or returns an error.
func (v *VU) Group(name string, fn func() error) error {
	if _, err := v.PushGroup(name); err != nil {
		return err
	}
	defer v.PopGroup()
	return fn()
}

// Tags returns the tag set metrics recorded right now should carry: the
// VU's user tags, then the engine-reserved ones layered on top so neither a
// user-supplied "scenario" nor "group" can shadow them (spec §3). group is
// the one reserved name with an escape hatch: the user's value survives
// when no group scope is currently active.
func (v *VU) Tags() value.Tags {
	t := v.UserTags.With("scenario", value.TagString(v.ScenarioName))
	if g := v.ActiveGroup(); g != "" {
		t = t.With("group", value.TagString(g))
	}
	return t
}

func (v *VU) SetData(key string, val value.Value) {
	v.dataMu.Lock()
	defer v.dataMu.Unlock()
	v.data[key] = val
}

func (v *VU) GetData(key string) (value.Value, bool) {
	v.dataMu.RLock()
	defer v.dataMu.RUnlock()
	val, ok := v.data[key]
	return val, ok
}

// RunIteration executes exactly one iteration: it transitions the VU to
// Running, calls the host's Iteration entry point, records iteration-level
// samples, and transitions back to Idle. A script-level error aborts only
// this iteration; metrics recorded up to that point are preserved (spec
// §4.4).
func (v *VU) RunIteration(ctx context.Context, execFn string) error {
	if !v.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		// Already stopping/stopped/running: caller should have checked
		// State()/Stopped() before calling; this is a no-op guard.
		return nil
	}
	defer func() {
		v.state.CompareAndSwap(int32(StateRunning), int32(StateIdle))
	}()

	start := time.Now()
	result, err := v.Host.Iteration(ctx, execFn, v)
	elapsed := time.Since(start)

	v.iterationCount.Add(1)
	tags := v.Tags()

	if err != nil {
		v.Metrics.Record("iterations_errored", metrics.Counter, tags, 1)
		return err
	}
	if result.ScriptErr != nil {
		v.Metrics.Record("iterations_errored", metrics.Counter, tags, 1)
		// Script errors abort only this iteration; do not propagate as a
		// scheduler-level error.
		return nil
	}

	v.Metrics.Record("iterations", metrics.Counter, tags, 1)
	v.Metrics.Record("iteration_duration", metrics.Trend, tags, float64(elapsed.Microseconds()))
	return nil
}

// RecordCheck records a named boolean check result: one sample on the
// `checks` Rate series tagged by check name (the per-check pass rate behind
// the NDJSON summary's checks[] shape) and, when the check fails, one
// `checks_failed` Counter sample under the VU's tags without the check tag.
func (v *VU) RecordCheck(name string, passed bool) {
	tags := v.Tags().With("check", value.TagString(name))
	truthy := 0.0
	if passed {
		truthy = 1.0
	}
	v.Metrics.Record("checks", metrics.Rate, tags, truthy)
	if !passed {
		v.Metrics.Record("checks_failed", metrics.Counter, v.Tags(), 1)
	}
}

var _ scripthost.VUContext = (*VU)(nil)
