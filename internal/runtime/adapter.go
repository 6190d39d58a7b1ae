// Package runtime wires the Scenario Scheduler, VU Runner, Metrics Engine,
// Threshold Evaluator and OutputSink into a single run, and maps the
// result onto the CLI's exit code table.
package runtime

import (
	"context"

	"github.com/nogcio/wrkr/internal/scheduler"
	"github.com/nogcio/wrkr/internal/vu"
)

// vuHandle adapts a *vu.VU (whose RunIteration takes an exec function name)
// to scheduler.VUHandle (which takes none) by closing over the scenario's
// declared exec_fn. This is the seam the scheduler package deliberately
// knows nothing about.
type vuHandle struct {
	v      *vu.VU
	execFn string
}

func (h *vuHandle) RunIteration(ctx context.Context) error { return h.v.RunIteration(ctx, h.execFn) }
func (h *vuHandle) RequestStop()                            { h.v.RequestStop() }
func (h *vuHandle) Stopped() bool                           { return h.v.Stopped() }

var _ scheduler.VUHandle = (*vuHandle)(nil)
