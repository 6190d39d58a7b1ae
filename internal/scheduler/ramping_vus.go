package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RampingVUs ramps the VU count up and down according to stages, ticking
// at most every 100ms to recompute the piecewise-linear target. Grounded on
// the teacher's executor/ramping_vus.go.
type RampingVUs struct {
	cfg *Config

	activeVUs    atomic.Int32
	targetVUs    atomic.Int32
	iterations   atomic.Int64
	currentStage atomic.Int32

	running    atomic.Bool
	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	vusMu sync.Mutex
	vus   []VUHandle

	startTime time.Time
}

func NewRampingVUs() *RampingVUs { return &RampingVUs{} }

func (e *RampingVUs) Type() Type { return TypeRampingVUs }

func (e *RampingVUs) Init(ctx context.Context, cfg *Config) error {
	if cfg.Type != TypeRampingVUs {
		return fmt.Errorf("scheduler: expected %s config, got %s", TypeRampingVUs, cfg.Type)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

func (e *RampingVUs) Run(ctx context.Context, host Host) error {
	e.running.Store(true)
	defer e.running.Store(false)
	e.startTime = time.Now()

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.TotalDuration())
	e.cancelMu.Lock()
	e.cancelFunc = cancel
	e.cancelMu.Unlock()
	defer cancel()

	controllerDone := make(chan struct{})
	go func() {
		defer close(controllerDone)
		e.vuController(runCtx, host)
	}()

	<-runCtx.Done()
	<-controllerDone
	e.gracefulShutdown()
	return nil
}

func (e *RampingVUs) vuController(ctx context.Context, host Host) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		target := e.calculateTargetVUs()
		e.targetVUs.Store(int32(target))
		e.adjustVUs(ctx, host, target)
	}
}

// calculateTargetVUs interpolates the target VU count between stage
// endpoints for the current elapsed time, matching the teacher's
// cumulative-elapsed-time stage lookup.
func (e *RampingVUs) calculateTargetVUs() int {
	elapsed := time.Since(e.startTime)
	var cumulative time.Duration
	prevTarget := 0
	for i, stage := range e.cfg.Stages {
		stageStart := cumulative
		stageEnd := cumulative + stage.Duration
		if elapsed < stageEnd || i == len(e.cfg.Stages)-1 {
			e.currentStage.Store(int32(i))
			if stage.Duration <= 0 {
				return stage.Target
			}
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			if progress > 1 {
				progress = 1
			}
			if progress < 0 {
				progress = 0
			}
			return prevTarget + int(float64(stage.Target-prevTarget)*progress+0.5)
		}
		prevTarget = stage.Target
		cumulative = stageEnd
	}
	return prevTarget
}

func (e *RampingVUs) adjustVUs(ctx context.Context, host Host, target int) {
	e.vusMu.Lock()
	defer e.vusMu.Unlock()

	current := len(e.vus)
	if target > current {
		for i := current; i < target; i++ {
			vu := host.SpawnVU()
			e.vus = append(e.vus, vu)
			e.wg.Add(1)
			go e.runVU(ctx, host, vu)
		}
	} else if target < current {
		// Shrink by stopping the most recently spawned VUs; stop is
		// cooperative, so the VU exits at its next iteration boundary
		// rather than being killed mid-iteration.
		for i := current - 1; i >= target; i-- {
			e.vus[i].RequestStop()
		}
		e.vus = e.vus[:target]
	}
}

func (e *RampingVUs) runVU(ctx context.Context, host Host, vu VUHandle) {
	defer e.wg.Done()
	host.Metrics().SetActiveVUs(int(e.activeVUs.Add(1)))
	defer func() { host.Metrics().SetActiveVUs(int(e.activeVUs.Add(-1))) }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if vu.Stopped() {
			return
		}
		_ = vu.RunIteration(ctx)
		e.iterations.Add(1)
	}
}

func (e *RampingVUs) gracefulShutdown() {
	e.vusMu.Lock()
	for _, vu := range e.vus {
		vu.RequestStop()
	}
	e.vusMu.Unlock()

	grace := e.cfg.GracefulStop
	if grace <= 0 {
		grace = 5 * time.Second
	}
	done := make(chan struct{})
	go func() { e.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

func (e *RampingVUs) Stats() Stats {
	maxTarget := 0
	for _, s := range e.cfg.Stages {
		if s.Target > maxTarget {
			maxTarget = s.Target
		}
	}
	return Stats{
		Elapsed:       time.Since(e.startTime),
		TotalDuration: e.cfg.TotalDuration(),
		ActiveVUs:     int(e.activeVUs.Load()),
		TargetVUs:     int(e.targetVUs.Load()),
		Iterations:    e.iterations.Load(),
		CurrentStage:  int(e.currentStage.Load()),
		TotalStages:   len(e.cfg.Stages),
	}
}

func (e *RampingVUs) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	cancel := e.cancelFunc
	e.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
