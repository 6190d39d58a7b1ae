package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ConstantVUs runs a fixed VU pool for a duration or a shared iteration
// budget (closed model). Grounded on the teacher's executor/constant_vus.go
// Run loop, generalized to support the iteration-budget stop condition
// spec §4.3 requires in addition to duration.
type ConstantVUs struct {
	cfg *Config

	activeVUs  atomic.Int32
	iterations atomic.Int64
	budget     atomic.Int64 // remaining iteration budget; unused when cfg.Duration>0

	running    atomic.Bool
	cancelFunc context.CancelFunc
	cancelMu   sync.Mutex
	wg         sync.WaitGroup
	startTime  time.Time
}

func NewConstantVUs() *ConstantVUs { return &ConstantVUs{} }

func (e *ConstantVUs) Type() Type { return TypeConstantVUs }

func (e *ConstantVUs) Init(ctx context.Context, cfg *Config) error {
	if cfg.Type != TypeConstantVUs {
		return fmt.Errorf("scheduler: expected %s config, got %s", TypeConstantVUs, cfg.Type)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	if cfg.Iterations > 0 {
		e.budget.Store(int64(cfg.Iterations))
	}
	return nil
}

func (e *ConstantVUs) Run(ctx context.Context, host Host) error {
	e.running.Store(true)
	defer e.running.Store(false)
	e.startTime = time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Duration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	e.cancelMu.Lock()
	e.cancelFunc = cancel
	e.cancelMu.Unlock()
	defer cancel()

	for i := 0; i < e.cfg.VUs; i++ {
		vu := host.SpawnVU()
		e.wg.Add(1)
		go e.runVU(runCtx, host, vu)
	}
	e.wg.Wait()
	return nil
}

func (e *ConstantVUs) runVU(ctx context.Context, host Host, vu VUHandle) {
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

		if e.cfg.Iterations > 0 {
			if e.budget.Add(-1) < 0 {
				return
			}
		}

		_ = vu.RunIteration(ctx)
		e.iterations.Add(1)
	}
}

func (e *ConstantVUs) Stats() Stats {
	elapsed := time.Since(e.startTime)
	return Stats{
		Elapsed:       elapsed,
		TotalDuration: e.cfg.TotalDuration(),
		ActiveVUs:     int(e.activeVUs.Load()),
		TargetVUs:     e.cfg.VUs,
		Iterations:    e.iterations.Load(),
	}
}

func (e *ConstantVUs) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	cancel := e.cancelFunc
	e.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	grace := e.cfg.GracefulStop
	if grace <= 0 {
		grace = 5 * time.Second
	}
	done := make(chan struct{})
	go func() { e.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("scheduler: constant-vus graceful stop timed out after %s", grace)
	}
}
