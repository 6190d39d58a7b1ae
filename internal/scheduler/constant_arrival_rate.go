package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nogcio/wrkr/internal/rate"
	"github.com/nogcio/wrkr/internal/value"
)

// ConstantArrivalRate is the degenerate single-rate case of the open model:
// equivalent to RampingArrivalRate with one stage, kept as its own type
// (matching the teacher's separate ConstantArrivalRate) so a fixed rate
// never pays for a rate-controller tick loop recomputing a value that never
// changes.
type ConstantArrivalRate struct {
	cfg *Config

	bucket *rate.LeakyBucket

	vuPoolMu   sync.Mutex
	vuPool     chan VUHandle
	allVUs     []VUHandle
	currentVUs atomic.Int32

	iterations        atomic.Int64
	droppedIterations atomic.Int64

	running    atomic.Bool
	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	startTime time.Time
}

func NewConstantArrivalRate() *ConstantArrivalRate { return &ConstantArrivalRate{} }

func (e *ConstantArrivalRate) Type() Type { return TypeConstantArrivalRate }

func (e *ConstantArrivalRate) Init(ctx context.Context, cfg *Config) error {
	if cfg.Type != TypeConstantArrivalRate {
		return fmt.Errorf("scheduler: expected %s config, got %s", TypeConstantArrivalRate, cfg.Type)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.PreAllocatedVUs < 1 {
		cfg.PreAllocatedVUs = 1
	}
	if cfg.MaxVUs < cfg.PreAllocatedVUs {
		cfg.MaxVUs = cfg.PreAllocatedVUs
	}
	e.cfg = cfg
	return nil
}

func (e *ConstantArrivalRate) Run(ctx context.Context, host Host) error {
	e.running.Store(true)
	defer e.running.Store(false)
	e.startTime = time.Now()

	// StartRate is events per TimeUnit (spec §4.3); the leaky bucket always
	// drips in real seconds, so normalize before handing it the rate.
	unit := e.cfg.TimeUnit
	if unit <= 0 {
		unit = time.Second
	}
	e.bucket = rate.NewLeakyBucket(e.cfg.StartRate / unit.Seconds())
	e.vuPool = make(chan VUHandle, e.cfg.MaxVUs)
	e.allVUs = make([]VUHandle, 0, e.cfg.MaxVUs)

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Duration)
	e.cancelMu.Lock()
	e.cancelFunc = cancel
	e.cancelMu.Unlock()
	defer cancel()

	for i := 0; i < e.cfg.PreAllocatedVUs; i++ {
		vu := host.SpawnVU()
		e.allVUs = append(e.allVUs, vu)
		e.vuPool <- vu
		e.currentVUs.Add(1)
	}
	host.Metrics().SetActiveVUs(int(e.currentVUs.Load()))

	schedulerDone := make(chan struct{})
	go func() { defer close(schedulerDone); e.iterationScheduler(runCtx, host) }()

	<-runCtx.Done()
	<-schedulerDone
	e.wg.Wait()
	e.gracefulShutdown()
	return nil
}

func (e *ConstantArrivalRate) iterationScheduler(ctx context.Context, host Host) {
	for {
		if err := e.bucket.Wait(ctx); err != nil {
			return
		}

		vu, ok := e.getVU(ctx, host)
		if !ok {
			return
		}
		if vu == nil {
			e.droppedIterations.Add(1)
			host.Metrics().RecordDroppedIteration(value.NewTags())
			continue
		}

		e.wg.Add(1)
		go e.runIteration(ctx, host, vu)
	}
}

func (e *ConstantArrivalRate) getVU(ctx context.Context, host Host) (VUHandle, bool) {
	select {
	case vu := <-e.vuPool:
		return vu, true
	default:
	}

	e.vuPoolMu.Lock()
	if int(e.currentVUs.Load()) < e.cfg.MaxVUs {
		vu := host.SpawnVU()
		e.allVUs = append(e.allVUs, vu)
		e.currentVUs.Add(1)
		host.Metrics().SetActiveVUs(int(e.currentVUs.Load()))
		e.vuPoolMu.Unlock()
		return vu, true
	}
	e.vuPoolMu.Unlock()

	select {
	case <-ctx.Done():
		return nil, false
	case vu := <-e.vuPool:
		return vu, true
	default:
		return nil, true
	}
}

func (e *ConstantArrivalRate) returnVU(vu VUHandle) {
	if vu.Stopped() {
		return
	}
	select {
	case e.vuPool <- vu:
	default:
	}
}

func (e *ConstantArrivalRate) runIteration(ctx context.Context, host Host, vu VUHandle) {
	defer e.wg.Done()
	defer e.returnVU(vu)
	_ = vu.RunIteration(ctx)
	e.iterations.Add(1)
}

func (e *ConstantArrivalRate) gracefulShutdown() {
	e.vuPoolMu.Lock()
	for _, vu := range e.allVUs {
		vu.RequestStop()
	}
	e.vuPoolMu.Unlock()

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

func (e *ConstantArrivalRate) Stats() Stats {
	return Stats{
		Elapsed:           time.Since(e.startTime),
		TotalDuration:     e.cfg.Duration,
		ActiveVUs:         int(e.currentVUs.Load()),
		TargetVUs:         e.cfg.MaxVUs,
		Iterations:        e.iterations.Load(),
		CurrentRate:       e.cfg.StartRate,
		TargetRate:        e.cfg.StartRate,
		DroppedIterations: e.droppedIterations.Load(),
	}
}

func (e *ConstantArrivalRate) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	cancel := e.cancelFunc
	e.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
