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

// RampingArrivalRate schedules iterations at a piecewise-linear-ramped rate
// (open model), pulling VUs from a pre-allocated pool and growing it up to
// max_vus as needed; when the pool is exhausted it drops the iteration
// rather than blocking the schedule (spec §4.3).
//
// The ramp's starting point at t=0 is cfg.StartRate, the same input
// constant-arrival-rate uses for its one fixed rate; stage 0 interpolates
// from StartRate to its own target the same way every later stage
// interpolates from the previous stage's target.
type RampingArrivalRate struct {
	cfg *Config

	bucket *rate.LeakyBucket

	vuPoolMu   sync.Mutex
	vuPool     chan VUHandle
	allVUs     []VUHandle
	currentVUs atomic.Int32

	iterations        atomic.Int64
	droppedIterations atomic.Int64
	currentStage      atomic.Int32
	currentRateX1000  atomic.Int64

	running    atomic.Bool
	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	startTime time.Time
}

func NewRampingArrivalRate() *RampingArrivalRate { return &RampingArrivalRate{} }

func (e *RampingArrivalRate) Type() Type { return TypeRampingArrivalRate }

func (e *RampingArrivalRate) Init(ctx context.Context, cfg *Config) error {
	if cfg.Type != TypeRampingArrivalRate {
		return fmt.Errorf("scheduler: expected %s config, got %s", TypeRampingArrivalRate, cfg.Type)
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

func (e *RampingArrivalRate) Run(ctx context.Context, host Host) error {
	e.running.Store(true)
	defer e.running.Store(false)
	e.startTime = time.Now()

	initialRate := e.calculateTargetRate()
	if initialRate <= 0 {
		initialRate = 0.01
	}
	e.bucket = rate.NewLeakyBucket(initialRate)

	e.vuPool = make(chan VUHandle, e.cfg.MaxVUs)
	e.allVUs = make([]VUHandle, 0, e.cfg.MaxVUs)

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.TotalDuration())
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

	rateControllerDone := make(chan struct{})
	go func() { defer close(rateControllerDone); e.rateController(runCtx) }()

	schedulerDone := make(chan struct{})
	go func() { defer close(schedulerDone); e.iterationScheduler(runCtx, host) }()

	<-runCtx.Done()
	<-rateControllerDone
	<-schedulerDone
	e.wg.Wait()
	e.gracefulShutdown()
	return nil
}

func (e *RampingArrivalRate) rateController(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r := e.calculateTargetRate()
		e.currentRateX1000.Store(int64(r * 1000))
		e.bucket.SetRate(r)
	}
}

// calculateTargetRate interpolates rate(t) across stages, starting from
// cfg.StartRate at t=0 (see type doc), then normalizes the result from
// events-per-time_unit to events-per-second (spec §4.3:
// ∫ r(τ)/time_unit dτ = 1) so the leaky bucket, which always drips in real
// seconds, schedules the rate the scenario actually declared.
func (e *RampingArrivalRate) calculateTargetRate() float64 {
	elapsed := time.Since(e.startTime)
	var cumulative time.Duration
	prevTarget := e.cfg.StartRate
	for i, stage := range e.cfg.Stages {
		stageStart := cumulative
		stageEnd := cumulative + stage.Duration
		if elapsed < stageEnd || i == len(e.cfg.Stages)-1 {
			e.currentStage.Store(int32(i))
			if stage.Duration <= 0 {
				return e.perSecond(float64(stage.Target))
			}
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			if progress > 1 {
				progress = 1
			}
			if progress < 0 {
				progress = 0
			}
			return e.perSecond(prevTarget + (float64(stage.Target)-prevTarget)*progress)
		}
		prevTarget = float64(stage.Target)
		cumulative = stageEnd
	}
	return e.perSecond(prevTarget)
}

// perSecond converts a rate expressed per cfg.TimeUnit into events per
// second; TimeUnit defaults to one second when unset.
func (e *RampingArrivalRate) perSecond(ratePerTimeUnit float64) float64 {
	unit := e.cfg.TimeUnit
	if unit <= 0 {
		unit = time.Second
	}
	return ratePerTimeUnit / unit.Seconds()
}

func (e *RampingArrivalRate) iterationScheduler(ctx context.Context, host Host) {
	for {
		if err := e.bucket.Wait(ctx); err != nil {
			return
		}
		if e.bucket.GetRate() < 0.02 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		vu, ok := e.getVU(ctx, host)
		if !ok {
			return
		}
		if vu == nil {
			// No VU available and at max_vus: drop this iteration rather
			// than blocking the schedule.
			e.droppedIterations.Add(1)
			host.Metrics().RecordDroppedIteration(value.NewTags())
			continue
		}

		e.wg.Add(1)
		go e.runIteration(ctx, host, vu)
	}
}

// getVU returns (vu, true) with a usable VU, (nil, true) when none is
// available and the pool is already at max_vus (caller should record a
// drop), or (nil, false) when ctx is done.
func (e *RampingArrivalRate) getVU(ctx context.Context, host Host) (VUHandle, bool) {
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

func (e *RampingArrivalRate) returnVU(vu VUHandle) {
	if vu.Stopped() {
		return
	}
	select {
	case e.vuPool <- vu:
	default:
	}
}

func (e *RampingArrivalRate) runIteration(ctx context.Context, host Host, vu VUHandle) {
	defer e.wg.Done()
	defer e.returnVU(vu)
	_ = vu.RunIteration(ctx)
	e.iterations.Add(1)
}

func (e *RampingArrivalRate) gracefulShutdown() {
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

func (e *RampingArrivalRate) Stats() Stats {
	return Stats{
		Elapsed:           time.Since(e.startTime),
		TotalDuration:     e.cfg.TotalDuration(),
		ActiveVUs:         int(e.currentVUs.Load()),
		TargetVUs:         e.cfg.MaxVUs,
		Iterations:        e.iterations.Load(),
		CurrentStage:      int(e.currentStage.Load()),
		TotalStages:       len(e.cfg.Stages),
		CurrentRate:       float64(e.currentRateX1000.Load()) / 1000,
		DroppedIterations: e.droppedIterations.Load(),
	}
}

func (e *RampingArrivalRate) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	cancel := e.cancelFunc
	e.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
