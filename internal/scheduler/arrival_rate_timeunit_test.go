package scheduler

import (
	"testing"
	"time"
)

func TestRampingArrivalRatePerSecondNormalizesByTimeUnit(t *testing.T) {
	e := &RampingArrivalRate{cfg: &Config{TimeUnit: time.Minute}}
	got := e.perSecond(600)
	want := 10.0
	if got != want {
		t.Errorf("perSecond(600) with timeUnit=1m = %v, want %v", got, want)
	}
}

func TestRampingArrivalRatePerSecondDefaultsToOneSecond(t *testing.T) {
	e := &RampingArrivalRate{cfg: &Config{}}
	got := e.perSecond(50)
	want := 50.0
	if got != want {
		t.Errorf("perSecond(50) with unset timeUnit = %v, want %v", got, want)
	}
}

func TestConfigValidateRejectsNegativeTimeUnit(t *testing.T) {
	cfg := &Config{
		Type:            TypeConstantArrivalRate,
		StartRate:       10,
		Duration:        time.Second,
		TimeUnit:        -time.Second,
		PreAllocatedVUs: 1,
		MaxVUs:          1,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a validation error for a negative timeUnit")
	}
}

func TestCalculateTargetRateStartsFromConfiguredStartRate(t *testing.T) {
	e := &RampingArrivalRate{cfg: &Config{
		StartRate: 100,
		TimeUnit:  time.Second,
		Stages:    []Stage{{Duration: time.Minute, Target: 200}},
	}}
	e.startTime = time.Now()
	got := e.calculateTargetRate()
	if got < 95 || got > 105 {
		t.Errorf("calculateTargetRate() at t=0 = %v, want ~100 (cfg.StartRate)", got)
	}
}

func TestCalculateTargetRateInterpolatesFromStartRate(t *testing.T) {
	e := &RampingArrivalRate{cfg: &Config{
		StartRate: 100,
		TimeUnit:  time.Second,
		Stages:    []Stage{{Duration: time.Minute, Target: 200}},
	}}
	e.startTime = time.Now().Add(-30 * time.Second)
	got := e.calculateTargetRate()
	if got < 145 || got > 155 {
		t.Errorf("calculateTargetRate() halfway through stage 0 = %v, want ~150 (halfway between StartRate=100 and target=200)", got)
	}
}

func TestConfigValidateRejectsZeroTimeUnit(t *testing.T) {
	cfg := &Config{
		Type:            TypeConstantArrivalRate,
		StartRate:       10,
		Duration:        time.Second,
		PreAllocatedVUs: 1,
		MaxVUs:          1,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a validation error for a zero timeUnit; scheduler.Config has no notion of \"unset\", unlike config.Scenario")
	}
}
