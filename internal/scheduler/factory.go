package scheduler

import "fmt"

// New constructs an uninitialized executor for typ. Call Init before Run.
func New(typ Type) (Executor, error) {
	switch typ {
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	case TypeRampingVUs:
		return NewRampingVUs(), nil
	case TypeConstantArrivalRate:
		return NewConstantArrivalRate(), nil
	case TypeRampingArrivalRate:
		return NewRampingArrivalRate(), nil
	default:
		return nil, fmt.Errorf("scheduler: unknown executor type %q", typ)
	}
}

// CalculateMaxVUs returns the declared VU ceiling for cfg: VUs, the largest
// stage target, or MaxVUs, depending on the executor type.
func CalculateMaxVUs(cfg *Config) int {
	switch cfg.Type {
	case TypeConstantVUs:
		return cfg.VUs
	case TypeRampingVUs:
		max := 0
		for _, s := range cfg.Stages {
			if s.Target > max {
				max = s.Target
			}
		}
		return max
	case TypeConstantArrivalRate, TypeRampingArrivalRate:
		return cfg.MaxVUs
	default:
		return cfg.VUs
	}
}
