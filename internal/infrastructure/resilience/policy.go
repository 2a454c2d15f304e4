package resilience

import "time"

// Policy bounds how often one named operation is attempted and when its
// circuit breaker opens.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	Breaker     BreakerPolicy
}

// Backoff grows geometrically from Initial and is capped at Max.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

type BreakerPolicy struct {
	Enabled bool
	// MinRequests is the sample size below which the breaker never trips.
	MinRequests   uint32
	FailureRatio  float64
	OpenTimeout   time.Duration
	HalfOpenCalls uint32
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff: Backoff{
			Initial:    100 * time.Millisecond,
			Max:        400 * time.Millisecond,
			Multiplier: 2,
		},
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   10,
			FailureRatio:  0.5,
			OpenTimeout:   30 * time.Second,
			HalfOpenCalls: 2,
		},
	}
}

// delay is the wait after the given failed attempt (1-based).
func (b Backoff) delay(attempt int) time.Duration {
	wait := float64(b.Initial)
	for i := 1; i < attempt; i++ {
		wait *= b.Multiplier
		if wait >= float64(b.Max) {
			return b.Max
		}
	}
	return min(time.Duration(wait), b.Max)
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	out := p

	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.Backoff.Initial <= 0 {
		out.Backoff.Initial = def.Backoff.Initial
	}
	if out.Backoff.Max < out.Backoff.Initial {
		out.Backoff.Max = max(def.Backoff.Max, out.Backoff.Initial)
	}
	if out.Backoff.Multiplier < 1 {
		out.Backoff.Multiplier = def.Backoff.Multiplier
	}

	if out.Breaker.MinRequests == 0 {
		out.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if out.Breaker.FailureRatio <= 0 || out.Breaker.FailureRatio > 1 {
		out.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if out.Breaker.OpenTimeout <= 0 {
		out.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if out.Breaker.HalfOpenCalls == 0 {
		out.Breaker.HalfOpenCalls = def.Breaker.HalfOpenCalls
	}
	return out
}
