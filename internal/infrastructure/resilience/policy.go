package resilience

import "time"

// Policy describes how one class of remote call is bounded, retried and
// guarded by a circuit breaker.
type Policy struct {
	// CallTimeout bounds a single attempt. Zero leaves attempts unbounded.
	CallTimeout time.Duration
	Retry       RetryPolicy
	Breaker     BreakerPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

type BreakerPolicy struct {
	Disabled bool
	// MinRequests is the sample size before the failure ratio is considered.
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// LLMPolicy guards embedding and chat calls. Model calls are slow and
// rate limited, so backoff is generous and the breaker trips early.
func LLMPolicy(callTimeout time.Duration) Policy {
	return Policy{
		CallTimeout: callTimeout,
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2,
		},
		Breaker: BreakerPolicy{
			MinRequests:      5,
			FailureRatio:     0.6,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 1,
		},
	}
}

// PublishPolicy guards broker publishes, which either succeed fast or wait
// for a reconnect.
func PublishPolicy() Policy {
	return Policy{
		CallTimeout: 2 * time.Second,
		Retry: RetryPolicy{
			MaxAttempts:    4,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     500 * time.Millisecond,
			Multiplier:     2,
		},
		Breaker: BreakerPolicy{
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      10 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

func (p Policy) normalize() Policy {
	if p.CallTimeout < 0 {
		p.CallTimeout = 0
	}
	p.Retry = p.Retry.normalize()
	p.Breaker = p.Breaker.normalize()
	return p
}

func (r RetryPolicy) normalize() RetryPolicy {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 1
	}
	if r.InitialBackoff < 0 {
		r.InitialBackoff = 0
	}
	if r.MaxBackoff < r.InitialBackoff {
		r.MaxBackoff = r.InitialBackoff
	}
	if r.Multiplier < 1 {
		r.Multiplier = 1
	}
	return r
}

// backoff is the wait after the given failed attempt (1-based).
func (r RetryPolicy) backoff(attempt int) time.Duration {
	wait := float64(r.InitialBackoff)
	for range attempt - 1 {
		wait *= r.Multiplier
		if wait >= float64(r.MaxBackoff) {
			return r.MaxBackoff
		}
	}
	return time.Duration(wait)
}

func (b BreakerPolicy) normalize() BreakerPolicy {
	if b.MinRequests == 0 {
		b.MinRequests = 10
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = 0.5
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = 30 * time.Second
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = 1
	}
	return b
}
