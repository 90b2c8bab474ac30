// Package backoff provides the retry delay policies used by delivery tasks.
//
// A Policy is stateful and owned by exactly one delivery task: each call to
// NextDelay consumes one retry slot. Policies are never shared across tasks.
package backoff

import (
	"time"

	cb "github.com/cenkalti/backoff/v4"
)

// Stop is the sentinel delay meaning "do not retry again".
const Stop time.Duration = cb.Stop

// Policy yields the delay to wait before the next retry, or Stop when the
// task should give up. Implementations are not safe for concurrent use; a
// task's retries are sequential so they never need to be.
type Policy interface {
	NextDelay() time.Duration
}

// Config parameterizes the exponential-with-jitter policy. All historical
// variants of these knobs are explicit here; the zero value is not usable,
// start from DefaultConfig.
type Config struct {
	// Retry disables retries entirely when false (the policy returns Stop
	// on the first call).
	Retry bool

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// Multiplier scales the interval after each retry.
	Multiplier float64

	// MaxInterval caps the computed interval.
	MaxInterval time.Duration

	// MaxElapsedTime stops retrying once this much wall time has passed
	// since the policy was created. Once exceeded the policy returns Stop
	// permanently.
	MaxElapsedTime time.Duration

	// RandomizationFactor jitters each interval multiplicatively in
	// [interval*(1-f), interval*(1+f)].
	RandomizationFactor float64
}

// DefaultConfig returns the canonical retry parameters.
func DefaultConfig() Config {
	return Config{
		Retry:               true,
		InitialInterval:     500 * time.Millisecond,
		Multiplier:          5,
		MaxInterval:         180 * time.Second,
		MaxElapsedTime:      900 * time.Second,
		RandomizationFactor: 0.5,
	}
}

// New creates a fresh Policy instance for one delivery task.
func (c Config) New() Policy {
	if !c.Retry {
		return NoRetry()
	}

	b := cb.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.Multiplier = c.Multiplier
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsedTime
	b.RandomizationFactor = c.RandomizationFactor
	b.Reset()

	return &exponential{b: b}
}

// exponential adapts cenkalti's ExponentialBackOff to the Policy interface.
type exponential struct {
	b *cb.ExponentialBackOff
}

func (e *exponential) NextDelay() time.Duration {
	return e.b.NextBackOff()
}

// NoRetry returns a policy that stops after the first attempt.
func NoRetry() Policy {
	return noRetry{}
}

type noRetry struct{}

func (noRetry) NextDelay() time.Duration { return Stop }
