// Package backoff decides how long a failed job waits before its queue
// runs it again. The queue passes the retry count after incrementing it,
// so Delay(1) is the wait before the first retry.
//
// The default curve doubles from one minute: 60s, 120s, 240s.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"
)

// DefaultBase is the wait before the first retry under DefaultStrategy.
const DefaultBase = time.Minute

// Strategy maps a 1-based retry number to a wait. Implementations must be
// safe for concurrent use; every queue shares one.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// StrategyFunc lets a plain function serve as a Strategy.
type StrategyFunc func(attempt int) time.Duration

// Delay calls f(attempt).
func (f StrategyFunc) Delay(attempt int) time.Duration { return f(attempt) }

// Constant waits Interval every time.
type Constant struct {
	Interval time.Duration
}

// NewConstant returns a Constant waiting interval.
func NewConstant(interval time.Duration) *Constant { return &Constant{Interval: interval} }

// Delay returns the fixed interval.
func (c *Constant) Delay(int) time.Duration { return c.Interval }

// Linear waits Initial × attempt, never more than Max when Max > 0.
type Linear struct {
	Initial, Max time.Duration
}

// NewLinear returns a Linear strategy. A zero maxDelay leaves it uncapped.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial × attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	return ceiling(float64(l.Initial)*float64(nth(attempt)), l.Max)
}

// Exponential waits Initial × 2^(attempt-1), never more than Max when
// Max > 0. Delays past the int64 range saturate instead of wrapping.
type Exponential struct {
	Initial, Max time.Duration
}

// NewExponential returns an Exponential strategy. A zero maxDelay leaves it
// uncapped.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial × 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return ceiling(doubled(e.Initial, attempt), e.Max)
}

// ExponentialWithJitter draws uniformly from [0, Exponential.Delay]. Use it
// when many jobs of one kind fail together and would otherwise retry in
// lockstep against the same backend.
type ExponentialWithJitter struct {
	Initial, Max time.Duration
}

// NewExponentialWithJitter returns a full-jitter exponential strategy.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random wait bounded by the capped exponential delay.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	top := int64(ceiling(doubled(e.Initial, attempt), e.Max))
	if top <= 0 {
		return 0
	}
	if top < math.MaxInt64 {
		top++ // inclusive upper bound
	}
	return time.Duration(rand.Int64N(top)) //nolint:gosec // jitter, not a secret
}

// nth treats attempts below 1 as the first retry.
func nth(attempt int) int { return max(attempt, 1) }

func doubled(initial time.Duration, attempt int) float64 {
	return math.Ldexp(float64(initial), nth(attempt)-1)
}

func ceiling(d float64, maxDelay time.Duration) time.Duration {
	switch {
	case maxDelay > 0 && d > float64(maxDelay):
		return maxDelay
	case d >= math.MaxInt64:
		return math.MaxInt64
	}
	return time.Duration(d)
}

// DefaultStrategy is the deterministic one-minute doubling curve.
func DefaultStrategy() Strategy { return NewExponential(DefaultBase, 0) }

// builders maps HERALD_BACKOFF values to strategies. The empty name is the
// default.
var builders = map[string]func(base time.Duration) Strategy{
	"":            func(b time.Duration) Strategy { return NewExponential(b, 0) },
	"exponential": func(b time.Duration) Strategy { return NewExponential(b, 0) },
	"constant":    func(b time.Duration) Strategy { return NewConstant(b) },
	"linear":      func(b time.Duration) Strategy { return NewLinear(b, 0) },
	"jitter":      func(b time.Duration) Strategy { return NewExponentialWithJitter(b, 0) },
}

// Names lists the strategy names FromName accepts.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		if n != "" {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// FromName builds the named strategy with base as its first delay. A
// non-positive base means DefaultBase. Names are case-insensitive.
func FromName(name string, base time.Duration) (Strategy, error) {
	build, ok := builders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("backoff: unknown strategy %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	if base <= 0 {
		base = DefaultBase
	}
	return build(base), nil
}
