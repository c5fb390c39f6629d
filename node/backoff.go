package node

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy configures how many times Exec is attempted and how long to wait
// between attempts.
type Policy struct {
	// MaxRetries is the total number of Exec attempts, not the number of
	// re-attempts. Values below 1 mean a single attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter is the symmetric fraction applied to each delay. Zero disables it.
	Jitter float64
}

// DefaultPolicy returns three attempts starting at one second, capped at
// thirty seconds, with 25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     0.25,
	}
}

func (p Policy) attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// Delay returns the wait after the given failed attempt (1-indexed):
// BaseDelay*2^(attempt-1), scaled by a jitter factor in [1-Jitter, 1+Jitter]
// chosen by u in [0,1], then capped at MaxDelay. Without a cap the delay
// saturates at the largest Duration.
func Delay(attempt int, p Policy, u float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.BaseDelay <= 0 {
		return 0
	}

	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.Jitter > 0 {
		u = math.Max(0, math.Min(1, u))
		d *= 1 - p.Jitter + 2*p.Jitter*u
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// sleepWithContext waits for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func jitterUnit() float64 {
	return rand.Float64()
}
