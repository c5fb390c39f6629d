package node

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is wrapped by errors returned from Race when the timer wins.
// Timeouts are retryable.
var ErrTimeout = errors.New("operation timed out")

// PermanentError marks a failure that retrying cannot fix. A node never
// retries it and never substitutes its fallback for it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the node runner surfaces it immediately.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// timeoutError reports which deadline expired.
type timeoutError struct {
	after time.Duration
}

func (e *timeoutError) Error() string {
	return "operation timed out after " + e.after.String()
}

func (e *timeoutError) Unwrap() error {
	return ErrTimeout
}

// Race runs fn against a timer of length d. If the timer fires first, the
// context passed to fn is cancelled and an error wrapping ErrTimeout is
// returned without waiting for fn. A non-positive d runs fn directly.
func Race[R any](ctx context.Context, d time.Duration, fn func(context.Context) (R, error)) (R, error) {
	if d <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		val R
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- result{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero R
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, &timeoutError{after: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
