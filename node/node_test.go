package node

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/strand/model"
)

// scripted is a Phases implementation whose Exec returns the queued errors
// in order, then succeeds.
type scripted struct {
	errs      []error
	execCalls atomic.Int32
	postCalls int
	gotRes    string
	timeout   time.Duration
	block     bool
}

func (s *scripted) Prep(_ context.Context, rc *model.RunContext) (string, error) {
	return rc.Goal, nil
}

func (s *scripted) Exec(ctx context.Context, prep string) (string, error) {
	i := int(s.execCalls.Add(1)) - 1
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return "done:" + prep, nil
}

func (s *scripted) Post(_ context.Context, rc *model.RunContext, _ string, res string) (model.Outcome, error) {
	s.postCalls++
	s.gotRes = res
	rc.FinalResult = res
	return model.OutcomeDecide, nil
}

type withFallback struct {
	*scripted
	fallbackErr error
	sawErr      error
}

func (f *withFallback) Fallback(_ context.Context, prep string, lastErr error) (string, error) {
	f.sawErr = lastErr
	if f.fallbackErr != nil {
		return "", f.fallbackErr
	}
	return "fallback:" + prep, nil
}

type withTimeout struct {
	*scripted
}

func (w *withTimeout) Timeout(string) time.Duration {
	return w.timeout
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.25}
}

func TestRun_SucceedsAfterRetries(t *testing.T) {
	errTransient := errors.New("transient")
	s := &scripted{errs: []error{errTransient, errTransient}}
	rec := &sleepRecorder{}
	n := New[string, string](KindAct, s, testPolicy(3), WithSleep(rec.sleep), WithJitterSource(func() float64 { return 0.5 }))

	rc := model.NewRunContext("run-1", "goal", 5)
	outcome, err := n.Run(context.Background(), rc)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeDecide, outcome)
	assert.EqualValues(t, 3, s.execCalls.Load())
	assert.Equal(t, 1, s.postCalls)
	assert.Equal(t, "done:goal", rc.FinalResult)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
}

func TestRun_NeverExceedsMaxRetries(t *testing.T) {
	for _, retries := range []int{1, 2, 5} {
		boom := errors.New("boom")
		errs := make([]error, 10)
		for i := range errs {
			errs[i] = boom
		}
		s := &scripted{errs: errs}
		rec := &sleepRecorder{}
		n := New[string, string](KindAct, s, testPolicy(retries), WithSleep(rec.sleep))

		_, err := n.Run(context.Background(), model.NewRunContext("r", "g", 5))
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.EqualValues(t, retries, s.execCalls.Load())
		assert.Len(t, rec.delays, retries-1)
		assert.Equal(t, 0, s.postCalls, "post must not run when exec fails without fallback")
	}
}

func TestRun_FallbackSubstitutesResult(t *testing.T) {
	boom := errors.New("boom")
	f := &withFallback{scripted: &scripted{errs: []error{boom, boom}}}
	n := New[string, string](KindReason, f, testPolicy(2), WithSleep((&sleepRecorder{}).sleep))

	rc := model.NewRunContext("r", "g", 5)
	outcome, err := n.Run(context.Background(), rc)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeDecide, outcome)
	assert.Equal(t, "fallback:g", f.gotRes)
	assert.Equal(t, 1, f.postCalls)
	assert.Same(t, boom, f.sawErr)
}

func TestRun_FallbackErrorPropagates(t *testing.T) {
	f := &withFallback{
		scripted:    &scripted{errs: []error{errors.New("boom")}},
		fallbackErr: errors.New("fallback broke"),
	}
	n := New[string, string](KindReason, f, testPolicy(1))

	_, err := n.Run(context.Background(), model.NewRunContext("r", "g", 5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback broke")
	assert.Equal(t, 0, f.postCalls)
}

func TestRun_PermanentErrorSkipsRetryAndFallback(t *testing.T) {
	structural := errors.New("missing field")
	f := &withFallback{scripted: &scripted{errs: []error{Permanent(structural)}}}
	n := New[string, string](KindReason, f, testPolicy(4))

	_, err := n.Run(context.Background(), model.NewRunContext("r", "g", 5))
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, structural)
	assert.EqualValues(t, 1, f.execCalls.Load())
	assert.Nil(t, f.sawErr)
	assert.Equal(t, 0, f.postCalls)
}

func TestRun_TimeoutIsRetried(t *testing.T) {
	w := &withTimeout{scripted: &scripted{block: true, timeout: 10 * time.Millisecond}}
	n := New[string, string](KindAct, w, testPolicy(2), WithSleep((&sleepRecorder{}).sleep))

	_, err := n.Run(context.Background(), model.NewRunContext("r", "g", 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.EqualValues(t, 2, w.execCalls.Load())
}

func TestRun_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")
	f := &withFallback{scripted: &scripted{errs: []error{boom, boom, boom}}}
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	n := New[string, string](KindAct, f, testPolicy(3), WithSleep(sleep))

	_, err := n.Run(ctx, model.NewRunContext("r", "g", 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, f.execCalls.Load())
	assert.Nil(t, f.sawErr, "fallback must not run after cancellation")
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &scripted{}
	n := New[string, string](KindAct, s, testPolicy(3))

	_, err := n.Run(ctx, model.NewRunContext("r", "g", 5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, s.execCalls.Load())
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("x")
	once := Permanent(base)
	assert.Same(t, once, Permanent(once))
	assert.False(t, IsPermanent(base))
	assert.True(t, IsPermanent(errors.Join(errors.New("ctx"), once)))
}

func TestRace(t *testing.T) {
	got, err := Race(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = Race(context.Background(), 5*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)

	got, err = Race(context.Background(), 0, func(context.Context) (int, error) {
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}
