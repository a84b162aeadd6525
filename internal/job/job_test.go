package job_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6bringup/stack6/internal/job"
)

func TestJob_completeDeliversResult(t *testing.T) {
	t.Parallel()

	j := job.New()
	go j.Complete(7, nil)

	code, err := job.Wait(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestJob_completeTwicePanics(t *testing.T) {
	t.Parallel()

	j := job.New()
	j.Complete(0, nil)

	assert.Panics(t, func() { j.Complete(0, nil) })
}

func TestJob_killIsIdempotent(t *testing.T) {
	t.Parallel()

	var calls int
	j := job.New()
	j.OnKill(func() {
		calls++
		j.Complete(0, job.ErrCanceled)
	})

	j.Kill()
	j.Kill()

	assert.Equal(t, 1, calls)
}

func TestWait_contextCancelKillsJob(t *testing.T) {
	t.Parallel()

	var killed bool
	j := job.New()
	j.OnKill(func() {
		killed = true
		j.Complete(0, job.ErrCanceled)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := job.Wait(ctx, j)
	assert.ErrorIs(t, err, job.ErrCanceled)
	assert.True(t, killed)
}

func TestWait_contextCancelNoKillHandlerReturnsCtxErr(t *testing.T) {
	t.Parallel()

	j := job.New()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := job.Wait(ctx, j)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() (now time.Time) { return f.now }

func TestTimer_resetFiresAfterDuration(t *testing.T) {
	t.Parallel()

	tm := job.NewTimer(fakeClock{now: time.Unix(0, 0)})

	fired := make(chan struct{})
	tm.Reset(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimer_stopPreventsFutureReset(t *testing.T) {
	t.Parallel()

	tm := job.NewTimer(nil)
	tm.Stop()

	fired := make(chan struct{})
	tm.Reset(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
		t.Fatal("timer fired after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTimer_now(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tm := job.NewTimer(fakeClock{now: want})

	assert.True(t, tm.Now().Equal(want))
}
