// Package job implements the cooperative single-job scheduling model
// described in spec §5: long-lived operations (a pending router solicit,
// a DHCPv6 session) expose a [Job] that completes exactly once, and the
// sole suspension point in the whole core is [Wait], called by the
// top-level autoconfig orchestrator.
//
// There are no OS threads standing in for gPXE's monojob_wait loop here;
// RX delivery and timer expiry run as ordinary goroutines that mutate the
// shared, lock-protected tables in internal/ndp6 and internal/dhcp6client
// and call [Job.Complete] when their work finishes, while [Wait] simply
// blocks on a channel. This is the "async task with a well-defined
// executor" framing spec §9 asks for, not a hand-rolled timer wheel.
package job

import (
	"context"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrCanceled is the result a [Job] completes with when it is killed,
// either by its own timeout-with-no-retry path or by [Job.Kill].
const ErrCanceled errors.Error = "canceled"

// result is the terminal outcome of a Job.
type result struct {
	code int
	err  error
}

// Job is a handle to a long-lived, single-completion operation. The zero
// value is not usable; construct with [New].
type Job struct {
	mu     sync.Mutex
	done   bool
	killFn func()
	resCh  chan result
}

// New returns a fresh, incomplete Job.
func New() (j *Job) {
	return &Job{resCh: make(chan result, 1)}
}

// OnKill registers the function called when [Job.Kill] is invoked. fn
// must stop any timer, mark the owning entry invalid, and call
// [Job.Complete] with [ErrCanceled] — mirroring spec §5's "A handler that
// completes a job ... MUST nullify its own job interface first to
// prevent reentrant cancellation." [Job.Kill] performs that
// nullification: it clears the registered function before invoking it,
// so fn runs at most once.
func (j *Job) OnKill(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.killFn = fn
}

// Kill cancels the job. It is idempotent: a second call is a no-op,
// matching spec §5 "Cancellation is idempotent."
func (j *Job) Kill() {
	j.mu.Lock()
	fn := j.killFn
	j.killFn = nil
	j.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Complete finishes the job with the given result code and error. It
// must be called at most once; a second call panics, since spec §8
// requires "a completed job is completed exactly once" as an invariant a
// correct handler never violates.
func (j *Job) Complete(code int, err error) {
	j.mu.Lock()
	if j.done {
		j.mu.Unlock()
		panic("job: Complete called twice")
	}
	j.done = true
	j.mu.Unlock()

	j.resCh <- result{code: code, err: err}
}

// Wait blocks until j completes or ctx is canceled, in which case j is
// killed and Wait returns ctx's error unless the kill handler produced a
// result first. Wait is the only suspension point this core exposes
// (spec §5 "Suspension points").
func Wait(ctx context.Context, j *Job) (code int, err error) {
	select {
	case r := <-j.resCh:
		return r.code, r.err
	case <-ctx.Done():
	}

	j.Kill()

	select {
	case r := <-j.resCh:
		return r.code, r.err
	default:
		return 0, ctx.Err()
	}
}
