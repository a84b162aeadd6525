package job

import (
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"
)

// Timer is a single retransmission timer shared by one pending operation,
// modelled on gPXE's retry_timer (src/net/ndp.c's rsolicit's timer field,
// original_source): each expiry calls a fixed callback until the timer is
// stopped. Unlike gPXE's version this has no automatic exponential
// backoff built in — callers that need backoff (the DHCPv6 client, spec
// §4.8) compute the next delay themselves and call [Timer.Reset]; callers
// that want a fixed single-shot timeout with no retransmission (the
// pending router-solicit table, spec §4.4) just call Reset once and never
// again.
type Timer struct {
	clock timeutil.Clock

	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// NewTimer returns a Timer using clock to observe time. A nil clock uses
// [timeutil.SystemClock].
func NewTimer(clock timeutil.Clock) (tm *Timer) {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	return &Timer{clock: clock}
}

// Reset (re)arms the timer to fire fn after d. Any previously scheduled
// fire is canceled first. Reset after [Timer.Stop] is a no-op, matching
// the "a killed job's timer never fires again" invariant spec §8 expects
// of a nullified job interface.
func (tm *Timer) Reset(d time.Duration, fn func()) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.stopped {
		return
	}

	if tm.t != nil {
		tm.t.Stop()
	}

	tm.t = time.AfterFunc(d, fn)
}

// Stop cancels any pending fire and prevents future [Timer.Reset] calls
// from arming a new one. Stop is idempotent.
func (tm *Timer) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.stopped = true
	if tm.t != nil {
		tm.t.Stop()
	}
}

// Now returns the current time as observed by the timer's injected clock,
// for callers computing elapsed-time option values (spec §4.8's
// ElapsedTime DHCPv6 option).
func (tm *Timer) Now() (now time.Time) {
	return tm.clock.Now()
}
