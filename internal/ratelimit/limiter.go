// Package ratelimit enforces the sliding-window request budget of
// spec.md §4.4: evict timestamps older than now-window, block while the
// remaining count is at or above capacity, then admit by recording now.
// Waiters are served FIFO, matching the pool's waiter discipline in
// internal/pool.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"httpcore/internal/herr"
)

// Limiter is safe for concurrent use; its internal mutex guards only
// bookkeeping, never I/O, per spec.md §5.
type Limiter struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int
	admitted []time.Time // ascending admission timestamps within window
	waiters  []chan struct{}
	clock    clock.Clock
}

// New returns a Limiter admitting at most capacity requests per window.
func New(capacity int, window time.Duration, c clock.Clock) *Limiter {
	if c == nil {
		c = clock.New()
	}
	return &Limiter{capacity: capacity, window: window, clock: c}
}

// Admit blocks (honoring ctx cancellation) until the sliding window has
// room, then records an admission at the current time. FIFO order across
// concurrent waiters is preserved by the waiters slice, woken one at a
// time as old admissions age out.
func (l *Limiter) Admit(ctx context.Context) error {
	queued := false
	for {
		l.mu.Lock()
		l.evictLocked()

		// The waiters-must-be-empty requirement only protects a
		// freshly-arriving caller from cutting in front of an existing
		// queue. A caller retrying after being woken has already been
		// dequeued in FIFO order by wakeOneLocked, so it must not be forced
		// to re-check the queue: evictLocked above may itself have just
		// dequeued the next waiter in line, which would otherwise make
		// every woken waiter see a non-empty queue and requeue forever.
		if len(l.admitted) < l.capacity && (queued || len(l.waiters) == 0) {
			l.admitted = append(l.admitted, l.clock.Now())
			l.mu.Unlock()
			return nil
		}

		wake := make(chan struct{}, 1)
		l.waiters = append(l.waiters, wake)
		queued = true
		waitFor := l.nextEvictionLocked()
		l.mu.Unlock()

		timer := l.clock.Timer(waitFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.removeWaiter(wake)
			return herr.New(herr.KindCancelled, "rate limit admission", ctx.Err())
		case <-wake:
			timer.Stop()
		case <-timer.C:
			timer.Stop()
			l.removeWaiter(wake)
		}
	}
}

// evictLocked drops admissions older than now-window. Caller holds mu.
func (l *Limiter) evictLocked() {
	cutoff := l.clock.Now().Add(-l.window)
	i := 0
	for i < len(l.admitted) && l.admitted[i].Before(cutoff) {
		i++
	}
	l.admitted = l.admitted[i:]

	if len(l.admitted) < l.capacity {
		l.wakeOneLocked()
	}
}

// nextEvictionLocked returns the duration until the oldest admission ages
// out of the window, used as the worst-case poll interval for a waiter.
func (l *Limiter) nextEvictionLocked() time.Duration {
	if len(l.admitted) == 0 {
		return l.window
	}
	d := l.admitted[0].Add(l.window).Sub(l.clock.Now())
	if d < 0 {
		d = 0
	}
	return d
}

func (l *Limiter) wakeOneLocked() {
	for len(l.waiters) > 0 {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		select {
		case w <- struct{}{}:
			return
		default:
			// Channel already holds a signal; try the next one in FIFO
			// order.
		}
	}
}

// removeWaiter drops a waiter that stopped waiting (context cancelled or
// timer fired). If target was already dequeued and signalled, that wake-up
// is passed on to the next waiter instead of being lost.
func (l *Limiter) removeWaiter(target chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.waiters {
		if w == target {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
	l.wakeOneLocked()
}
