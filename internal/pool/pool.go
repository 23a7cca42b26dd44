package pool

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"httpcore/internal/herr"
	"httpcore/internal/urlinfo"
)

// entry is the per-origin pool state of spec.md §3 "Pool entry": a bounded
// idle list (used LIFO, for TCP slow-start reuse per spec.md §4.6 step 3),
// the count of checked-out connections, and a FIFO waiter queue.
type entry struct {
	idle       []*Conn
	checkedOut int
	waiters    []chan struct{}
}

// Pool is the per-origin bounded connection pool of spec.md §4.6. A single
// mutex guards all entries' bookkeeping; it is held only across
// bookkeeping, never across I/O (spec.md §5), and is released while a
// fresh connection is being dialed.
type Pool struct {
	mu      sync.Mutex
	entries map[urlinfo.Origin]*entry

	maxPerOrigin     int
	keepaliveTimeout time.Duration
	dialOpts         DialOptions
	clock            clock.Clock
}

// Options configures a new Pool.
type Options struct {
	MaxPerOrigin     int
	KeepaliveTimeout time.Duration
	DialOpts         DialOptions
	Clock            clock.Clock
}

func New(opts Options) *Pool {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	opts.DialOpts.Clock = clk
	return &Pool{
		entries:          make(map[urlinfo.Origin]*entry),
		maxPerOrigin:     opts.MaxPerOrigin,
		keepaliveTimeout: opts.KeepaliveTimeout,
		dialOpts:         opts.DialOpts,
		clock:            clk,
	}
}

func (p *Pool) entryLocked(origin urlinfo.Origin) *entry {
	e, ok := p.entries[origin]
	if !ok {
		e = &entry{}
		p.entries[origin] = e
	}
	return e
}

// evictLocked drops idle connections that are either unhealthy or have sat
// idle longer than keepaliveTimeout, per spec.md §4.6 step 2. Caller holds
// p.mu.
func (p *Pool) evictLocked(e *entry) {
	now := p.clock.Now()
	kept := e.idle[:0:0]
	for _, c := range e.idle {
		if !c.Healthy() || c.IsIdleExpired(now, p.keepaliveTimeout) {
			c.Close()
			continue
		}
		kept = append(kept, c)
	}
	e.idle = kept
}

// Acquire implements the five-step protocol of spec.md §4.6.
func (p *Pool) Acquire(ctx context.Context, origin urlinfo.Origin) (*Conn, error) {
	for {
		p.mu.Lock()
		e := p.entryLocked(origin)
		p.evictLocked(e)

		if n := len(e.idle); n > 0 {
			conn := e.idle[n-1] // LIFO: most-recently-inserted
			e.idle = e.idle[:n-1]
			e.checkedOut++
			p.mu.Unlock()
			return conn, nil
		}

		if e.checkedOut < p.maxPerOrigin {
			// Reserve the slot before releasing the mutex for dialing, so
			// concurrent acquirers never overshoot maxPerOrigin.
			e.checkedOut++
			p.mu.Unlock()

			conn, err := Dial(ctx, origin, p.dialOpts)
			if err != nil {
				p.mu.Lock()
				e.checkedOut--
				p.wakeOneLocked(e)
				p.mu.Unlock()
				return nil, err
			}
			return conn, nil
		}

		wake := make(chan struct{}, 1)
		e.waiters = append(e.waiters, wake)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.removeWaiter(e, wake)
			return nil, herr.New(herr.KindCancelled, "acquire connection", ctx.Err())
		case <-wake:
			// Loop back to step 2 and re-evaluate from scratch.
		}
	}
}

// Release implements spec.md §4.6's release protocol. Every connection
// acquired via Acquire must be released exactly once, on every
// control-flow path; see the scoped acquisition Guard in guard.go.
func (p *Pool) Release(conn *Conn, reusable bool) {
	p.mu.Lock()
	e := p.entryLocked(conn.Origin)
	e.checkedOut--

	if reusable && conn.Healthy() && len(e.idle) < p.maxPerOrigin {
		conn.MarkIdle(p.clock.Now())
		e.idle = append(e.idle, conn)
		p.wakeOneLocked(e)
		p.mu.Unlock()
		return
	}

	p.wakeOneLocked(e)
	p.mu.Unlock()
	conn.Close()
}

// wakeOneLocked signals at most one waiter, FIFO. Caller holds p.mu.
func (p *Pool) wakeOneLocked(e *entry) {
	for len(e.waiters) > 0 {
		w := e.waiters[0]
		e.waiters = e.waiters[1:]
		select {
		case w <- struct{}{}:
			return
		default:
			// Channel already holds a signal; try the next.
		}
	}
}

// removeWaiter drops an abandoned waiter from the queue. If target was
// already dequeued and signalled, that wake-up is passed on to the next
// waiter instead of being lost.
func (p *Pool) removeWaiter(e *entry, target chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range e.waiters {
		if w == target {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
	p.wakeOneLocked(e)
}

// Stats reports the live idle/checked-out counts for origin, used by tests
// asserting the invariant idle.size()+checked_out <= maxPerOrigin.
func (p *Pool) Stats(origin urlinfo.Origin) (idle, checkedOut int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[origin]
	if !ok {
		return 0, 0
	}
	return len(e.idle), e.checkedOut
}

// CloseIdle closes every idle connection across every origin concurrently,
// used by the client façade's Close. Closing origins in parallel via
// errgroup keeps shutdown latency independent of how many origins are
// live, rather than serializing N socket closes.
func (p *Pool) CloseIdle(ctx context.Context) error {
	p.mu.Lock()
	conns := make([]*Conn, 0)
	for _, e := range p.entries {
		conns = append(conns, e.idle...)
		e.idle = nil
	}
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, c := range conns {
		c := c
		g.Go(func() error {
			return c.Close()
		})
	}
	return g.Wait()
}
