package pool

import (
	"context"

	"httpcore/internal/urlinfo"
)

// Guard is the scoped-acquisition pattern spec.md §9 calls for: a value
// whose Release is always deferred immediately after a successful Acquire,
// so the connection is released exactly once on every exit path (success,
// error, timeout, cancellation) without any call site having to remember
// to do it manually.
type Guard struct {
	pool *Pool
	conn *Conn
	done bool
}

// AcquireGuard acquires a connection for origin and wraps it in a Guard.
// Callers must `defer guard.Release(...)` immediately on success: "never
// write a code path that calls acquire without a guard" (spec.md §9).
func AcquireGuard(ctx context.Context, p *Pool, origin urlinfo.Origin) (*Guard, error) {
	conn, err := p.Acquire(ctx, origin)
	if err != nil {
		return nil, err
	}
	return &Guard{pool: p, conn: conn}, nil
}

// Conn returns the guarded connection.
func (g *Guard) Conn() *Conn { return g.conn }

// Release returns the connection to the pool (reusable) or closes it,
// exactly once; a second call is a no-op so a deferred Release composed
// with an explicit early Release never double-releases.
func (g *Guard) Release(reusable bool) {
	if g.done {
		return
	}
	g.done = true
	g.pool.Release(g.conn, reusable)
}
