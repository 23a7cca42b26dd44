// Package pool implements the connection (C5) and connection pool (C6) of
// spec.md §4.5/§4.6, adapted from the teacher's
// application/http/actor/client/conn.go and connpool.go. The teacher
// dials through its own from-scratch transport/tcp and session/tls
// packages; this module dials through net and crypto/tls directly, since
// spec.md §1 explicitly places "the TCP/TLS library itself" out of scope
// ("assumed to expose nonblocking sockets, a TLS session primitive with
// SNI, and a timer" — exactly what net.Dialer and crypto/tls already are).
package pool

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"httpcore/internal/herr"
	"httpcore/internal/urlinfo"
)

// Conn is a single plaintext or TLS-wrapped socket, owned by exactly one of
// the pool's idle list or a single executing request at any instant
// (spec.md §3 "Connection"). Its own mutex only guards the bookkeeping
// fields below; it is never held across I/O.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader

	Origin urlinfo.Origin

	mu       sync.Mutex
	lastUsed time.Time
	healthy  bool
	closed   bool

	// readTimeout/wallDeadline implement the inactivity-timer semantics of
	// spec.md §5 ("read_timeout is an inactivity timer reset on each
	// successful read"): Read, below, resets the socket deadline to
	// now+readTimeout (bounded by wallDeadline) before every actual socket
	// read, including the ones bufio.Reader issues internally. The owning
	// request is the sole reader/writer of a checked-out connection
	// (spec.md §5), so these need no synchronization of their own.
	readTimeout  time.Duration
	wallDeadline time.Time

	clock clock.Clock
}

// DialOptions configures Dial.
type DialOptions struct {
	ConnectTimeout time.Duration
	TLSConfig      *tls.Config // nil uses a default verifying config
	Clock          clock.Clock
}

// Dial opens a fresh connection to origin, performing the TLS handshake
// (with SNI set to origin.Host) when origin.Scheme is "https". The TLS
// handshake shares the connect budget, per spec.md §4.7 step 4 ("On TLS,
// handshake shares the connect budget").
func Dial(ctx context.Context, origin urlinfo.Origin, opts DialOptions) (*Conn, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(origin.Host, origin.Port))
	if err != nil {
		if ctx.Err() != nil {
			return nil, herr.New(herr.KindTimeout, "connect", err)
		}
		return nil, herr.New(herr.KindConnect, "connect", err)
	}

	netConn := raw
	if origin.Scheme == "https" {
		cfg := opts.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = origin.Host
		}
		tlsConn := tls.Client(raw, cfg)
		if deadline, ok := ctx.Deadline(); ok {
			_ = tlsConn.SetDeadline(deadline)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			if ctx.Err() != nil {
				return nil, herr.New(herr.KindTimeout, "tls handshake", err)
			}
			return nil, herr.New(herr.KindTLS, "tls handshake", err)
		}
		_ = tlsConn.SetDeadline(time.Time{})
		netConn = tlsConn
	}

	c := &Conn{
		netConn:  netConn,
		Origin:   origin,
		healthy:  true,
		clock:    clk,
		lastUsed: time.Time{},
	}
	c.br = bufio.NewReader(c)
	return c, nil
}

// Read implements io.Reader over the underlying socket, resetting the
// inactivity deadline (set by SetReadTimeoutPolicy) before every call so a
// stalled server is caught the same way whether bufio.Reader is reading a
// status line, a header, or a chunk body.
func (c *Conn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		deadline := c.clock.Now().Add(c.readTimeout)
		if !c.wallDeadline.IsZero() && c.wallDeadline.Before(deadline) {
			deadline = c.wallDeadline
		}
		if err := c.netConn.SetReadDeadline(deadline); err != nil {
			return 0, err
		}
	}
	n, err := c.netConn.Read(p)
	if err != nil {
		c.MarkUnhealthy()
	}
	return n, err
}

// Write implements io.Writer over the underlying socket, so wire.Encode can
// write directly to a Conn without the caller reaching past it to the raw
// net.Conn.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.netConn.Write(p)
	if err != nil {
		c.MarkUnhealthy()
	}
	return n, err
}

// SetReadTimeoutPolicy configures the per-read inactivity deadline used by
// Read. wallDeadline, if non-zero, additionally bounds every reset (the
// request_timeout wall-clock cap of spec.md §3). Call with readTimeout<=0
// to disable the inactivity timer (e.g. while a chunked SSE stream with no
// activity bound is being read by the caller's own loop logic).
func (c *Conn) SetReadTimeoutPolicy(readTimeout time.Duration, wallDeadline time.Time) {
	c.readTimeout = readTimeout
	c.wallDeadline = wallDeadline
}

// Reader exposes the buffered reader the wire codec reads the response
// head and body from.
func (c *Conn) Reader() *bufio.Reader { return c.br }

// SetDeadline sets both read and write deadlines on the underlying socket.
// A zero Time clears the deadline.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.netConn.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.netConn.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.netConn.SetWriteDeadline(t) }

// WriteAll writes buf in full before deadline, marking the connection
// unhealthy on any error, per spec.md §4.5.
func (c *Conn) WriteAll(buf []byte, deadline time.Time) error {
	if err := c.netConn.SetWriteDeadline(deadline); err != nil {
		return herr.New(herr.KindConnect, "set write deadline", err)
	}
	total := 0
	for total < len(buf) {
		n, err := c.netConn.Write(buf[total:])
		total += n
		if err != nil {
			c.MarkUnhealthy()
			if isTimeoutErr(err) {
				return herr.New(herr.KindTimeout, "write", err)
			}
			return herr.New(herr.KindConnect, "write", err)
		}
	}
	return nil
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// MarkUnhealthy flips Healthy to false; called on any I/O error, EOF
// mid-message, or TLS truncation (spec.md §3).
func (c *Conn) MarkUnhealthy() {
	c.mu.Lock()
	c.healthy = false
	c.mu.Unlock()
}

func (c *Conn) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

// MarkIdle stamps the connection with a fresh last-used time, called by
// the pool when a connection is returned to the idle list.
func (c *Conn) MarkIdle(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

// IsIdleExpired reports whether the connection has been idle for at least
// keepaliveTimeout as of now (spec.md §4.5).
func (c *Conn) IsIdleExpired(now time.Time, keepaliveTimeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastUsed.IsZero() {
		return false
	}
	return now.Sub(c.lastUsed) >= keepaliveTimeout
}

// Close is idempotent, per spec.md §4.5.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.healthy = false
	c.mu.Unlock()
	return c.netConn.Close()
}

// WatchCancellation runs fn while a background goroutine watches ctx;
// if ctx is cancelled before fn returns, the goroutine closes c so that
// fn's blocking I/O unblocks promptly, and the call fails with KindTimeout
// when ctx's deadline expired or KindCancelled otherwise, in place of the
// closed-connection error fn saw
// (spec.md §4.5 "a timer that, on expiry, closes the underlying endpoint").
// The goroutine is always joined before WatchCancellation returns, so no
// goroutine outlives the call — the invariant spec.md §5 calls "the single
// most important" one in the whole core.
func WatchCancellation(ctx context.Context, c *Conn, fn func() error) error {
	done := make(chan struct{})
	closedByWatch := false
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			c.Close()
			closedByWatch = true
		case <-done:
		}
		return nil
	})

	err := fn()
	close(done)
	_ = g.Wait()

	if ctx.Err() != nil && (err == nil || closedByWatch) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return herr.New(herr.KindTimeout, "await", ctx.Err())
		}
		return herr.New(herr.KindCancelled, "await", ctx.Err())
	}
	return err
}
