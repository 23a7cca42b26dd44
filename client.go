package httpcore

import (
	"context"
	"math"
	"sync"

	"httpcore/internal/executor"
	"httpcore/internal/pool"
	"httpcore/internal/ratelimit"
	"httpcore/internal/urlinfo"
)

// Client is the façade of spec.md §4.8 (C8): it owns the configuration, the
// TLS context, the connection pool, the rate limiter, and hands every
// request to the same executor regardless of which convenience method the
// caller used — there is no separate blocking/suspending surface, per
// SPEC_FULL.md §1.
type Client struct {
	mu   sync.RWMutex
	cfg  Config
	pool *pool.Pool
	exec *executor.Executor
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	c := &Client{}
	if err := c.rebuild(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClient builds a Client with DefaultConfig().
func NewClient() *Client {
	c, err := New(DefaultConfig())
	if err != nil {
		// DefaultConfig never configures a CA file/path, so buildTLSConfig
		// cannot fail here.
		panic(err)
	}
	return c
}

func (c *Client) rebuild(cfg Config) error {
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		return err
	}

	var proxy *urlinfo.Info
	if cfg.ProxyURL != "" {
		info, err := urlinfo.ParseProxyURL(cfg.ProxyURL)
		if err != nil {
			return err
		}
		proxy = &info
	}

	maxPerOrigin := cfg.MaxConnectionsPerHost
	if !cfg.EnableConnectionPool || maxPerOrigin <= 0 {
		maxPerOrigin = math.MaxInt32
	}

	p := pool.New(pool.Options{
		MaxPerOrigin:     maxPerOrigin,
		KeepaliveTimeout: cfg.KeepaliveTimeout,
		DialOpts: pool.DialOptions{
			ConnectTimeout: cfg.ConnectTimeout,
			TLSConfig:      tlsCfg,
			Clock:          cfg.Clock,
		},
		Clock: cfg.Clock,
	})

	var limiter *ratelimit.Limiter
	if cfg.EnableRateLimit && cfg.RateLimitRequests > 0 {
		limiter = ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.Clock)
	}

	c.mu.Lock()
	oldPool := c.pool
	c.cfg = cfg
	c.pool = p
	c.exec = executor.New(cfg, p, limiter, proxy)
	c.mu.Unlock()

	if oldPool != nil {
		return oldPool.CloseIdle(context.Background())
	}
	return nil
}

// SetConfig replaces the client's configuration, building a fresh pool,
// rate limiter, and executor, and closing every idle connection the
// previous pool was holding. Requests already in flight hold their own
// copy of the old configuration obtained when they started, keep using the
// previous pool to completion, and are otherwise unaffected, per spec.md
// §3.
func (c *Client) SetConfig(cfg Config) error { return c.rebuild(cfg) }

// GetConfig returns a copy of the client's current configuration.
func (c *Client) GetConfig() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Clone()
}

func (c *Client) current() *executor.Executor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exec
}

// Execute runs req to completion: resolution, rate limiting, pooled
// connection acquisition, serialization, response decoding, redirects, and
// retries, per spec.md §4.7.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Headers == nil {
		req.Headers = NewHeaders()
	}
	return c.current().Execute(ctx, req)
}

func (c *Client) do(ctx context.Context, method Method, url string, body []byte) (*Response, error) {
	return c.Execute(ctx, &Request{Method: method, URL: url, Headers: NewHeaders(), Body: body})
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, GET, url, nil)
}

// Post issues a POST request carrying body.
func (c *Client) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	return c.do(ctx, POST, url, body)
}

// Put issues a PUT request carrying body.
func (c *Client) Put(ctx context.Context, url string, body []byte) (*Response, error) {
	return c.do(ctx, PUT, url, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, DELETE, url, nil)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, HEAD, url, nil)
}

// Patch issues a PATCH request carrying body.
func (c *Client) Patch(ctx context.Context, url string, body []byte) (*Response, error) {
	return c.do(ctx, PATCH, url, body)
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, OPTIONS, url, nil)
}

// StreamEvents implements spec.md §4.7's SSE mode: cb is invoked once per
// dispatched event, in order, until the stream ends or cb returns false.
func (c *Client) StreamEvents(ctx context.Context, req *Request, cb StreamCallback) error {
	if req.Headers == nil {
		req.Headers = NewHeaders()
	}
	if !req.Headers.Has("Accept") {
		req.Headers.Set("Accept", "text/event-stream")
	}
	return c.current().StreamEvents(ctx, req, executor.StreamCallback(cb))
}

// Close closes every idle pooled connection. In-flight requests are
// unaffected; their checked-out connections are released normally when
// they finish.
func (c *Client) Close(ctx context.Context) error {
	c.mu.RLock()
	p := c.pool
	c.mu.RUnlock()
	return p.CloseIdle(ctx)
}
