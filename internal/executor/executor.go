// Package executor implements the request executor (C7) of spec.md §4.7:
// one attempt is resolve → rate-limit admit → scoped pool acquisition →
// deadline computation → serialize/write → read head/body, wrapped in a
// redirect-following loop and a retry loop. Grounded on the teacher's
// application/http/actor/client/client.go Send/Upgrade split (one
// round-trip function, one release closure computed from the final
// response state) but restructured around the internal/pool scoped guard
// instead of the teacher's own connPool/connRequest machinery.
package executor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"httpcore/internal/herr"
	"httpcore/internal/model"
	"httpcore/internal/pool"
	"httpcore/internal/ratelimit"
	"httpcore/internal/retry"
	"httpcore/internal/urlinfo"
	"httpcore/internal/wire"
)

// sensitiveRedirectHeaders are stripped on a cross-origin redirect hop, per
// spec.md §9's resolution of its own open question in favor of the
// conservative choice ("a conservative implementation strips them").
var sensitiveRedirectHeaders = []string{"Authorization", "Cookie", "Proxy-Authorization"}

// Executor drives single requests end to end, including redirects and
// retries, over a shared connection pool and (optional) rate limiter.
type Executor struct {
	pool    *pool.Pool
	limiter *ratelimit.Limiter // nil when rate limiting is disabled
	proxy   *urlinfo.Info      // nil when proxy_url is unset

	retryPolicy retry.Policy

	cfg    model.Config
	logger *slog.Logger
	clock  clock.Clock
}

// New builds an Executor from a resolved Config, the pool and limiter the
// client façade owns, and proxy, the already-parsed and validated proxy_url
// (nil when unset). limiter may be nil.
func New(cfg model.Config, p *pool.Pool, limiter *ratelimit.Limiter, proxy *urlinfo.Info) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	maxAttempts := cfg.MaxRetries
	if !cfg.EnableRetry {
		maxAttempts = 0
	}

	return &Executor{
		pool:    p,
		limiter: limiter,
		proxy:   proxy,
		retryPolicy: retry.Policy{
			MaxAttempts:          maxAttempts,
			InitialDelay:         cfg.InitialRetryDelay,
			MaxDelay:             cfg.MaxRetryDelay,
			BackoffFactor:        cfg.RetryBackoffFactor,
			RetryOnTimeout:       cfg.RetryOnTimeout,
			RetryOnConnectionErr: cfg.RetryOnConnectionErr,
			RetryOnServerError:   cfg.RetryOn5xx,
		},
		cfg:    cfg,
		logger: logger,
		clock:  clk,
	}
}

// Execute runs req to completion, retrying the whole attempt (redirects
// included) on a retriable failure, per spec.md §4.7's retry loop. Retries
// always start a fresh connection acquisition and carry the original
// request object unchanged — no partial state from a failed attempt
// survives into the next one.
func (e *Executor) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	state := e.retryPolicy.NewState()

	for {
		resp, err := e.attemptWithRedirects(ctx, req)

		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		if !state.ShouldRetry(err, statusCode) {
			return resp, err
		}

		delay := state.Delay()
		state.Advance()
		e.logger.Debug("retrying request", "url", req.URL, "attempt", state.Attempt(), "delay", delay)

		timer := e.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, herr.New(herr.KindCancelled, "retry backoff", ctx.Err())
		case <-timer.C:
		}
	}
}

// attemptWithRedirects runs one attempt, including any redirect hops,
// per spec.md §4.7's "Redirects" paragraph.
func (e *Executor) attemptWithRedirects(ctx context.Context, req *model.Request) (*model.Response, error) {
	current := req
	var chain []string
	hops := 0

	for {
		resp, err := e.attemptOnce(ctx, current)
		if err != nil {
			return nil, err
		}

		if !e.cfg.FollowRedirects || resp.StatusCode < 300 || resp.StatusCode >= 400 {
			resp.RedirectChain = chain
			return resp, nil
		}

		location, ok := resp.Headers.Get("Location")
		if !ok || location == "" {
			resp.RedirectChain = chain
			return resp, nil
		}

		if hops+1 > e.cfg.MaxRedirects {
			return nil, herr.New(herr.KindRedirectLimit, "follow redirect",
				errors.Errorf("would exceed max_redirects=%d", e.cfg.MaxRedirects))
		}

		baseInfo, err := urlinfo.Parse(current.URL)
		if err != nil {
			return nil, err
		}
		nextInfo, err := urlinfo.ResolveLocation(baseInfo, location)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		next.URL = nextInfo.String()
		if current.Method != model.HEAD {
			next.Method = model.GET
			next.Body = nil
		}
		if nextInfo.Origin() != baseInfo.Origin() {
			stripSensitiveHeaders(next.Headers)
		}

		chain = append(chain, nextInfo.String())
		hops++
		current = next
	}
}

func stripSensitiveHeaders(h *wire.Headers) {
	if h == nil {
		return
	}
	for _, name := range sensitiveRedirectHeaders {
		h.Del(name)
	}
}

// attemptOnce implements the six numbered steps of spec.md §4.7's "Single
// attempt" under a scoped pool acquisition: the guard's Release is always
// deferred with reusable computed from the final outcome (success,
// keep-alive advertised, body fully consumed), so every exit path —
// success, protocol error, timeout, cancellation — releases exactly once.
func (e *Executor) attemptOnce(ctx context.Context, req *model.Request) (*model.Response, error) {
	info, err := urlinfo.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Admit(ctx); err != nil {
			return nil, err
		}
	}

	dialOrigin := info.Origin()
	proxied := false
	if e.proxy != nil {
		if info.IsSecure {
			return nil, herr.New(herr.KindConnect, "connect via proxy",
				errors.New("https targets through a proxy require CONNECT tunneling, which is not implemented (spec.md §1 acknowledges but does not fully specify proxy tunneling)"))
		}
		dialOrigin = e.proxy.Origin()
		proxied = true
	}

	guard, err := pool.AcquireGuard(ctx, e.pool, dialOrigin)
	if err != nil {
		return nil, err
	}

	success := false
	keepAlive := true
	bodyConsumed := false
	defer func() {
		guard.Release(e.cfg.EnableConnectionPool && success && keepAlive && bodyConsumed)
	}()

	conn := guard.Conn()

	requestTimeout := req.Timeout
	if requestTimeout == 0 {
		requestTimeout = e.cfg.RequestTimeout
	}

	var wallDeadline time.Time
	attemptCtx := ctx
	if requestTimeout > 0 {
		wallDeadline = e.clock.Now().Add(requestTimeout)
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithDeadline(ctx, wallDeadline)
		defer cancel()
	}
	conn.SetReadTimeoutPolicy(e.cfg.ReadTimeout, wallDeadline)

	err = pool.WatchCancellation(attemptCtx, conn, func() error {
		return e.sendRequest(conn, info, req, wallDeadline, proxied)
	})
	if err != nil {
		return nil, err
	}

	var resp *model.Response
	err = pool.WatchCancellation(attemptCtx, conn, func() error {
		r, kAlive, consumed, rerr := e.receiveResponse(conn, req.Method)
		resp = r
		keepAlive = kAlive
		bodyConsumed = consumed
		return rerr
	})
	if err != nil {
		return nil, err
	}

	success = true
	return resp, nil
}

// sendRequest serializes req onto conn, injecting the defaults spec.md
// §4.2 names and setting Host to the resolved origin — "always reflects
// the origin after redirects (not the original)" per spec.md §6 — rather
// than whatever Host header the caller may have supplied. When proxied,
// the request line carries the absolute-URI form (RFC 9112 §3.2.2)
// instead of origin-form, since conn is a connection to the proxy, not to
// info's host; Host still names the target, not the proxy.
func (e *Executor) sendRequest(conn *pool.Conn, info urlinfo.Info, req *model.Request, wallDeadline time.Time, proxied bool) error {
	headers := wire.NewHeaders()
	if req.Headers != nil {
		for _, f := range req.Headers.Fields() {
			headers.Add(f[0], f[1])
		}
	}
	headers.Del("Host")

	target := info.PathQuery
	if proxied {
		target = info.String()
	}

	wireReq := &wire.Request{
		Method:  string(req.Method),
		Target:  target,
		Host:    hostHeaderValue(info),
		Headers: headers,
	}

	contentLength := int64(-1)
	if req.Body != nil {
		contentLength = int64(len(req.Body))
		wireReq.Body = bytes.NewReader(req.Body)
	} else if isBodiedMethod(req.Method) {
		contentLength = 0
	}
	wire.InjectDefaults(wireReq, e.cfg.UserAgent, e.cfg.EnableCompression, contentLength)

	deadline := wallDeadline
	if deadline.IsZero() {
		deadline = e.clock.Now().Add(e.cfg.ConnectTimeout + e.cfg.ReadTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return herr.New(herr.KindConnect, "set write deadline", err)
	}

	return wire.Encode(conn, wireReq)
}

func hostHeaderValue(info urlinfo.Info) string {
	defaultPort := "80"
	if info.IsSecure {
		defaultPort = "443"
	}
	if info.Port == defaultPort {
		return info.Host
	}
	return info.Host + ":" + info.Port
}

func isBodiedMethod(m model.Method) bool {
	switch m {
	case model.POST, model.PUT, model.PATCH:
		return true
	default:
		return false
	}
}

// receiveResponse reads the status line, headers, and framed body, per
// spec.md §4.2's body-framing rules, and reports whether the server
// advertised keep-alive and whether the body was read to completion —
// both feed the guard's reusable decision in attemptOnce.
func (e *Executor) receiveResponse(conn *pool.Conn, method model.Method) (*model.Response, bool, bool, error) {
	head, err := wire.DecodeHead(conn.Reader())
	if err != nil {
		return nil, false, false, err
	}

	keepAlive := true
	if v, ok := head.Headers.Get("Connection"); ok && strings.EqualFold(strings.TrimSpace(v), "close") {
		keepAlive = false
	}

	body, forceClose, err := e.readBody(conn, method, head)
	if err != nil {
		return nil, keepAlive, false, err
	}
	if forceClose {
		keepAlive = false
	}

	return &model.Response{
		StatusCode: head.StatusCode,
		Reason:     head.Reason,
		Headers:    head.Headers,
		Body:       body,
	}, keepAlive, true, nil
}

// readBody selects the framing mode — chunked, Content-Length, or
// read-until-close — decompresses, and enforces MaxBodyBytes against the
// decoded byte count, per spec.md §9's resolution of the body-cap open
// question ("chooses after decompression so that the user-visible body
// size is the bound"). forceClose reports read-until-close framing, which
// makes the connection unusable for reuse regardless of any Connection
// header.
func (e *Executor) readBody(conn *pool.Conn, method model.Method, head *wire.Response) (body []byte, forceClose bool, err error) {
	if method == model.HEAD || noBodyStatus(head.StatusCode) {
		return nil, false, nil
	}

	contentEncoding, _ := head.Headers.Get("Content-Encoding")
	compressed := contentEncoding != "" && !strings.EqualFold(contentEncoding, "identity")

	switch {
	case isChunked(head.Headers):
		data, err := e.drainAndDecompress(wire.NewChunkedReader(conn.Reader()), contentEncoding, compressed)
		return data, false, err

	case hasContentLength(head.Headers):
		n, err := contentLengthValue(head.Headers)
		if err != nil {
			return nil, false, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn.Reader(), buf); err != nil {
			return nil, false, wrapBodyErr(err, false)
		}
		data, err := e.drainAndDecompress(bytes.NewReader(buf), contentEncoding, compressed)
		return data, false, err

	default:
		data, err := e.drainAndDecompress(conn.Reader(), contentEncoding, compressed)
		return data, true, err
	}
}

// drainAndDecompress decompresses r per contentEncoding and reads at most
// MaxBodyBytes+1 decoded bytes, so a decompression bomb is caught without
// first materializing an unbounded buffer.
func (e *Executor) drainAndDecompress(r io.Reader, contentEncoding string, compressed bool) ([]byte, error) {
	decoded, err := wire.Decompress(r, contentEncoding)
	if err != nil {
		return nil, err
	}

	limit := e.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = math.MaxInt64 - 1
	}
	data, err := io.ReadAll(io.LimitReader(decoded, limit+1))
	if err != nil {
		return nil, wrapBodyErr(err, compressed)
	}
	if e.cfg.MaxBodyBytes > 0 && int64(len(data)) > e.cfg.MaxBodyBytes {
		return nil, herr.New(herr.KindBodyTooLarge, "read body",
			errors.Errorf("decoded body exceeds max_body_bytes=%d", e.cfg.MaxBodyBytes))
	}
	return data, nil
}

// wrapBodyErr classifies a body-read failure that wasn't already tagged by
// the wire package (chunked framing errors already are): a deadline
// expiry is always Timeout, otherwise Decode if a decompressor was
// involved, Protocol otherwise (a truncated Content-Length body).
func wrapBodyErr(err error, decompressing bool) error {
	if herr.KindOf(err) != herr.KindUnknown {
		return err
	}
	if herr.IsTimeout(err) {
		return herr.New(herr.KindTimeout, "read body", err)
	}
	if decompressing {
		return herr.New(herr.KindDecode, "read body", err)
	}
	return herr.New(herr.KindProtocol, "read body", err)
}

func noBodyStatus(status int) bool {
	return (status >= 100 && status < 200) || status == 204 || status == 304
}

func isChunked(h *wire.Headers) bool {
	v, ok := h.Get("Transfer-Encoding")
	return ok && strings.Contains(strings.ToLower(v), "chunked")
}

func hasContentLength(h *wire.Headers) bool {
	_, ok := h.Get("Content-Length")
	return ok
}

func contentLengthValue(h *wire.Headers) (int64, error) {
	v, _ := h.Get("Content-Length")
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, herr.New(herr.KindProtocol, "parse content-length",
			errors.Errorf("invalid Content-Length %q", v))
	}
	return n, nil
}

// StreamCallback is invoked once per dispatched SSE event; returning false
// stops the stream early. This resolves spec.md §9's open question about
// the source's implicit, callback-can't-break stop signal in favor of an
// explicit one.
type StreamCallback func(wire.Event) bool

// StreamEvents implements the SSE mode of spec.md §4.7: steps 1-5 of a
// single attempt are unchanged, but the body step is replaced by a loop
// feeding the connection's byte stream to the SSE line assembler and
// invoking cb per dispatched event. The connection is never returned to
// the idle pool, per spec.md §4.7's last sentence.
func (e *Executor) StreamEvents(ctx context.Context, req *model.Request, cb StreamCallback) error {
	current := req
	hops := 0

	for {
		stopped, redirectTo, err := e.streamOnce(ctx, current, cb)
		if err != nil {
			return err
		}
		if redirectTo == "" || stopped {
			return nil
		}

		if hops+1 > e.cfg.MaxRedirects {
			return herr.New(herr.KindRedirectLimit, "follow redirect",
				errors.Errorf("would exceed max_redirects=%d", e.cfg.MaxRedirects))
		}
		hops++

		baseInfo, err := urlinfo.Parse(current.URL)
		if err != nil {
			return err
		}
		nextInfo, err := urlinfo.Parse(redirectTo)
		if err != nil {
			return err
		}

		next := current.Clone()
		next.URL = redirectTo
		if nextInfo.Origin() != baseInfo.Origin() {
			stripSensitiveHeaders(next.Headers)
		}
		current = next
	}
}

func (e *Executor) streamOnce(ctx context.Context, req *model.Request, cb StreamCallback) (stopped bool, redirectTo string, err error) {
	info, err := urlinfo.Parse(req.URL)
	if err != nil {
		return false, "", err
	}

	if e.limiter != nil {
		if err := e.limiter.Admit(ctx); err != nil {
			return false, "", err
		}
	}

	dialOrigin := info.Origin()
	proxied := false
	if e.proxy != nil {
		if info.IsSecure {
			return false, "", herr.New(herr.KindConnect, "connect via proxy",
				errors.New("https targets through a proxy require CONNECT tunneling, which is not implemented (spec.md §1 acknowledges but does not fully specify proxy tunneling)"))
		}
		dialOrigin = e.proxy.Origin()
		proxied = true
	}

	guard, err := pool.AcquireGuard(ctx, e.pool, dialOrigin)
	if err != nil {
		return false, "", err
	}
	// SSE connections are never reusable, per spec.md §4.7.
	defer guard.Release(false)

	conn := guard.Conn()

	requestTimeout := req.Timeout
	if requestTimeout == 0 {
		requestTimeout = e.cfg.RequestTimeout
	}
	var wallDeadline time.Time
	attemptCtx := ctx
	if requestTimeout > 0 {
		wallDeadline = e.clock.Now().Add(requestTimeout)
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithDeadline(ctx, wallDeadline)
		defer cancel()
	}
	conn.SetReadTimeoutPolicy(e.cfg.ReadTimeout, wallDeadline)

	if err := pool.WatchCancellation(attemptCtx, conn, func() error {
		return e.sendRequest(conn, info, req, wallDeadline, proxied)
	}); err != nil {
		return false, "", err
	}

	var head *wire.Response
	if err := pool.WatchCancellation(attemptCtx, conn, func() error {
		h, derr := wire.DecodeHead(conn.Reader())
		head = h
		return derr
	}); err != nil {
		return false, "", err
	}

	if e.cfg.FollowRedirects && head.StatusCode >= 300 && head.StatusCode < 400 {
		location, ok := head.Headers.Get("Location")
		if !ok || location == "" {
			return false, "", nil
		}
		next, err := urlinfo.ResolveLocation(info, location)
		if err != nil {
			return false, "", err
		}
		return false, next.String(), nil
	}

	contentEncoding, _ := head.Headers.Get("Content-Encoding")
	var raw io.Reader = conn.Reader()
	if isChunked(head.Headers) {
		raw = wire.NewChunkedReader(conn.Reader())
	}
	decoded, err := wire.Decompress(raw, contentEncoding)
	if err != nil {
		return false, "", err
	}
	compressed := contentEncoding != "" && !strings.EqualFold(contentEncoding, "identity")

	decoder := wire.NewSSEDecoder()
	buf := make([]byte, 4096)

	err = pool.WatchCancellation(attemptCtx, conn, func() error {
		for {
			n, rerr := decoded.Read(buf)
			if n > 0 {
				for _, ev := range decoder.Feed(buf[:n]) {
					if !cb(ev) {
						stopped = true
						return nil
					}
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					for _, ev := range decoder.Close() {
						if !cb(ev) {
							stopped = true
							return nil
						}
					}
					return nil
				}
				return wrapBodyErr(rerr, compressed)
			}
		}
	})
	if err != nil {
		return false, "", err
	}

	return stopped, "", nil
}
