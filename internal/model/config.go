package model

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Config mirrors the option table of spec.md §3. It is copied into the
// Client at construction and at SetConfig; a Request already executing
// holds its own earlier copy, so configuration mutation is never observed
// mid-flight (spec.md §3 "Configuration is copied ... mutation ... is not
// observed by requests already in flight").
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RequestTimeout time.Duration // 0 means unbounded

	EnableCompression bool

	VerifySSL    bool
	CACertFile   string
	CACertPath   string
	TLSConfig    *tls.Config // advanced escape hatch; when set, used as-is and the three fields above are ignored

	FollowRedirects bool
	MaxRedirects    int

	EnableConnectionPool  bool
	MaxConnectionsPerHost int
	KeepaliveTimeout      time.Duration

	EnableRateLimit    bool
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	EnableRetry         bool
	MaxRetries          int
	InitialRetryDelay   time.Duration
	RetryBackoffFactor  float64
	MaxRetryDelay       time.Duration
	RetryOnTimeout      bool
	RetryOnConnectionErr bool
	RetryOn5xx          bool

	// ProxyURL, if set, must be an http:// endpoint; requests to an http://
	// target are then relayed through it with an absolute-URI request line
	// (RFC 9112 §3.2.2) instead of being dialed directly. A non-http proxy
	// such as socks5:// is rejected by SetConfig/New (see
	// internal/urlinfo.ParseProxyURL); a request for an https target while
	// a proxy is set fails with KindConnect when it is executed. Neither
	// falls back to a direct connection.
	ProxyURL string

	MaxBodyBytes int64

	UserAgent string

	Logger *slog.Logger
	Clock  clock.Clock
}

// Default returns the configuration defaults spec.md §3's table specifies.
func Default() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
		RequestTimeout: 0,

		EnableCompression: false,

		VerifySSL: true,

		FollowRedirects: false,
		MaxRedirects:    10,

		EnableConnectionPool:  true,
		MaxConnectionsPerHost: 5,
		KeepaliveTimeout:      30 * time.Second,

		EnableRateLimit:   false,
		RateLimitRequests: 0,
		RateLimitWindow:   time.Second,

		EnableRetry:          false,
		MaxRetries:           0,
		InitialRetryDelay:    100 * time.Millisecond,
		RetryBackoffFactor:   2.0,
		MaxRetryDelay:        10 * time.Second,
		RetryOnTimeout:       true,
		RetryOnConnectionErr: true,
		RetryOn5xx:           true,

		MaxBodyBytes: 100 * 1024 * 1024,

		UserAgent: "httpcore/1.0",
	}
}

// Clone returns a value copy of c; *tls.Config and *slog.Logger are shared
// by reference (both are safe for concurrent read-only use once built), but
// the Config struct itself — the fields requests actually branch on — is
// never aliased between the client and an in-flight request.
func (c Config) Clone() Config { return c }
