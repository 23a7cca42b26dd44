// Package httpcore implements an HTTP/1.1 client with its own per-origin
// connection pool, wire codec, retry policy and rate limiter, built directly
// on net and crypto/tls rather than net/http.
//
// Every exported operation takes a context.Context and is safe to cancel at
// any point; there is no separate blocking/suspending surface because Go
// already expresses both with the same function signature.
package httpcore
