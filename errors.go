package httpcore

import "httpcore/internal/herr"

// Kind classifies a failure the way spec.md §7 requires: as a tagged
// variant decided at the point the error is constructed, never by matching
// substrings of an error message later on.
type Kind = herr.Kind

const (
	KindUnknown       = herr.KindUnknown
	KindInvalidURL    = herr.KindInvalidURL
	KindResolve       = herr.KindResolve
	KindConnect       = herr.KindConnect
	KindTLS           = herr.KindTLS
	KindTimeout       = herr.KindTimeout
	KindProtocol      = herr.KindProtocol
	KindDecode        = herr.KindDecode
	KindBodyTooLarge  = herr.KindBodyTooLarge
	KindRedirectLimit = herr.KindRedirectLimit
	KindCancelled     = herr.KindCancelled
	KindPoolExhausted = herr.KindPoolExhausted
)

// Error is the tagged-variant failure type surfaced to callers. Unwrap
// exposes the underlying cause; errors.Is matches by Kind against one of
// the Err* sentinels below.
type Error = herr.Error

// KindOf reports the Kind of err if it (or something it wraps) is an
// *Error, and KindUnknown otherwise.
func KindOf(err error) Kind { return herr.KindOf(err) }

// Sentinel values usable with errors.Is to test the Kind of a failure
// without caring about its Op or Cause, e.g. errors.Is(err, httpcore.ErrTimeout).
var (
	ErrInvalidURL    = &Error{Kind: KindInvalidURL}
	ErrResolve       = &Error{Kind: KindResolve}
	ErrConnect       = &Error{Kind: KindConnect}
	ErrTLS           = &Error{Kind: KindTLS}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrProtocol      = &Error{Kind: KindProtocol}
	ErrDecode        = &Error{Kind: KindDecode}
	ErrBodyTooLarge  = &Error{Kind: KindBodyTooLarge}
	ErrRedirectLimit = &Error{Kind: KindRedirectLimit}
	ErrCancelled     = &Error{Kind: KindCancelled}
	ErrPoolExhausted = &Error{Kind: KindPoolExhausted}
)
