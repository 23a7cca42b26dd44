package wire

import "httpcore/internal/herr"

// wrapReadErr classifies a read error the way spec.md §7 requires: a
// deadline expiry (recognized via herr.IsTimeout's net.Error.Timeout()
// check) is always Timeout regardless of what the caller was trying to
// parse; anything else falls back to the Kind appropriate for that call
// site (ProtocolError for a truncated head or chunk, Decode for a broken
// compressed stream, and so on).
func wrapReadErr(op string, err error, fallback herr.Kind) error {
	if herr.IsTimeout(err) {
		return herr.New(herr.KindTimeout, op, err)
	}
	return herr.New(fallback, op, err)
}
