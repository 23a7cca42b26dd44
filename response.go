package httpcore

import (
	"httpcore/internal/model"
	"httpcore/internal/wire"
)

// Response is spec.md §3's Response: status, reason, headers, decoded body,
// and the ordered chain of URLs visited while following redirects.
type Response = model.Response

// Event is a dispatched server-sent event, per spec.md §6's SSE wire format.
type Event = wire.Event

// StreamCallback is invoked once per dispatched SSE event during
// StreamEvents; returning false stops the stream, per spec.md §9's
// resolution of its own open question about the stop signal.
type StreamCallback = func(Event) bool
