package wire

import "strings"

// Event is a dispatched server-sent event, per spec.md §3 and the WHATWG
// EventSource format.
type Event struct {
	Type   string // set to "message" by SSEDecoder when no event field was seen
	Data   string
	ID     string
	Retry  string
	Custom map[string]string
}

func (e *Event) touched() bool {
	return e.Data != "" || e.Type != "" || e.ID != "" || e.Retry != ""
}

// SSEDecoder assembles a byte stream into dispatched Events one line at a
// time. It is fed incrementally via Feed, so parsing a stream byte-by-byte
// produces the same event sequence as parsing it whole — the idempotence
// property required by spec.md §8 — because both paths funnel through the
// same per-line state machine. Grounded on original_source/sse_event.hpp's
// parse_sse_line, generalized from a one-shot function into a persistent
// decoder with its own line-buffering.
type SSEDecoder struct {
	lineBuf   []byte
	current   Event
	dataLines []string
	pending   []Event
}

// NewSSEDecoder returns a decoder ready to Feed.
func NewSSEDecoder() *SSEDecoder {
	return &SSEDecoder{current: Event{Custom: map[string]string{}}}
}

// Feed appends raw bytes (which may split a line, a field, or even a
// multi-byte UTF-8 rune across calls) and returns every Event dispatched as
// a result, in order.
func (d *SSEDecoder) Feed(chunk []byte) []Event {
	d.pending = d.pending[:0]

	for _, b := range chunk {
		if b == '\n' {
			line := d.lineBuf
			d.lineBuf = nil
			// Lines may be CRLF- or LF-terminated (spec.md §4.2/§6).
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			d.feedLine(string(line))
			continue
		}
		d.lineBuf = append(d.lineBuf, b)
	}

	return d.pending
}

// Close flushes a trailing unterminated event at end-of-stream, per
// spec.md §4.2 ("A trailing unterminated event at end-of-stream is
// dispatched if nonempty").
func (d *SSEDecoder) Close() []Event {
	d.pending = d.pending[:0]
	if len(d.lineBuf) > 0 {
		line := string(d.lineBuf)
		d.lineBuf = nil
		d.feedLine(line)
	}
	d.dispatchIfTouched()
	return d.pending
}

func (d *SSEDecoder) feedLine(line string) {
	if line == "" {
		d.dispatchIfTouched()
		return
	}
	if strings.HasPrefix(line, ":") {
		return // comment line, discarded
	}

	field, value, hasColon := strings.Cut(line, ":")
	if hasColon && strings.HasPrefix(value, " ") {
		value = value[1:]
	}

	switch field {
	case "event":
		d.current.Type = value
	case "data":
		d.dataLines = append(d.dataLines, value)
	case "id":
		d.current.ID = value
	case "retry":
		d.current.Retry = value
	default:
		d.current.Custom[field] = value
	}
}

func (d *SSEDecoder) dispatchIfTouched() {
	d.current.Data = strings.Join(d.dataLines, "\n")
	d.dataLines = nil

	if d.current.touched() {
		if d.current.Type == "" {
			d.current.Type = "message"
		}
		d.pending = append(d.pending, d.current)
	}

	d.current = Event{Custom: map[string]string{}}
}
