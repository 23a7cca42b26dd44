package wire

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"

	"httpcore/internal/herr"
)

// ChunkedReader decodes Transfer-Encoding: chunked framing, per spec.md
// §4.2 mode 1: read a hex chunk size line, read that many bytes, read the
// trailing CRLF, repeat until a zero-size chunk, then read and discard any
// trailers up to the terminating CRLFCRLF. Adapted from the teacher's
// application/http/transfer/chunk.go ChunkedReader, simplified to the
// spec's read-only decode contract (no chunk extensions surfaced, no
// external trailer store).
type ChunkedReader struct {
	br       *bufio.Reader
	remain   int  // bytes left in the current chunk
	finished bool
}

var _ io.Reader = (*ChunkedReader)(nil)

// NewChunkedReader wraps r, which must already be positioned right after
// the response headers.
func NewChunkedReader(r *bufio.Reader) *ChunkedReader {
	return &ChunkedReader{br: r}
}

func (cr *ChunkedReader) Read(p []byte) (int, error) {
	if cr.finished {
		return 0, io.EOF
	}

	if cr.remain == 0 {
		size, err := cr.readChunkSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			if err := cr.discardTrailers(); err != nil {
				return 0, err
			}
			cr.finished = true
			return 0, io.EOF
		}
		cr.remain = size
	}

	if len(p) > cr.remain {
		p = p[:cr.remain]
	}

	n, err := cr.br.Read(p)
	if err != nil {
		return n, wrapReadErr("read chunk data", err, herr.KindProtocol)
	}
	cr.remain -= n

	if cr.remain == 0 {
		if err := cr.consumeCRLF(); err != nil {
			return n, err
		}
	}

	return n, nil
}

func (cr *ChunkedReader) readChunkSize() (int, error) {
	line, err := cr.br.ReadString('\n')
	if err != nil {
		return 0, wrapReadErr("read chunk size", err, herr.KindProtocol)
	}
	line = trimCRLF(line)
	// A chunk-size line may carry extensions after a ';'; they are
	// ignored, matching spec.md §4.2's framing description.
	if idx := bytes.IndexByte([]byte(line), ';'); idx >= 0 {
		line = line[:idx]
	}
	size, err := parseHexSize(line)
	if err != nil {
		return 0, herr.New(herr.KindProtocol, "parse chunk size",
			errors.Wrapf(err, "chunk size line %q", line))
	}
	return size, nil
}

func (cr *ChunkedReader) consumeCRLF() error {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(cr.br, buf); err != nil {
		return wrapReadErr("read chunk delimiter", err, herr.KindProtocol)
	}
	if !bytes.Equal(buf, []byte("\r\n")) {
		return herr.New(herr.KindProtocol, "read chunk delimiter",
			errors.New("missing CRLF after chunk data"))
	}
	return nil
}

// discardTrailers reads trailer header lines (if any) up to the
// terminating blank line, discarding their contents, per spec.md §4.2
// ("trailers (if any) are read and discarded up to CRLFCRLF").
func (cr *ChunkedReader) discardTrailers() error {
	for {
		line, err := cr.br.ReadString('\n')
		if err != nil {
			return wrapReadErr("read trailer", err, herr.KindProtocol)
		}
		if trimCRLF(line) == "" {
			return nil
		}
	}
}

func trimCRLF(s string) string {
	s = trimSuffixByte(s, '\n')
	s = trimSuffixByte(s, '\r')
	return s
}

func trimSuffixByte(s string, b byte) string {
	if len(s) > 0 && s[len(s)-1] == b {
		return s[:len(s)-1]
	}
	return s
}

func parseHexSize(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty chunk size")
	}
	size := 0
	for _, c := range []byte(s) {
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'a' && c <= 'f':
			v = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = int(c-'A') + 10
		default:
			return 0, errors.Errorf("invalid hex digit %q", c)
		}
		size = size*16 + v
	}
	return size, nil
}
