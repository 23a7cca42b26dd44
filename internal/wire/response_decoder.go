package wire

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"

	"httpcore/internal/herr"
)

// MaxHeaderBytes bounds the size of a response's status-line+header block,
// per spec.md §9's open question ("implementers should enforce a cap (e.g.,
// 64 KiB) to prevent unbounded buffering").
const MaxHeaderBytes = 64 * 1024

// Response is the decoded status line and headers; body framing is decided
// separately by the caller (internal/executor's readBody), since it needs a
// live connection to keep reading from.
type Response struct {
	StatusCode int
	Reason     string
	Headers    *Headers
}

// DecodeHead reads from br until the header terminator CRLFCRLF and parses
// the status line and header fields, per spec.md §4.2.
func DecodeHead(br *bufio.Reader) (*Response, error) {
	statusLine, err := readLine(br, MaxHeaderBytes)
	if err != nil {
		return nil, wrapReadErr("read status line", err, herr.KindProtocol)
	}

	resp := &Response{Headers: NewHeaders()}
	if err := parseStatusLine(statusLine, resp); err != nil {
		return nil, herr.New(herr.KindProtocol, "parse status line", err)
	}

	budget := MaxHeaderBytes - len(statusLine)
	for {
		line, err := readLine(br, budget)
		if err != nil {
			return nil, wrapReadErr("read header line", err, herr.KindProtocol)
		}
		budget -= len(line)
		if len(line) == 0 {
			break
		}

		name, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, herr.New(herr.KindProtocol, "parse header line", err)
		}
		resp.Headers.Add(name, value)
	}

	return resp, nil
}

// readLine reads one CRLF- or LF-terminated line (without the terminator),
// failing if it would exceed limit bytes — the header-size cap. limit <= 0
// means the budget is already exhausted: the empty terminator line that
// ends the header block is still let through (it costs nothing against the
// cap), but any further real header line is rejected outright rather than
// treated as unlimited — a server cannot disable the cap by crafting prior
// lines whose cumulative length lands exactly on a zero remaining budget.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	raw, err := br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	line := raw[:len(raw)-1] // drop LF
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	if len(line) > 0 && (limit <= 0 || len(raw) > limit) {
		return nil, errors.New("header block exceeds size limit")
	}
	return line, nil
}

func parseStatusLine(line []byte, resp *Response) error {
	parts := bytes.SplitN(line, []byte{' '}, 3)
	if len(parts) < 2 {
		return errors.Errorf("malformed status line %q", line)
	}
	if !bytes.HasPrefix(parts[0], []byte("HTTP/")) {
		return errors.Errorf("missing HTTP version in %q", line)
	}
	code, err := strconv.Atoi(string(parts[1]))
	if err != nil {
		return errors.Wrapf(err, "invalid status code in %q", line)
	}
	resp.StatusCode = code
	if len(parts) == 3 {
		resp.Reason = string(parts[2])
	}
	return nil
}

// parseHeaderLine splits on the first colon and trims one leading space
// from the value, per spec.md §4.2.
func parseHeaderLine(line []byte) (name, value string, err error) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", "", errors.Errorf("missing colon in header line %q", line)
	}
	name = string(line[:idx])
	value = string(line[idx+1:])
	if strings.HasPrefix(value, " ") {
		value = value[1:]
	}
	if !httpguts.ValidHeaderFieldName(name) {
		return "", "", errors.Errorf("invalid header field name %q", name)
	}
	return name, value, nil
}
