package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"

	"httpcore/internal/herr"
)

// Request is the minimal on-the-wire shape the encoder needs: a method, a
// request target (path+query, or the absolute URI when sent through a
// proxy), the negotiated headers, and a body reader.
// The executor is responsible for filling Headers with whatever the caller
// supplied before injecting defaults via InjectDefaults.
type Request struct {
	Method  string
	Target  string
	Host    string
	Headers *Headers
	Body    io.Reader
}

// InjectDefaults adds, only for headers absent from req.Headers under a
// case-insensitive match, the defaults spec.md §4.2 names: Host,
// User-Agent, Accept, Connection, Accept-Encoding (if compression is
// enabled), and Content-Length for bodied methods. contentLength < 0 means
// "unknown" (no injection).
func InjectDefaults(req *Request, userAgent string, enableCompression bool, contentLength int64) {
	if !req.Headers.Has("Host") {
		req.Headers.Set("Host", req.Host)
	}
	if !req.Headers.Has("User-Agent") {
		req.Headers.Set("User-Agent", userAgent)
	}
	if !req.Headers.Has("Accept") {
		req.Headers.Set("Accept", "*/*")
	}
	if !req.Headers.Has("Connection") {
		req.Headers.Set("Connection", "keep-alive")
	}
	if enableCompression && !req.Headers.Has("Accept-Encoding") {
		req.Headers.Set("Accept-Encoding", "gzip, deflate")
	}
	if contentLength >= 0 && isBodiedMethod(req.Method) && !req.Headers.Has("Content-Length") {
		req.Headers.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	}
}

func isBodiedMethod(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}

// Encode writes the request line, headers, terminating CRLF, and body to w.
// It validates every header name/value with golang.org/x/net/http/httpguts
// before writing anything, so a caller-supplied header with an embedded
// CRLF (request smuggling) or control character fails fast with
// herr.KindProtocol instead of corrupting the wire.
func Encode(w io.Writer, req *Request) error {
	for _, f := range req.Headers.Fields() {
		if !httpguts.ValidHeaderFieldName(f[0]) {
			return herr.New(herr.KindProtocol, "encode request",
				errors.Errorf("invalid header field name %q", f[0]))
		}
		if !httpguts.ValidHeaderFieldValue(f[1]) {
			return herr.New(herr.KindProtocol, "encode request",
				errors.Errorf("invalid header field value for %q", f[0]))
		}
	}

	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", req.Method, req.Target); err != nil {
		return herr.New(herr.KindConnect, "write request line", err)
	}

	for _, f := range req.Headers.Fields() {
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", f[0], f[1]); err != nil {
			return herr.New(herr.KindConnect, "write header", err)
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return herr.New(herr.KindConnect, "write header terminator", err)
	}
	if err := bw.Flush(); err != nil {
		return herr.New(herr.KindConnect, "flush request head", err)
	}

	if req.Body != nil {
		if _, err := io.Copy(w, req.Body); err != nil {
			return herr.New(herr.KindConnect, "write request body", err)
		}
	}

	return nil
}
