package wire

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/pkg/errors"

	"httpcore/internal/herr"
)

// Decompress wraps body with a streaming inflater selected by the
// Content-Encoding header, per spec.md §4.2: gzip or deflate (case
// insensitive) are inflated, identity or missing passes through unchanged,
// and any other encoding fails with herr.KindDecode. compress/gzip and
// compress/flate are the standard-library stand-ins for the "streaming
// inflate for gzip and raw deflate" collaborator spec.md §1 explicitly
// assumes is external; no third-party codec appears anywhere in the
// retrieved example pack (see DESIGN.md).
func Decompress(body io.Reader, contentEncoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, herr.New(herr.KindDecode, "init gzip reader", err)
		}
		return zr, nil
	case "deflate":
		return flate.NewReader(body), nil
	default:
		return nil, herr.New(herr.KindDecode, "select decoder",
			errors.Errorf("unsupported Content-Encoding %q", contentEncoding))
	}
}
