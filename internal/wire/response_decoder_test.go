package wire

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"httpcore/internal/herr"
)

// TestDecodeHeadRejectsHeaderLineThatExactlyExhaustsBudget crafts a padded
// header line whose length without its CRLF equals exactly the budget left
// after the status line. readLine counts the terminator against the
// budget, so that line already exceeds the cap and is rejected; the
// ordinary-sized header line after it is never reached.
func TestDecodeHeadRejectsHeaderLineThatExactlyExhaustsBudget(t *testing.T) {
	statusLine := "HTTP/1.1 200 OK"
	padded := "X-Pad: " + strings.Repeat("a", MaxHeaderBytes-len(statusLine)-len("X-Pad: "))
	raw := statusLine + "\r\n" + padded + "\r\n" + "Content-Type: text/plain\r\n\r\n"

	_, err := DecodeHead(bufio.NewReader(strings.NewReader(raw)))
	require.Error(t, err)
	assert.Equal(t, herr.KindProtocol, herr.KindOf(err))
}

func TestDecodeHeadParsesStatusLineAndHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"
	resp, err := DecodeHead(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "OK", resp.Reason)
	v, _ := resp.Headers.Get("Content-Type")
	assert.Equal(t, "text/plain", v)
	v, _ = resp.Headers.Get("Content-Length")
	assert.Equal(t, "5", v)
}

func TestDecodeHeadRejectsMalformedStatusLine(t *testing.T) {
	_, err := DecodeHead(bufio.NewReader(strings.NewReader("not a status line\r\n\r\n")))
	require.Error(t, err)
	assert.Equal(t, herr.KindProtocol, herr.KindOf(err))
}

func TestDecodeHeadRejectsHeaderWithoutColon(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nBroken Header\r\n\r\n"
	_, err := DecodeHead(bufio.NewReader(strings.NewReader(raw)))
	require.Error(t, err)
	assert.Equal(t, herr.KindProtocol, herr.KindOf(err))
}

func TestDecodeHeadTruncatedHeadIsTimeoutOrProtocol(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: text"
	_, err := DecodeHead(bufio.NewReader(strings.NewReader(raw)))
	require.Error(t, err)
	assert.Equal(t, herr.KindProtocol, herr.KindOf(err))
}
