package wire

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompressIdentityPassesThrough(t *testing.T) {
	r, err := Decompress(strings.NewReader("plain"), "")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))
}

func TestDecompressGzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("hello gzip"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r, err := Decompress(&buf, "gzip")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello gzip", string(data))
}

func TestDecompressDeflateRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = zw.Write([]byte("hello deflate"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r, err := Decompress(&buf, "DEFLATE")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello deflate", string(data))
}

func TestDecompressUnsupportedEncodingFails(t *testing.T) {
	_, err := Decompress(strings.NewReader("x"), "br")
	require.Error(t, err)
}
