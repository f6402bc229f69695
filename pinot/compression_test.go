package pinot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("pinot data table block "), 64)
	for _, compression := range []string{"NONE", "PASS_THROUGH", "", "ZSTD", "ZSTANDARD", "LZ4", "LZ4_FAST", "DEFLATE", "GZIP", "SNAPPY"} {
		compressed, err := compressPayload(payload, compression)
		require.NoError(t, err, compression)
		decompressed, err := decompressPayload(compressed, compression)
		require.NoError(t, err, compression)
		assert.Equal(t, payload, decompressed, compression)
	}
}

func TestCompressionRoundTripEmptyPayload(t *testing.T) {
	for _, compression := range []string{"NONE", "ZSTD", "LZ4", "DEFLATE", "GZIP", "SNAPPY"} {
		compressed, err := compressPayload([]byte{}, compression)
		require.NoError(t, err, compression)
		decompressed, err := decompressPayload(compressed, compression)
		require.NoError(t, err, compression)
		assert.Empty(t, decompressed, compression)
	}
}

func TestCompressionShrinksRepetitivePayload(t *testing.T) {
	payload := bytes.Repeat([]byte("aaaaaaaabbbbbbbb"), 256)
	for _, compression := range []string{"ZSTD", "GZIP", "SNAPPY"} {
		compressed, err := compressPayload(payload, compression)
		require.NoError(t, err, compression)
		assert.Less(t, len(compressed), len(payload), compression)
	}
}

func TestUnsupportedCompression(t *testing.T) {
	_, err := compressPayload([]byte("x"), "BROTLI")
	assert.Error(t, err)
	_, err = decompressPayload([]byte("x"), "BROTLI")
	assert.Error(t, err)
}

func TestDecompressCorruptPayload(t *testing.T) {
	for _, compression := range []string{"ZSTD", "DEFLATE", "GZIP"} {
		_, err := decompressPayload([]byte("definitely not a frame"), compression)
		assert.Error(t, err, compression)
	}
}
