package pinot

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var newZstdReader = zstd.NewReader

// compressPayload encodes a response payload with the named algorithm. The
// empty name and PASS_THROUGH/NONE leave the payload untouched.
func compressPayload(payload []byte, compression string) ([]byte, error) {
	switch strings.ToUpper(compression) {
	case "PASS_THROUGH", "NONE", "":
		return payload, nil
	case "ZSTD", "ZSTANDARD":
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer func() { _ = encoder.Close() }()
		return encoder.EncodeAll(payload, nil), nil
	case "LZ4", "LZ4_FAST", "LZ4_HIGH":
		var buf bytes.Buffer
		writer := lz4.NewWriter(&buf)
		if _, err := writer.Write(payload); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "DEFLATE":
		var buf bytes.Buffer
		writer := zlib.NewWriter(&buf)
		if _, err := writer.Write(payload); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "GZIP":
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(payload); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "SNAPPY":
		return snappy.Encode(nil, payload), nil
	default:
		return nil, fmt.Errorf("unsupported payload compression: %s", compression)
	}
}

// decompressPayload reverses compressPayload.
func decompressPayload(payload []byte, compression string) ([]byte, error) {
	switch strings.ToUpper(compression) {
	case "PASS_THROUGH", "NONE", "":
		return payload, nil
	case "ZSTD", "ZSTANDARD":
		decoder, err := newZstdReader(nil)
		if err != nil {
			return nil, err
		}
		defer decoder.Close()
		return decoder.DecodeAll(payload, nil)
	case "LZ4", "LZ4_FAST", "LZ4_HIGH":
		reader := lz4.NewReader(bytes.NewReader(payload))
		return io.ReadAll(reader)
	case "DEFLATE":
		reader, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer func() { _ = reader.Close() }()
		return io.ReadAll(reader)
	case "GZIP":
		reader, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer func() { _ = reader.Close() }()
		return io.ReadAll(reader)
	case "SNAPPY":
		return snappy.Decode(nil, payload)
	default:
		return nil, fmt.Errorf("unsupported payload compression: %s", compression)
	}
}
