package jsonsource

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Content encodings understood by Decode.
const (
	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
	EncodingDeflate  = "deflate"
	EncodingZstd     = "zstd"
	EncodingLZ4      = "lz4"
)

// Decode wraps r with a decompressor for the given Content-Encoding value.
// An empty encoding or "identity" returns r unchanged.
func Decode(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingIdentity:
		return io.NopCloser(r), nil
	case EncodingGzip, "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("jsonsource: open gzip stream: %w", err)
		}
		return zr, nil
	case EncodingDeflate:
		return flate.NewReader(r), nil
	case EncodingZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("jsonsource: open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case EncodingLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("jsonsource: unsupported content encoding %q", encoding)
	}
}
