// Package compress implements Content-Encoding detection and
// decompression for the codecs the executor negotiates: gzip, deflate
// and brotli.
package compress

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// Type identifies a content encoding.
type Type int

const (
	None Type = iota
	Gzip
	Deflate
	Brotli
)

// DetectFromHeader scans a Content-Encoding value for the first codec it
// names, in the order br, gzip, deflate. Matching is substring and
// case-insensitive, matching real-world headers like "gzip, br" or
// "x-gzip" equally.
func DetectFromHeader(value string) Type {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "br"):
		return Brotli
	case strings.Contains(lower, "gzip"):
		return Gzip
	case strings.Contains(lower, "deflate"):
		return Deflate
	default:
		return None
	}
}

// AcceptEncodingHeader returns the comma-space list of codecs compiled
// in, or "identity" if compression support were ever compiled out.
func AcceptEncodingHeader() string {
	return "br, gzip, deflate"
}

// Decompress returns the decoded form of data for the given codec.
// Failure is reported via ok=false rather than an error, matching
// spec's "leave body compressed" recovery: the caller keeps the
// original bytes and clears its WasCompressed flag.
func Decompress(data []byte, t Type) (out []byte, ok bool) {
	switch t {
	case None:
		return data, true
	case Gzip:
		return inflate(data, func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) })
	case Deflate:
		return inflate(data, func(r io.Reader) (io.ReadCloser, error) { return flate.NewReader(r), nil })
	case Brotli:
		return inflate(data, func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(brotli.NewReader(r)), nil
		})
	default:
		return data, true
	}
}

// inflate drains a decompressing reader into a buffer pre-sized to a
// ×3 expansion estimate, the starting allocation spec.md §4.2 calls for,
// so decoders don't grow the buffer one append at a time on typical
// text payloads while still bounding initial allocation to a multiple
// of the (untrusted) compressed size rather than an unbounded guess.
func inflate(data []byte, newReader func(io.Reader) (io.ReadCloser, error)) ([]byte, bool) {
	r, err := newReader(bytes.NewReader(data))
	if err != nil {
		return data, false
	}
	defer r.Close()

	buf := bytes.NewBuffer(make([]byte, 0, len(data)*3))
	if _, err := io.Copy(buf, r); err != nil {
		return data, false
	}
	return buf.Bytes(), true
}
