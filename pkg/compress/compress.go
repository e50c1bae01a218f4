// Package compress implements the cache gateway's compression service (C1):
// an optional, symmetric byte-level transform gated per client.
//
// Design Notes:
//   - gzip (via klauspost/compress, a drop-in for compress/gzip with a
//     faster deflate implementation) is the chosen deflate-family codec;
//     the service is otherwise codec-agnostic.
//   - The enabled flag is consulted per-call, never cached: a client can
//     flip compression_enabled at runtime and in-flight rows remain
//     readable because the row itself — not the current config — governs
//     decompression (spec §3 invariant 3).
//   - Empty input is the identity in both modes; there is nothing to gzip
//     and nothing to inflate.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// EnabledFunc reports whether compression is turned on for a client. It is
// typically backed by the client descriptor's compression_enabled flag.
type EnabledFunc func(client string) bool

// Service is the C1 compression service.
type Service struct {
	enabled EnabledFunc
	level   int
}

// New creates a compression service. level is a gzip compression level
// (gzip.DefaultCompression if zero).
func New(enabled EnabledFunc, level int) *Service {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &Service{enabled: enabled, level: level}
}

// IsEnabled reports whether compression is active for client.
func (s *Service) IsEnabled(client string) bool {
	if s.enabled == nil {
		return false
	}
	return s.enabled(client)
}

// Compress returns data unchanged when compression is disabled for client;
// otherwise it gzips it. Empty input always returns empty output.
func (s *Service) Compress(client string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	if !s.IsEnabled(client) {
		return data, nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, s.level)
	if err != nil {
		return nil, fmt.Errorf("compress: new writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("compress: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: close: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inverts Compress. When compression is disabled for client the
// input is returned unchanged. When enabled, malformed input surfaces as a
// DecompressionError rather than a panic or opaque gzip error, so callers
// (the cache repository) can route it to a cache-miss + cache_rejected log
// per spec §4.4 and §7.
func (s *Service) Decompress(client string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	if !s.IsEnabled(client) {
		return data, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecompressionError{Client: client, Cause: err}
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &DecompressionError{Client: client, Cause: err}
	}

	return out, nil
}

// DecompressionError is returned when enabled-path decompression fails
// against data that is not valid compressed output (spec §7 taxonomy).
type DecompressionError struct {
	Client string
	Cause  error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("compress: decompress failed for client %q: %v", e.Client, e.Cause)
}

func (e *DecompressionError) Unwrap() error { return e.Cause }
