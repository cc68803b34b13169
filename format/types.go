// Package format enumerates the persisted payload encodings and the
// compression algorithms that may wrap a packed payload.
package format

import (
	"fmt"
	"strings"
)

type (
	PayloadFormat   uint8
	CompressionType uint8
)

const (
	PayloadJSON   PayloadFormat = 0x1 // PayloadJSON is the {"rts":..,"intensities":..} text record.
	PayloadPacked PayloadFormat = 0x2 // PayloadPacked is the zigzag-varint binary record.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

func (p PayloadFormat) String() string {
	switch p {
	case PayloadJSON:
		return "json"
	case PayloadPacked:
		return "packed"
	default:
		return "unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParsePayloadFormat parses the lower-case name of a payload format.
func ParsePayloadFormat(s string) (PayloadFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return PayloadJSON, nil
	case "packed":
		return PayloadPacked, nil
	default:
		return 0, fmt.Errorf("unknown payload format %q", s)
	}
}

// ParseCompression parses the lower-case name of a compression type.
func ParseCompression(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

// Encoding is the value stored next to a persisted payload, e.g. "json" or "packed+zstd".
func Encoding(p PayloadFormat, c CompressionType) string {
	if p == PayloadJSON || c == CompressionNone {
		return p.String()
	}

	return p.String() + "+" + c.String()
}

// ParseEncoding is the inverse of Encoding.
func ParseEncoding(s string) (PayloadFormat, CompressionType, error) {
	name, comp, found := strings.Cut(s, "+")

	p, err := ParsePayloadFormat(name)
	if err != nil {
		return 0, 0, err
	}

	if !found {
		return p, CompressionNone, nil
	}

	c, err := ParseCompression(comp)
	if err != nil {
		return 0, 0, err
	}

	return p, c, nil
}
