// Package compress provides the codecs that may wrap a packed series payload
// before it is handed to storage.
//
// Packed payloads are small (a few hundred bytes to a few KiB per chromatogram)
// and dominated by repeated small varints, so general-purpose block compressors
// do well on them. JSON payloads are never compressed; their text form is the
// interchange format read by the plotting front end.
package compress

import (
	"fmt"

	"github.com/maspeqc/qcpack/format"
)

// Compressor compresses a complete payload.
//
// The returned slice is owned by the caller and the input is not modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor. It returns an error when data is
// corrupted or was produced by a different algorithm.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
	format.CompressionS2:   NewS2Compressor(),
	format.CompressionLZ4:  NewLZ4Compressor(),
}

// GetCodec returns the built-in Codec for compressionType.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
