package compress

// ZstdCompressor provides Zstandard compression. It gives the best ratio of the
// built-in codecs and is the default for archival runs.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
