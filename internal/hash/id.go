// Package hash provides the xxHash64 helpers used for component identifiers
// and persisted payload checksums.
package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of a component name.
func ID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Checksum computes the xxHash64 of an encoded payload.
func Checksum(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

// Verify reports whether payload matches a previously computed checksum.
func Verify(payload []byte, sum uint64) bool {
	return xxhash.Sum64(payload) == sum
}
