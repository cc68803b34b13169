package codec

import (
	"encoding/binary"
	"unsafe"
)

// Engine combines the ByteOrder and AppendByteOrder interfaces from encoding/binary
// into a single interface used for both decoding and encoding fixed-width arrays.
//
// It is satisfied by binary.BigEndian and binary.LittleEndian.
type Engine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// BigEndian returns the engine used by instrument exports: peak-list
// scan ids, m/z and heights, and the raw scan payloads are all big-endian.
func BigEndian() Engine {
	return binary.BigEndian
}

// LittleEndian returns the little-endian engine.
func LittleEndian() Engine {
	return binary.LittleEndian
}

// NativeEngine returns the host's byte order.
func NativeEngine() Engine {
	// 0x0100: the first byte in memory is 0x01 only on big-endian hosts.
	var i uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// IsNative reports whether engine matches the host byte order.
func IsNative(engine Engine) bool {
	return engine == NativeEngine()
}
