// Package codec decodes and encodes the fixed-width numeric arrays found in
// exported analysis bundles.
//
// Peak lists embed base64 text blocks holding big-endian 32-bit integers (scan ids)
// and 32-bit IEEE-754 floats (m/z and heights). Raw scan payloads hold interleaved
// big-endian (m/z, intensity) float pairs. Every decoder takes the declared element
// count from the accompanying metadata and fails with errs.ErrMalformedBinaryPayload
// when the byte length disagrees with it.
//
// # Basic Usage
//
//	scanIDs, err := codec.DecodeBase64Int32s(text, quantity)
//	mz, err := codec.DecodeBase64Float32s(mzText, quantity)
//
//	values, err := codec.DecodeFloat32s(buf, points*2)
//	mz, intensity, err := codec.Deinterleave(values)
//
// The package-level functions use big-endian byte order. Use New with another
// Engine to decode arrays written in a different byte order.
package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/maspeqc/qcpack/errs"
)

// ElementSize is the width in bytes of every array element handled by this package.
const ElementSize = 4

// Codec decodes and encodes 32-bit arrays with a fixed byte order.
type Codec struct {
	engine Engine
}

var bigEndianCodec = New(BigEndian())

// New returns a Codec bound to engine.
func New(engine Engine) Codec {
	return Codec{engine: engine}
}

// Engine returns the byte order engine of the codec.
func (c Codec) Engine() Engine {
	return c.engine
}

// DecodeInt32s decodes exactly count signed 32-bit integers from data.
func (c Codec) DecodeInt32s(data []byte, count int) ([]int32, error) {
	if err := checkLength(data, count); err != nil {
		return nil, err
	}

	out := make([]int32, count)
	for i := range out {
		out[i] = int32(c.engine.Uint32(data[i*ElementSize:])) //nolint:gosec
	}

	return out, nil
}

// DecodeFloat32s decodes exactly count IEEE-754 32-bit floats from data.
func (c Codec) DecodeFloat32s(data []byte, count int) ([]float32, error) {
	if err := checkLength(data, count); err != nil {
		return nil, err
	}

	out := make([]float32, count)
	for i := range out {
		out[i] = math.Float32frombits(c.engine.Uint32(data[i*ElementSize:]))
	}

	return out, nil
}

// AppendInt32s appends the encoded values to dst and returns the extended slice.
func (c Codec) AppendInt32s(dst []byte, values []int32) []byte {
	for _, v := range values {
		dst = c.engine.AppendUint32(dst, uint32(v)) //nolint:gosec
	}

	return dst
}

// AppendFloat32s appends the encoded values to dst and returns the extended slice.
func (c Codec) AppendFloat32s(dst []byte, values []float32) []byte {
	for _, v := range values {
		dst = c.engine.AppendUint32(dst, math.Float32bits(v))
	}

	return dst
}

// DecodeInt32s decodes count big-endian int32 values.
func DecodeInt32s(data []byte, count int) ([]int32, error) {
	return bigEndianCodec.DecodeInt32s(data, count)
}

// DecodeFloat32s decodes count big-endian float32 values.
func DecodeFloat32s(data []byte, count int) ([]float32, error) {
	return bigEndianCodec.DecodeFloat32s(data, count)
}

// DecodeBase64Int32s base64-decodes text and then decodes count big-endian int32 values.
func DecodeBase64Int32s(text string, count int) ([]int32, error) {
	data, err := DecodeBase64(text)
	if err != nil {
		return nil, err
	}

	return bigEndianCodec.DecodeInt32s(data, count)
}

// DecodeBase64Float32s base64-decodes text and then decodes count big-endian float32 values.
func DecodeBase64Float32s(text string, count int) ([]float32, error) {
	data, err := DecodeBase64(text)
	if err != nil {
		return nil, err
	}

	return bigEndianCodec.DecodeFloat32s(data, count)
}

// EncodeBase64Int32s encodes values as big-endian int32 and returns standard base64 text.
func EncodeBase64Int32s(values []int32) string {
	buf := bigEndianCodec.AppendInt32s(make([]byte, 0, len(values)*ElementSize), values)
	return base64.StdEncoding.EncodeToString(buf)
}

// EncodeBase64Float32s encodes values as big-endian float32 and returns standard base64 text.
func EncodeBase64Float32s(values []float32) string {
	buf := bigEndianCodec.AppendFloat32s(make([]byte, 0, len(values)*ElementSize), values)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBase64 decodes a standard base64 text block. Surrounding and embedded
// whitespace (XML line wrapping) is ignored.
func DecodeBase64(text string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		default:
			return r
		}
	}, text)

	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", errs.ErrMalformedBinaryPayload, err)
	}

	return data, nil
}

// Deinterleave splits alternating (a, b) pairs into two arrays: even-indexed
// values go to the first, odd-indexed to the second.
func Deinterleave(values []float32) ([]float32, []float32, error) {
	if len(values)%2 != 0 {
		return nil, nil, fmt.Errorf("%w: %d values cannot form pairs", errs.ErrMalformedBinaryPayload, len(values))
	}

	n := len(values) / 2
	even := make([]float32, n)
	odd := make([]float32, n)
	for i := range n {
		even[i] = values[2*i]
		odd[i] = values[2*i+1]
	}

	return even, odd, nil
}

// Interleave is the inverse of Deinterleave.
func Interleave(even, odd []float32) ([]float32, error) {
	if len(even) != len(odd) {
		return nil, fmt.Errorf("%w: pair arrays differ in length (%d vs %d)", errs.ErrMalformedBinaryPayload, len(even), len(odd))
	}

	out := make([]float32, 0, 2*len(even))
	for i := range even {
		out = append(out, even[i], odd[i])
	}

	return out, nil
}

func checkLength(data []byte, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: negative count %d", errs.ErrMalformedBinaryPayload, count)
	}

	if len(data)%ElementSize != 0 || len(data)/ElementSize != count {
		return fmt.Errorf("%w: got %d bytes, want %d elements of %d bytes",
			errs.ErrMalformedBinaryPayload, len(data), count, ElementSize)
	}

	return nil
}
