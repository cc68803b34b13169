package compact

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/maspeqc/qcpack/compress"
	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/format"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind distinguishes the two persisted record types.
type Kind uint8

const (
	KindChromatogram Kind = 0x1
	KindProfile      Kind = 0x2
)

func (k Kind) String() string {
	switch k {
	case KindChromatogram:
		return "chromatogram"
	case KindProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// ChromatogramRecord is the persisted chromatogram of one compound peak.
type ChromatogramRecord struct {
	Series     Series
	MZ         float64 // target m/z of the peak
	ExpectedRT float64 // expected retention time in minutes
}

// ProfileRecord is the persisted pressure profile of one channel. The channel
// is stored next to the payload, not inside it.
type ProfileRecord struct {
	Series  Series
	Channel string
}

type chromatogramJSON struct {
	RTs         []int64   `json:"rts"`
	Intensities []float64 `json:"intensities"`
	MZ          float64   `json:"mz"`
	ExpRT       float64   `json:"exp_rt"`
}

type profileJSON struct {
	RTs         []int64   `json:"rts"`
	Intensities []float64 `json:"intensities"`
}

// Encoder turns records into storage payloads.
type Encoder struct {
	payload     format.PayloadFormat
	compression format.CompressionType
	codec       compress.Codec
}

// NewEncoder creates an Encoder. Compression applies to packed payloads only.
func NewEncoder(payload format.PayloadFormat, compression format.CompressionType) (*Encoder, error) {
	switch payload {
	case format.PayloadJSON, format.PayloadPacked:
	default:
		return nil, fmt.Errorf("%w: payload format %s", errs.ErrInvalidPayload, payload)
	}

	if payload == format.PayloadJSON {
		compression = format.CompressionNone
	}

	codec, err := compress.GetCodec(compression)
	if err != nil {
		return nil, err
	}

	return &Encoder{payload: payload, compression: compression, codec: codec}, nil
}

// Encoding returns the encoding tag stored next to every payload.
func (e *Encoder) Encoding() string {
	return format.Encoding(e.payload, e.compression)
}

// EncodeChromatogram serializes rec.
func (e *Encoder) EncodeChromatogram(rec ChromatogramRecord) ([]byte, error) {
	if e.payload == format.PayloadPacked {
		return pack(KindChromatogram, rec.Series, rec.MZ, rec.ExpectedRT, e.compression, e.codec)
	}

	return json.Marshal(chromatogramJSON{
		RTs:         nonNilInts(rec.Series.DeltaTimes),
		Intensities: nonNilFloats(rec.Series.Values),
		MZ:          rec.MZ,
		ExpRT:       rec.ExpectedRT,
	})
}

// EncodeProfile serializes rec.
func (e *Encoder) EncodeProfile(rec ProfileRecord) ([]byte, error) {
	if e.payload == format.PayloadPacked {
		return pack(KindProfile, rec.Series, 0, 0, e.compression, e.codec)
	}

	return json.Marshal(profileJSON{
		RTs:         nonNilInts(rec.Series.DeltaTimes),
		Intensities: nonNilFloats(rec.Series.Values),
	})
}

// DecodeChromatogram parses a payload produced by EncodeChromatogram.
// JSON payloads carry no precision and are assumed to use the chromatogram preset.
func DecodeChromatogram(data []byte, encoding string) (ChromatogramRecord, error) {
	payload, _, err := format.ParseEncoding(encoding)
	if err != nil {
		return ChromatogramRecord{}, fmt.Errorf("%w: %w", errs.ErrInvalidPayload, err)
	}

	if payload == format.PayloadPacked {
		p, err := unpack(data)
		if err != nil {
			return ChromatogramRecord{}, err
		}
		if p.kind != KindChromatogram {
			return ChromatogramRecord{}, fmt.Errorf("%w: expected chromatogram, got %s", errs.ErrInvalidPayload, p.kind)
		}

		return ChromatogramRecord{Series: p.series, MZ: p.mz, ExpectedRT: p.expRT}, nil
	}

	var raw chromatogramJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return ChromatogramRecord{}, fmt.Errorf("%w: %w", errs.ErrInvalidPayload, err)
	}
	if len(raw.RTs) != len(raw.Intensities) {
		return ChromatogramRecord{}, fmt.Errorf("%w: %d rts, %d intensities", errs.ErrLengthMismatch, len(raw.RTs), len(raw.Intensities))
	}

	return ChromatogramRecord{
		Series: Series{
			DeltaTimes:     raw.RTs,
			Values:         raw.Intensities,
			TimePrecision:  ChromatogramTimePrecision,
			ValuePrecision: ChromatogramValuePrecision,
		},
		MZ:         raw.MZ,
		ExpectedRT: raw.ExpRT,
	}, nil
}

// DecodeProfile parses a payload produced by EncodeProfile. The returned
// record has an empty Channel.
func DecodeProfile(data []byte, encoding string) (ProfileRecord, error) {
	payload, _, err := format.ParseEncoding(encoding)
	if err != nil {
		return ProfileRecord{}, fmt.Errorf("%w: %w", errs.ErrInvalidPayload, err)
	}

	if payload == format.PayloadPacked {
		p, err := unpack(data)
		if err != nil {
			return ProfileRecord{}, err
		}
		if p.kind != KindProfile {
			return ProfileRecord{}, fmt.Errorf("%w: expected profile, got %s", errs.ErrInvalidPayload, p.kind)
		}

		return ProfileRecord{Series: p.series}, nil
	}

	var raw profileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return ProfileRecord{}, fmt.Errorf("%w: %w", errs.ErrInvalidPayload, err)
	}
	if len(raw.RTs) != len(raw.Intensities) {
		return ProfileRecord{}, fmt.Errorf("%w: %d rts, %d intensities", errs.ErrLengthMismatch, len(raw.RTs), len(raw.Intensities))
	}

	return ProfileRecord{
		Series: Series{
			DeltaTimes:     raw.RTs,
			Values:         raw.Intensities,
			TimePrecision:  ProfileTimePrecision,
			ValuePrecision: ProfileValuePrecision,
		},
	}, nil
}

func nonNilInts(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}

	return v
}

func nonNilFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}

	return v
}
