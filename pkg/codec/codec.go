// Package codec converts between interleaved hardware PCM byte buffers
// and the engine's internal int32 sample domain (left-aligned: a full
// amplitude sample always occupies the top bits of the int32, regardless
// of the source format's bit depth).
package codec

import "fmt"

// Format identifies a hardware PCM sample encoding.
type Format int

const (
	FormatS8 Format = iota
	FormatS16LE
	FormatS16BE
	FormatS24LE
	FormatS24BE
	FormatS32LE
	FormatS32BE
)

// BytesPerSample returns the on-wire size of one sample in the given
// format, or ok=false if the format is unsupported.
func BytesPerSample(f Format) (int, bool) {
	switch f {
	case FormatS8:
		return 1, true
	case FormatS16LE, FormatS16BE:
		return 2, true
	case FormatS24LE, FormatS24BE:
		return 3, true
	case FormatS32LE, FormatS32BE:
		return 4, true
	default:
		return 0, false
	}
}

// Supported reports whether f is a format this codec knows how to
// convert.
func Supported(f Format) bool {
	_, ok := BytesPerSample(f)
	return ok
}

func bufSizeErr(want, got int) error {
	return fmt.Errorf("codec: buffer too small: need %d bytes, have %d", want, got)
}

// Decode converts an interleaved hardware byte buffer into left-aligned
// int32 samples, one slot per channel per frame. dst must have room for
// channels*frames samples.
func Decode(f Format, channels, frames int, src []byte, dst []int32) error {
	bps, ok := BytesPerSample(f)
	if !ok {
		return fmt.Errorf("codec: unsupported format %v", f)
	}
	need := bps * channels * frames
	if len(src) < need {
		return bufSizeErr(need, len(src))
	}
	n := channels * frames
	if len(dst) < n {
		return fmt.Errorf("codec: dst too small: need %d samples, have %d", n, len(dst))
	}
	for i := 0; i < n; i++ {
		dst[i] = decodeSample(f, src[i*bps:i*bps+bps])
	}
	return nil
}

// DecodeConnected is Decode restricted to a subset of channels: channels
// whose connected[ch] is false are left untouched in dst (not zeroed),
// matching the hardware driver's policy of skipping work for ports with
// no audio graph connections. When every channel is connected this must
// behave identically to Decode.
func DecodeConnected(f Format, channels, frames int, src []byte, dst []int32, connected []bool) error {
	bps, ok := BytesPerSample(f)
	if !ok {
		return fmt.Errorf("codec: unsupported format %v", f)
	}
	need := bps * channels * frames
	if len(src) < need {
		return bufSizeErr(need, len(src))
	}
	if len(connected) != channels {
		return fmt.Errorf("codec: connected length %d does not match channels %d", len(connected), channels)
	}
	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			if !connected[ch] {
				continue
			}
			idx := frame*channels + ch
			dst[idx] = decodeSample(f, src[idx*bps:idx*bps+bps])
		}
	}
	return nil
}

func decodeSample(f Format, b []byte) int32 {
	switch f {
	case FormatS8:
		return int32(int8(b[0])) << 24
	case FormatS16LE:
		v := int16(uint16(b[0]) | uint16(b[1])<<8)
		return int32(v) << 16
	case FormatS16BE:
		v := int16(uint16(b[1]) | uint16(b[0])<<8)
		return int32(v) << 16
	case FormatS24LE:
		return int32(b[0])<<8 | int32(b[1])<<16 | int32(b[2])<<24
	case FormatS24BE:
		return int32(b[2])<<8 | int32(b[1])<<16 | int32(b[0])<<24
	case FormatS32LE:
		return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	case FormatS32BE:
		return int32(uint32(b[3]) | uint32(b[2])<<8 | uint32(b[1])<<16 | uint32(b[0])<<24)
	default:
		return 0
	}
}

// Encode converts left-aligned int32 samples back into an interleaved
// hardware byte buffer.
func Encode(f Format, channels, frames int, src []int32, dst []byte) error {
	bps, ok := BytesPerSample(f)
	if !ok {
		return fmt.Errorf("codec: unsupported format %v", f)
	}
	n := channels * frames
	if len(src) < n {
		return fmt.Errorf("codec: src too small: need %d samples, have %d", n, len(src))
	}
	need := bps * n
	if len(dst) < need {
		return bufSizeErr(need, len(dst))
	}
	for i := 0; i < n; i++ {
		encodeSample(f, src[i], dst[i*bps:i*bps+bps])
	}
	return nil
}

func encodeSample(f Format, s int32, b []byte) {
	switch f {
	case FormatS8:
		b[0] = byte(int8(s >> 24))
	case FormatS16LE:
		v := int16(s >> 16)
		b[0] = byte(v)
		b[1] = byte(v >> 8)
	case FormatS16BE:
		v := int16(s >> 16)
		b[0] = byte(v >> 8)
		b[1] = byte(v)
	case FormatS24LE:
		v := s >> 8
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
	case FormatS24BE:
		v := s >> 8
		b[0] = byte(v >> 16)
		b[1] = byte(v >> 8)
		b[2] = byte(v)
	case FormatS32LE:
		b[0] = byte(s)
		b[1] = byte(s >> 8)
		b[2] = byte(s >> 16)
		b[3] = byte(s >> 24)
	case FormatS32BE:
		b[0] = byte(s >> 24)
		b[1] = byte(s >> 16)
		b[2] = byte(s >> 8)
		b[3] = byte(s)
	}
}

// NormalizedToInt32 converts a float sample in [-1, 1] to the left-aligned
// int32 domain used internally between the codec and the audio port
// graph.
func NormalizedToInt32(v float32) int32 {
	if v >= 1 {
		return 1<<31 - 1
	}
	if v <= -1 {
		return -(1 << 31)
	}
	return int32(v * (1 << 31))
}

// Int32ToNormalized converts a left-aligned int32 sample back to a float
// in [-1, 1].
func Int32ToNormalized(v int32) float32 {
	return float32(v) / (1 << 31)
}
