package audio

// G.711 μ-law companding, the 8 kHz encoding used by telephony media streams.
// One μ-law byte expands to one int16 sample.

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawDecode expands G.711 μ-law bytes into little-endian int16 PCM.
// Every input byte is a valid μ-law code, so decoding cannot fail; callers
// validate chunk-level framing before calling.
func MuLawDecode(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		s := muLawDecodeSample(b)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// MuLawEncode compands little-endian int16 PCM into G.711 μ-law bytes.
// An odd trailing byte is ignored.
func MuLawEncode(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = muLawEncodeSample(s)
	}
	return out
}

// muLawDecodeSample expands a single μ-law byte.
func muLawDecodeSample(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := ((int32(mantissa) << 3) + muLawBias) << exponent
	sample -= muLawBias

	if sign != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

// muLawEncodeSample compands a single int16 sample.
func muLawEncodeSample(s int16) byte {
	var sign byte
	v := int32(s)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && v&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(v>>(exponent+3)) & 0x0F

	return ^(sign | exponent<<4 | mantissa)
}
