// Package audio defines the frame format flowing through the call pipeline
// and the codec/conversion primitives that move transport-native audio in
// and out of it.
//
// All pipeline-internal audio is little-endian int16 mono PCM at
// [PipelineSampleRate], carried in fixed [FrameDuration] slices. Transport
// adapters convert their native encodings (G.711 μ-law for telephony media
// streams, Opus for peer media) at the edges via [Decoder] implementations
// and the encode helpers in this package.
package audio

import "time"

// Pipeline audio format. Constant for the lifetime of every stream session;
// transports that speak other rates are converted at the decoder/encoder seam.
const (
	// PipelineSampleRate is the internal sample rate in Hz.
	PipelineSampleRate = 16000

	// PipelineChannels is the internal channel count (mono).
	PipelineChannels = 1

	// FrameDuration is the fixed duration of one AudioFrame.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of int16 samples in one frame (320).
	FrameSamples = PipelineSampleRate / 1000 * 20

	// FrameBytes is the byte length of one frame's PCM data (640).
	FrameBytes = FrameSamples * 2
)

// AudioFrame is a single fixed-duration slice of audio moving through the
// pipeline. Frames are immutable once produced: decoders allocate fresh
// backing arrays and downstream stages never write into Data.
type AudioFrame struct {
	// Data is little-endian int16 PCM. For pipeline-internal frames the
	// length is always FrameBytes.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count (1 for all pipeline-internal frames).
	Channels int

	// Timestamp marks the frame's position relative to stream start.
	// Monotonically non-decreasing within a session.
	Timestamp time.Duration
}

// Duration returns the play time of the frame's PCM data.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
