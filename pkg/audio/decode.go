package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrDecode indicates a malformed transport audio chunk. Callers drop the
// chunk and keep the session alive.
var ErrDecode = errors.New("audio: malformed chunk")

// Decoder turns transport-native audio chunks into pipeline-format frames.
//
// A Decoder is stateful only in its framing: transport chunks rarely align
// with 20 ms boundaries, so a partial-frame remainder is carried between
// calls. The sample conversion itself is deterministic. Decoders are owned
// by a single session goroutine and are not safe for concurrent use.
type Decoder interface {
	// Decode converts one transport chunk into zero or more complete
	// pipeline frames. ts is the transport timestamp of the chunk; the
	// first chunk anchors the frame clock and subsequent frames advance by
	// FrameDuration each, keeping timestamps monotonically non-decreasing
	// even when transport timestamps jitter.
	Decode(chunk []byte, ts time.Duration) ([]AudioFrame, error)

	// Reset discards the partial-frame remainder and the frame clock.
	Reset()
}

// framer slices normalized pipeline-rate PCM into fixed 20 ms frames,
// carrying the remainder between chunks.
type framer struct {
	pending  []byte
	clock    time.Duration
	anchored bool
}

func (f *framer) push(pcm []byte, ts time.Duration) []AudioFrame {
	if !f.anchored {
		f.clock = ts
		f.anchored = true
	}
	f.pending = append(f.pending, pcm...)

	var frames []AudioFrame
	for len(f.pending) >= FrameBytes {
		data := make([]byte, FrameBytes)
		copy(data, f.pending)
		f.pending = f.pending[FrameBytes:]

		frames = append(frames, AudioFrame{
			Data:       data,
			SampleRate: PipelineSampleRate,
			Channels:   PipelineChannels,
			Timestamp:  f.clock,
		})
		f.clock += FrameDuration
	}
	return frames
}

func (f *framer) reset() {
	f.pending = nil
	f.clock = 0
	f.anchored = false
}

// MuLawDecoder decodes 8 kHz G.711 μ-law telephony chunks into pipeline
// frames, expanding and upsampling to the pipeline rate.
type MuLawDecoder struct {
	fr framer
}

// NewMuLawDecoder returns a decoder for telephony media-stream payloads.
func NewMuLawDecoder() *MuLawDecoder {
	return &MuLawDecoder{}
}

// Decode implements [Decoder]. An empty chunk is malformed: media events
// always carry payload, so emptiness means the transport layer handed us a
// truncated or corrupted message.
func (d *MuLawDecoder) Decode(chunk []byte, ts time.Duration) ([]AudioFrame, error) {
	if len(chunk) == 0 {
		return nil, fmt.Errorf("%w: empty mu-law payload", ErrDecode)
	}
	pcm8k := MuLawDecode(chunk)
	pcm := ResampleMono16(pcm8k, 8000, PipelineSampleRate)
	return d.fr.push(pcm, ts), nil
}

// Reset implements [Decoder].
func (d *MuLawDecoder) Reset() { d.fr.reset() }

// PCMDecoder normalizes already-PCM chunks (e.g. decoded peer-media audio)
// to the pipeline format: resampling and downmixing only.
type PCMDecoder struct {
	src Format
	fr  framer
}

// NewPCMDecoder returns a decoder for PCM chunks in the given source format.
func NewPCMDecoder(src Format) (*PCMDecoder, error) {
	if src.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: pcm decoder: invalid sample rate %d", src.SampleRate)
	}
	if src.Channels != 1 && src.Channels != 2 {
		return nil, fmt.Errorf("audio: pcm decoder: unsupported channel count %d", src.Channels)
	}
	return &PCMDecoder{src: src}, nil
}

// Decode implements [Decoder]. Chunks must hold whole int16 samples; an odd
// byte count or empty chunk is malformed.
func (d *PCMDecoder) Decode(chunk []byte, ts time.Duration) ([]AudioFrame, error) {
	if len(chunk) == 0 {
		return nil, fmt.Errorf("%w: empty pcm payload", ErrDecode)
	}
	sampleBytes := 2 * d.src.Channels
	if len(chunk)%sampleBytes != 0 {
		return nil, fmt.Errorf("%w: pcm payload of %d bytes is not sample-aligned", ErrDecode, len(chunk))
	}

	pcm := chunk
	if d.src.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	pcm = ResampleMono16(pcm, d.src.SampleRate, PipelineSampleRate)
	return d.fr.push(pcm, ts), nil
}

// Reset implements [Decoder].
func (d *PCMDecoder) Reset() { d.fr.reset() }
