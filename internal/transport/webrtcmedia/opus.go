// Package webrtcmedia adapts a browser peer connection to the call
// pipeline. Signaling is a single HTTP offer/answer exchange; media flows
// as Opus RTP on the negotiated path. Inbound packets are decoded to 48 kHz
// mono PCM and handed to the pipeline, outbound replies are upsampled,
// Opus-encoded, and written to the local track.
//
// Like the telephony adapter, this package holds no VAD or segmentation
// logic; it only translates between peer media and the manager's calls.
package webrtcmedia

import (
	"fmt"

	"layeh.com/gopus"
)

// Peer media uses 48 kHz mono Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
	// opusFrameBytes is the PCM byte length of one frame.
	opusFrameBytes = opusFrameSize * opusChannels * 2
)

// opusDecoder wraps a gopus decoder for one inbound peer stream. Opus
// decoders are stateful across consecutive packets, so each peer gets its
// own.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("webrtcmedia: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode decodes one Opus packet into little-endian int16 PCM bytes.
func (d *opusDecoder) decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("webrtcmedia: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// opusEncoder wraps a gopus encoder for the outbound reply stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("webrtcmedia: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes exactly one 20 ms frame of little-endian int16 PCM bytes
// into an Opus packet.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	pcm := bytesToInt16s(pcmBytes)
	opus, err := e.enc.Encode(pcm, opusFrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("webrtcmedia: opus encode: %w", err)
	}
	return opus, nil
}

// frameOutbound slices 48 kHz mono PCM into whole 20 ms frames for the
// encoder, zero-padding the final partial frame so no reply audio is cut
// off.
func frameOutbound(pcm []byte) [][]byte {
	var frames [][]byte
	for len(pcm) >= opusFrameBytes {
		frames = append(frames, pcm[:opusFrameBytes])
		pcm = pcm[opusFrameBytes:]
	}
	if len(pcm) > 0 {
		last := make([]byte, opusFrameBytes)
		copy(last, pcm)
		frames = append(frames, last)
	}
	return frames
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// bytesToInt16s converts little-endian bytes to int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
