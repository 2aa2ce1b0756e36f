// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram or OpenAI
// Whisper) behind a single utterance-level call: the pipeline hands over the
// complete PCM audio of one segmented utterance and receives the recognized
// text back. Streaming partials are deliberately out of scope; the utterance
// segmenter upstream already decides where speech starts and ends.
//
// Implementations must be safe for concurrent use. Multiple utterances from
// different sessions may be transcribed simultaneously.
package stt

import (
	"context"
	"errors"
)

// ErrTranscription wraps any backend failure during transcription. Callers
// match it with errors.Is to distinguish provider faults from programming
// errors; a turn whose transcription fails produces no reply.
var ErrTranscription = errors.New("stt: transcription failed")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one utterance of 16 kHz mono little-endian int16
	// PCM into text. An empty or low-confidence result is returned as a
	// Transcript with empty Text, not an error; errors wrapping
	// ErrTranscription indicate the backend itself failed.
	Transcribe(ctx context.Context, pcm []byte) (Transcript, error)
}
