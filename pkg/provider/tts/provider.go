// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or the
// OpenAI speech API) behind a single call that turns one reply's text into
// raw PCM audio in the pipeline format. Replies in this system are short
// conversational turns, so synthesis is utterance-level rather than streamed.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel, one per active session.
package tts

import (
	"context"
	"errors"
)

// ErrSynthesis wraps any backend failure during synthesis. Callers match it
// with errors.Is; a reply whose synthesis fails is skipped rather than
// ending the session.
var ErrSynthesis = errors.New("tts: synthesis failed")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts reply text into 16 kHz mono little-endian int16
	// PCM. voice selects the provider-specific voice; an empty voice uses
	// the provider's default. Empty text is an error.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
