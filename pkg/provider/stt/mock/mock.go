// Package mock provides a test double for the stt package interface.
//
// Use Provider to feed controlled Transcript values and inspect which
// utterances were submitted for transcription.
//
// Example:
//
//	p := &mock.Provider{
//	    TranscribeResult: stt.Transcript{Text: "hello", Confidence: 0.9},
//	}
//	tr, _ := p.Transcribe(ctx, pcm)
package mock

import (
	"context"
	"sync"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// PCM is a copy of the audio bytes that were passed to Transcribe.
	PCM []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by every Transcribe call unless
	// TranscribeFunc is set.
	TranscribeResult stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if non-nil, replaces the canned result entirely.
	TranscribeFunc func(ctx context.Context, pcm []byte) (stt.Transcript, error)

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr (or
// delegates to TranscribeFunc when set).
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (stt.Transcript, error) {
	p.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, PCM: cp})
	fn := p.TranscribeFunc
	result, err := p.TranscribeResult, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm)
	}
	return result, err
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
