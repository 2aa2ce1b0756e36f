// Package energy implements a VAD engine based on per-frame RMS energy.
//
// The engine computes the root-mean-square amplitude of each frame, normalizes
// it against full scale, and compares the score to a tunable threshold. It has
// no model weights and no warm-up, which makes it cheap enough to run inline
// on every frame of every session.
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/vad"
)

// DefaultThreshold is the speech threshold used when a session config leaves
// it zero. Normalized RMS of conversational speech on a telephony line sits
// around 0.02–0.2; background hiss stays well below 0.01.
const DefaultThreshold = 0.05

// Engine creates RMS-energy VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("vad/energy: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("vad/energy: invalid frame size %dms", cfg.FrameSizeMs)
	}
	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("vad/energy: speech threshold %v out of range (0, 1]", threshold)
	}
	return &session{
		frameBytes: cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2,
		threshold:  threshold,
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	mu         sync.Mutex
	frameBytes int
	threshold  float64
	inSpeech   bool
	closed     bool
}

// ProcessFrame implements [vad.SessionHandle]. The event type encodes the
// transition relative to the previous frame: the first speech frame after
// silence is SpeechStart, the first silent frame after speech is SpeechEnd.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, vad.ErrSessionClosed
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("vad/energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	score := normalizedRMS(frame)
	speech := score >= s.threshold

	ev := vad.Event{Score: score}
	switch {
	case speech && !s.inSpeech:
		ev.Type = vad.SpeechStart
	case speech && s.inSpeech:
		ev.Type = vad.SpeechContinue
	case !speech && s.inSpeech:
		ev.Type = vad.SpeechEnd
	default:
		ev.Type = vad.Silence
	}
	s.inSpeech = speech
	return ev, nil
}

// SetThreshold implements [vad.SessionHandle].
func (s *session) SetThreshold(threshold float64) error {
	if threshold <= 0 || threshold > 1 {
		return fmt.Errorf("vad/energy: speech threshold %v out of range (0, 1]", threshold)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	return nil
}

// Reset implements [vad.SessionHandle].
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// normalizedRMS computes the RMS amplitude of little-endian int16 PCM scaled
// to [0, 1].
func normalizedRMS(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(samples)) / 32768
}
