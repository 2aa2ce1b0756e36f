package pipeline

import (
	"fmt"
	"time"

	"github.com/lokv010/voiceagent-sub001/pkg/audio"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/vad"
)

// Segmenter defaults. All three are configurable per manager; these values
// match typical phone-call pacing.
const (
	// DefaultSilenceHold is how much continuous silence ends an utterance.
	DefaultSilenceHold = 500 * time.Millisecond

	// DefaultMaxUtterance caps a single utterance; longer speech is
	// force-emitted and accumulation restarts immediately.
	DefaultMaxUtterance = 15 * time.Second

	// DefaultMinUtteranceFrames is the minimum frame count below which an
	// utterance is discarded as a noise burst.
	DefaultMinUtteranceFrames = 5
)

// Utterance is a contiguous run of speech frames emitted by the segmenter.
// It is consumed exactly once by the turn runner.
type Utterance struct {
	// PCM is the concatenated pipeline-format audio of all frames.
	PCM []byte

	// Frames is the number of 20 ms frames in PCM.
	Frames int

	// Start is the timestamp of the first frame relative to stream start.
	Start time.Duration

	// Duration is the total play time of PCM.
	Duration time.Duration
}

// segmenterState is the two-state machine driving utterance boundaries.
type segmenterState int

const (
	stateIdle segmenterState = iota
	stateSpeaking
)

// Segmenter groups VAD-classified frames into utterances.
//
// In the idle state silence frames are discarded and the first speech frame
// opens an utterance. In the speaking state speech frames accumulate; a
// silence frame starts a hold timer instead of closing immediately, so short
// pauses inside a sentence do not split it. When accumulated silence reaches
// the hold duration the utterance is emitted (without the trailing silence);
// if speech resumes earlier, the bridged gap frames are folded into the
// utterance and accumulation continues.
//
// A Segmenter is owned by a single session goroutine and is not safe for
// concurrent use.
type Segmenter struct {
	vadSession vad.SessionHandle

	silenceHold  time.Duration
	maxUtterance time.Duration
	minFrames    int

	state    segmenterState
	pcm      []byte
	frames   int
	start    time.Duration
	duration time.Duration

	// gap holds silence frames observed mid-utterance, pending either a
	// bridge (speech resumes) or a discard (hold expires).
	gapPCM      []byte
	gapFrames   int
	gapDuration time.Duration
}

// SegmenterOption is a functional option for configuring a [Segmenter].
type SegmenterOption func(*Segmenter)

// WithSilenceHold sets the silence duration that closes an utterance.
// Non-positive values are ignored.
func WithSilenceHold(d time.Duration) SegmenterOption {
	return func(s *Segmenter) {
		if d > 0 {
			s.silenceHold = d
		}
	}
}

// WithMaxUtterance sets the force-emit cap. Non-positive values are ignored.
func WithMaxUtterance(d time.Duration) SegmenterOption {
	return func(s *Segmenter) {
		if d > 0 {
			s.maxUtterance = d
		}
	}
}

// WithMinUtteranceFrames sets the frame count below which an utterance is
// discarded. Values below 1 are ignored.
func WithMinUtteranceFrames(n int) SegmenterOption {
	return func(s *Segmenter) {
		if n >= 1 {
			s.minFrames = n
		}
	}
}

// NewSegmenter builds a segmenter gated by the given VAD session. The
// segmenter takes ownership of the session and closes it in [Segmenter.Close].
func NewSegmenter(vadSession vad.SessionHandle, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		vadSession:   vadSession,
		silenceHold:  DefaultSilenceHold,
		maxUtterance: DefaultMaxUtterance,
		minFrames:    DefaultMinUtteranceFrames,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Feed classifies one frame and advances the state machine. It returns a
// non-nil Utterance when the frame completed one, together with the VAD
// event for the frame. Utterances below the minimum frame count are
// discarded silently (nil is returned).
func (s *Segmenter) Feed(frame audio.AudioFrame) (*Utterance, vad.Event, error) {
	event, err := s.vadSession.ProcessFrame(frame.Data)
	if err != nil {
		return nil, vad.Event{}, fmt.Errorf("pipeline: segmenter vad: %w", err)
	}

	switch s.state {
	case stateIdle:
		if event.Type.IsSpeech() {
			s.state = stateSpeaking
			s.start = frame.Timestamp
			s.appendFrame(frame)
		}

	case stateSpeaking:
		if event.Type.IsSpeech() {
			// Speech resumed before the hold expired: the pause was
			// intra-utterance, so the gap frames belong to the utterance.
			s.bridgeGap()
			s.appendFrame(frame)
			if s.duration >= s.maxUtterance {
				utt := s.take()
				// Restart accumulation immediately: the speaker has not
				// stopped, only the cap was hit.
				s.state = stateSpeaking
				s.start = frame.Timestamp + audio.FrameDuration
				return utt, event, nil
			}
		} else {
			s.appendGap(frame)
			if s.gapDuration >= s.silenceHold {
				utt := s.take()
				s.state = stateIdle
				return utt, event, nil
			}
		}
	}

	return nil, event, nil
}

// Flush emits whatever speech has accumulated, regardless of the silence
// hold. Used at session teardown so trailing speech is not lost. Returns nil
// when nothing (or too little) accumulated.
func (s *Segmenter) Flush() *Utterance {
	if s.state != stateSpeaking {
		return nil
	}
	utt := s.take()
	s.state = stateIdle
	return utt
}

// Close releases the underlying VAD session.
func (s *Segmenter) Close() error {
	return s.vadSession.Close()
}

func (s *Segmenter) appendFrame(frame audio.AudioFrame) {
	s.pcm = append(s.pcm, frame.Data...)
	s.frames++
	s.duration += audio.FrameDuration
}

func (s *Segmenter) appendGap(frame audio.AudioFrame) {
	s.gapPCM = append(s.gapPCM, frame.Data...)
	s.gapFrames++
	s.gapDuration += audio.FrameDuration
}

// bridgeGap folds pending gap frames into the utterance body.
func (s *Segmenter) bridgeGap() {
	if s.gapFrames == 0 {
		return
	}
	s.pcm = append(s.pcm, s.gapPCM...)
	s.frames += s.gapFrames
	s.duration += s.gapDuration
	s.clearGap()
}

func (s *Segmenter) clearGap() {
	s.gapPCM = nil
	s.gapFrames = 0
	s.gapDuration = 0
}

// take extracts the accumulated utterance and resets the buffers. Trailing
// gap frames are always dropped. Returns nil below the minimum frame count.
func (s *Segmenter) take() *Utterance {
	var utt *Utterance
	if s.frames >= s.minFrames {
		utt = &Utterance{
			PCM:      s.pcm,
			Frames:   s.frames,
			Start:    s.start,
			Duration: s.duration,
		}
	}
	s.pcm = nil
	s.frames = 0
	s.start = 0
	s.duration = 0
	s.clearGap()
	return utt
}
