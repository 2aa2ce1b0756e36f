package energy

import (
	"errors"
	"math"
	"testing"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/vad"
)

const (
	testRate    = 16000
	testFrameMs = 20
)

func newTestSession(t *testing.T, threshold float64) vad.SessionHandle {
	t.Helper()
	sess, err := New().NewSession(vad.Config{
		SampleRate:      testRate,
		FrameSizeMs:     testFrameMs,
		SpeechThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

// sineFrame builds one 20 ms frame of a 440 Hz tone at the given amplitude.
func sineFrame(amplitude float64) []byte {
	samples := testRate * testFrameMs / 1000
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		s := int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/testRate))
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func silentFrame() []byte {
	return make([]byte, testRate*testFrameMs/1000*2)
}

func TestNewSessionValidation(t *testing.T) {
	eng := New()
	cases := []struct {
		name string
		cfg  vad.Config
	}{
		{"zero sample rate", vad.Config{FrameSizeMs: 20, SpeechThreshold: 0.05}},
		{"zero frame size", vad.Config{SampleRate: 16000, SpeechThreshold: 0.05}},
		{"negative threshold", vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: -1}},
		{"threshold above one", vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 1.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := eng.NewSession(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestZeroThresholdUsesDefault(t *testing.T) {
	sess := newTestSession(t, 0)
	ev, err := sess.ProcessFrame(sineFrame(0.5))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !ev.Type.IsSpeech() {
		t.Fatalf("loud tone classified as %v with default threshold", ev.Type)
	}
}

func TestTransitionSequence(t *testing.T) {
	sess := newTestSession(t, 0.05)

	want := []struct {
		frame []byte
		typ   vad.EventType
	}{
		{silentFrame(), vad.Silence},
		{sineFrame(0.5), vad.SpeechStart},
		{sineFrame(0.5), vad.SpeechContinue},
		{silentFrame(), vad.SpeechEnd},
		{silentFrame(), vad.Silence},
		{sineFrame(0.5), vad.SpeechStart},
	}
	for i, step := range want {
		ev, err := sess.ProcessFrame(step.frame)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.Type != step.typ {
			t.Errorf("frame %d: got %v, want %v", i, ev.Type, step.typ)
		}
	}
}

func TestScoreTracksAmplitude(t *testing.T) {
	sess := newTestSession(t, 0.05)
	quiet, err := sess.ProcessFrame(sineFrame(0.1))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	loud, err := sess.ProcessFrame(sineFrame(0.8))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if loud.Score <= quiet.Score {
		t.Errorf("loud score %v not above quiet score %v", loud.Score, quiet.Score)
	}
	if loud.Score > 1 {
		t.Errorf("score %v above 1", loud.Score)
	}
}

func TestSetThreshold(t *testing.T) {
	sess := newTestSession(t, 0.05)

	// A quiet tone above the default threshold.
	ev, err := sess.ProcessFrame(sineFrame(0.2))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !ev.Type.IsSpeech() {
		t.Fatalf("got %v, want speech before raising threshold", ev.Type)
	}

	// Raise the bar past the tone's RMS; the same signal becomes silence.
	if err := sess.SetThreshold(0.9); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	ev, err = sess.ProcessFrame(sineFrame(0.2))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type.IsSpeech() {
		t.Fatalf("got %v, want non-speech after raising threshold", ev.Type)
	}

	if err := sess.SetThreshold(0); err == nil {
		t.Fatal("expected error for zero threshold")
	}
}

func TestWrongFrameSize(t *testing.T) {
	sess := newTestSession(t, 0.05)
	if _, err := sess.ProcessFrame(make([]byte, 100)); err == nil {
		t.Fatal("expected error for wrong frame size")
	}
}

func TestResetClearsSpeechState(t *testing.T) {
	sess := newTestSession(t, 0.05)
	if _, err := sess.ProcessFrame(sineFrame(0.5)); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	sess.Reset()

	// After Reset a speech frame starts a fresh segment, not a continuation.
	ev, err := sess.ProcessFrame(sineFrame(0.5))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.SpeechStart {
		t.Fatalf("got %v, want SpeechStart after Reset", ev.Type)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sess := newTestSession(t, 0.05)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := sess.ProcessFrame(silentFrame()); !errors.Is(err, vad.ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}
