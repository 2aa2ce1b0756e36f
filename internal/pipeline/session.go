package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lokv010/voiceagent-sub001/internal/observe"
	"github.com/lokv010/voiceagent-sub001/pkg/audio"
)

// Transport identifies which adapter feeds a session. It selects the chunk
// decoder and labels the session's metrics.
type Transport string

const (
	// TransportTelephony is the WebSocket media-stream adapter; chunks are
	// 8 kHz G.711 μ-law.
	TransportTelephony Transport = "telephony"

	// TransportWebRTC is the peer-media adapter; chunks are 48 kHz mono PCM
	// (the adapter decodes Opus before handing audio to the pipeline).
	TransportWebRTC Transport = "webrtc"
)

const (
	// DefaultFrameQueue bounds the inbound frame channel. 256 frames of
	// 20 ms is roughly five seconds of audio.
	DefaultFrameQueue = 256

	// utteranceQueue bounds the serial turn queue. Utterances are several
	// seconds each, so a small buffer covers any realistic backlog.
	utteranceQueue = 8
)

// StreamSession is one live call stream: a decoder, a segmenter, a bounded
// frame queue, and two goroutines (frame loop, turn runner). Created and
// torn down only by the [Manager]; transports never hold one directly.
type StreamSession struct {
	// ID is the session's unique identifier, assigned at start.
	ID string

	// CallID is the transport's call identifier.
	CallID string

	// Kind is the transport that owns this session.
	Kind Transport

	// CreatedAt is when the session was started.
	CreatedAt time.Time

	decMu   sync.Mutex
	decoder audio.Decoder

	seg     *Segmenter
	orch    *Orchestrator
	sink    Sink
	metrics *observe.Metrics

	frames     chan audio.AudioFrame
	utterances chan Utterance

	// replyActive is true while the sink is playing a reply; speech frames
	// arriving during that window count as barge-in.
	replyActive atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// sessionConfig carries everything a session needs; built by the manager.
type sessionConfig struct {
	id         string
	callID     string
	kind       Transport
	decoder    audio.Decoder
	segmenter  *Segmenter
	orch       *Orchestrator
	sink       Sink
	metrics    *observe.Metrics
	frameQueue int
}

// newStreamSession wires up a session and launches its goroutines.
func newStreamSession(cfg sessionConfig) *StreamSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &StreamSession{
		ID:         cfg.id,
		CallID:     cfg.callID,
		Kind:       cfg.kind,
		CreatedAt:  time.Now().UTC(),
		decoder:    cfg.decoder,
		seg:        cfg.segmenter,
		orch:       cfg.orch,
		sink:       cfg.sink,
		metrics:    cfg.metrics,
		frames:     make(chan audio.AudioFrame, cfg.frameQueue),
		utterances: make(chan Utterance, utteranceQueue),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.metrics.ActiveSessions.Add(ctx, 1)
	s.wg.Add(2)
	go s.frameLoop()
	go s.turnLoop()
	return s
}

// handleChunk decodes one transport chunk and enqueues the resulting frames,
// dropping the oldest queued frames on overflow. Decode errors are returned
// to the adapter, which drops the chunk and logs; the session stays alive.
func (s *StreamSession) handleChunk(chunk []byte, ts time.Duration) error {
	if s.ctx.Err() != nil {
		return fmt.Errorf("pipeline: handle chunk: %w", ErrSessionNotFound)
	}

	s.decMu.Lock()
	frames, err := s.decoder.Decode(chunk, ts)
	s.decMu.Unlock()
	if err != nil {
		return fmt.Errorf("pipeline: handle chunk: %w", err)
	}

	var dropped int64
	for _, f := range frames {
		dropped += s.pushFrame(f)
	}
	if dropped > 0 {
		s.metrics.RecordFramesDropped(s.ctx, string(s.Kind), dropped)
		slog.Warn("frame queue overflow, dropped oldest frames",
			"session_id", s.ID, "call_id", s.CallID, "dropped", dropped)
	}
	return nil
}

// pushFrame enqueues f, evicting the oldest queued frame when full. Returns
// the number of frames evicted (0 or more: the consumer may race the evict).
func (s *StreamSession) pushFrame(f audio.AudioFrame) int64 {
	var dropped int64
	for {
		select {
		case s.frames <- f:
			return dropped
		default:
		}
		select {
		case <-s.frames:
			dropped++
		default:
		}
	}
}

// frameLoop drains the frame queue through the segmenter and forwards
// completed utterances to the turn runner.
func (s *StreamSession) frameLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.frames:
			utt, event, err := s.seg.Feed(f)
			if err != nil {
				slog.Warn("frame dropped: segmenter error",
					"session_id", s.ID, "call_id", s.CallID, "err", err)
				continue
			}
			if event.Type.IsSpeech() && s.replyActive.Load() {
				s.metrics.BargeInFrames.Add(s.ctx, 1)
			}
			if utt == nil {
				continue
			}
			s.metrics.RecordUtterance(s.ctx, string(s.Kind))
			s.pushUtterance(*utt)
		}
	}
}

// pushUtterance enqueues an utterance for the turn runner, dropping the
// oldest queued one when the runner has fallen this far behind.
func (s *StreamSession) pushUtterance(utt Utterance) {
	for {
		select {
		case s.utterances <- utt:
			return
		default:
		}
		select {
		case old := <-s.utterances:
			slog.Warn("turn queue overflow, dropped oldest utterance",
				"session_id", s.ID, "call_id", s.CallID,
				"dropped_ms", old.Duration.Milliseconds())
		default:
		}
	}
}

// turnLoop runs queued utterances through the orchestrator, strictly one at
// a time in arrival order.
func (s *StreamSession) turnLoop() {
	defer s.wg.Done()
	tracked := &trackingSink{inner: s.sink, active: &s.replyActive}
	for {
		select {
		case <-s.ctx.Done():
			return
		case utt := <-s.utterances:
			if _, err := s.orch.RunTurn(s.ctx, s.CallID, utt, tracked); err != nil {
				slog.Error("turn failed",
					"session_id", s.ID, "call_id", s.CallID, "err", err)
			}
		}
	}
}

// close cancels the session context, waits for both goroutines, and
// releases the VAD session. Safe to call multiple times.
func (s *StreamSession) close() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		if utt := s.seg.Flush(); utt != nil {
			slog.Debug("discarding trailing speech at session stop",
				"session_id", s.ID, "call_id", s.CallID,
				"trailing_ms", utt.Duration.Milliseconds())
		}
		if err := s.seg.Close(); err != nil {
			slog.Warn("vad session close error",
				"session_id", s.ID, "call_id", s.CallID, "err", err)
		}
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	})
}

// trackingSink marks the reply-playback window so the frame loop can count
// barge-in frames.
type trackingSink struct {
	inner  Sink
	active *atomic.Bool
}

func (t *trackingSink) Play(ctx context.Context, pcm []byte) error {
	t.active.Store(true)
	defer t.active.Store(false)
	return t.inner.Play(ctx, pcm)
}
