package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lokv010/voiceagent-sub001/internal/observe"
	"github.com/lokv010/voiceagent-sub001/pkg/audio"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/stt"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/tts"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/vad"
)

// defaultSpeechThreshold matches the typical operating point of energy-based
// VAD engines.
const defaultSpeechThreshold = 0.05

// webrtcSourceRate is the PCM rate the peer-media adapter hands to the
// pipeline after Opus decode.
const webrtcSourceRate = 48000

// ManagerConfig holds the collaborators and tuning for a [Manager]. VAD,
// STT, Conversation, and TTS are required; everything else has a default.
type ManagerConfig struct {
	VAD          vad.Engine
	STT          stt.Provider
	Conversation conversation.Provider
	TTS          tts.Provider

	// Corrector is optional transcript post-processing; nil disables it.
	Corrector Corrector

	// Voice is the TTS voice for all sessions.
	Voice string

	// FallbackPhrase replaces the reply on conversation failure. Empty
	// selects [DefaultFallbackPhrase].
	FallbackPhrase string

	// SpeechThreshold is the VAD speech threshold for new sessions. Zero
	// selects the energy-engine default.
	SpeechThreshold float64

	// SilenceHold, MaxUtterance, and MinUtteranceFrames tune the segmenter;
	// zero values select the segmenter defaults.
	SilenceHold        time.Duration
	MaxUtterance       time.Duration
	MinUtteranceFrames int

	// FrameQueue bounds each session's inbound frame channel. Zero selects
	// [DefaultFrameQueue].
	FrameQueue int

	// Metrics is optional; nil selects [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Manager owns all live stream sessions and is the only entry point
// transports use: StartSession, HandleChunk, StopSession. All methods are
// safe for concurrent use. Sessions are fully isolated from each other; a
// failing or stopped session never affects its siblings.
type Manager struct {
	cfg     ManagerConfig
	orch    *Orchestrator
	metrics *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*StreamSession // keyed by session id
	byCall   map[string]string         // call id → session id
}

// NewManager builds a manager from the given configuration.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.VAD == nil {
		return nil, fmt.Errorf("pipeline: manager: VAD engine is required")
	}
	if cfg.STT == nil || cfg.Conversation == nil || cfg.TTS == nil {
		return nil, fmt.Errorf("pipeline: manager: STT, Conversation, and TTS providers are required")
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = defaultSpeechThreshold
	}
	if cfg.FrameQueue <= 0 {
		cfg.FrameQueue = DefaultFrameQueue
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	orch := NewOrchestrator(OrchestratorConfig{
		STT:            cfg.STT,
		Conversation:   cfg.Conversation,
		TTS:            cfg.TTS,
		Corrector:      cfg.Corrector,
		Voice:          cfg.Voice,
		FallbackPhrase: cfg.FallbackPhrase,
		Metrics:        cfg.Metrics,
	})

	return &Manager{
		cfg:      cfg,
		orch:     orch,
		metrics:  cfg.Metrics,
		sessions: make(map[string]*StreamSession),
		byCall:   make(map[string]string),
	}, nil
}

// StartSession creates a session for the given call and returns its id.
// Returns [ErrDuplicateSession] (wrapped) when the call already has one.
func (m *Manager) StartSession(kind Transport, callID string, sink Sink) (string, error) {
	if callID == "" {
		return "", fmt.Errorf("pipeline: start session: call id is empty")
	}
	if sink == nil {
		return "", fmt.Errorf("pipeline: start session: sink is nil")
	}

	decoder, err := decoderFor(kind)
	if err != nil {
		return "", fmt.Errorf("pipeline: start session: %w", err)
	}

	vadSession, err := m.cfg.VAD.NewSession(vad.Config{
		SampleRate:      audio.PipelineSampleRate,
		FrameSizeMs:     int(audio.FrameDuration / time.Millisecond),
		SpeechThreshold: m.cfg.SpeechThreshold,
	})
	if err != nil {
		return "", fmt.Errorf("pipeline: start session: vad: %w", err)
	}

	m.mu.Lock()
	if existing, ok := m.byCall[callID]; ok {
		m.mu.Unlock()
		_ = vadSession.Close()
		return "", fmt.Errorf("pipeline: start session for call %q (existing session %s): %w",
			callID, existing, ErrDuplicateSession)
	}

	seg := NewSegmenter(vadSession,
		WithSilenceHold(m.cfg.SilenceHold),
		WithMaxUtterance(m.cfg.MaxUtterance),
		WithMinUtteranceFrames(m.cfg.MinUtteranceFrames),
	)

	s := newStreamSession(sessionConfig{
		id:         uuid.NewString(),
		callID:     callID,
		kind:       kind,
		decoder:    decoder,
		segmenter:  seg,
		orch:       m.orch,
		sink:       sink,
		metrics:    m.metrics,
		frameQueue: m.cfg.FrameQueue,
	})
	m.sessions[s.ID] = s
	m.byCall[callID] = s.ID
	m.mu.Unlock()

	slog.Info("stream session started",
		"session_id", s.ID, "call_id", callID, "transport", string(kind))
	return s.ID, nil
}

// HandleChunk feeds one transport audio chunk into the session. Returns
// [ErrSessionNotFound] (wrapped) for unknown or stopped sessions and
// [audio.ErrDecode] (wrapped) for malformed chunks; in both cases the
// adapter logs and drops the chunk.
func (m *Manager) HandleChunk(sessionID string, chunk []byte, ts time.Duration) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("pipeline: handle chunk for session %q: %w", sessionID, ErrSessionNotFound)
	}
	return s.handleChunk(chunk, ts)
}

// StopSession tears down the session: both goroutines exit, any in-flight
// collaborator call is cancelled, and the VAD session is released. Unknown
// or already-stopped session ids are a silent no-op.
func (m *Manager) StopSession(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		delete(m.byCall, s.CallID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	slog.Info("stream session stopped",
		"session_id", s.ID, "call_id", s.CallID, "transport", string(s.Kind))
}

// ActiveSessions returns the number of live sessions. Used by readiness
// reporting.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every live session. Used at server shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*StreamSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*StreamSession)
	m.byCall = make(map[string]string)
	m.mu.Unlock()

	for _, s := range all {
		s.close()
	}
	if len(all) > 0 {
		slog.Info("stream sessions stopped at shutdown", "count", len(all))
	}
}

// decoderFor selects the chunk decoder for a transport kind.
func decoderFor(kind Transport) (audio.Decoder, error) {
	switch kind {
	case TransportTelephony:
		return audio.NewMuLawDecoder(), nil
	case TransportWebRTC:
		return audio.NewPCMDecoder(audio.Format{
			SampleRate: webrtcSourceRate,
			Channels:   1,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
